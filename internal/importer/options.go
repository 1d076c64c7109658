package importer

import "time"

// Options configures the importer's file watching.
type Options struct {
	// SettleDelay is how long the file must stay unchanged before it is re-imported.
	SettleDelay time.Duration
}

func (o *Options) setDefaults() {
	if o.SettleDelay == 0 {
		o.SettleDelay = 500 * time.Millisecond
	}
}
