package domain

// Op is the kind of mutation a change notification reports.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	// OpResync is synthesized by clients after a reconnect, when changes may have been missed.
	OpResync Op = "resync"
)

// OpMask selects which operations a subscriber wants to hear about.
type OpMask uint8

const (
	MaskInsert OpMask = 1 << iota
	MaskUpdate
	MaskDelete

	OpAll = MaskInsert | MaskUpdate | MaskDelete
)

// Has reports whether the mask includes op. Resync always passes.
func (m OpMask) Has(op Op) bool {
	switch op {
	case OpInsert:
		return m&MaskInsert != 0
	case OpUpdate:
		return m&MaskUpdate != 0
	case OpDelete:
		return m&MaskDelete != 0
	case OpResync:
		return true
	default:
		return false
	}
}

// Change is a notification that a resource changed. It carries no reliable diff;
// ItemID is informational only and subscribers must refetch.
type Change struct {
	Resource Resource `json:"resource"`
	Op       Op       `json:"op"`
	ItemID   string   `json:"item_id,omitempty"`
}
