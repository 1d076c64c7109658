package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/ceskapp/directory/internal/backend/local"
	"github.com/ceskapp/directory/internal/config"
	"github.com/ceskapp/directory/internal/logger"
	"github.com/ceskapp/directory/internal/search"
)

// SearchIndexHandle wraps the trainer index. Index is nil when search is disabled.
type SearchIndexHandle struct {
	Index *search.TrainerIndex
	sync  *search.Sync
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	if h.Index == nil {
		return nil
	}
	if h.sync != nil {
		_ = h.sync.Close()
	}
	return h.Index.Close()
}

// ProvideSearchIndex builds the trainer index and keeps it in step with the directory.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Search.Enabled {
		log.Info("Trainer search disabled by configuration")
		return &SearchIndexHandle{}, nil
	}

	backend := do.MustInvoke[*local.Backend](i)

	index, err := search.NewTrainerIndex(log.WithComponent("search"))
	if err != nil {
		return nil, err
	}

	sync, err := search.StartSync(context.Background(), index, backend, log.WithComponent("search"))
	if err != nil {
		_ = index.Close()
		return nil, err
	}

	return &SearchIndexHandle{Index: index, sync: sync}, nil
}
