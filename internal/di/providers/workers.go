package providers

import (
	"context"
	"errors"
	"os"

	"github.com/samber/do/v2"

	"github.com/ceskapp/directory/internal/config"
	"github.com/ceskapp/directory/internal/importer"
	"github.com/ceskapp/directory/internal/logger"
	"github.com/ceskapp/directory/internal/service"
)

// TrainerImportHandle runs the trainer file import and its watcher.
type TrainerImportHandle struct {
	*importer.Importer
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable.
func (h *TrainerImportHandle) Shutdown() error {
	if h.cancel == nil {
		return nil
	}
	h.cancel()
	<-h.done
	return nil
}

// ProvideTrainerImport imports the configured trainer file once and, if asked,
// keeps re-importing it as it changes.
func ProvideTrainerImport(i do.Injector) (*TrainerImportHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Import.TrainersFile == "" {
		return &TrainerImportHandle{}, nil
	}

	directory := do.MustInvoke[*service.DirectoryService](i)
	im := importer.New(cfg.Import.TrainersFile, directory, log.WithComponent("importer"), importer.Options{
		SettleDelay: cfg.Import.SettleDelay,
	})

	ctx := context.Background()
	if _, err := im.Import(ctx); err != nil {
		if errors.Is(err, os.ErrNotExist) && cfg.Import.Watch {
			log.Warn("Trainer file missing, waiting for it to appear", "path", im.Path())
		} else {
			log.Error("Trainer import failed", "path", im.Path(), "error", err)
		}
	}

	if !cfg.Import.Watch {
		return &TrainerImportHandle{Importer: im}, nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := im.Watch(watchCtx); err != nil {
			log.Error("Trainer file watcher stopped", "path", im.Path(), "error", err)
		}
	}()

	log.Info("Watching trainer file", "path", im.Path())

	return &TrainerImportHandle{Importer: im, cancel: cancel, done: done}, nil
}
