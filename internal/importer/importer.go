// Package importer loads trainer profiles from a YAML file into the directory and
// re-imports the file whenever it changes.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ceskapp/directory/internal/domain"
	domainerrors "github.com/ceskapp/directory/internal/errors"
	"github.com/ceskapp/directory/internal/service"
)

// TrainerStore is the part of the directory the importer writes to.
// *service.DirectoryService satisfies it.
type TrainerStore interface {
	UpsertTrainer(ctx context.Context, req service.UpsertTrainerRequest) (*domain.Trainer, bool, error)
	DeleteTrainer(ctx context.Context, trainerID string) error
	TrainerIDs(ctx context.Context) ([]string, error)
}

// File is the document layout of a trainers file.
//
//	prune: true
//	trainers:
//	  - id: trn-kim
//	    name: 김하나
//	    region: 서울 강남구
type File struct {
	// Prune deletes stored trainers that are not listed in the file.
	Prune    bool                           `yaml:"prune"`
	Trainers []service.UpsertTrainerRequest `yaml:"trainers"`
}

// Result summarizes one import.
type Result struct {
	Created int
	Updated int
	Deleted int
	Failed  int
}

// Importer imports one trainers file.
type Importer struct {
	path   string
	store  TrainerStore
	logger *slog.Logger
	opts   Options
}

// New creates an importer for the file at path.
func New(path string, store TrainerStore, logger *slog.Logger, opts Options) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	opts.setDefaults()
	return &Importer{
		path:   path,
		store:  store,
		logger: logger.With(slog.String("file", path)),
		opts:   opts,
	}
}

// Path returns the imported file.
func (im *Importer) Path() string {
	return im.path
}

// Parse reads and checks the trainers file without writing anything.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, domainerrors.Validationf("parse trainers file: %v", err)
	}

	seen := make(map[string]bool, len(f.Trainers))
	for i, t := range f.Trainers {
		if t.ID == "" {
			return nil, domainerrors.Validationf("trainer %d (%q) has no id; imported trainers need stable ids", i+1, t.Name)
		}
		if seen[t.ID] {
			return nil, domainerrors.Validationf("trainer id %q is listed twice", t.ID)
		}
		seen[t.ID] = true
	}
	return &f, nil
}

// Import upserts every trainer in the file and, when the file asks for it, deletes the
// trainers it no longer lists. An entry that fails is logged and skipped; the returned
// error joins every failure.
func (im *Importer) Import(ctx context.Context) (Result, error) {
	var res Result

	data, err := os.ReadFile(im.path)
	if err != nil {
		return res, fmt.Errorf("read trainers file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return res, err
	}

	var errs []error
	keep := make(map[string]bool, len(f.Trainers))
	for _, req := range f.Trainers {
		keep[req.ID] = true
		_, created, err := im.store.UpsertTrainer(ctx, req)
		if err != nil {
			res.Failed++
			im.logger.Warn("trainer import failed",
				slog.String("trainer_id", req.ID),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("trainer %s: %w", req.ID, err))
			continue
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}

	if f.Prune {
		ids, err := im.store.TrainerIDs(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("list trainers: %w", err))
		}
		for _, trainerID := range ids {
			if keep[trainerID] {
				continue
			}
			if err := im.store.DeleteTrainer(ctx, trainerID); err != nil && !errors.Is(err, domainerrors.ErrNotFound) {
				res.Failed++
				errs = append(errs, fmt.Errorf("delete trainer %s: %w", trainerID, err))
				continue
			}
			res.Deleted++
		}
	}

	im.logger.Info("trainers imported",
		slog.Int("created", res.Created),
		slog.Int("updated", res.Updated),
		slog.Int("deleted", res.Deleted),
		slog.Int("failed", res.Failed))
	return res, errors.Join(errs...)
}
