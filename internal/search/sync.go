package search

import (
	"context"
	"log/slog"

	"github.com/ceskapp/directory/internal/backend"
	"github.com/ceskapp/directory/internal/domain"
	"github.com/ceskapp/directory/internal/feed"
)

// Sync keeps a TrainerIndex in step with the trainer directory. It follows the
// trainers change feed and replaces the index contents after every change.
type Sync struct {
	index  *TrainerIndex
	feed   *feed.Feed
	logger *slog.Logger
}

// StartSync fills the index from b and keeps it fresh until Close.
func StartSync(ctx context.Context, index *TrainerIndex, b backend.Backend, logger *slog.Logger) (*Sync, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sync{index: index, logger: logger}

	load := func(ctx context.Context) error {
		items, err := b.Query(ctx, backend.Query{Resource: domain.ResourceTrainers})
		if err != nil {
			return err
		}
		docs := make([]*TrainerDocument, 0, len(items))
		for _, item := range items {
			docs = append(docs, NewTrainerDocument(item))
		}
		return index.Replace(docs)
	}

	f, err := feed.Subscribe(ctx, b, domain.ResourceTrainers, load, feed.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	s.feed = f

	count, _ := index.DocumentCount()
	logger.Info("search index ready", slog.Uint64("documents", count))
	return s, nil
}

// Wait blocks until any pending reindex has finished.
func (s *Sync) Wait() {
	s.feed.Wait()
}

// Close stops following changes.
func (s *Sync) Close() error {
	return s.feed.Close()
}

// Shutdown implements do.Shutdowner.
func (s *Sync) Shutdown() error {
	return s.Close()
}
