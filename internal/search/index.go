package search

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// TrainerIndex wraps an in-memory Bleve index of trainer documents.
//
// All methods are safe for concurrent use.
type TrainerIndex struct {
	index  bleve.Index
	logger *slog.Logger

	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewTrainerIndex creates an empty in-memory index.
func NewTrainerIndex(logger *slog.Logger) (*TrainerIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &TrainerIndex{
		index:  index,
		logger: logger,
		ids:    make(map[string]struct{}),
	}, nil
}

// Close releases the index.
func (s *TrainerIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// Shutdown implements do.Shutdowner.
func (s *TrainerIndex) Shutdown() error {
	return s.Close()
}

// IndexDocument indexes or replaces a single document.
func (s *TrainerIndex) IndexDocument(doc *TrainerDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.index.Index(doc.ID, doc.ToMap()); err != nil {
		return fmt.Errorf("index %s: %w", doc.ID, err)
	}
	s.ids[doc.ID] = struct{}{}
	return nil
}

// DeleteDocument removes a document. Deleting an unknown id is a no-op.
func (s *TrainerIndex) DeleteDocument(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.index.Delete(id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	delete(s.ids, id)
	return nil
}

// Replace makes the index hold exactly docs: every document is (re)indexed and
// documents not in docs are removed, in batches of up to 500 operations.
func (s *TrainerIndex) Replace(docs []*TrainerDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		keep[doc.ID] = struct{}{}
	}
	var stale []string
	for id := range s.ids {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}

	const batchSize = 500

	batch := s.index.NewBatch()
	flush := func() error {
		if batch.Size() == 0 {
			return nil
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
		batch.Reset()
		return nil
	}

	for _, id := range stale {
		batch.Delete(id)
		if batch.Size() >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	for _, doc := range docs {
		if err := batch.Index(doc.ID, doc.ToMap()); err != nil {
			return fmt.Errorf("batch index %s: %w", doc.ID, err)
		}
		if batch.Size() >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	s.ids = keep
	s.logger.Debug("search index replaced",
		slog.Int("documents", len(docs)),
		slog.Int("removed", len(stale)))
	return nil
}

// DocumentCount returns the number of indexed documents.
func (s *TrainerIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}
