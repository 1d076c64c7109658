package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ceskapp/directory/internal/domain"
	"github.com/ceskapp/directory/internal/store"
)

// ItemResource returns the resource an item belongs to after checking that it exists.
// Returns store.ErrNotFound for unknown prefixes and missing rows.
func (s *Store) ItemResource(ctx context.Context, itemID string) (domain.Resource, error) {
	resource, ok := domain.ResourceForID(itemID)
	if !ok {
		return "", store.NotFound("item")
	}

	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM `+string(resource)+` WHERE id = ?`, itemID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.NotFound("item")
	}
	if err != nil {
		return "", err
	}
	return resource, nil
}

// PutEngagement records an engagement.
// Returns store.ErrNotFound if the item does not exist and store.ErrAlreadyExists
// if the (item, viewer, kind) record is already present.
func (s *Store) PutEngagement(ctx context.Context, e domain.Engagement) error {
	resource, ok := domain.ResourceForID(e.ItemID)
	if !ok {
		return store.NotFound("item")
	}

	// A single statement keeps the existence check and the insert atomic.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO engagements (item_id, viewer_id, viewer_kind, kind, resource, created_at)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM `+string(resource)+` WHERE id = ?)
		ON CONFLICT(item_id, viewer_id, kind) DO NOTHING`,
		e.ItemID,
		e.Viewer.ID,
		string(e.Viewer.Kind),
		string(e.Kind),
		string(resource),
		formatTime(e.CreatedAt),
		e.ItemID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.ItemResource(ctx, e.ItemID); err != nil {
			return err
		}
		return store.ErrAlreadyExists.WithMessage("engagement already recorded")
	}

	s.emit(domain.ResourceEngagements, domain.OpInsert, e.ItemID)
	return nil
}

// DeleteEngagement removes an engagement.
// Returns store.ErrNotFound if no such record exists.
func (s *Store) DeleteEngagement(ctx context.Context, key domain.EngagementKey) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM engagements WHERE item_id = ? AND viewer_id = ? AND kind = ?`,
		key.ItemID, key.Viewer.ID, string(key.Kind))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.NotFound("engagement")
	}

	s.emit(domain.ResourceEngagements, domain.OpDelete, key.ItemID)
	return nil
}

// GetEngagementState returns which kinds the viewer holds on the item plus its like count.
// An empty viewerID reports only the like count.
func (s *Store) GetEngagementState(ctx context.Context, itemID, viewerID string) (domain.EngagementState, error) {
	state := domain.EngagementState{ItemID: itemID}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM engagements WHERE item_id = ? AND kind = ?`,
		itemID, string(domain.KindLike)).Scan(&state.LikeCount)
	if err != nil {
		return state, err
	}

	if viewerID == "" {
		return state, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT kind FROM engagements WHERE item_id = ? AND viewer_id = ?`,
		itemID, viewerID)
	if err != nil {
		return state, err
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		if err := rows.Scan(&kind); err != nil {
			return state, err
		}
		state = state.With(domain.EngagementKind(kind), true)
	}
	return state, rows.Err()
}

// LikeCounts returns the like count for each of the given items. Items without likes are omitted.
func (s *Store) LikeCounts(ctx context.Context, itemIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(itemIDs))
	if len(itemIDs) == 0 {
		return counts, nil
	}

	clause, args := inClause(itemIDs)
	args = append(args, string(domain.KindLike))
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, COUNT(*) FROM engagements WHERE item_id IN `+clause+` AND kind = ? GROUP BY item_id`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			itemID string
			n      int
		)
		if err := rows.Scan(&itemID, &n); err != nil {
			return nil, err
		}
		counts[itemID] = n
	}
	return counts, rows.Err()
}

// ListEngagedItemIDs returns the items the viewer holds a record of the given kind on, newest first.
func (s *Store) ListEngagedItemIDs(ctx context.Context, viewerID string, kind domain.EngagementKind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id FROM engagements WHERE viewer_id = ? AND kind = ? ORDER BY created_at DESC`,
		viewerID, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
