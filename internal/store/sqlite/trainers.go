package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ceskapp/directory/internal/domain"
	"github.com/ceskapp/directory/internal/store"
)

// trainerColumns is the ordered list of columns selected in trainer queries.
// Must match the scan order in scanTrainer.
const trainerColumns = `id, created_at, updated_at, user_id, name, level, specialty,
	region, experience, image_url, introduction`

// scanTrainer scans a sql.Row (or sql.Rows via its Scan method) into a domain.Trainer.
func scanTrainer(scanner interface{ Scan(dest ...any) error }) (*domain.Trainer, error) {
	var (
		t         domain.Trainer
		createdAt string
		updatedAt string
		userID    sql.NullString
	)

	err := scanner.Scan(
		&t.ID, &createdAt, &updatedAt, &userID, &t.Name, &t.Level, &t.Specialty,
		&t.Region, &t.Experience, &t.ImageURL, &t.Introduction,
	)
	if err != nil {
		return nil, err
	}

	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	t.UserID = userID.String

	return &t, nil
}

// UpsertTrainer inserts the trainer or replaces the existing row with the same ID.
// It reports whether a new row was created and emits insert or update accordingly.
func (s *Store) UpsertTrainer(ctx context.Context, t *domain.Trainer) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var existingCreated string
	err = tx.QueryRowContext(ctx, `SELECT created_at FROM trainers WHERE id = ?`, t.ID).Scan(&existingCreated)
	created := errors.Is(err, sql.ErrNoRows)
	if err != nil && !created {
		return false, err
	}
	if !created {
		// The first insert owns created_at.
		if t.CreatedAt, err = parseTime(existingCreated); err != nil {
			return false, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trainers (id, created_at, updated_at, user_id, name, level, specialty,
			region, region_key, experience, image_url, introduction)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at = excluded.updated_at,
			user_id = excluded.user_id,
			name = excluded.name,
			level = excluded.level,
			specialty = excluded.specialty,
			region = excluded.region,
			region_key = excluded.region_key,
			experience = excluded.experience,
			image_url = excluded.image_url,
			introduction = excluded.introduction`,
		t.ID,
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
		nullString(t.UserID),
		t.Name,
		t.Level,
		t.Specialty,
		t.Region,
		domain.RegionKey(t.Region),
		t.Experience,
		t.ImageURL,
		t.Introduction,
	)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}

	op := domain.OpUpdate
	if created {
		op = domain.OpInsert
	}
	s.emit(domain.ResourceTrainers, op, t.ID)
	return created, nil
}

// GetTrainer retrieves a trainer by ID.
// Returns store.ErrNotFound if the trainer does not exist.
func (s *Store) GetTrainer(ctx context.Context, id string) (*domain.Trainer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trainerColumns+` FROM trainers WHERE id = ?`, id)

	t, err := scanTrainer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound("trainer")
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteTrainer removes a trainer and every engagement recorded against it.
// Returns store.ErrNotFound if the trainer does not exist.
func (s *Store) DeleteTrainer(ctx context.Context, id string) error {
	if err := s.deleteItem(ctx, "trainers", id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.NotFound("trainer")
		}
		return err
	}
	s.emit(domain.ResourceTrainers, domain.OpDelete, id)
	return nil
}

// ListTrainerIDs returns the ID of every trainer. The importer uses it to find stale rows.
func (s *Store) ListTrainerIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM trainers ORDER BY id`)
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

// ListTrainers returns trainers matching the filter, newest first.
func (s *Store) ListTrainers(ctx context.Context, filter store.TrainerFilter) ([]*domain.Trainer, error) {
	var (
		where []string
		args  []any
	)

	if key := domain.RegionKey(filter.Region); key != "" {
		where = append(where, `region_key LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(key))
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		where = append(where, `(name LIKE ? ESCAPE '\' OR region LIKE ? ESCAPE '\' OR specialty LIKE ? ESCAPE '\')`)
		p := likePattern(q)
		args = append(args, p, p, p)
	}
	if len(filter.IDs) > 0 {
		clause, idArgs := inClause(filter.IDs)
		where = append(where, "id IN "+clause)
		args = append(args, idArgs...)
	}

	query := `SELECT ` + trainerColumns + ` FROM trainers`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trainers []*domain.Trainer
	for rows.Next() {
		t, err := scanTrainer(rows)
		if err != nil {
			return nil, err
		}
		trainers = append(trainers, t)
	}
	return trainers, rows.Err()
}

// deleteItem deletes a trainer or post row and its engagements in one transaction.
func (s *Store) deleteItem(ctx context.Context, table, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM engagements WHERE item_id = ?`, id); err != nil {
		return err
	}

	return tx.Commit()
}
