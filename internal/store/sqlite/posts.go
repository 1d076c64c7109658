package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/ceskapp/directory/internal/domain"
	"github.com/ceskapp/directory/internal/store"
)

// postColumns is the ordered list of columns selected in post queries.
// Must match the scan order in scanPost.
const postColumns = `id, created_at, updated_at, user_id, author_name, title, category,
	content_html, excerpt, image_url`

// scanPost scans a sql.Row (or sql.Rows via its Scan method) into a domain.Post.
func scanPost(scanner interface{ Scan(dest ...any) error }) (*domain.Post, error) {
	var (
		p         domain.Post
		createdAt string
		updatedAt string
	)

	err := scanner.Scan(
		&p.ID, &createdAt, &updatedAt, &p.UserID, &p.AuthorName, &p.Title, &p.Category,
		&p.ContentHTML, &p.Excerpt, &p.ImageURL,
	)
	if err != nil {
		return nil, err
	}

	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &p, nil
}

// CreatePost inserts a new post.
// Returns store.ErrAlreadyExists if the post ID already exists.
func (s *Store) CreatePost(ctx context.Context, p *domain.Post) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, created_at, updated_at, user_id, author_name, title, category,
			content_html, excerpt, image_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
		p.UserID,
		p.AuthorName,
		p.Title,
		p.Category,
		p.ContentHTML,
		p.Excerpt,
		p.ImageURL,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.Duplicate("post")
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return store.ErrInvalidInput.WithMessage("author does not exist")
		}
		return err
	}

	s.emit(domain.ResourcePosts, domain.OpInsert, p.ID)
	return nil
}

// GetPost retrieves a post by ID.
// Returns store.ErrNotFound if the post does not exist.
func (s *Store) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)

	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound("post")
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePost removes a post and its engagements.
// Returns store.ErrNotFound if the post does not exist.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	if err := s.deleteItem(ctx, "posts", id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.NotFound("post")
		}
		return err
	}
	s.emit(domain.ResourcePosts, domain.OpDelete, id)
	return nil
}

// ListPosts returns posts matching the filter, newest first.
func (s *Store) ListPosts(ctx context.Context, filter store.PostFilter) ([]*domain.Post, error) {
	var (
		where []string
		args  []any
	)

	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.AuthorID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.AuthorID)
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		where = append(where, `(title LIKE ? ESCAPE '\' OR excerpt LIKE ? ESCAPE '\')`)
		p := likePattern(q)
		args = append(args, p, p)
	}
	if len(filter.IDs) > 0 {
		clause, idArgs := inClause(filter.IDs)
		where = append(where, "id IN "+clause)
		args = append(args, idArgs...)
	}

	query := `SELECT ` + postColumns + ` FROM posts`
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

	var posts []*domain.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}
