package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Document is a catalog entry for an uploaded source file.
type Document struct {
	ID          string    `json:"document_id"`
	UserID      string    `json:"user_id"`
	Filename    string    `json:"filename"`
	FilePath    string    `json:"-"`
	FileType    string    `json:"file_type"`
	Title       string    `json:"title"`
	ContentHash string    `json:"content_hash"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateDocument inserts d, assigning an id and creation time when unset.
func (s *Store) CreateDocument(ctx context.Context, d *Document) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (document_id, user_id, filename, file_path, file_type, title, content_hash, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.Filename, d.FilePath, d.FileType, d.Title, d.ContentHash, d.SizeBytes,
		d.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

const documentColumns = `document_id, user_id, filename, file_path, file_type, title, content_hash, size_bytes, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	var (
		d         Document
		createdAt string
	)
	if err := row.Scan(&d.ID, &d.UserID, &d.Filename, &d.FilePath, &d.FileType,
		&d.Title, &d.ContentHash, &d.SizeBytes, &createdAt); err != nil {
		return nil, err
	}
	d.CreatedAt = parseTime(createdAt)
	return &d, nil
}

// GetDocument returns the catalog entry or ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, docID string) (*Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE document_id = ?`, docID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", docID, err)
	}
	return d, nil
}

// FindDocumentByHash returns a user's document with identical content.
func (s *Store) FindDocumentByHash(ctx context.Context, userID, hash string) (*Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE user_id = ? AND content_hash = ? LIMIT 1`, userID, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find document by hash: %w", err)
	}
	return d, nil
}

// ListDocuments returns a user's documents, oldest first.
func (s *Store) ListDocuments(ctx context.Context, userID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE user_id = ? ORDER BY created_at, document_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

// DeleteDocument removes a document together with its tree and nodes and
// returns the deleted record so the caller can remove the source file.
func (s *Store) DeleteDocument(ctx context.Context, docID string) (*Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	d, err := scanDocument(tx.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE document_id = ?`, docID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", docID, err)
	}

	for _, q := range []string{
		`DELETE FROM tree_nodes WHERE document_id = ?`,
		`DELETE FROM tree_generations WHERE document_id = ?`,
		`DELETE FROM documents WHERE document_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, docID); err != nil {
			return nil, fmt.Errorf("delete document %s: %w", docID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return d, nil
}
