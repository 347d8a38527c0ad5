package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/pagetree/internal/doctree"
)

// Status is the lifecycle state of a document's tree.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Generation is the status record of a document's tree, without the tree.
type Generation struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"document_id"`
	Status       Status    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	NodeCount    int       `json:"node_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MarkStatus records status for a document, creating the record if needed.
// Repeating the same call leaves a single record in the same state.
func (s *Store) MarkStatus(ctx context.Context, docID string, status Status, errMsg string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	now := s.timestamp()
	var msg sql.NullString
	if errMsg != "" {
		msg = sql.NullString{String: errMsg, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tree_generations (document_id, id, status, error_message, node_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			status = excluded.status,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at`,
		docID, uuid.NewString(), string(status), msg, now, now,
	)
	if err != nil {
		return fmt.Errorf("mark %s %s: %w", docID, status, err)
	}
	return nil
}

// ClaimGeneration moves a document to processing unless another generation
// holds it. A pending or failed record, or none at all, is claimable; so is a
// processing record not updated within staleAfter. Completed trees must be
// reset first. It reports whether the claim was taken.
func (s *Store) ClaimGeneration(ctx context.Context, docID string, staleAfter time.Duration) (bool, error) {
	now := s.now().UTC()
	stamp := now.Format(timeFormat)
	cutoff := now.Add(-staleAfter).Format(timeFormat)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tree_generations (document_id, id, status, node_count, created_at, updated_at)
		VALUES (?, ?, 'processing', 0, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			status = 'processing',
			error_message = NULL,
			updated_at = excluded.updated_at
		WHERE tree_generations.status IN ('pending', 'failed')
		   OR (tree_generations.status = 'processing' AND tree_generations.updated_at < ?)`,
		docID, uuid.NewString(), stamp, stamp, cutoff,
	)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", docID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", docID, err)
	}
	return n > 0, nil
}

// StoreTree replaces any prior record and nodes for the document with a
// completed record and the tree's pre-order flattening, in one transaction.
func (s *Store) StoreTree(ctx context.Context, docID string, tree *doctree.DocumentTree) error {
	payload, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	rows := doctree.Flatten(tree)
	now := s.timestamp()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := now
	if err := tx.QueryRowContext(ctx,
		`SELECT created_at FROM tree_generations WHERE document_id = ?`, docID,
	).Scan(&createdAt); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read prior record: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tree_nodes WHERE document_id = ?`, docID); err != nil {
		return fmt.Errorf("delete nodes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tree_generations WHERE document_id = ?`, docID); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tree_generations (document_id, id, status, node_count, tree_json, created_at, updated_at)
		VALUES (?, ?, 'completed', ?, ?, ?, ?)`,
		docID, uuid.NewString(), len(rows), string(payload), createdAt, now,
	); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tree_nodes (document_id, node_id, title, summary, text_content,
			start_page, end_page, parent_node_id, depth, ordinal)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare node insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		var parent sql.NullString
		if r.ParentNodeID != "" {
			parent = sql.NullString{String: r.ParentNodeID, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			docID, r.NodeID, r.Title, r.Summary, r.TextContent,
			r.StartPage, r.EndPage, parent, r.Depth, r.Ordinal,
		); err != nil {
			return fmt.Errorf("insert node %s: %w", r.NodeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tree: %w", err)
	}
	return nil
}

// GetTree returns the stored tree only when its status is completed.
func (s *Store) GetTree(ctx context.Context, docID string) (*doctree.DocumentTree, error) {
	var payload sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT tree_json FROM tree_generations WHERE document_id = ? AND status = 'completed'`, docID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !payload.Valid) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tree %s: %w", docID, err)
	}

	var tree doctree.DocumentTree
	if err := json.Unmarshal([]byte(payload.String), &tree); err != nil {
		return nil, fmt.Errorf("decode tree %s: %w", docID, err)
	}
	return &tree, nil
}

// GetTreeStatus returns the generation record, or ErrNotFound when none
// exists. Callers treat a missing record as pending.
func (s *Store) GetTreeStatus(ctx context.Context, docID string) (*Generation, error) {
	var (
		g                    Generation
		status               string
		errMsg               sql.NullString
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, status, error_message, node_count, created_at, updated_at
		FROM tree_generations WHERE document_id = ?`, docID,
	).Scan(&g.ID, &g.DocumentID, &status, &errMsg, &g.NodeCount, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get status %s: %w", docID, err)
	}
	g.Status = Status(status)
	g.ErrorMessage = errMsg.String
	g.CreatedAt = parseTime(createdAt)
	g.UpdatedAt = parseTime(updatedAt)
	return &g, nil
}

// StatusOf returns the document's status, defaulting to pending.
func (s *Store) StatusOf(ctx context.Context, docID string) (Status, error) {
	g, err := s.GetTreeStatus(ctx, docID)
	if errors.Is(err, ErrNotFound) {
		return StatusPending, nil
	}
	if err != nil {
		return "", err
	}
	return g.Status, nil
}

// GetDocumentsWithTrees returns the ids among docIDs that have a completed
// tree, in input order.
func (s *Store) GetDocumentsWithTrees(ctx context.Context, docIDs []string) ([]string, error) {
	out := []string{}
	if len(docIDs) == 0 {
		return out, nil
	}

	args := make([]any, len(docIDs))
	for i, id := range docIDs {
		args[i] = id
	}
	query := `SELECT document_id FROM tree_generations WHERE status = 'completed' AND document_id IN (` +
		placeholders(len(docIDs)) + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query completed trees: %w", err)
	}
	defer rows.Close()

	completed := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan document id: %w", err)
		}
		completed[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completed trees: %w", err)
	}

	seen := make(map[string]bool)
	for _, id := range docIDs {
		if completed[id] && !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	return out, nil
}

// ResetTree deletes the document's record and nodes so it can be generated
// again from scratch.
func (s *Store) ResetTree(ctx context.Context, docID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tree_nodes WHERE document_id = ?`, docID); err != nil {
		return fmt.Errorf("delete nodes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tree_generations WHERE document_id = ?`, docID); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

// GetNodes returns the requested nodes in request order. Ids with no row
// are skipped.
func (s *Store) GetNodes(ctx context.Context, docID string, nodeIDs []string) ([]doctree.FlatNode, error) {
	if len(nodeIDs) == 0 {
		return []doctree.FlatNode{}, nil
	}
	args := make([]any, 0, len(nodeIDs)+1)
	args = append(args, docID)
	for _, id := range nodeIDs {
		args = append(args, id)
	}
	found, err := s.queryNodes(ctx,
		`WHERE document_id = ? AND node_id IN (`+placeholders(len(nodeIDs))+`)`, args...)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]doctree.FlatNode, len(found))
	for _, n := range found {
		byID[n.NodeID] = n
	}
	out := make([]doctree.FlatNode, 0, len(nodeIDs))
	seen := make(map[string]bool)
	for _, id := range nodeIDs {
		if n, ok := byID[id]; ok && !seen[id] {
			out = append(out, n)
			seen[id] = true
		}
	}
	return out, nil
}

// ListNodes returns every node of the document in pre-order.
func (s *Store) ListNodes(ctx context.Context, docID string) ([]doctree.FlatNode, error) {
	return s.queryNodes(ctx, `WHERE document_id = ?`, docID)
}

func (s *Store) queryNodes(ctx context.Context, where string, args ...any) ([]doctree.FlatNode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, title, summary, text_content, start_page, end_page, parent_node_id, depth, ordinal
		FROM tree_nodes `+where+` ORDER BY ordinal`, args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	out := []doctree.FlatNode{}
	for rows.Next() {
		var (
			n      doctree.FlatNode
			parent sql.NullString
		)
		if err := rows.Scan(&n.NodeID, &n.Title, &n.Summary, &n.TextContent,
			&n.StartPage, &n.EndPage, &parent, &n.Depth, &n.Ordinal); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n.ParentNodeID = parent.String
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
