package scopes

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"

	"github.com/inkform/inkform/api"
	"github.com/inkform/inkform/internal/storage"
)

// Store persists scopes in sqlite with a uniqueness constraint on node id.
type Store struct {
	db *sql.DB
}

// NewStore wraps an opened engine database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const scopeColumns = "id, node_id, is_folder, is_pinned, access_level, max_depth, created_by, updated_by, created_at, updated_at"

func scanScope(row interface{ Scan(...any) error }) (*Scope, error) {
	var (
		s        Scope
		level    string
		maxDepth sql.NullInt64
	)
	err := row.Scan(&s.ID, &s.NodeID, &s.IsFolder, &s.IsPinned, &level, &maxDepth,
		&s.CreatedBy, &s.UpdatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	parsed, err := api.ParseAccessLevel(level)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	s.Restrictions.AccessLevel = parsed
	if maxDepth.Valid {
		s.Restrictions.MaxDepth = api.Depth(maxDepth.Int64)
	} else {
		s.Restrictions.MaxDepth = api.InfiniteDepth
	}
	return &s, nil
}

func depthParam(d api.Depth) any {
	if d.IsInfinite() {
		return nil
	}
	return int64(d)
}

// Create inserts a new scope. A second scope for the same node id fails
// with trace.AlreadyExists.
func (st *Store) Create(ctx context.Context, s *Scope) (*Scope, error) {
	if err := s.check(); err != nil {
		return nil, trace.Wrap(err)
	}
	now := time.Now().UTC()
	s.ID = uuid.NewString()
	s.CreatedAt, s.UpdatedAt = now, now

	_, err := st.db.ExecContext(ctx,
		"INSERT INTO scopes ("+scopeColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.ID, s.NodeID, s.IsFolder, s.IsPinned, string(s.Restrictions.AccessLevel),
		depthParam(s.Restrictions.MaxDepth), s.CreatedBy, s.UpdatedBy, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, trace.AlreadyExists("scope for node %q already exists", s.NodeID)
		}
		return nil, trace.Wrap(err, "insert scope")
	}
	return s, nil
}

// Update replaces the policy fields of the scope bound to a node id.
func (st *Store) Update(ctx context.Context, s *Scope) (*Scope, error) {
	if err := s.check(); err != nil {
		return nil, trace.Wrap(err)
	}
	s.UpdatedAt = time.Now().UTC()
	res, err := st.db.ExecContext(ctx,
		"UPDATE scopes SET is_folder = ?, is_pinned = ?, access_level = ?, max_depth = ?, updated_by = ?, updated_at = ? WHERE node_id = ?",
		s.IsFolder, s.IsPinned, string(s.Restrictions.AccessLevel),
		depthParam(s.Restrictions.MaxDepth), s.UpdatedBy, s.UpdatedAt, s.NodeID)
	if err != nil {
		return nil, trace.Wrap(err, "update scope")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, trace.NotFound("scope for node %q not found", s.NodeID)
	}
	return st.GetByNodeID(ctx, s.NodeID)
}

// Delete removes the scope bound to a node id.
func (st *Store) Delete(ctx context.Context, nodeID string) error {
	res, err := st.db.ExecContext(ctx, "DELETE FROM scopes WHERE node_id = ?", nodeID)
	if err != nil {
		return trace.Wrap(err, "delete scope")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return trace.NotFound("scope for node %q not found", nodeID)
	}
	return nil
}

// GetByNodeID fetches the scope bound to a node id.
func (st *Store) GetByNodeID(ctx context.Context, nodeID string) (*Scope, error) {
	row := st.db.QueryRowContext(ctx,
		"SELECT "+scopeColumns+" FROM scopes WHERE node_id = ?", nodeID)
	s, err := scanScope(row)
	if err == sql.ErrNoRows {
		return nil, trace.NotFound("scope for node %q not found", nodeID)
	}
	if err != nil {
		return nil, trace.Wrap(err, "get scope")
	}
	return s, nil
}

func (st *Store) list(ctx context.Context, query string, args ...any) ([]*Scope, error) {
	rows, err := st.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, trace.Wrap(err, "list scopes")
	}
	defer rows.Close()

	var out []*Scope
	for rows.Next() {
		s, err := scanScope(rows)
		if err != nil {
			return nil, trace.Wrap(err, "scan scope")
		}
		out = append(out, s)
	}
	return out, trace.Wrap(rows.Err())
}

// All returns every scope, ordered by node id.
func (st *Store) All(ctx context.Context) ([]*Scope, error) {
	return st.list(ctx, "SELECT "+scopeColumns+" FROM scopes ORDER BY node_id")
}

// Pinned returns the scopes flagged as roots of the global tree view.
func (st *Store) Pinned(ctx context.Context) ([]*Scope, error) {
	return st.list(ctx, "SELECT "+scopeColumns+" FROM scopes WHERE is_pinned = 1 ORDER BY node_id")
}
