package vars

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/ohler55/ojg/oj"

	"github.com/inkform/inkform/internal/storage"
)

// Store persists variables and per-principal saved values in sqlite.
// Values and schemas are stored as JSON text; deleting a variable cascades
// to its saved values at the database layer.
type Store struct {
	db *sql.DB
}

// NewStore wraps an opened engine database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const varColumns = "id, name, scope, required, allow_save, ord, value, validation_schema, created_by, updated_by, created_at, updated_at"

type rowScanner interface{ Scan(...any) error }

func scanVariable(row rowScanner) (*Variable, error) {
	var (
		v             Variable
		value, schema sql.NullString
	)
	err := row.Scan(&v.ID, &v.Name, &v.Scope, &v.Required, &v.AllowSave, &v.Order,
		&value, &schema, &v.CreatedBy, &v.UpdatedBy, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if value.Valid {
		parsed, err := oj.ParseString(value.String)
		if err != nil {
			return nil, trace.Wrap(err, "parse stored value for variable %q", v.Name)
		}
		v.Value = parsed
	}
	if schema.Valid {
		parsed, err := oj.ParseString(schema.String)
		if err != nil {
			return nil, trace.Wrap(err, "parse stored schema for variable %q", v.Name)
		}
		obj, ok := parsed.(map[string]any)
		if !ok {
			return nil, trace.BadParameter("stored schema for variable %q is not an object", v.Name)
		}
		v.Schema = obj
	}
	return &v, nil
}

func jsonParam(v any) any {
	if v == nil {
		return nil
	}
	return oj.JSON(v)
}

func schemaParam(s map[string]any) any {
	if s == nil {
		return nil
	}
	return oj.JSON(s)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Create inserts a new variable. A second variable with the same
// (name, scope) pair fails with trace.AlreadyExists.
func (st *Store) Create(ctx context.Context, v *Variable) (*Variable, error) {
	if err := v.check(); err != nil {
		return nil, trace.Wrap(err)
	}
	now := time.Now().UTC()
	v.ID = uuid.NewString()
	v.CreatedAt, v.UpdatedAt = now, now

	_, err := st.db.ExecContext(ctx,
		"INSERT INTO variables ("+varColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		v.ID, v.Name, v.Scope, v.Required, v.AllowSave, v.Order,
		jsonParam(v.Value), schemaParam(v.Schema),
		v.CreatedBy, v.UpdatedBy, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, trace.AlreadyExists("variable %q in scope %q already exists", v.Name, v.Scope)
		}
		return nil, trace.Wrap(err, "insert variable")
	}
	return v, nil
}

// Update replaces the mutable fields of a variable by id.
func (st *Store) Update(ctx context.Context, v *Variable) (*Variable, error) {
	if err := v.check(); err != nil {
		return nil, trace.Wrap(err)
	}
	v.UpdatedAt = time.Now().UTC()
	res, err := st.db.ExecContext(ctx,
		"UPDATE variables SET name = ?, scope = ?, required = ?, allow_save = ?, ord = ?, value = ?, validation_schema = ?, updated_by = ?, updated_at = ? WHERE id = ?",
		v.Name, v.Scope, v.Required, v.AllowSave, v.Order,
		jsonParam(v.Value), schemaParam(v.Schema), v.UpdatedBy, v.UpdatedAt, v.ID)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, trace.AlreadyExists("variable %q in scope %q already exists", v.Name, v.Scope)
		}
		return nil, trace.Wrap(err, "update variable")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, trace.NotFound("variable %q not found", v.ID)
	}
	return st.GetByID(ctx, v.ID)
}

// Delete removes a variable. Saved values referencing it cascade away.
func (st *Store) Delete(ctx context.Context, id string) error {
	res, err := st.db.ExecContext(ctx, "DELETE FROM variables WHERE id = ?", id)
	if err != nil {
		return trace.Wrap(err, "delete variable")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return trace.NotFound("variable %q not found", id)
	}
	return nil
}

// GetByID fetches one variable by id.
func (st *Store) GetByID(ctx context.Context, id string) (*Variable, error) {
	row := st.db.QueryRowContext(ctx,
		"SELECT "+varColumns+" FROM variables WHERE id = ?", id)
	v, err := scanVariable(row)
	if err == sql.ErrNoRows {
		return nil, trace.NotFound("variable %q not found", id)
	}
	if err != nil {
		return nil, trace.Wrap(err, "get variable")
	}
	return v, nil
}

func (st *Store) list(ctx context.Context, query string, args ...any) ([]*Variable, error) {
	rows, err := st.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, trace.Wrap(err, "list variables")
	}
	defer rows.Close()

	var out []*Variable
	for rows.Next() {
		v, err := scanVariable(rows)
		if err != nil {
			return nil, trace.Wrap(err, "scan variable")
		}
		out = append(out, v)
	}
	return out, trace.Wrap(rows.Err())
}

// FindByNames returns every variable whose name is in names and whose
// scope is in scopeIDs. This is the one query resolution depends on; it
// runs once per resolution call.
func (st *Store) FindByNames(ctx context.Context, names, scopeIDs []string) ([]*Variable, error) {
	if len(names) == 0 || len(scopeIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(names)+len(scopeIDs))
	for _, n := range names {
		args = append(args, n)
	}
	for _, s := range scopeIDs {
		args = append(args, s)
	}
	return st.list(ctx,
		"SELECT "+varColumns+" FROM variables WHERE name IN ("+placeholders(len(names))+") AND scope IN ("+placeholders(len(scopeIDs))+")",
		args...)
}

// FindByScope returns a scope's variables in presentation order.
func (st *Store) FindByScope(ctx context.Context, scope string) ([]*Variable, error) {
	return st.list(ctx,
		"SELECT "+varColumns+" FROM variables WHERE scope = ? ORDER BY ord, name", scope)
}

// SaveValue stores a principal's personal value for a variable, validating
// it first. Constants and variables without allow_save reject saves.
func (st *Store) SaveValue(ctx context.Context, principalID, variableID string, value any) error {
	if principalID == "" {
		return trace.BadParameter("anonymous principals cannot save values")
	}
	v, err := st.GetByID(ctx, variableID)
	if err != nil {
		return trace.Wrap(err)
	}
	if v.IsConstant() {
		return trace.BadParameter("variable %q has a constant value", v.Name)
	}
	if !v.AllowSave {
		return trace.BadParameter("variable %q does not allow saved values", v.Name)
	}
	if err := validateValue(v.Schema, value); err != nil {
		return trace.BadParameter("value for variable %q is invalid: %v", v.Name, err)
	}

	now := time.Now().UTC()
	_, err = st.db.ExecContext(ctx,
		`INSERT INTO saved_values (principal_id, variable_id, value, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (principal_id, variable_id)
		 DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		principalID, variableID, oj.JSON(value), now, now)
	return trace.Wrap(err, "save value")
}

// ForgetValue removes a principal's saved value for a variable.
func (st *Store) ForgetValue(ctx context.Context, principalID, variableID string) error {
	res, err := st.db.ExecContext(ctx,
		"DELETE FROM saved_values WHERE principal_id = ? AND variable_id = ?",
		principalID, variableID)
	if err != nil {
		return trace.Wrap(err, "forget value")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return trace.NotFound("no saved value for variable %q", variableID)
	}
	return nil
}

// SavedValues returns the principal's saved values for the given variable
// ids, keyed by variable id.
func (st *Store) SavedValues(ctx context.Context, principalID string, variableIDs []string) (map[string]any, error) {
	if principalID == "" || len(variableIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(variableIDs)+1)
	args = append(args, principalID)
	for _, id := range variableIDs {
		args = append(args, id)
	}
	rows, err := st.db.QueryContext(ctx,
		"SELECT variable_id, value FROM saved_values WHERE principal_id = ? AND variable_id IN ("+placeholders(len(variableIDs))+")",
		args...)
	if err != nil {
		return nil, trace.Wrap(err, "list saved values")
	}
	defer rows.Close()

	out := map[string]any{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, trace.Wrap(err, "scan saved value")
		}
		parsed, err := oj.ParseString(raw)
		if err != nil {
			return nil, trace.Wrap(err, "parse saved value for variable %q", id)
		}
		out[id] = parsed
	}
	return out, trace.Wrap(rows.Err())
}
