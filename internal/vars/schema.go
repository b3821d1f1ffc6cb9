package vars

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"

	"github.com/inkform/inkform/internal/storage"
)

// ReplaceSchema reconciles a scope's variable set against a JSON-schema
// object with properties and required. Names that already exist are
// updated in place so their ids (and any saved values) survive; new names
// are inserted; dropped names are hard-deleted, cascading to saved values.
// The whole replacement is one transaction: a scope's variable set moves
// atomically or not at all.
func (st *Store) ReplaceSchema(ctx context.Context, scope string, schema map[string]any, updatedBy string) (ReplaceCounts, error) {
	props, required, err := parseSchemaObject(schema)
	if err != nil {
		return ReplaceCounts{}, trace.Wrap(err)
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	var counts ReplaceCounts
	err = storage.InTx(ctx, st.db, func(tx *sql.Tx) error {
		existing, err := existingIDsByName(ctx, tx, scope)
		if err != nil {
			return err
		}
		now := time.Now().UTC()

		for i, name := range names {
			propSchema := props[name]
			if _, ok := existing[name]; ok {
				// Update in place, preserving identity. The property
				// schema replaces whatever the row carried, including
				// a constant value.
				_, err := tx.ExecContext(ctx,
					"UPDATE variables SET required = ?, ord = ?, value = NULL, validation_schema = ?, updated_by = ?, updated_at = ? WHERE id = ?",
					required[name], i, schemaParam(propSchema), updatedBy, now, existing[name])
				if err != nil {
					return trace.Wrap(err, "update variable %q", name)
				}
				delete(existing, name)
				counts.Updated++
				continue
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO variables ("+varColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
				uuid.NewString(), name, scope, required[name], false, i,
				nil, schemaParam(propSchema), updatedBy, updatedBy, now, now)
			if err != nil {
				return trace.Wrap(err, "insert variable %q", name)
			}
			counts.Created++
		}

		// Whatever remains was dropped from the schema.
		for name, id := range existing {
			if _, err := tx.ExecContext(ctx, "DELETE FROM variables WHERE id = ?", id); err != nil {
				return trace.Wrap(err, "delete variable %q", name)
			}
			counts.Deleted++
		}
		return nil
	})
	if err != nil {
		return ReplaceCounts{}, trace.Wrap(err)
	}
	return counts, nil
}

// parseSchemaObject extracts per-property schemas and the required set
// from a JSON-schema object, rejecting shapes that cannot describe a form.
func parseSchemaObject(schema map[string]any) (map[string]map[string]any, map[string]bool, error) {
	rawProps, ok := schema["properties"].(map[string]any)
	if !ok || len(rawProps) == 0 {
		return nil, nil, trace.BadParameter("schema must be an object declaring at least one property")
	}

	props := make(map[string]map[string]any, len(rawProps))
	for name, raw := range rawProps {
		prop, ok := raw.(map[string]any)
		if !ok {
			return nil, nil, trace.BadParameter("property %q is not a schema object", name)
		}
		if _, err := compileSchema(prop); err != nil {
			return nil, nil, trace.BadParameter("property %q has an invalid schema: %v", name, err)
		}
		props[name] = prop
	}

	required := map[string]bool{}
	switch req := schema["required"].(type) {
	case nil:
	case []any:
		for _, r := range req {
			name, ok := r.(string)
			if !ok {
				return nil, nil, trace.BadParameter("required entries must be strings")
			}
			if _, declared := props[name]; !declared {
				return nil, nil, trace.BadParameter("required name %q is not a declared property", name)
			}
			required[name] = true
		}
	case []string:
		for _, name := range req {
			if _, declared := props[name]; !declared {
				return nil, nil, trace.BadParameter("required name %q is not a declared property", name)
			}
			required[name] = true
		}
	default:
		return nil, nil, trace.BadParameter("required must be an array of names")
	}
	return props, required, nil
}

func existingIDsByName(ctx context.Context, tx *sql.Tx, scope string) (map[string]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT name, id FROM variables WHERE scope = ?", scope)
	if err != nil {
		return nil, trace.Wrap(err, "list scope variables")
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var name, id string
		if err := rows.Scan(&name, &id); err != nil {
			return nil, trace.Wrap(err, "scan scope variable")
		}
		out[name] = id
	}
	return out, trace.Wrap(rows.Err())
}
