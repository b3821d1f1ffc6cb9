package vars

import (
	"context"
	"database/sql"
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"

	"github.com/inkform/inkform/internal/chain"
	"github.com/inkform/inkform/internal/storage"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestStoreConstantAndSchemaAreExclusive(t *testing.T) {
	st := NewStore(testDB(t))

	_, err := st.Create(context.Background(), &Variable{
		Name:   "company_name",
		Value:  "Acme",
		Schema: map[string]any{"type": "string"},
	})
	require.True(t, trace.IsBadParameter(err), "want BadParameter, got %v", err)
}

func TestStoreNameScopeUniqueness(t *testing.T) {
	st := NewStore(testDB(t))
	ctx := context.Background()

	_, err := st.Create(ctx, &Variable{Name: "employee_name", Scope: "/f"})
	require.NoError(t, err)

	_, err = st.Create(ctx, &Variable{Name: "employee_name", Scope: "/f"})
	require.True(t, trace.IsAlreadyExists(err))

	// Same name in a different scope is a distinct variable.
	_, err = st.Create(ctx, &Variable{Name: "employee_name", Scope: chain.Global})
	require.NoError(t, err)
}

func TestStoreValueRoundTrip(t *testing.T) {
	st := NewStore(testDB(t))
	ctx := context.Background()

	created, err := st.Create(ctx, &Variable{
		Name:  "signers",
		Value: map[string]any{"count": int64(2), "names": []any{"a", "b"}},
	})
	require.NoError(t, err)

	got, err := st.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"count": int64(2), "names": []any{"a", "b"}}, got.Value)
	require.Nil(t, got.Schema)
}

func TestStoreFindByNames(t *testing.T) {
	st := NewStore(testDB(t))
	ctx := context.Background()

	for _, v := range []*Variable{
		{Name: "a", Scope: chain.Global},
		{Name: "a", Scope: "/f"},
		{Name: "b", Scope: "/f"},
		{Name: "a", Scope: "/elsewhere"},
	} {
		_, err := st.Create(ctx, v)
		require.NoError(t, err)
	}

	found, err := st.FindByNames(ctx, []string{"a", "b"}, []string{chain.Global, "/f"})
	require.NoError(t, err)
	require.Len(t, found, 3, "off-chain scopes are not returned")
}

func TestStoreSaveValueRules(t *testing.T) {
	st := NewStore(testDB(t))
	ctx := context.Background()

	constant, err := st.Create(ctx, &Variable{Name: "const", Value: "x", AllowSave: true})
	require.NoError(t, err)
	noSave, err := st.Create(ctx, &Variable{Name: "nosave"})
	require.NoError(t, err)
	saveable, err := st.Create(ctx, &Variable{
		Name:      "email",
		AllowSave: true,
		Schema:    map[string]any{"type": "string"},
	})
	require.NoError(t, err)

	require.True(t, trace.IsBadParameter(st.SaveValue(ctx, "u1", constant.ID, "y")))
	require.True(t, trace.IsBadParameter(st.SaveValue(ctx, "u1", noSave.ID, "y")))
	require.True(t, trace.IsBadParameter(st.SaveValue(ctx, "", saveable.ID, "y")))
	require.True(t, trace.IsBadParameter(st.SaveValue(ctx, "u1", saveable.ID, 42)),
		"saved values are schema-validated on write")

	require.NoError(t, st.SaveValue(ctx, "u1", saveable.ID, "a@b.c"))
	// Second save overwrites.
	require.NoError(t, st.SaveValue(ctx, "u1", saveable.ID, "c@d.e"))

	saved, err := st.SavedValues(ctx, "u1", []string{saveable.ID})
	require.NoError(t, err)
	require.Equal(t, map[string]any{saveable.ID: "c@d.e"}, saved)
}

func TestStoreForgetValue(t *testing.T) {
	st := NewStore(testDB(t))
	ctx := context.Background()

	v, err := st.Create(ctx, &Variable{Name: "email", AllowSave: true})
	require.NoError(t, err)
	require.NoError(t, st.SaveValue(ctx, "u1", v.ID, "a@b.c"))

	require.NoError(t, st.ForgetValue(ctx, "u1", v.ID))
	require.True(t, trace.IsNotFound(st.ForgetValue(ctx, "u1", v.ID)))
}

func TestStoreDeleteCascadesSavedValues(t *testing.T) {
	st := NewStore(testDB(t))
	ctx := context.Background()

	v, err := st.Create(ctx, &Variable{Name: "email", AllowSave: true})
	require.NoError(t, err)
	require.NoError(t, st.SaveValue(ctx, "u1", v.ID, "a@b.c"))

	require.NoError(t, st.Delete(ctx, v.ID))

	saved, err := st.SavedValues(ctx, "u1", []string{v.ID})
	require.NoError(t, err)
	require.Empty(t, saved)
}

func TestReplaceSchemaReconciles(t *testing.T) {
	st := NewStore(testDB(t))
	ctx := context.Background()

	// Seed: "kept" gets updated in place, "dropped" gets removed.
	kept, err := st.Create(ctx, &Variable{Name: "kept", Scope: "/f", Value: "old-constant"})
	require.NoError(t, err)
	dropped, err := st.Create(ctx, &Variable{Name: "dropped", Scope: "/f", AllowSave: true})
	require.NoError(t, err)
	require.NoError(t, st.SaveValue(ctx, "u1", dropped.ID, "remember-me"))

	counts, err := st.ReplaceSchema(ctx, "/f", map[string]any{
		"properties": map[string]any{
			"kept":  map[string]any{"type": "string"},
			"added": map[string]any{"type": "number"},
		},
		"required": []any{"kept"},
	}, "admin-1")
	require.NoError(t, err)
	require.Equal(t, ReplaceCounts{Created: 1, Updated: 1, Deleted: 1}, counts)

	// Identity survives the update; the constant does not.
	got, err := st.GetByID(ctx, kept.ID)
	require.NoError(t, err)
	require.Nil(t, got.Value)
	require.Equal(t, map[string]any{"type": "string"}, got.Schema)
	require.True(t, got.Required)

	// The dropped variable and its saved values are gone.
	_, err = st.GetByID(ctx, dropped.ID)
	require.True(t, trace.IsNotFound(err))
	saved, err := st.SavedValues(ctx, "u1", []string{dropped.ID})
	require.NoError(t, err)
	require.Empty(t, saved)

	// Other scopes are untouched by a replace.
	other, err := st.FindByScope(ctx, chain.Global)
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestReplaceSchemaRejectsBadShapes(t *testing.T) {
	st := NewStore(testDB(t))
	ctx := context.Background()

	for name, schema := range map[string]map[string]any{
		"no properties":    {"required": []any{"a"}},
		"empty properties": {"properties": map[string]any{}},
		"undeclared required": {
			"properties": map[string]any{"a": map[string]any{"type": "string"}},
			"required":   []any{"b"},
		},
	} {
		_, err := st.ReplaceSchema(ctx, "/f", schema, "admin-1")
		require.True(t, trace.IsBadParameter(err), "%s: want BadParameter, got %v", name, err)
	}
}
