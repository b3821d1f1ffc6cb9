package vars

import (
	"context"
	"strings"
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"

	"github.com/inkform/inkform/api"
	"github.com/inkform/inkform/internal/chain"
	"github.com/inkform/inkform/internal/graph"
)

func folder(id, parent string) *api.NodeInfo {
	return &api.NodeInfo{ID: id, Kind: api.KindFolder, ParentID: parent}
}

func document(id, parent string) *api.NodeInfo {
	return &api.NodeInfo{ID: id, Kind: api.KindDocument, ParentID: parent}
}

// testTopology: / -> /f -> /f/sub, documents resolved underneath.
func testTopology() *graph.Graph {
	return graph.New([]*api.NodeInfo{
		folder("/", ""),
		folder("/f", "/"),
		folder("/f/sub", "/f"),
	})
}

func mustCreate(t *testing.T, st *Store, v *Variable) *Variable {
	t.Helper()
	created, err := st.Create(context.Background(), v)
	require.NoError(t, err)
	return created
}

func TestResolveConstantWins(t *testing.T) {
	st := NewStore(testDB(t))
	r := NewResolver(st)
	g := testTopology()
	ctx := context.Background()
	doc := document("/f/offer.docx", "/f")

	mustCreate(t, st, &Variable{Name: "company_name", Scope: chain.Global, Value: "Acme"})

	out, err := r.Resolve(ctx, g, doc, []string{"company_name"}, nil, api.Anonymous, false)
	require.NoError(t, err)
	require.Equal(t, &api.ResolvedVariable{
		Name: "company_name", Value: "Acme", Source: api.SourceConstant,
	}, out["company_name"])
}

func TestResolveConstantRejectsCallerOverride(t *testing.T) {
	st := NewStore(testDB(t))
	r := NewResolver(st)
	g := testTopology()
	doc := document("/f/offer.docx", "/f")

	mustCreate(t, st, &Variable{Name: "company_name", Scope: chain.Global, Value: "Acme"})

	_, err := r.Resolve(context.Background(), g, doc, []string{"company_name"},
		map[string]any{"company_name": "Other"}, api.Anonymous, false)
	ve, ok := AsValidationError(err)
	require.True(t, ok, "want ValidationError, got %v", err)
	require.Equal(t, map[string]string{"company_name": "cannot override constant variable"}, ve.Errors)
}

func TestResolveMostSpecificScopeWins(t *testing.T) {
	st := NewStore(testDB(t))
	r := NewResolver(st)
	g := testTopology()
	doc := document("/f/sub/offer.docx", "/f/sub")

	mustCreate(t, st, &Variable{Name: "greeting", Scope: chain.Global, Value: "hello"})
	mustCreate(t, st, &Variable{Name: "greeting", Scope: "/f/sub", Value: "dear"})

	out, err := r.Resolve(context.Background(), g, doc, []string{"greeting"}, nil, api.Anonymous, false)
	require.NoError(t, err)
	require.Equal(t, "dear", out["greeting"].Value)
}

func TestResolveCallerValueValidated(t *testing.T) {
	st := NewStore(testDB(t))
	r := NewResolver(st)
	g := testTopology()
	ctx := context.Background()
	doc := document("/f/offer.docx", "/f")

	mustCreate(t, st, &Variable{
		Name: "employee_name", Scope: "/f",
		Schema: map[string]any{"type": "string"},
	})

	out, err := r.Resolve(ctx, g, doc, []string{"employee_name"},
		map[string]any{"employee_name": "Ada"}, api.Anonymous, false)
	require.NoError(t, err)
	require.Equal(t, api.SourceCaller, out["employee_name"].Source)

	_, err = r.Resolve(ctx, g, doc, []string{"employee_name"},
		map[string]any{"employee_name": 42}, api.Anonymous, false)
	ve, ok := AsValidationError(err)
	require.True(t, ok, "want ValidationError, got %v", err)
	require.True(t, strings.HasPrefix(ve.Errors["employee_name"], "validation error: "),
		"got %q", ve.Errors["employee_name"])
}

func TestResolveSavedValueFallback(t *testing.T) {
	st := NewStore(testDB(t))
	r := NewResolver(st)
	g := testTopology()
	ctx := context.Background()
	doc := document("/f/offer.docx", "/f")
	p := api.Principal{ID: "u1", Role: api.RoleUser}

	v := mustCreate(t, st, &Variable{
		Name: "email", Scope: "/f", AllowSave: true,
		Schema: map[string]any{"type": "string"},
	})
	require.NoError(t, st.SaveValue(ctx, p.ID, v.ID, "a@b.c"))

	// No caller value: the saved one fills in.
	out, err := r.Resolve(ctx, g, doc, []string{"email"}, nil, p, false)
	require.NoError(t, err)
	require.Equal(t, &api.ResolvedVariable{Name: "email", Value: "a@b.c", Source: api.SourceSaved}, out["email"])

	// A caller value beats the saved one.
	out, err = r.Resolve(ctx, g, doc, []string{"email"},
		map[string]any{"email": "x@y.z"}, p, false)
	require.NoError(t, err)
	require.Equal(t, api.SourceCaller, out["email"].Source)

	// Another principal does not inherit the saved value.
	out, err = r.Resolve(ctx, g, doc, []string{"email"}, nil,
		api.Principal{ID: "u2", Role: api.RoleUser}, false)
	require.NoError(t, err)
	require.NotContains(t, out, "email")
}

func TestResolveMissingRequired(t *testing.T) {
	st := NewStore(testDB(t))
	r := NewResolver(st)
	g := testTopology()
	doc := document("/f/offer.docx", "/f")

	mustCreate(t, st, &Variable{Name: "employee_name", Scope: "/f", Required: true})

	_, err := r.Resolve(context.Background(), g, doc, []string{"employee_name"}, nil, api.Anonymous, false)
	ve, ok := AsValidationError(err)
	require.True(t, ok, "want ValidationError, got %v", err)
	require.Equal(t, map[string]string{"employee_name": "missing required variable"}, ve.Errors)
}

func TestResolveOptionalUnfilledIsOmitted(t *testing.T) {
	st := NewStore(testDB(t))
	r := NewResolver(st)
	g := testTopology()
	doc := document("/f/offer.docx", "/f")

	mustCreate(t, st, &Variable{Name: "middle_name", Scope: "/f"})

	out, err := r.Resolve(context.Background(), g, doc, []string{"middle_name"}, nil, api.Anonymous, false)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestResolveUnconfiguredPassthrough(t *testing.T) {
	st := NewStore(testDB(t))
	r := NewResolver(st)
	g := testTopology()
	doc := document("/f/offer.docx", "/f")

	out, err := r.Resolve(context.Background(), g, doc, []string{"freeform", "absent"},
		map[string]any{"freeform": 7}, api.Anonymous, false)
	require.NoError(t, err)
	require.Equal(t, &api.ResolvedVariable{Name: "freeform", Value: 7, Source: api.SourcePassthrough}, out["freeform"])
	require.NotContains(t, out, "absent")
}

func TestResolveAggregatesAllErrors(t *testing.T) {
	st := NewStore(testDB(t))
	r := NewResolver(st)
	g := testTopology()
	doc := document("/f/offer.docx", "/f")

	mustCreate(t, st, &Variable{Name: "company_name", Scope: chain.Global, Value: "Acme"})
	mustCreate(t, st, &Variable{Name: "employee_name", Scope: "/f", Required: true})

	_, err := r.Resolve(context.Background(), g, doc,
		[]string{"company_name", "employee_name"},
		map[string]any{"company_name": "Other"}, api.Anonymous, false)
	ve, ok := AsValidationError(err)
	require.True(t, ok, "want ValidationError, got %v", err)
	require.Equal(t, map[string]string{
		"company_name":  "cannot override constant variable",
		"employee_name": "missing required variable",
	}, ve.Errors)
}

func TestResolveBypassEchoesCallerValues(t *testing.T) {
	st := NewStore(testDB(t))
	r := NewResolver(st)
	g := testTopology()
	doc := document("/f/offer.docx", "/f")

	// Constants and required variables would both object; bypass skips
	// them entirely.
	mustCreate(t, st, &Variable{Name: "company_name", Scope: chain.Global, Value: "Acme"})
	mustCreate(t, st, &Variable{Name: "employee_name", Scope: "/f", Required: true})

	out, err := r.Resolve(context.Background(), g, doc,
		[]string{"company_name", "employee_name"},
		map[string]any{"company_name": "Other"}, api.Anonymous, true)
	require.NoError(t, err)
	require.Equal(t, api.SourcePassthrough, out["company_name"].Source)
	require.Equal(t, "Other", out["company_name"].Value)
	require.NotContains(t, out, "employee_name")
}

func TestResolveIsIdempotent(t *testing.T) {
	st := NewStore(testDB(t))
	r := NewResolver(st)
	g := testTopology()
	ctx := context.Background()
	doc := document("/f/offer.docx", "/f")

	mustCreate(t, st, &Variable{Name: "company_name", Scope: chain.Global, Value: "Acme"})
	mustCreate(t, st, &Variable{Name: "greeting", Scope: "/f", Schema: map[string]any{"type": "string"}})

	caller := map[string]any{"greeting": "hi"}
	first, err := r.Resolve(ctx, g, doc, []string{"company_name", "greeting"}, caller, api.Anonymous, false)
	require.NoError(t, err)
	second, err := r.Resolve(ctx, g, doc, []string{"company_name", "greeting"}, caller, api.Anonymous, false)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestResolveUnresolvableLocation(t *testing.T) {
	st := NewStore(testDB(t))
	r := NewResolver(st)

	cyclic := graph.New([]*api.NodeInfo{
		folder("/a", "/b"),
		folder("/b", "/a"),
	})
	_, err := r.Resolve(context.Background(), cyclic, folder("/a", "/b"),
		[]string{"x"}, nil, api.Anonymous, false)
	require.True(t, trace.IsNotFound(err), "want NotFound, got %v", err)
}

func TestListOverrides(t *testing.T) {
	st := NewStore(testDB(t))
	r := NewResolver(st)
	g := testTopology()
	ctx := context.Background()

	global := mustCreate(t, st, &Variable{Name: "greeting", Scope: chain.Global, Value: "hello"})
	mid := mustCreate(t, st, &Variable{Name: "greeting", Scope: "/f", Value: "hi"})
	top := mustCreate(t, st, &Variable{Name: "greeting", Scope: "/f/sub", Value: "dear"})
	// A different name on the chain never shows up.
	mustCreate(t, st, &Variable{Name: "other", Scope: "/f"})

	shadowed, err := r.ListOverrides(ctx, g, top.ID)
	require.NoError(t, err)
	require.Len(t, shadowed, 2)
	require.Equal(t, mid.ID, shadowed[0].ID, "most specific first")
	require.Equal(t, global.ID, shadowed[1].ID)

	shadowed, err = r.ListOverrides(ctx, g, global.ID)
	require.NoError(t, err)
	require.Empty(t, shadowed, "the global tier shadows nothing")
}
