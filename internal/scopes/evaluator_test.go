package scopes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkform/inkform/api"
	"github.com/inkform/inkform/internal/graph"
)

func folder(id, parent string) *api.NodeInfo {
	return &api.NodeInfo{ID: id, Kind: api.KindFolder, ParentID: parent}
}

func document(id, parent string) *api.NodeInfo {
	return &api.NodeInfo{ID: id, Kind: api.KindDocument, ParentID: parent}
}

// testTopology: / -> /f -> /f/sub -> /f/sub/sub2
func testTopology() *graph.Graph {
	return graph.New([]*api.NodeInfo{
		folder("/", ""),
		folder("/f", "/"),
		folder("/f/sub", "/f"),
		folder("/f/sub/sub2", "/f/sub"),
	})
}

func mustCreate(t *testing.T, st *Store, s *Scope) {
	t.Helper()
	_, err := st.Create(context.Background(), s)
	require.NoError(t, err)
}

func TestEvaluateClosedByDefault(t *testing.T) {
	st := NewStore(testDB(t))
	ev := NewEvaluator(st)
	g := testTopology()

	for _, p := range []api.Principal{
		api.Anonymous,
		{ID: "u1", Role: api.RoleUser},
		{ID: "a1", Role: api.RoleAdmin},
	} {
		d, err := ev.Evaluate(context.Background(), g, folder("/f", "/"), p)
		require.NoError(t, err)
		require.False(t, d.Allowed, "role %q must be denied without any scope", p.Role)
		require.Equal(t, ReasonUnconfigured, d.Reason)
	}
}

func TestEvaluateSuperadminBypass(t *testing.T) {
	st := NewStore(testDB(t))
	ev := NewEvaluator(st)
	g := testTopology()

	d, err := ev.Evaluate(context.Background(), g, folder("/f", "/"),
		api.Principal{ID: "root", Role: api.RoleSuperadmin})
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.True(t, d.RemainingDepth.IsInfinite())
}

func TestEvaluateDepthBoundary(t *testing.T) {
	st := NewStore(testDB(t))
	ev := NewEvaluator(st)
	g := testTopology()
	ctx := context.Background()

	mustCreate(t, st, &Scope{
		NodeID:       "/f",
		IsFolder:     true,
		Restrictions: Restrictions{AccessLevel: api.AccessAny, MaxDepth: api.DepthOf(1)},
	})

	// k = 0: the scope node itself.
	d, err := ev.Evaluate(ctx, g, folder("/f", "/"), api.Anonymous)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.EqualValues(t, 1, d.RemainingDepth)

	// k = d: boundary, still allowed with zero budget left.
	d, err = ev.Evaluate(ctx, g, folder("/f/sub", "/f"), api.Anonymous)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.EqualValues(t, 0, d.RemainingDepth)

	// k = d+1: denied.
	d, err = ev.Evaluate(ctx, g, folder("/f/sub/sub2", "/f/sub"), api.Anonymous)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonDepth, d.Reason)
}

func TestEvaluateAdminDepthScenario(t *testing.T) {
	// Scope at /f with access_level=admin, max_depth=1: /f/sub is
	// admin-only, /f/sub/sub2 is denied to everyone but superadmin.
	st := NewStore(testDB(t))
	ev := NewEvaluator(st)
	g := testTopology()
	ctx := context.Background()

	mustCreate(t, st, &Scope{
		NodeID:       "/f",
		IsFolder:     true,
		Restrictions: Restrictions{AccessLevel: api.AccessAdmin, MaxDepth: api.DepthOf(1)},
	})

	admin := api.Principal{ID: "a1", Role: api.RoleAdmin}
	user := api.Principal{ID: "u1", Role: api.RoleUser}

	d, err := ev.Evaluate(ctx, g, folder("/f/sub", "/f"), admin)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = ev.Evaluate(ctx, g, folder("/f/sub", "/f"), user)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	d, err = ev.Evaluate(ctx, g, folder("/f/sub/sub2", "/f/sub"), admin)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	d, err = ev.Evaluate(ctx, g, folder("/f/sub/sub2", "/f/sub"),
		api.Principal{ID: "root", Role: api.RoleSuperadmin})
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestEvaluateDescendantScopeShadowsAncestor(t *testing.T) {
	// Admin-only ancestor shadowed by an open descendant scope: an
	// anonymous principal must succeed under the descendant.
	st := NewStore(testDB(t))
	ev := NewEvaluator(st)
	g := testTopology()
	ctx := context.Background()

	mustCreate(t, st, &Scope{
		NodeID:       "/f",
		IsFolder:     true,
		Restrictions: Restrictions{AccessLevel: api.AccessAdmin, MaxDepth: api.InfiniteDepth},
	})
	mustCreate(t, st, &Scope{
		NodeID:       "/f/sub",
		IsFolder:     true,
		Restrictions: Restrictions{AccessLevel: api.AccessAny, MaxDepth: api.InfiniteDepth},
	})

	d, err := ev.Evaluate(ctx, g, folder("/f/sub", "/f"), api.Anonymous)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = ev.Evaluate(ctx, g, folder("/f/sub/sub2", "/f/sub"), api.Anonymous)
	require.NoError(t, err)
	require.True(t, d.Allowed, "descendant scope governs its whole subtree")
}

func TestEvaluateAccessLevels(t *testing.T) {
	st := NewStore(testDB(t))
	ev := NewEvaluator(st)
	g := testTopology()
	ctx := context.Background()

	mustCreate(t, st, &Scope{
		NodeID:       "/f",
		IsFolder:     true,
		Restrictions: Restrictions{AccessLevel: api.AccessEmailVerified, MaxDepth: api.InfiniteDepth},
	})

	cases := []struct {
		name    string
		p       api.Principal
		allowed bool
	}{
		{"anonymous", api.Anonymous, false},
		{"unverified", api.Principal{ID: "u1", Role: api.RoleUser}, false},
		{"verified", api.Principal{ID: "u2", Role: api.RoleUser, EmailVerified: true}, true},
	}
	for _, tc := range cases {
		d, err := ev.Evaluate(ctx, g, folder("/f", "/"), tc.p)
		require.NoError(t, err)
		require.Equal(t, tc.allowed, d.Allowed, tc.name)
	}
}

func TestEvaluateDocumentInheritsFolderScope(t *testing.T) {
	st := NewStore(testDB(t))
	ev := NewEvaluator(st)
	g := testTopology()
	ctx := context.Background()

	mustCreate(t, st, &Scope{
		NodeID:       "/f",
		IsFolder:     true,
		Restrictions: Restrictions{AccessLevel: api.AccessAny, MaxDepth: api.DepthOf(1)},
	})

	d, err := ev.Evaluate(ctx, g, document("/f/offer.docx", "/f"), api.Anonymous)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = ev.Evaluate(ctx, g, document("/f/sub/deep.docx", "/f/sub"), api.Anonymous)
	require.NoError(t, err)
	require.False(t, d.Allowed)
}

func TestEvaluateUnresolvableLocationDenies(t *testing.T) {
	st := NewStore(testDB(t))
	ev := NewEvaluator(st)
	ctx := context.Background()

	mustCreate(t, st, &Scope{
		NodeID:       "/a",
		Restrictions: Restrictions{AccessLevel: api.AccessAny, MaxDepth: api.InfiniteDepth},
	})

	cyclic := graph.New([]*api.NodeInfo{
		folder("/a", "/b"),
		folder("/b", "/a"),
	})
	d, err := ev.Evaluate(ctx, cyclic, folder("/a", "/b"), api.Anonymous)
	require.NoError(t, err, "traversal failures must not escape as errors")
	require.False(t, d.Allowed)
	require.Equal(t, ReasonUnresolvable, d.Reason)
}
