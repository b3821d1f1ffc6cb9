package scopes

import (
	"context"
	"log/slog"

	"github.com/gravitational/trace"

	"github.com/inkform/inkform/api"
	"github.com/inkform/inkform/internal/chain"
	"github.com/inkform/inkform/internal/graph"
)

// Deny reasons. Internal diagnostics only: callers see Forbidden either
// way, so an unconfigured subtree is indistinguishable from a denied one.
const (
	ReasonSuperadmin   = "superadmin override"
	ReasonUnconfigured = "no scope configured for this subtree"
	ReasonUnresolvable = "node location cannot be resolved"
	ReasonAccessLevel  = "access level not met"
	ReasonDepth        = "scope depth exceeded"
)

// Evaluator decides node accessibility against the scope set. It is a pure
// read: one scope fetch per Evaluate call, one path resolution, then
// in-memory computation. The system is closed by default: a path with no
// scope on it denies everyone but superadmins.
type Evaluator struct {
	store *Store
	log   *slog.Logger
}

// NewEvaluator builds an evaluator over the scope store.
func NewEvaluator(store *Store) *Evaluator {
	return &Evaluator{store: store, log: slog.Default().With("component", "access")}
}

// Evaluate runs the full decision for one node. The graph snapshot is
// supplied by the caller so that a multi-node operation (tree building)
// shares a single consistent topology.
func (e *Evaluator) Evaluate(ctx context.Context, g *graph.Graph, node *api.NodeInfo, p api.Principal) (api.Decision, error) {
	if p.Role == api.RoleSuperadmin {
		return api.Decision{Allowed: true, RemainingDepth: api.InfiniteDepth, Reason: ReasonSuperadmin}, nil
	}

	all, err := e.store.All(ctx)
	if err != nil {
		return api.Deny(""), trace.Wrap(err)
	}

	path, err := g.PathOf(node.ID, node.ParentID)
	if err != nil {
		// Untrusted topology: swallow the traversal failure into a
		// denial rather than surfacing a raw graph error.
		e.log.DebugContext(ctx, "path resolution failed", "node", node.ID, "error", err)
		return api.Deny(ReasonUnresolvable), nil
	}

	return Decide(chain.FromPath(path), NewMap(all), p), nil
}

// Decide applies the scope policy along a resolved chain. Shared by the
// evaluator and the tree builder, which re-derives decisions per visited
// node against an already-loaded scope map.
func Decide(c chain.Chain, m Map, p api.Principal) api.Decision {
	scope, depthFromScope := Effective(c, m)
	if scope == nil {
		return api.Deny(ReasonUnconfigured)
	}
	if !scope.Restrictions.AccessLevel.Admits(p) {
		return api.Deny(ReasonAccessLevel)
	}
	if !scope.Restrictions.MaxDepth.Allows(depthFromScope) {
		return api.Deny(ReasonDepth)
	}
	return api.Decision{
		Allowed:        true,
		RemainingDepth: scope.Restrictions.MaxDepth.Remaining(depthFromScope),
	}
}
