package vars

import (
	"context"
	"log/slog"
	"sort"

	"github.com/gravitational/trace"

	"github.com/inkform/inkform/api"
	"github.com/inkform/inkform/internal/chain"
	"github.com/inkform/inkform/internal/graph"
)

// Resolver computes the effective value of every template-declared name
// for one document. All reads happen up front (one variable query, one
// saved-value query), then the precedence rules run in memory, so a call
// is a pure function of its snapshot.
type Resolver struct {
	store *Store
	log   *slog.Logger
}

// NewResolver builds a resolver over the variable store.
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store, log: slog.Default().With("component", "vars")}
}

// Resolve produces the render context for node. names are the variable
// names the template declares; caller holds the request-supplied values.
// Per-name failures are collected and returned together as one
// *ValidationError, never one at a time.
//
// bypass skips variable lookup and validation entirely and echoes caller
// values verbatim. It exists for trusted regeneration flows only.
func (r *Resolver) Resolve(ctx context.Context, g *graph.Graph, node *api.NodeInfo, names []string, caller map[string]any, p api.Principal, bypass bool) (map[string]*api.ResolvedVariable, error) {
	names = dedupe(names)
	if bypass {
		return passthroughAll(names, caller), nil
	}

	path, err := g.PathOf(node.ID, node.ParentID)
	if err != nil {
		return nil, trace.NotFound("location of node %q cannot be resolved", node.ID)
	}
	c := chain.WithGlobal(path)

	candidates, err := r.store.FindByNames(ctx, names, c.IDs())
	if err != nil {
		return nil, trace.Wrap(err)
	}
	byName := map[string][]*Variable{}
	for _, v := range candidates {
		byName[v.Name] = append(byName[v.Name], v)
	}

	// One effective variable per name: the most specific chain member.
	effective := map[string]*Variable{}
	var effectiveIDs []string
	for name, group := range byName {
		if v, ok := chain.Select(c, group, scopeOf); ok {
			effective[name] = v
			effectiveIDs = append(effectiveIDs, v.ID)
		}
	}

	saved, err := r.store.SavedValues(ctx, p.ID, effectiveIDs)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	out := map[string]*api.ResolvedVariable{}
	errs := map[string]string{}
	for _, name := range names {
		callerValue, callerHas := caller[name]
		v, configured := effective[name]
		if !configured {
			// Not configured anywhere on the chain: caller values pass
			// through verbatim, nothing is required.
			if callerHas {
				out[name] = &api.ResolvedVariable{Name: name, Value: callerValue, Source: api.SourcePassthrough}
			}
			continue
		}

		switch {
		case v.IsConstant():
			if callerHas {
				errs[name] = msgConstantOverride
				continue
			}
			out[name] = &api.ResolvedVariable{Name: name, Value: v.Value, Source: api.SourceConstant}

		case callerHas:
			if err := validateValue(v.Schema, callerValue); err != nil {
				errs[name] = "validation error: " + err.Error()
				continue
			}
			out[name] = &api.ResolvedVariable{Name: name, Value: callerValue, Source: api.SourceCaller}

		default:
			if savedValue, ok := saved[v.ID]; ok {
				if err := validateValue(v.Schema, savedValue); err == nil {
					out[name] = &api.ResolvedVariable{Name: name, Value: savedValue, Source: api.SourceSaved}
					continue
				}
				// A stale saved value no longer matching the schema
				// falls through as if absent.
				r.log.DebugContext(ctx, "saved value fails current schema",
					"variable", v.Name, "principal", p.ID)
			}
			if v.Required {
				errs[name] = msgMissingRequired
			}
		}
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return out, nil
}

// ListOverrides returns the variables a given variable shadows: every
// variable sharing its name at a strictly less specific scope on its
// chain, ordered most-specific-first. Purely informational.
func (r *Resolver) ListOverrides(ctx context.Context, g *graph.Graph, variableID string) ([]*Variable, error) {
	v, err := r.store.GetByID(ctx, variableID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if v.Scope == chain.Global {
		// The global tier is the least specific; nothing sits below it.
		return nil, nil
	}

	path, err := g.PathOf(v.Scope, "")
	if err != nil {
		return nil, trace.NotFound("location of scope %q cannot be resolved", v.Scope)
	}
	c := chain.WithGlobal(path)
	below := c.Below(c.Specificity(v.Scope))
	if len(below) == 0 {
		return nil, nil
	}

	candidates, err := r.store.FindByNames(ctx, []string{v.Name}, below)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	rank := make(map[string]int, len(below))
	for i, id := range below {
		rank[id] = i
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return rank[candidates[i].Scope] < rank[candidates[j].Scope]
	})
	return candidates, nil
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := names[:0:0]
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func passthroughAll(names []string, caller map[string]any) map[string]*api.ResolvedVariable {
	out := map[string]*api.ResolvedVariable{}
	for _, name := range names {
		if value, ok := caller[name]; ok {
			out[name] = &api.ResolvedVariable{Name: name, Value: value, Source: api.SourcePassthrough}
		}
	}
	return out
}
