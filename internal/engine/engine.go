// Package engine is the composition root of the access and variable
// subsystems. Transport layers (CLI, NFS export, the MCP agent) talk to
// the Engine and nothing below it. Every operation takes a fresh topology
// snapshot: reads are best-effort-consistent for the duration of one call,
// never across calls.
package engine

import (
	"context"
	"database/sql"
	"io"
	"log/slog"

	"github.com/gravitational/trace"

	"github.com/inkform/inkform/api"
	"github.com/inkform/inkform/internal/graph"
	"github.com/inkform/inkform/internal/provider"
	"github.com/inkform/inkform/internal/scopes"
	"github.com/inkform/inkform/internal/tree"
	"github.com/inkform/inkform/internal/vars"
)

// Engine bundles the stores, the evaluator, the tree builder and the
// variable resolver over one provider and one database.
type Engine struct {
	provider  provider.Provider
	scopes    *scopes.Store
	evaluator *scopes.Evaluator
	tree      *tree.Builder
	vars      *vars.Store
	resolver  *vars.Resolver
	log       *slog.Logger
}

// New wires an engine over an external provider and an opened database.
// Callers wanting cached provider reads wrap p in a provider.Cache first.
func New(p provider.Provider, db *sql.DB) *Engine {
	scopeStore := scopes.NewStore(db)
	varStore := vars.NewStore(db)
	return &Engine{
		provider:  p,
		scopes:    scopeStore,
		evaluator: scopes.NewEvaluator(scopeStore),
		tree:      tree.NewBuilder(p, scopeStore),
		vars:      varStore,
		resolver:  vars.NewResolver(varStore),
		log:       slog.Default().With("component", "engine"),
	}
}

// CheckAccess decides whether a principal may see or act on a node.
// Traversal failures surface as denials, never as errors.
func (e *Engine) CheckAccess(ctx context.Context, nodeID string, p api.Principal) (api.Decision, error) {
	node, err := e.provider.GetNode(ctx, nodeID)
	if err != nil {
		return api.Deny(""), trace.Wrap(err)
	}
	g, err := graph.Snapshot(ctx, e.provider)
	if err != nil {
		if p.Role == api.RoleSuperadmin {
			return api.Decision{Allowed: true, RemainingDepth: api.InfiniteDepth, Reason: scopes.ReasonSuperadmin}, nil
		}
		e.log.WarnContext(ctx, "topology snapshot failed", "error", err)
		return api.Deny(scopes.ReasonUnresolvable), nil
	}
	return e.evaluator.Evaluate(ctx, g, node, p)
}

// BuildTree returns the access-filtered tree under folderID, or the pinned
// forest when folderID is empty.
func (e *Engine) BuildTree(ctx context.Context, folderID string, p api.Principal) (*api.FolderTree, error) {
	g, err := graph.Snapshot(ctx, e.provider)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if folderID == "" {
		return e.tree.BuildPinned(ctx, g, p)
	}
	return e.tree.BuildFolder(ctx, g, folderID, p)
}

// ResolveVariables gates access to the node and then produces its render
// context. Validation failures come back as one aggregate
// *vars.ValidationError.
func (e *Engine) ResolveVariables(ctx context.Context, nodeID string, names []string, caller map[string]any, p api.Principal, bypass bool) (map[string]*api.ResolvedVariable, error) {
	node, err := e.provider.GetNode(ctx, nodeID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	g, err := graph.Snapshot(ctx, e.provider)
	if err != nil {
		return nil, trace.NotFound("location of node %q cannot be resolved", nodeID)
	}
	d, err := e.evaluator.Evaluate(ctx, g, node, p)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if !d.Allowed {
		return nil, trace.AccessDenied("access denied")
	}
	return e.resolver.Resolve(ctx, g, node, names, caller, p, bypass)
}

// OpenDocument gates access to a document and returns its content.
func (e *Engine) OpenDocument(ctx context.Context, nodeID string, p api.Principal) (io.ReadCloser, error) {
	node, err := e.provider.GetNode(ctx, nodeID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if node.IsFolder() {
		return nil, trace.BadParameter("node %q is a folder", nodeID)
	}
	g, err := graph.Snapshot(ctx, e.provider)
	if err != nil {
		return nil, trace.NotFound("location of node %q cannot be resolved", nodeID)
	}
	d, err := e.evaluator.Evaluate(ctx, g, node, p)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if !d.Allowed {
		return nil, trace.AccessDenied("access denied")
	}
	return e.provider.Open(ctx, nodeID)
}

// ListOverrides lists the variables shadowed by the given variable.
func (e *Engine) ListOverrides(ctx context.Context, variableID string) ([]*vars.Variable, error) {
	g, err := graph.Snapshot(ctx, e.provider)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return e.resolver.ListOverrides(ctx, g, variableID)
}

// ReplaceSchema reconciles a scope's variable set against a schema object.
func (e *Engine) ReplaceSchema(ctx context.Context, scope string, schema map[string]any, p api.Principal) (vars.ReplaceCounts, error) {
	return e.vars.ReplaceSchema(ctx, scope, schema, p.ID)
}

// Scope administration. The store enforces node-id uniqueness.

func (e *Engine) CreateScope(ctx context.Context, s *scopes.Scope) (*scopes.Scope, error) {
	return e.scopes.Create(ctx, s)
}

func (e *Engine) UpdateScope(ctx context.Context, s *scopes.Scope) (*scopes.Scope, error) {
	return e.scopes.Update(ctx, s)
}

func (e *Engine) DeleteScope(ctx context.Context, nodeID string) error {
	return e.scopes.Delete(ctx, nodeID)
}

func (e *Engine) GetScope(ctx context.Context, nodeID string) (*scopes.Scope, error) {
	return e.scopes.GetByNodeID(ctx, nodeID)
}

func (e *Engine) ListScopes(ctx context.Context) ([]*scopes.Scope, error) {
	return e.scopes.All(ctx)
}

// Variable administration. The store enforces (name, scope) uniqueness and
// the constant/schema exclusivity.

func (e *Engine) CreateVariable(ctx context.Context, v *vars.Variable) (*vars.Variable, error) {
	return e.vars.Create(ctx, v)
}

func (e *Engine) UpdateVariable(ctx context.Context, v *vars.Variable) (*vars.Variable, error) {
	return e.vars.Update(ctx, v)
}

func (e *Engine) DeleteVariable(ctx context.Context, id string) error {
	return e.vars.Delete(ctx, id)
}

func (e *Engine) GetVariable(ctx context.Context, id string) (*vars.Variable, error) {
	return e.vars.GetByID(ctx, id)
}

func (e *Engine) ListScopeVariables(ctx context.Context, scope string) ([]*vars.Variable, error) {
	return e.vars.FindByScope(ctx, scope)
}

// SaveValue stores the principal's personal fallback for a variable.
func (e *Engine) SaveValue(ctx context.Context, p api.Principal, variableID string, value any) error {
	return e.vars.SaveValue(ctx, p.ID, variableID, value)
}

// ForgetValue removes the principal's fallback for a variable.
func (e *Engine) ForgetValue(ctx context.Context, p api.Principal, variableID string) error {
	return e.vars.ForgetValue(ctx, p.ID, variableID)
}
