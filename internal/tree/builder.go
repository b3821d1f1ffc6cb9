// Package tree assembles access-filtered presentation trees over the
// external hierarchy. Every visited node re-derives its effective scope
// (a child carrying its own scope shadows the inherited budget), and
// traversal carries explicit state (visited bitmap plus remaining depth)
// so cyclic or duplicated listings cannot loop the walk.
package tree

import (
	"context"
	"log/slog"

	"github.com/RoaringBitmap/roaring"
	"github.com/gravitational/trace"

	"github.com/inkform/inkform/api"
	"github.com/inkform/inkform/internal/chain"
	"github.com/inkform/inkform/internal/graph"
	"github.com/inkform/inkform/internal/provider"
	"github.com/inkform/inkform/internal/scopes"
)

// Builder walks the external tree, consulting the scope policy per node
// and pruning everything the principal may not see.
type Builder struct {
	provider provider.Provider
	scopes   *scopes.Store
	log      *slog.Logger
}

// NewBuilder wires a builder over the provider and the scope store.
func NewBuilder(p provider.Provider, s *scopes.Store) *Builder {
	return &Builder{provider: p, scopes: s, log: slog.Default().With("component", "tree")}
}

// traversal is the state threaded through one walk: the scope map loaded
// once for the walk, the principal, the graph snapshot, and the visited
// set. The depth budget travels on the stack, one value per frame.
type traversal struct {
	g       *graph.Graph
	scopes  scopes.Map
	p       api.Principal
	super   bool
	visited *roaring.Bitmap
}

// visit marks a node and reports whether it was already seen in this walk.
func (t *traversal) visit(id string) bool {
	return !t.visited.CheckedAdd(t.g.Intern(id))
}

// resetVisited clears the visited set between independent pinned roots, so
// the same node may legitimately appear under two different pins.
func (t *traversal) resetVisited() {
	t.visited.Clear()
}

// BuildFolder returns the accessible tree under one folder. The folder
// itself is gated first: an unknown id is NotFound, a denied one is
// AccessDenied, and a folder with no accessible content is an empty tree.
func (b *Builder) BuildFolder(ctx context.Context, g *graph.Graph, folderID string, p api.Principal) (*api.FolderTree, error) {
	node, err := b.provider.GetNode(ctx, folderID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if !node.IsFolder() {
		return nil, trace.BadParameter("node %q is not a folder", folderID)
	}

	t, err := b.newTraversal(ctx, g, p)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	budget, allowed := b.gate(ctx, t, node)
	if !allowed {
		return nil, trace.AccessDenied("access denied")
	}

	root := api.NewFolderTree(node)
	t.visit(node.ID)
	if err := b.descend(ctx, t, root, node, budget); err != nil {
		return nil, trace.Wrap(err)
	}
	return root, nil
}

// BuildPinned returns the flat forest of all pinned scopes the principal
// can enter. Each accessible pinned folder becomes an independent subtree;
// pinned documents land directly in the envelope.
func (b *Builder) BuildPinned(ctx context.Context, g *graph.Graph, p api.Principal) (*api.FolderTree, error) {
	pinned, err := b.scopes.Pinned(ctx)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	t, err := b.newTraversal(ctx, g, p)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	forest := &api.FolderTree{Folders: []*api.FolderTree{}, Documents: []*api.NodeInfo{}}
	for _, pin := range pinned {
		node, err := b.provider.GetNode(ctx, pin.NodeID)
		if err != nil {
			// The scope is a weak reference; a vanished node is
			// skipped, not fatal.
			b.log.DebugContext(ctx, "pinned node missing", "node", pin.NodeID)
			continue
		}

		t.resetVisited()
		budget, allowed := b.gate(ctx, t, node)
		if !allowed {
			continue
		}

		if !node.IsFolder() {
			forest.Documents = append(forest.Documents, node)
			continue
		}
		subtree := api.NewFolderTree(node)
		t.visit(node.ID)
		if err := b.descend(ctx, t, subtree, node, budget); err != nil {
			return nil, trace.Wrap(err)
		}
		forest.Folders = append(forest.Folders, subtree)
	}
	return forest, nil
}

func (b *Builder) newTraversal(ctx context.Context, g *graph.Graph, p api.Principal) (*traversal, error) {
	all, err := b.scopes.All(ctx)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &traversal{
		g:       g,
		scopes:  scopes.NewMap(all),
		p:       p,
		super:   p.Role == api.RoleSuperadmin,
		visited: roaring.New(),
	}, nil
}

// gate decides access for a traversal root and returns its depth budget.
func (b *Builder) gate(ctx context.Context, t *traversal, node *api.NodeInfo) (api.Depth, bool) {
	if t.super {
		return api.InfiniteDepth, true
	}
	path, err := t.g.PathOf(node.ID, node.ParentID)
	if err != nil {
		b.log.DebugContext(ctx, "path resolution failed", "node", node.ID, "error", err)
		return 0, false
	}
	d := scopes.Decide(chain.FromPath(path), t.scopes, t.p)
	return d.RemainingDepth, d.Allowed
}

// descend expands one accessible folder. budget is the remaining depth at
// the folder itself: child folders need budget left to render, while child
// documents at the boundary are still shown.
func (b *Builder) descend(ctx context.Context, t *traversal, parent *api.FolderTree, folder *api.NodeInfo, budget api.Depth) error {
	children, err := b.provider.ListChildren(ctx, folder.ID)
	if err != nil {
		// The listing is a weak snapshot; a folder that vanished
		// mid-walk prunes to empty rather than failing the tree.
		b.log.DebugContext(ctx, "child listing failed", "node", folder.ID, "error", err)
		return nil
	}

	for _, child := range children {
		if t.visit(child.ID) {
			continue
		}

		childBudget := budget.Dec()
		if own, ok := t.scopes[child.ID]; ok && !t.super {
			// A scope on the child shadows the inherited budget,
			// whether it widens or narrows it.
			if !own.Restrictions.AccessLevel.Admits(t.p) {
				continue
			}
			childBudget = own.Restrictions.MaxDepth
		}

		if child.IsFolder() {
			if childBudget.Exhausted() {
				continue
			}
			subtree := api.NewFolderTree(child)
			parent.Folders = append(parent.Folders, subtree)
			if err := b.descend(ctx, t, subtree, child, childBudget); err != nil {
				return err
			}
			continue
		}

		// Documents at the boundary depth are still shown: a folder
		// with zero budget lists its files but expands no subfolder.
		parent.Documents = append(parent.Documents, child)
	}
	return nil
}
