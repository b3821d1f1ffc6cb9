// Package graph builds an in-memory adjacency view of the external folder
// hierarchy and resolves root-to-node paths over it. A Graph is a pure
// function of one provider listing: fetch once, resolve in memory, throw
// away. The external provider is not trusted: parent pointers may be
// missing or cyclic, and path walking is bounded accordingly.
package graph

import (
	"context"
	"errors"
	"sync"

	"github.com/gravitational/trace"

	"github.com/inkform/inkform/api"
	"github.com/inkform/inkform/internal/provider"
)

// ErrUnresolvableLocation marks a node whose position in the hierarchy
// cannot be determined: the listing was unavailable, or parent pointers
// loop or run past the hop bound. Access evaluation treats it as a denial,
// never as a crash.
var ErrUnresolvableLocation = errors.New("unresolvable location")

// maxPathHops bounds a parent-pointer walk. Real hierarchies are a handful
// of levels deep; anything past this is a corrupt or adversarial listing.
const maxPathHops = 256

// Graph is an immutable snapshot of the folder topology.
type Graph struct {
	parents  map[string]string
	children map[string][]string

	mu     sync.Mutex
	intern map[string]uint32
	next   uint32
}

// Snapshot lists every folder once and builds the adjacency view.
func Snapshot(ctx context.Context, p provider.Provider) (*Graph, error) {
	folders, err := p.ListFolders(ctx)
	if err != nil {
		return nil, trace.Wrap(ErrUnresolvableLocation, "listing folders: %v", err)
	}
	return New(folders), nil
}

// New builds a Graph from a folder listing.
func New(folders []*api.NodeInfo) *Graph {
	g := &Graph{
		parents:  make(map[string]string, len(folders)),
		children: make(map[string][]string),
		intern:   make(map[string]uint32, len(folders)),
	}
	for _, f := range folders {
		g.parents[f.ID] = f.ParentID
		if f.ParentID != "" {
			g.children[f.ParentID] = append(g.children[f.ParentID], f.ID)
		}
	}
	return g
}

// IsFolder reports whether the id appeared in the folder listing.
func (g *Graph) IsFolder(id string) bool {
	_, ok := g.parents[id]
	return ok
}

// ChildrenOf returns the subfolder ids of a folder, in listing order.
func (g *Graph) ChildrenOf(id string) []string {
	return g.children[id]
}

// PathOf resolves the ordered ancestor path [root, ..., id].
//
// A folder walks its parent pointers to the root. A document (or any id
// absent from the folder listing) hangs off knownParent when the caller
// has one; with no parent information at all the path is the singleton
// [id]. Cycles and over-long chains abort with ErrUnresolvableLocation.
func (g *Graph) PathOf(id string, knownParent string) ([]string, error) {
	start := id
	path := []string{}

	if !g.IsFolder(id) {
		if knownParent == "" {
			return []string{id}, nil
		}
		path = append(path, id)
		start = knownParent
	}

	seen := map[string]bool{}
	for cur := start; cur != ""; {
		if len(path) >= maxPathHops || seen[cur] {
			return nil, trace.Wrap(ErrUnresolvableLocation, "parent chain of %q does not terminate", id)
		}
		seen[cur] = true
		path = append(path, cur)
		cur = g.parents[cur]
	}

	reverse(path)
	return path, nil
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Intern maps a node id to a small dense integer, suitable for roaring
// bitmap membership during traversal. Ids not seen before are assigned on
// demand, documents included.
func (g *Graph) Intern(id string) uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.intern[id]; ok {
		return n
	}
	n := g.next
	g.next++
	g.intern[id] = n
	return n
}
