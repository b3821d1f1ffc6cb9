// Package provider defines the contract with the external file-hierarchy
// owner and ships two implementations: a billy.Filesystem adapter and a
// TTL-cached decorator. The engine treats the hierarchy as a read-only,
// eventually-changing snapshot source and never writes through a Provider.
package provider

import (
	"context"
	"io"

	"github.com/inkform/inkform/api"
)

// Provider is the read-side of the external hierarchical store.
//
// Implementations must return trace.NotFound for unknown ids and may be
// called concurrently. Listings are best-effort snapshots; the engine
// fetches once per operation and computes in memory.
type Provider interface {
	// ListFolders returns every folder node, parents included.
	ListFolders(ctx context.Context) ([]*api.NodeInfo, error)

	// GetNode returns metadata for one node, folder or document.
	GetNode(ctx context.Context, id string) (*api.NodeInfo, error)

	// ListChildren returns the direct children of a folder: subfolders
	// and template documents, in name order.
	ListChildren(ctx context.Context, id string) ([]*api.NodeInfo, error)

	// Open streams the byte content of a document node.
	Open(ctx context.Context, id string) (io.ReadCloser, error)
}
