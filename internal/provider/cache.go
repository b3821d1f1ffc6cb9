package provider

import (
	"context"
	"io"
	"time"

	"github.com/gravitational/trace"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/inkform/inkform/api"
)

const (
	defaultCacheSize = 4096
	foldersCacheKey  = "\x00folders"
)

// Cache decorates a Provider with a TTL-bounded read cache. It replaces the
// process-wide metadata caches of the original service with an owned,
// injectable component: construction states the TTL, Invalidate gives tests
// and admin tooling a deterministic reset, and a zero TTL disables caching
// entirely.
//
// Content reads (Open) are never cached.
type Cache struct {
	inner Provider
	ttl   time.Duration

	nodes    *expirable.LRU[string, *api.NodeInfo]
	children *expirable.LRU[string, []*api.NodeInfo]
	folders  *expirable.LRU[string, []*api.NodeInfo]
}

// NewCache wraps inner with a read cache holding entries for ttl.
func NewCache(inner Provider, ttl time.Duration) *Cache {
	return &Cache{
		inner:    inner,
		ttl:      ttl,
		nodes:    expirable.NewLRU[string, *api.NodeInfo](defaultCacheSize, nil, ttl),
		children: expirable.NewLRU[string, []*api.NodeInfo](defaultCacheSize, nil, ttl),
		folders:  expirable.NewLRU[string, []*api.NodeInfo](1, nil, ttl),
	}
}

// Invalidate drops every cached entry.
func (c *Cache) Invalidate() {
	c.nodes.Purge()
	c.children.Purge()
	c.folders.Purge()
}

// InvalidateNode drops cached metadata and listings for one node.
func (c *Cache) InvalidateNode(id string) {
	c.nodes.Remove(id)
	c.children.Remove(id)
	c.folders.Purge()
}

func (c *Cache) enabled() bool { return c.ttl > 0 }

// ListFolders returns the cached folder listing, refreshing on expiry.
func (c *Cache) ListFolders(ctx context.Context) ([]*api.NodeInfo, error) {
	if c.enabled() {
		if cached, ok := c.folders.Get(foldersCacheKey); ok {
			return cached, nil
		}
	}
	listing, err := c.inner.ListFolders(ctx)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if c.enabled() {
		c.folders.Add(foldersCacheKey, listing)
	}
	return listing, nil
}

// GetNode returns cached node metadata, refreshing on expiry.
func (c *Cache) GetNode(ctx context.Context, id string) (*api.NodeInfo, error) {
	if c.enabled() {
		if cached, ok := c.nodes.Get(id); ok {
			return cached, nil
		}
	}
	node, err := c.inner.GetNode(ctx, id)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if c.enabled() {
		c.nodes.Add(id, node)
	}
	return node, nil
}

// ListChildren returns the cached child listing, refreshing on expiry.
func (c *Cache) ListChildren(ctx context.Context, id string) ([]*api.NodeInfo, error) {
	if c.enabled() {
		if cached, ok := c.children.Get(id); ok {
			return cached, nil
		}
	}
	listing, err := c.inner.ListChildren(ctx, id)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if c.enabled() {
		c.children.Add(id, listing)
	}
	return listing, nil
}

// Open passes straight through to the inner provider.
func (c *Cache) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	return c.inner.Open(ctx, id)
}
