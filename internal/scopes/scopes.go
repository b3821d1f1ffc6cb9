// Package scopes holds the access-control records attached to external
// nodes and the evaluator that decides, for a node path and a principal,
// whether access is granted and how much depth budget remains below.
package scopes

import (
	"time"

	"github.com/gravitational/trace"

	"github.com/inkform/inkform/api"
	"github.com/inkform/inkform/internal/chain"
)

// Restrictions is the policy carried by a scope: who may enter and how far
// below the scope node the grant propagates.
//
// Depth semantics:
//
//	0  only the scope node itself
//	1  direct children
//	d  nodes up to d edges below
//	infinite  no limit
type Restrictions struct {
	AccessLevel api.AccessLevel `json:"access_level"`
	MaxDepth    api.Depth       `json:"max_depth"`
}

// Scope binds a restriction policy to exactly one external node. At most
// one scope exists per node id; the store enforces it.
type Scope struct {
	ID       string `json:"id"`
	NodeID   string `json:"node_id"`
	IsFolder bool   `json:"is_folder"`
	// IsPinned marks the scope as a root of the global tree view.
	IsPinned     bool         `json:"is_pinned"`
	Restrictions Restrictions `json:"restrictions"`

	CreatedBy string    `json:"created_by,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Scope) check() error {
	if s.NodeID == "" {
		return trace.BadParameter("scope requires a node id")
	}
	if _, err := api.ParseAccessLevel(string(s.Restrictions.AccessLevel)); err != nil {
		return trace.Wrap(err)
	}
	return nil
}

// Map indexes scopes by node id for O(1) chain lookups.
type Map map[string]*Scope

// NewMap builds a node-id index from a scope listing.
func NewMap(scopes []*Scope) Map {
	m := make(Map, len(scopes))
	for _, s := range scopes {
		m[s.NodeID] = s
	}
	return m
}

// Effective returns the most specific scope on the chain, along with the
// depth of the chain's last member below that scope. The second return is
// -1 when no chain member carries a scope.
func Effective(c chain.Chain, m Map) (*Scope, int) {
	id, idx, ok := c.MostSpecific(func(id string) bool {
		_, found := m[id]
		return found
	})
	if !ok {
		return nil, -1
	}
	return m[id], c.Len() - 1 - idx
}
