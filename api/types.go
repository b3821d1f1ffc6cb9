// Package api holds the shared domain types of the inkform engine: external
// node snapshots, principals, access decisions and tree output. Everything
// crossing a component boundary lives here.
package api

import (
	"strings"
	"time"

	"github.com/gravitational/trace"
)

// NodeKind distinguishes folders from fillable documents in the external
// hierarchy. The provider owns the classification; the engine only reads it.
type NodeKind string

const (
	KindFolder   NodeKind = "folder"
	KindDocument NodeKind = "document"
)

// NodeInfo is a point-in-time snapshot of one node in the externally-owned
// tree. The engine never mutates nodes; a NodeInfo may be briefly cached.
type NodeInfo struct {
	// ID is the provider's opaque identifier for the node.
	ID string `json:"id"`
	// Name is the display name of the node.
	Name string `json:"name"`
	// Kind declares whether this is a folder or a document.
	Kind NodeKind `json:"kind"`
	// ParentID is the id of the single parent, empty for roots.
	ParentID string `json:"parent_id,omitempty"`
	// Size is the byte size of document content, zero for folders.
	Size int64 `json:"size,omitempty"`
	// ModTime is the provider's last-modified timestamp.
	ModTime time.Time `json:"mod_time,omitzero"`
}

// IsFolder reports whether the node is a folder.
func (n *NodeInfo) IsFolder() bool { return n.Kind == KindFolder }

// Role is the coarse privilege tier of a principal.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	// RoleSuperadmin bypasses scope evaluation entirely.
	RoleSuperadmin Role = "superadmin"
)

// Principal is the caller identity passed into every gated operation.
// It is never persisted by the engine.
type Principal struct {
	// ID identifies the principal; empty means anonymous.
	ID string `json:"id,omitempty"`
	// Role is the principal's privilege tier.
	Role Role `json:"role,omitempty"`
	// EmailVerified reports whether the principal's email is confirmed.
	EmailVerified bool `json:"email_verified,omitempty"`
}

// Anonymous is the zero principal used for unauthenticated callers.
var Anonymous = Principal{}

// IsAnonymous reports whether the principal carries no identity.
func (p Principal) IsAnonymous() bool { return p.ID == "" }

// IsAdmin reports whether the principal holds the admin tier or above.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin || p.Role == RoleSuperadmin
}

// AccessLevel is the audience a scope admits.
type AccessLevel string

const (
	// AccessAny admits everyone, including anonymous callers.
	AccessAny AccessLevel = "any"
	// AccessAuthenticated admits any non-anonymous principal.
	AccessAuthenticated AccessLevel = "authenticated"
	// AccessEmailVerified admits authenticated principals with a
	// confirmed email.
	AccessEmailVerified AccessLevel = "email_verified"
	// AccessAdmin admits admins and superadmins only.
	AccessAdmin AccessLevel = "admin"
)

// ParseAccessLevel converts a stored string into an AccessLevel.
func ParseAccessLevel(s string) (AccessLevel, error) {
	switch AccessLevel(strings.ToLower(strings.TrimSpace(s))) {
	case AccessAny:
		return AccessAny, nil
	case AccessAuthenticated:
		return AccessAuthenticated, nil
	case AccessEmailVerified:
		return AccessEmailVerified, nil
	case AccessAdmin:
		return AccessAdmin, nil
	default:
		return "", trace.BadParameter("unknown access level %q", s)
	}
}

// Admits reports whether the level admits the given principal.
func (l AccessLevel) Admits(p Principal) bool {
	switch l {
	case AccessAny:
		return true
	case AccessAuthenticated:
		return !p.IsAnonymous()
	case AccessEmailVerified:
		return !p.IsAnonymous() && p.EmailVerified
	case AccessAdmin:
		return !p.IsAnonymous() && p.IsAdmin()
	default:
		return false
	}
}

// Decision is the outcome of evaluating a principal against a node.
type Decision struct {
	// Allowed reports whether the principal may see or act on the node.
	Allowed bool `json:"allowed"`
	// RemainingDepth is the depth budget left for descendants of the
	// node. Meaningful only when Allowed is true.
	RemainingDepth Depth `json:"remaining_depth"`
	// Reason is a diagnostic string, never shown to untrusted callers.
	Reason string `json:"reason,omitempty"`
}

// Deny builds a negative decision with a diagnostic reason.
func Deny(reason string) Decision {
	return Decision{Allowed: false, RemainingDepth: 0, Reason: reason}
}
