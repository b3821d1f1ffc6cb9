// Package chain implements the scope chain shared by access evaluation and
// variable resolution. Both subsystems rank candidates by specificity,
// nearest ancestor first, and both must agree on what "nearest" means, so
// the selection lives here and nowhere else.
package chain

// Global is the scope id of the global (scope-less) tier. It is the least
// specific member of any chain that carries it.
const Global = ""

// Chain is an ordered list of scope ids from least to most specific:
// optionally the global tier, then the root ancestor, down to the node
// itself. Index order is the only notion of specificity in the engine.
type Chain struct {
	ids []string
}

// FromPath builds a chain from a root-to-node path.
func FromPath(path []string) Chain {
	ids := make([]string, len(path))
	copy(ids, path)
	return Chain{ids: ids}
}

// WithGlobal builds a chain from a root-to-node path with the global tier
// prepended as the least specific member.
func WithGlobal(path []string) Chain {
	ids := make([]string, 0, len(path)+1)
	ids = append(ids, Global)
	ids = append(ids, path...)
	return Chain{ids: ids}
}

// Len returns the number of members in the chain.
func (c Chain) Len() int { return len(c.ids) }

// IDs returns the chain members from least to most specific.
func (c Chain) IDs() []string { return c.ids }

// Specificity returns the index of id within the chain, or -1 when the id
// is not a member. Larger index means more specific.
func (c Chain) Specificity(id string) int {
	for i := len(c.ids) - 1; i >= 0; i-- {
		if c.ids[i] == id {
			return i
		}
	}
	return -1
}

// Contains reports whether id is a member of the chain.
func (c Chain) Contains(id string) bool { return c.Specificity(id) >= 0 }

// MostSpecific scans the chain from the most specific end and returns the
// first member for which has reports true, along with its index.
func (c Chain) MostSpecific(has func(id string) bool) (string, int, bool) {
	for i := len(c.ids) - 1; i >= 0; i-- {
		if has(c.ids[i]) {
			return c.ids[i], i, true
		}
	}
	return "", -1, false
}

// Select picks the item bound to the most specific chain member. scopeOf
// maps an item to its scope id (Global for unscoped items). Items bound
// outside the chain never win. Ties cannot occur for callers that enforce
// per-scope uniqueness; if they do, the first-listed item wins.
func Select[T any](c Chain, items []T, scopeOf func(T) string) (T, bool) {
	var (
		best     T
		bestRank = -1
		found    bool
	)
	for _, item := range items {
		rank := c.Specificity(scopeOf(item))
		if rank > bestRank {
			best, bestRank, found = item, rank, true
		}
	}
	return best, found
}

// Below returns the members strictly less specific than the member at
// index i, ordered most-specific-first. Used for override discovery.
func (c Chain) Below(i int) []string {
	if i <= 0 || i > len(c.ids) {
		return nil
	}
	out := make([]string, 0, i)
	for j := i - 1; j >= 0; j-- {
		out = append(out, c.ids[j])
	}
	return out
}
