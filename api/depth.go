package api

import (
	"bytes"
	"strconv"

	"github.com/gravitational/trace"
)

// Depth is a propagation budget measured in tree edges. The external system
// models "no limit" as an absent value, so Depth keeps a dedicated sentinel
// and marshals it as JSON null.
type Depth int64

// InfiniteDepth removes the propagation limit.
const InfiniteDepth Depth = -1

// exhaustedDepth is the distinct sentinel a finite budget decrements into
// once nothing below the boundary may be reached. It must never collide
// with InfiniteDepth.
const exhaustedDepth Depth = -2

// DepthOf builds a finite depth from a non-negative count of edges.
func DepthOf(n int) Depth { return Depth(n) }

// IsInfinite reports whether the depth carries no limit.
func (d Depth) IsInfinite() bool { return d == InfiniteDepth }

// Allows reports whether a node k edges below the scope is within budget.
func (d Depth) Allows(k int) bool {
	return d.IsInfinite() || (d >= 0 && int64(k) <= int64(d))
}

// Remaining returns the budget left after descending k edges. Infinite
// stays infinite; descending past the budget exhausts it.
func (d Depth) Remaining(k int) Depth {
	if d.IsInfinite() {
		return InfiniteDepth
	}
	r := int64(d) - int64(k)
	if r < 0 {
		return exhaustedDepth
	}
	return Depth(r)
}

// Dec consumes one edge of budget. Infinite stays infinite.
func (d Depth) Dec() Depth {
	if d.IsInfinite() {
		return InfiniteDepth
	}
	if d <= 0 {
		return exhaustedDepth
	}
	return d - 1
}

// Exhausted reports whether no further nodes may be reached at all.
// A zero budget is not exhausted: it still admits the boundary node.
func (d Depth) Exhausted() bool { return d < 0 && !d.IsInfinite() }

func (d Depth) String() string {
	if d.IsInfinite() {
		return "infinite"
	}
	if d.Exhausted() {
		return "exhausted"
	}
	return strconv.FormatInt(int64(d), 10)
}

var jsonNull = []byte("null")

// MarshalJSON encodes infinite depth as null, mirroring the external
// representation of an absent max_depth.
func (d Depth) MarshalJSON() ([]byte, error) {
	if d.IsInfinite() {
		return jsonNull, nil
	}
	return []byte(strconv.FormatInt(int64(d), 10)), nil
}

// UnmarshalJSON accepts null or a non-negative integer.
func (d *Depth) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		*d = InfiniteDepth
		return nil
	}
	n, err := strconv.ParseInt(string(bytes.TrimSpace(data)), 10, 64)
	if err != nil {
		return trace.BadParameter("invalid depth %q", string(data))
	}
	if n < 0 {
		return trace.BadParameter("depth must be non-negative, got %d", n)
	}
	*d = Depth(n)
	return nil
}
