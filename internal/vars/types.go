// Package vars implements template variable storage and resolution. A
// variable binds a name to a scope (or the global tier) and carries either
// a constant value or a validation schema, never both. Resolution walks
// the same scope chain the access layer uses and applies a strict
// precedence: constant, then caller input, then the principal's saved
// value, then a required-variable failure.
package vars

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/gravitational/trace"
)

const (
	msgConstantOverride = "cannot override constant variable"
	msgMissingRequired  = "missing required variable"
)

// Variable is one named template input bound to a scope.
type Variable struct {
	// ID is the stable identity of the variable, preserved across bulk
	// schema replacement.
	ID string `json:"id"`
	// Name is the template-facing name. Unique together with Scope.
	Name string `json:"name"`
	// Scope is the node id the variable is bound to, chain.Global for
	// the global tier. Weak reference: the node may vanish.
	Scope string `json:"scope,omitempty"`
	// Required makes resolution fail when no value is produced.
	Required bool `json:"required"`
	// AllowSave lets principals store a personal fallback value.
	AllowSave bool `json:"allow_save"`
	// Order is the form presentation order within a scope.
	Order int `json:"order"`
	// Value is the constant value, nil when unset. Mutually exclusive
	// with Schema.
	Value any `json:"value,omitempty"`
	// Schema is the JSON schema caller and saved values must satisfy,
	// nil when unset. Mutually exclusive with Value.
	Schema map[string]any `json:"validation_schema,omitempty"`

	CreatedBy string    `json:"created_by,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsConstant reports whether the variable carries a constant value.
func (v *Variable) IsConstant() bool { return v.Value != nil }

func (v *Variable) check() error {
	if v.Name == "" {
		return trace.BadParameter("variable name is required")
	}
	if v.Value != nil && v.Schema != nil {
		return trace.BadParameter("variable %q: constant value and validation schema are mutually exclusive", v.Name)
	}
	if v.Schema != nil {
		if _, err := compileSchema(v.Schema); err != nil {
			return trace.BadParameter("variable %q: invalid validation schema: %v", v.Name, err)
		}
	}
	return nil
}

// scopeOf adapts Variable to the shared most-specific-wins selection.
func scopeOf(v *Variable) string { return v.Scope }

// ValidationError aggregates every per-variable failure of one resolution
// call. Resolution never fails fast: callers render all form fields at
// once and need the complete set.
type ValidationError struct {
	// Errors maps variable name to its failure message.
	Errors map[string]string
}

// Error implements error with a deterministic, name-sorted rendering.
func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Errors))
	for name := range e.Errors {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("variable validation failed:")
	for _, name := range names {
		b.WriteString(" ")
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(e.Errors[name])
		b.WriteString(";")
	}
	return strings.TrimSuffix(b.String(), ";")
}

// AsValidationError unwraps err into a *ValidationError if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// ReplaceCounts summarizes one bulk schema replacement.
type ReplaceCounts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}
