package feed

import (
	"strings"
)

// BindingKind tells how a Binding derives its value.
type BindingKind int

const (
	// BindElement reads a field of the record itself.
	BindElement BindingKind = iota
	// BindParent reads a field of the record's parent.
	BindParent
	// BindLiteral emits a constant.
	BindLiteral
	// BindComputed calls a function with the record.
	BindComputed
)

func (k BindingKind) String() string {
	switch k {
	case BindElement:
		return "element"
	case BindParent:
		return "parent"
	case BindLiteral:
		return "literal"
	case BindComputed:
		return "computed"
	}
	return "unknown"
}

// ComputeFunc derives an output value from a record. It may read rec.Parent,
// which is nil for standalone products.
type ComputeFunc func(rec *Record) string

// Binding is one mapping entry's rule for deriving an output value.
// The zero value is an empty literal.
type Binding struct {
	kind  BindingKind
	field string
	value string
	fn    ComputeFunc
}

// Element binds to a record field, e.g. Element("NAME").
func Element(field string) Binding {
	return Binding{kind: BindElement, field: field}
}

// Parent binds to a parent field, e.g. Parent("SECTION_ID").
func Parent(field string) Binding {
	return Binding{kind: BindParent, field: field}
}

// Literal binds to a constant string.
func Literal(value string) Binding {
	return Binding{kind: BindLiteral, value: value}
}

// Computed binds to a function of the record.
func Computed(fn ComputeFunc) Binding {
	return Binding{kind: BindComputed, fn: fn}
}

// ParseBinding turns a mapping expression into a Binding.
//
// The expression is split on its first dot. An empty or "element" scope reads
// a record field (".NAME", "element.NAME"), "parent" reads a parent field
// ("parent.SECTION_ID"). Anything else, including strings without a dot, is
// kept whole as a literal.
func ParseBinding(expr string) Binding {
	scope, field, ok := strings.Cut(expr, ".")
	if !ok {
		return Literal(expr)
	}
	switch scope {
	case "", "element":
		return Element(field)
	case "parent":
		return Parent(field)
	}
	return Literal(expr)
}

// Kind returns how the binding resolves.
func (b Binding) Kind() BindingKind {
	return b.kind
}

// Field returns the referenced field name for element and parent bindings.
func (b Binding) Field() string {
	return b.field
}

// String renders the binding back as an expression. Computed bindings render
// as "<computed>".
func (b Binding) String() string {
	switch b.kind {
	case BindElement:
		return "element." + b.field
	case BindParent:
		return "parent." + b.field
	case BindComputed:
		return "<computed>"
	}
	return b.value
}
