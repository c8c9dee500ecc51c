package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
)

// ExprKind discriminates the variants of an attribute expression.
type ExprKind string

const (
	// ExprLiteral is a concrete scalar value (string, number, bool, null).
	ExprLiteral ExprKind = "literal"

	// ExprList is an ordered list of expressions.
	ExprList ExprKind = "list"

	// ExprMap is a string-keyed mapping of expressions.
	ExprMap ExprKind = "map"

	// ExprRef is a reference to another resource's attribute, written as
	// the token "${identity.attribute}".
	ExprRef ExprKind = "ref"
)

// Reference names another resource's attribute. A reference in any attribute
// expression establishes a dependency edge from the declaring resource to the
// referenced one.
type Reference struct {
	// Identity is the referenced resource identity.
	Identity string `json:"identity"`

	// Attribute is the referenced attribute or output name.
	Attribute string `json:"attribute"`
}

// String returns the reference in its token form.
func (r Reference) String() string {
	return fmt.Sprintf("${%s.%s}", r.Identity, r.Attribute)
}

// Expr is one attribute expression: a literal scalar, a list or mapping of
// expressions, or a reference token. Expressions are immutable once parsed.
type Expr struct {
	Kind    ExprKind        `json:"kind"`
	Literal any             `json:"literal,omitempty"`
	List    []Expr          `json:"list,omitempty"`
	Map     map[string]Expr `json:"map,omitempty"`
	Ref     *Reference      `json:"ref,omitempty"`
}

// refToken matches a whole-string reference token "${identity.attribute}".
// Identities may be dotted (e.g. "aws.network.core"); the final segment is
// the attribute name.
var refToken = regexp.MustCompile(`^\$\{([A-Za-z_][\w-]*(?:\.[\w-]+)*)\.([A-Za-z_]\w*)\}$`)

// ParseExpr converts a decoded declaration value (the result of unmarshaling
// CUE or JSON into any) into an expression tree, recognizing reference
// tokens in string positions.
func ParseExpr(v any) (Expr, error) {
	switch val := v.(type) {
	case string:
		if m := refToken.FindStringSubmatch(val); m != nil {
			return Expr{Kind: ExprRef, Ref: &Reference{Identity: m[1], Attribute: m[2]}}, nil
		}
		return Expr{Kind: ExprLiteral, Literal: val}, nil
	case []any:
		list := make([]Expr, 0, len(val))
		for i, item := range val {
			e, err := ParseExpr(item)
			if err != nil {
				return Expr{}, fmt.Errorf("list index %d: %w", i, err)
			}
			list = append(list, e)
		}
		return Expr{Kind: ExprList, List: list}, nil
	case map[string]any:
		m := make(map[string]Expr, len(val))
		for k, item := range val {
			e, err := ParseExpr(item)
			if err != nil {
				return Expr{}, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = e
		}
		return Expr{Kind: ExprMap, Map: m}, nil
	case nil, bool, float32, float64, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return Expr{Kind: ExprLiteral, Literal: val}, nil
	case json.Number:
		return Expr{Kind: ExprLiteral, Literal: val.String()}, nil
	default:
		return Expr{}, fmt.Errorf("unsupported attribute value type %T", v)
	}
}

// References returns every reference contained in the expression tree, in
// depth-first order. Map keys are walked sorted, so the result is
// deterministic for any expression.
func (e Expr) References() []Reference {
	var refs []Reference
	e.walk(func(r Reference) { refs = append(refs, r) })
	return refs
}

func (e Expr) walk(fn func(Reference)) {
	switch e.Kind {
	case ExprRef:
		fn(*e.Ref)
	case ExprList:
		for _, item := range e.List {
			item.walk(fn)
		}
	case ExprMap:
		keys := make([]string, 0, len(e.Map))
		for k := range e.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			e.Map[k].walk(fn)
		}
	}
}

// unknownValue is the sentinel for attribute values that are only known
// after the referenced resource has been applied (provider-assigned
// outputs of a resource being created this pass). It never compares equal
// to a stored value, so a diff against it always yields a change.
type unknownValue struct{}

// Unknown is the single unknown-value sentinel.
var Unknown = unknownValue{}

// MarshalJSON renders the sentinel in plan output.
func (unknownValue) MarshalJSON() ([]byte, error) {
	return json.Marshal("(known after apply)")
}

// IsUnknown reports whether v is, or contains, the unknown sentinel.
func IsUnknown(v any) bool {
	switch val := v.(type) {
	case unknownValue:
		return true
	case []any:
		for _, item := range val {
			if IsUnknown(item) {
				return true
			}
		}
	case map[string]any:
		for _, item := range val {
			if IsUnknown(item) {
				return true
			}
		}
	}
	return false
}
