package quarry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/autom8ter/quarry/errors"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

// FilterOp is a comparison operator within a filter expression tree
type FilterOp string

const (
	FilterOpEq  FilterOp = "eq"
	FilterOpNeq FilterOp = "neq"
	FilterOpGt  FilterOp = "gt"
	FilterOpGte FilterOp = "gte"
	FilterOpLt  FilterOp = "lt"
	FilterOpLte FilterOp = "lte"
	FilterOpIn  FilterOp = "in"
	FilterOpAnd FilterOp = "and"
	FilterOpOr  FilterOp = "or"
)

// FilterNode is a node of a normalized filter expression tree. Leaves carry a
// field, operator and value. And/or nodes carry children only.
type FilterNode struct {
	Op       FilterOp      `json:"op"`
	Field    string        `json:"field,omitempty"`
	Value    any           `json:"value,omitempty"`
	Children []*FilterNode `json:"children,omitempty"`
}

// IsEmpty returns true if the filter matches every document
func (f *FilterNode) IsEmpty() bool {
	return f == nil || (f.Op == "" && len(f.Children) == 0)
}

// Fields returns the distinct set of fields referenced by the filter tree
func (f *FilterNode) Fields() []string {
	if f.IsEmpty() {
		return nil
	}
	var fields []string
	if f.Field != "" {
		fields = append(fields, f.Field)
	}
	for _, child := range f.Children {
		fields = append(fields, child.Fields()...)
	}
	return lo.Uniq(fields)
}

func (f *FilterNode) signature() string {
	if f.IsEmpty() {
		return ""
	}
	if len(f.Children) > 0 {
		var parts []string
		for _, child := range f.Children {
			parts = append(parts, child.signature())
		}
		sort.Strings(parts)
		return fmt.Sprintf("%s(%s)", f.Op, strings.Join(parts, ","))
	}
	return fmt.Sprintf("%s:%s", f.Field, f.Op)
}

// ParsedOptions are the parsed options of a canonical query
type ParsedOptions struct {
	// Sort is the requested sort document (empty for no sort)
	Sort json.RawMessage `json:"sort,omitempty"`
	// Projection is the requested projection document
	Projection json.RawMessage `json:"projection,omitempty"`
	// Hint is the requested index hint
	Hint json.RawMessage `json:"hint,omitempty"`
	// NToReturn is the requested batch size (0 for unbounded)
	NToReturn int `json:"nToReturn,omitempty"`
	// Explain requests plan information rather than documents
	Explain bool `json:"explain,omitempty"`
	// ShowRecordID requests the storage location of each document
	ShowRecordID bool `json:"showRecordId,omitempty"`
	// Tailable requests a cursor that blocks at end of data rather than terminating
	Tailable bool `json:"tailable,omitempty"`
	// SimpleID is derived from the filter: a single _id predicate bound to a scalar
	// or to an object whose first field name does not start with '$'
	SimpleID bool `json:"simpleId,omitempty"`
}

// HasSort returns true if a non-empty sort was requested
func (p ParsedOptions) HasSort() bool {
	if len(p.Sort) == 0 {
		return false
	}
	parsed := gjson.ParseBytes(p.Sort)
	if !parsed.IsObject() {
		return false
	}
	return len(parsed.Map()) > 0
}

// IsNaturalSort returns true if the requested sort is exactly {$natural: 1}
func (p ParsedOptions) IsNaturalSort() bool {
	if !p.HasSort() {
		return false
	}
	m := gjson.ParseBytes(p.Sort).Map()
	if len(m) != 1 {
		return false
	}
	natural, ok := m["$natural"]
	return ok && natural.Type == gjson.Number && natural.Int() == 1
}

// CanonicalQuery is a normalized, parsed query. It is immutable once constructed -
// on success its ownership transfers into the runner returned by the dispatcher.
type CanonicalQuery struct {
	ns     string
	raw    []byte
	filter *FilterNode
	parsed ParsedOptions
	shape  string
}

// NewCanonicalQuery creates a canonical query over the given namespace from the raw
// filter document, its normalized expression tree, and the parsed options
func NewCanonicalQuery(ns string, rawFilter []byte, filter *FilterNode, parsed ParsedOptions) (*CanonicalQuery, error) {
	if ns == "" {
		return nil, errors.New(errors.BadValue, "empty namespace")
	}
	if len(rawFilter) == 0 {
		rawFilter = []byte("{}")
	}
	if !gjson.ValidBytes(rawFilter) {
		return nil, errors.New(errors.BadValue, "invalid query filter: %s", string(rawFilter))
	}
	parsed.SimpleID = IsSimpleIDQuery(rawFilter)
	cq := &CanonicalQuery{
		ns:     ns,
		raw:    rawFilter,
		filter: filter,
		parsed: parsed,
	}
	cq.shape = cq.computeShape()
	return cq, nil
}

// Namespace returns the target namespace of the query
func (c *CanonicalQuery) Namespace() string {
	return c.ns
}

// Raw returns the original filter document
func (c *CanonicalQuery) Raw() []byte {
	return c.raw
}

// Filter returns the normalized filter expression tree (nil for an empty filter)
func (c *CanonicalQuery) Filter() *FilterNode {
	return c.filter
}

// Parsed returns the parsed query options
func (c *CanonicalQuery) Parsed() ParsedOptions {
	return c.parsed
}

// Shape returns the plan cache key for the query: its filter structure with
// values stripped, plus sort and projection
func (c *CanonicalQuery) Shape() string {
	return c.shape
}

// String renders the query for diagnostics
func (c *CanonicalQuery) String() string {
	var b strings.Builder
	b.WriteString("ns=")
	b.WriteString(c.ns)
	b.WriteString(" filter=")
	b.Write(c.raw)
	if c.parsed.HasSort() {
		b.WriteString(" sort=")
		b.Write(c.parsed.Sort)
	}
	if len(c.parsed.Projection) > 0 {
		b.WriteString(" proj=")
		b.Write(c.parsed.Projection)
	}
	return b.String()
}

func (c *CanonicalQuery) computeShape() string {
	var b strings.Builder
	b.WriteString(c.filter.signature())
	if c.parsed.HasSort() {
		b.WriteString("|sort:")
		b.Write(c.parsed.Sort)
	}
	if len(c.parsed.Projection) > 0 {
		b.WriteString("|proj:")
		b.Write(c.parsed.Projection)
	}
	return b.String()
}

// IsSimpleIDQuery returns true if the raw filter has exactly one predicate, on _id,
// bound to a scalar or to an object whose first field name does not start with '$'
func IsSimpleIDQuery(raw []byte) bool {
	if !gjson.ValidBytes(raw) {
		return false
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() {
		return false
	}
	var (
		count int
		name  string
		elt   gjson.Result
	)
	parsed.ForEach(func(key, value gjson.Result) bool {
		count++
		name = key.String()
		elt = value
		return count < 2
	})
	if count != 1 || name != "_id" {
		return false
	}
	if elt.IsArray() {
		return false
	}
	if elt.IsObject() {
		var first string
		elt.ForEach(func(key, value gjson.Result) bool {
			first = key.String()
			return false
		})
		return !strings.HasPrefix(first, "$")
	}
	return true
}
