package testutil

import (
	"strings"

	"github.com/autom8ter/quarry"
	"github.com/autom8ter/quarry/errors"
	"github.com/autom8ter/quarry/internal/util"
	"github.com/tidwall/gjson"
)

// Canonicalizer is a reference quarry.Canonicalizer that normalizes raw json
// filters into filter expression trees. It understands scalar equality,
// comparison operators ($gt, $gte, $lt, $lte, $ne, $in), and $and/$or.
type Canonicalizer struct{}

func (Canonicalizer) Canonicalize(ns string, rawQuery []byte, opts quarry.ParsedOptions) (*quarry.CanonicalQuery, error) {
	if len(rawQuery) == 0 {
		rawQuery = []byte("{}")
	}
	if !gjson.ValidBytes(rawQuery) {
		return nil, errors.New(errors.BadValue, "invalid query: %s", string(rawQuery))
	}
	filter, err := parseFilter(gjson.ParseBytes(rawQuery))
	if err != nil {
		return nil, err
	}
	return quarry.NewCanonicalQuery(ns, rawQuery, filter, opts)
}

// CanonicalizeWithMap canonicalizes with options supplied as a loosely typed
// map, ex: decoded from a cli flag or wire document
func (c Canonicalizer) CanonicalizeWithMap(ns string, rawQuery []byte, options map[string]any) (*quarry.CanonicalQuery, error) {
	var opts quarry.ParsedOptions
	if err := util.Decode(options, &opts); err != nil {
		return nil, errors.Wrap(err, errors.BadValue, "invalid query options: %v", options)
	}
	return c.Canonicalize(ns, rawQuery, opts)
}

var operators = map[string]quarry.FilterOp{
	"$eq":  quarry.FilterOpEq,
	"$ne":  quarry.FilterOpNeq,
	"$gt":  quarry.FilterOpGt,
	"$gte": quarry.FilterOpGte,
	"$lt":  quarry.FilterOpLt,
	"$lte": quarry.FilterOpLte,
	"$in":  quarry.FilterOpIn,
}

func parseFilter(parsed gjson.Result) (*quarry.FilterNode, error) {
	if !parsed.IsObject() {
		return nil, errors.New(errors.BadValue, "filter must be a document: %s", parsed.Raw)
	}
	var (
		children []*quarry.FilterNode
		parseErr error
	)
	parsed.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		switch {
		case name == "$and" || name == "$or":
			op := quarry.FilterOpAnd
			if name == "$or" {
				op = quarry.FilterOpOr
			}
			if !value.IsArray() {
				parseErr = errors.New(errors.BadValue, "%s requires an array", name)
				return false
			}
			node := &quarry.FilterNode{Op: op}
			for _, sub := range value.Array() {
				child, err := parseFilter(sub)
				if err != nil {
					parseErr = err
					return false
				}
				if child != nil {
					node.Children = append(node.Children, child)
				}
			}
			children = append(children, node)
		case strings.HasPrefix(name, "$"):
			parseErr = errors.New(errors.BadValue, "unknown top-level operator: %s", name)
			return false
		case value.IsObject() && hasOperator(value):
			value.ForEach(func(opKey, opVal gjson.Result) bool {
				op, ok := operators[opKey.String()]
				if !ok {
					parseErr = errors.New(errors.BadValue, "unknown operator %s for field %s", opKey.String(), name)
					return false
				}
				children = append(children, &quarry.FilterNode{
					Op:    op,
					Field: name,
					Value: opVal.Value(),
				})
				return true
			})
		default:
			children = append(children, &quarry.FilterNode{
				Op:    quarry.FilterOpEq,
				Field: name,
				Value: value.Value(),
			})
		}
		return parseErr == nil
	})
	if parseErr != nil {
		return nil, parseErr
	}
	switch len(children) {
	case 0:
		return nil, nil
	case 1:
		return children[0], nil
	}
	return &quarry.FilterNode{Op: quarry.FilterOpAnd, Children: children}, nil
}

func hasOperator(value gjson.Result) bool {
	found := false
	value.ForEach(func(key, _ gjson.Result) bool {
		if strings.HasPrefix(key.String(), "$") {
			found = true
		}
		return !found
	})
	return found
}
