package quarry

import (
	"fmt"
	"strings"

	"github.com/autom8ter/quarry/internal/util"
	"github.com/spf13/cast"
)

type minKey struct{}

type maxKey struct{}

func (minKey) String() string { return "MinKey" }

func (maxKey) String() string { return "MaxKey" }

var (
	// MinKey sorts before every other value
	MinKey any = minKey{}
	// MaxKey sorts after every other value
	MaxKey any = maxKey{}
)

// CompareValues orders two key values. MinKey < null < numbers < strings < booleans
// < everything else < MaxKey; within a type rank values compare naturally.
func CompareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return sign(ra - rb)
	}
	switch ra {
	case rankNumber:
		fa, fb := cast.ToFloat64(a), cast.ToFloat64(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case rankString:
		return strings.Compare(cast.ToString(a), cast.ToString(b))
	case rankBool:
		ba, bb := cast.ToBool(a), cast.ToBool(b)
		switch {
		case ba == bb:
			return 0
		case bb:
			return -1
		}
		return 1
	case rankOther:
		return strings.Compare(util.JSONString(a), util.JSONString(b))
	}
	return 0
}

const (
	rankMinKey = iota
	rankNull
	rankNumber
	rankString
	rankBool
	rankOther
	rankMaxKey
)

func typeRank(v any) int {
	switch v.(type) {
	case minKey:
		return rankMinKey
	case nil:
		return rankNull
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return rankNumber
	case string:
		return rankString
	case bool:
		return rankBool
	case maxKey:
		return rankMaxKey
	default:
		return rankOther
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// Interval is a single range of values over one index field
type Interval struct {
	Start          any  `json:"start"`
	End            any  `json:"end"`
	StartInclusive bool `json:"startInclusive"`
	EndInclusive   bool `json:"endInclusive"`
}

// PointInterval returns the closed interval [v, v]
func PointInterval(v any) Interval {
	return Interval{Start: v, End: v, StartInclusive: true, EndInclusive: true}
}

// RangeInterval returns an interval between start and end with the given inclusivity
func RangeInterval(start, end any, startInclusive, endInclusive bool) Interval {
	return Interval{Start: start, End: end, StartInclusive: startInclusive, EndInclusive: endInclusive}
}

// AllValues returns the full ascending range [MinKey, MaxKey]
func AllValues() Interval {
	return Interval{Start: MinKey, End: MaxKey, StartInclusive: true, EndInclusive: true}
}

// AllValuesReverse returns the full descending range [MaxKey, MinKey]
func AllValuesReverse() Interval {
	return Interval{Start: MaxKey, End: MinKey, StartInclusive: true, EndInclusive: true}
}

// IsPoint returns true if the interval admits exactly one value
func (i Interval) IsPoint() bool {
	return i.StartInclusive && i.EndInclusive && CompareValues(i.Start, i.End) == 0
}

// IsAllValues returns true if the interval is exactly the full ascending range
func (i Interval) IsAllValues() bool {
	_, minOK := i.Start.(minKey)
	_, maxOK := i.End.(maxKey)
	return minOK && maxOK && i.StartInclusive && i.EndInclusive
}

// IsAllValuesReverse returns true if the interval is exactly the full descending range
func (i Interval) IsAllValuesReverse() bool {
	_, maxOK := i.Start.(maxKey)
	_, minOK := i.End.(minKey)
	return maxOK && minOK && i.StartInclusive && i.EndInclusive
}

func (i Interval) String() string {
	open, close := "(", ")"
	if i.StartInclusive {
		open = "["
	}
	if i.EndInclusive {
		close = "]"
	}
	return fmt.Sprintf("%s%v, %v%s", open, i.Start, i.End, close)
}

// OrderedIntervalList is a disjoint, ordered sequence of intervals over one index field
type OrderedIntervalList struct {
	Field     string     `json:"field"`
	Intervals []Interval `json:"intervals"`
}

// IndexBounds describes, per key-pattern field, what key ranges an index scan will
// traverse. SimpleRange marks bounds supplied verbatim by the caller (min/max),
// which bypass normal analysis.
type IndexBounds struct {
	Fields      []OrderedIntervalList `json:"fields"`
	SimpleRange bool                  `json:"simpleRange"`
}

func (b IndexBounds) String() string {
	var parts []string
	for _, oil := range b.Fields {
		var ivs []string
		for _, iv := range oil.Intervals {
			ivs = append(ivs, iv.String())
		}
		parts = append(parts, fmt.Sprintf("%s: %s", oil.Field, strings.Join(ivs, " ∪ ")))
	}
	return strings.Join(parts, ", ")
}

// AllValuesBounds returns bounds covering every value of every field in the pattern
func AllValuesBounds(pattern KeyPattern) IndexBounds {
	var bounds IndexBounds
	for _, f := range pattern {
		bounds.Fields = append(bounds.Fields, OrderedIntervalList{
			Field:     f.Field,
			Intervals: []Interval{AllValues()},
		})
	}
	return bounds
}

// IndexKey is an ordered tuple of key values, one per key-pattern field
type IndexKey []any

func (k IndexKey) String() string {
	var parts []string
	for _, v := range k {
		parts = append(parts, fmt.Sprintf("%v", v))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
