package quarry

import (
	"strings"

	"github.com/autom8ter/quarry/errors"
	"github.com/autom8ter/quarry/internal/util"
	"github.com/spf13/cast"
)

// KeyField is a single field of an index key pattern - order is 1 for ascending, -1 for descending
type KeyField struct {
	Field string `json:"field" validate:"required"`
	Order int    `json:"order" validate:"oneof=-1 1"`
}

// KeyPattern is an ordered list of fields an index is keyed on
type KeyPattern []KeyField

// Fields returns the pattern's field names in order
func (k KeyPattern) Fields() []string {
	var fields []string
	for _, f := range k {
		fields = append(fields, f.Field)
	}
	return fields
}

// PositionOf returns the zero-based position of the given field in the pattern, or -1
func (k KeyPattern) PositionOf(field string) int {
	for i, f := range k {
		if f.Field == field {
			return i
		}
	}
	return -1
}

// Equal compares two key patterns by canonical comparison: same fields, same orders
func (k KeyPattern) Equal(other KeyPattern) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i].Field != other[i].Field || k[i].Order != other[i].Order {
			return false
		}
	}
	return true
}

// String renders the pattern as a json-ish document, ex: {a:1,b:-1}
func (k KeyPattern) String() string {
	var b strings.Builder
	b.WriteString("{")
	for i, f := range k {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(f.Field)
		b.WriteString(":")
		b.WriteString(cast.ToString(f.Order))
	}
	b.WriteString("}")
	return b.String()
}

// IndexPlugin identifies the access method behind an index. The empty plugin is a
// plain b-tree; anything else is a special index
type IndexPlugin string

const (
	IndexPluginBTree  IndexPlugin = ""
	IndexPluginText   IndexPlugin = "text"
	IndexPluginGeo    IndexPlugin = "geo"
	IndexPluginHashed IndexPlugin = "hashed"
)

// IndexEntry is a snapshot of an index descriptor taken from the collection's
// catalog at dispatch time
type IndexEntry struct {
	// KeyPattern is the ordered (field, direction) list the index is keyed on
	KeyPattern KeyPattern `json:"keyPattern" validate:"required,min=1,dive"`
	// Multikey indicates the index has at least one array-valued key
	Multikey bool `json:"multikey"`
	// Sparse indicates the index skips documents missing its fields
	Sparse bool `json:"sparse"`
	// Name is the index's unique name in the collection
	Name string `json:"name" validate:"required,min=1"`
	// Plugin is the index's access method - empty for a plain b-tree
	Plugin IndexPlugin `json:"plugin"`
}

// Validate validates the index entry
func (i IndexEntry) Validate() error {
	return errors.Wrap(util.ValidateStruct(&i), errors.Validation, "")
}
