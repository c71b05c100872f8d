package quarry

import (
	"encoding/json"

	"github.com/autom8ter/quarry/errors"
	"github.com/nqd/flat"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Document is a json document produced by a runner. It is backed by raw json
// and only materializes values on access - runners hand documents through
// without decoding them.
type Document struct {
	raw string
}

// NewDocument returns an empty document
func NewDocument() *Document {
	return &Document{raw: "{}"}
}

// NewDocumentFromBytes parses a document from raw json. Only json objects are
// documents - arrays and scalars are rejected.
func NewDocumentFromBytes(bits []byte) (*Document, error) {
	if !gjson.ValidBytes(bits) {
		return nil, errors.New(errors.Validation, "invalid json: %s", string(bits))
	}
	parsed := gjson.ParseBytes(bits)
	if !parsed.IsObject() {
		return nil, errors.New(errors.Validation, "document must be a json object: %s", string(bits))
	}
	return &Document{raw: parsed.Raw}, nil
}

// NewDocumentFrom encodes a json-compatible value into a document
func NewDocumentFrom(value any) (*Document, error) {
	bits, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "value is not json compatible: %T", value)
	}
	return NewDocumentFromBytes(bits)
}

// MarshalJSON satisfies the json Marshaler interface
func (d *Document) MarshalJSON() ([]byte, error) {
	return []byte(d.raw), nil
}

// UnmarshalJSON satisfies the json Unmarshaler interface
func (d *Document) UnmarshalJSON(bits []byte) error {
	parsed, err := NewDocumentFromBytes(bits)
	if err != nil {
		return err
	}
	d.raw = parsed.raw
	return nil
}

// String returns the document as a json string
func (d *Document) String() string {
	return d.raw
}

// Bytes returns the document as json bytes
func (d *Document) Bytes() []byte {
	return []byte(d.raw)
}

// Clone returns an independent copy of the document
func (d *Document) Clone() *Document {
	return &Document{raw: d.raw}
}

// Get returns a field value. Dot notation is supported.
func (d *Document) Get(field string) any {
	return gjson.Get(d.raw, field).Value()
}

// GetString returns a field as a string
func (d *Document) GetString(field string) string {
	return gjson.Get(d.raw, field).String()
}

// GetFloat returns a field as a float
func (d *Document) GetFloat(field string) float64 {
	return gjson.Get(d.raw, field).Float()
}

// GetBool returns a field as a bool
func (d *Document) GetBool(field string) bool {
	return gjson.Get(d.raw, field).Bool()
}

// Exists returns true if the field is present
func (d *Document) Exists(field string) bool {
	return gjson.Get(d.raw, field).Exists()
}

// Set sets a field value. Dot notation is supported.
func (d *Document) Set(field string, value any) error {
	raw, err := sjson.Set(d.raw, field, value)
	if err != nil {
		return errors.Wrap(err, errors.Validation, "failed to set %s", field)
	}
	d.raw = raw
	return nil
}

// Del removes a field
func (d *Document) Del(field string) error {
	raw, err := sjson.Delete(d.raw, field)
	if err != nil {
		return errors.Wrap(err, errors.Validation, "failed to delete %s", field)
	}
	d.raw = raw
	return nil
}

// Flatten returns the document as a map keyed by dot-notation paths, the form
// index key extraction consumes
func (d *Document) Flatten() (map[string]any, error) {
	var value map[string]any
	if err := json.Unmarshal([]byte(d.raw), &value); err != nil {
		return nil, errors.Wrap(err, errors.Validation, "")
	}
	return flat.Flatten(value, nil)
}
