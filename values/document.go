package values

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Document is an immutable JSON values document addressed by dotted
// paths. Mutations return a new Document, leaving the receiver intact.
type Document []byte

// NewDocument wraps raw JSON bytes. Nil or empty input yields an empty
// object document.
func NewDocument(data []byte) Document {
	if len(data) == 0 {
		return Document("{}")
	}
	return Document(data)
}

// FromMap builds a document from a nested value map.
func FromMap(data map[string]any) (Document, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode values document: %w", err)
	}
	return Document(raw), nil
}

// Valid reports whether the document is well-formed JSON.
func (d Document) Valid() bool {
	return gjson.ValidBytes(d)
}

// Get returns the value at path, or nil when absent.
func (d Document) Get(path string) any {
	res := gjson.GetBytes(d, path)
	if !res.Exists() {
		return nil
	}
	return res.Value()
}

// Has reports whether path exists in the document.
func (d Document) Has(path string) bool {
	return gjson.GetBytes(d, path).Exists()
}

// Set returns a new document with path set to value.
func (d Document) Set(path string, value any) (Document, error) {
	out, err := sjson.SetBytes(d, path, value)
	if err != nil {
		return nil, fmt.Errorf("set %s: %w", path, err)
	}
	return Document(out), nil
}

// Delete returns a new document with path removed. Deleting an absent
// path returns the document unchanged.
func (d Document) Delete(path string) (Document, error) {
	out, err := sjson.DeleteBytes(d, path)
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w", path, err)
	}
	return Document(out), nil
}

// Map returns the document flattened to dotted keys.
func (d Document) Map() (map[string]any, error) {
	nested, err := d.Nested()
	if err != nil {
		return nil, err
	}
	return Flatten(nested), nil
}

// Nested returns the document decoded as a nested value map.
func (d Document) Nested() (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(d, &out); err != nil {
		return nil, fmt.Errorf("decode values document: %w", err)
	}
	return out, nil
}

// String returns the raw JSON.
func (d Document) String() string {
	return string(d)
}
