package direct

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Document is a JSON value passed through to the API without interpretation.
// Key order and number formatting are preserved byte for byte.
type Document json.RawMessage

var errInvalidDocument = errors.New("document is not valid JSON")

// ParseDocument validates data as a single JSON value.
func ParseDocument(data []byte) (Document, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || !json.Valid(data) {
		return nil, errInvalidDocument
	}
	return Document(bytes.Clone(data)), nil
}

// NewDocument encodes v as a Document.
func NewDocument(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Document(data), nil
}

// MustDocument is NewDocument for values that always encode.
func MustDocument(v any) Document {
	d, err := NewDocument(v)
	if err != nil {
		panic(err)
	}
	return d
}

// IsNull reports whether the document is empty or the JSON literal null.
func (d Document) IsNull() bool {
	trimmed := bytes.TrimSpace(d)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Decode unmarshals the document into v.
func (d Document) Decode(v any) error {
	return json.Unmarshal(d, v)
}

func (d Document) String() string {
	return string(d)
}

func (d Document) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	if d == nil {
		return errors.New("direct.Document: UnmarshalJSON on nil pointer")
	}
	*d = append((*d)[0:0], data...)
	return nil
}
