package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/schulterklopfer/cyphernodeconf/internal/schema"
)

// Document is a configuration document as decoded from JSON.
type Document map[string]any

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	if d == nil {
		return Document{}
	}
	out, _ := schema.DeepCopy(map[string]any(d)).(map[string]any)
	return out
}

// Keys returns the document's field names in sorted order.
func (d Document) Keys() []string {
	keys := make([]string, 0, len(d))
	for key := range d {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MarshalCanonical encodes d as indented JSON with sorted keys and without
// HTML escaping. Equal documents always encode to identical bytes.
func (d Document) MarshalCanonical() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(map[string]any(d)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ParseDocument decodes a JSON object. Anything that is not an object fails.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document is not a JSON object")
	}
	return doc, nil
}
