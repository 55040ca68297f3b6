package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mitchellh/copystructure"
)

// node is the subset of JSON Schema the normalizer understands. Everything
// else (enum, pattern, ranges, ...) is left to the validator.
type node struct {
	Type                 typeList         `json:"type"`
	Properties           map[string]*node `json:"properties"`
	Items                *node            `json:"items"`
	Default              json.RawMessage  `json:"default"`
	Required             []string         `json:"required"`
	AdditionalProperties *bool            `json:"additionalProperties"`
}

// typeList accepts both "type": "string" and "type": ["string", "null"].
type typeList []string

func (t *typeList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = typeList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("invalid schema type: %s", data)
	}
	*t = many
	return nil
}

func (t typeList) has(name string) bool {
	for _, v := range t {
		if v == name {
			return true
		}
	}
	return false
}

func (n *node) isObject() bool {
	return n.Type.has("object") || (len(n.Type) == 0 && n.Properties != nil)
}

func (n *node) stripsUnknown() bool {
	return n.AdditionalProperties != nil && !*n.AdditionalProperties
}

func parseNode(def []byte) (*node, error) {
	var root node
	if err := json.Unmarshal(def, &root); err != nil {
		return nil, err
	}
	return &root, nil
}

// defaultValue returns a fresh copy of the node's default, if it has one.
func (n *node) defaultValue() (any, bool) {
	if len(n.Default) == 0 {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(n.Default, &v); err != nil {
		return nil, false
	}
	return v, true
}

// normalize strips undeclared properties, fills defaults for absent
// properties and coerces loosely typed scalars, in place where possible. It
// returns the (possibly replaced) value.
func normalize(value any, n *node) any {
	if n == nil {
		return value
	}

	if n.isObject() {
		obj, ok := value.(map[string]any)
		if !ok {
			return value
		}
		if n.stripsUnknown() {
			for key := range obj {
				if _, declared := n.Properties[key]; !declared {
					delete(obj, key)
				}
			}
		}
		for key, child := range n.Properties {
			current, present := obj[key]
			if !present {
				if def, ok := child.defaultValue(); ok {
					obj[key] = def
				}
				continue
			}
			obj[key] = normalize(current, child)
		}
		return obj
	}

	if n.Type.has("array") {
		arr, ok := value.([]any)
		if !ok {
			if value == nil || n.Items == nil {
				return value
			}
			// a lone scalar becomes a one-element array
			arr = []any{value}
		}
		for i := range arr {
			arr[i] = normalize(arr[i], n.Items)
		}
		return arr
	}

	return coerce(value, n.Type)
}

// coerce converts scalars to the declared type when the conversion is
// lossless. Unconvertible values are returned unchanged so the validator
// reports them.
func coerce(value any, types typeList) any {
	if len(types) == 0 || value == nil {
		return value
	}
	if matchesType(value, types) {
		return value
	}

	for _, t := range types {
		switch t {
		case "boolean":
			switch v := value.(type) {
			case string:
				switch strings.TrimSpace(v) {
				case "true", "1":
					return true
				case "false", "0", "":
					return false
				}
			case float64:
				if v == 1 {
					return true
				}
				if v == 0 {
					return false
				}
			}
		case "number", "integer":
			var f float64
			switch v := value.(type) {
			case string:
				parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
				if err != nil || strings.TrimSpace(v) == "" {
					continue
				}
				f = parsed
			case bool:
				if v {
					f = 1
				}
			default:
				continue
			}
			if t == "integer" && f != math.Trunc(f) {
				continue
			}
			return f
		case "string":
			switch v := value.(type) {
			case float64:
				return strconv.FormatFloat(v, 'f', -1, 64)
			case bool:
				return strconv.FormatBool(v)
			}
		}
	}
	return value
}

func matchesType(value any, types typeList) bool {
	for _, t := range types {
		switch t {
		case "string":
			if _, ok := value.(string); ok {
				return true
			}
		case "boolean":
			if _, ok := value.(bool); ok {
				return true
			}
		case "number":
			if _, ok := value.(float64); ok {
				return true
			}
		case "integer":
			if f, ok := value.(float64); ok && f == math.Trunc(f) {
				return true
			}
		case "null":
			if value == nil {
				return true
			}
		}
	}
	return false
}

// DeepCopy returns a copy of a JSON-like value that shares no maps or slices
// with the original. []string and Go integers are converted to the shapes
// encoding/json decodes into ([]any, float64).
func DeepCopy(value any) any {
	if value == nil {
		return nil
	}
	copied, err := copystructure.Copy(value)
	if err != nil {
		// only kinds JSON cannot hold (channels, funcs) fail to copy
		return value
	}
	return jsonShapes(copied)
}

// jsonShapes rewrites an owned value in place into encoding/json shapes.
func jsonShapes(value any) any {
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			v[key] = jsonShapes(child)
		}
		return v
	case []any:
		for i, child := range v {
			v[i] = jsonShapes(child)
		}
		return v
	case []string:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = child
		}
		return out
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return v
	}
}
