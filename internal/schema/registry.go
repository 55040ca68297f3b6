package schema

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var embedded embed.FS

// FieldError describes one schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Result is the outcome of Validate.
type Result struct {
	Valid bool
	// Document is the normalized copy of the input: undeclared fields
	// stripped, defaults filled, loose scalars coerced.
	Document map[string]any
	Errors   []FieldError
}

type compiled struct {
	raw    []byte
	root   *node
	schema *gojsonschema.Schema
}

// Registry holds one compiled schema per format version.
type Registry struct {
	mu      sync.RWMutex
	schemas map[Version]*compiled
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[Version]*compiled)}
}

// Register compiles def as the schema for v. Registering the same definition
// twice is a no-op; registering a different one for an existing version, or
// any definition for an unknown version, fails.
func (r *Registry) Register(v Version, def []byte) error {
	if v.Index() < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownVersion, v)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.schemas[v]; ok {
		if bytes.Equal(existing.raw, def) {
			return nil
		}
		return fmt.Errorf("schema for version %s is already registered", v)
	}

	root, err := parseNode(def)
	if err != nil {
		return fmt.Errorf("failed to parse schema %s: %w", v, err)
	}
	if !root.isObject() {
		return fmt.Errorf("schema %s must describe an object", v)
	}
	if _, ok := root.Properties["format_version"]; !ok {
		return fmt.Errorf("schema %s must declare format_version", v)
	}
	compiledSchema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(def))
	if err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", v, err)
	}

	r.schemas[v] = &compiled{
		raw:    bytes.Clone(def),
		root:   root,
		schema: compiledSchema,
	}
	return nil
}

// Has reports whether a schema is registered for v.
func (r *Registry) Has(v Version) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.schemas[v]
	return ok
}

// Versions returns the registered versions, oldest first.
func (r *Registry) Versions() []Version {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Version, 0, len(r.schemas))
	for v := range r.schemas {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Latest returns the newest registered version.
func (r *Registry) Latest() (Version, error) {
	versions := r.Versions()
	if len(versions) == 0 {
		return "", fmt.Errorf("%w: registry is empty", ErrUnknownVersion)
	}
	return versions[len(versions)-1], nil
}

// Fields returns the top-level field names declared by the schema for v.
func (r *Registry) Fields(v Version) ([]string, error) {
	c, err := r.lookup(v)
	if err != nil {
		return nil, err
	}
	fields := make([]string, 0, len(c.root.Properties))
	for name := range c.root.Properties {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields, nil
}

// Validate normalizes a copy of doc against the schema for v and validates
// the result. doc itself is not modified. The only error returned is
// ErrUnknownVersion; schema violations are reported in the Result.
func (r *Registry) Validate(v Version, doc map[string]any) (*Result, error) {
	c, err := r.lookup(v)
	if err != nil {
		return nil, err
	}

	normalized, _ := DeepCopy(doc).(map[string]any)
	if normalized == nil {
		normalized = make(map[string]any)
	}
	normalize(normalized, c.root)

	res, err := c.schema.Validate(gojsonschema.NewGoLoader(normalized))
	if err != nil {
		return &Result{
			Document: normalized,
			Errors:   []FieldError{{Field: "(root)", Type: "invalid_document", Message: err.Error()}},
		}, nil
	}

	result := &Result{Valid: res.Valid(), Document: normalized}
	for _, desc := range res.Errors() {
		result.Errors = append(result.Errors, FieldError{
			Field:   fieldName(desc),
			Type:    desc.Type(),
			Message: desc.Description(),
		})
	}
	return result, nil
}

// fieldName points required-property errors at the missing property instead
// of its parent object.
func fieldName(desc gojsonschema.ResultError) string {
	field := desc.Field()
	if desc.Type() != "required" {
		return field
	}
	property, ok := desc.Details()["property"].(string)
	if !ok {
		return field
	}
	if field == "(root)" {
		return property
	}
	return field + "." + property
}

func (r *Registry) lookup(v Version) (*compiled, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.schemas[v]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVersion, v)
	}
	return c, nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	defaultErr      error
)

// Default returns the process-wide registry holding every embedded schema.
// It panics if an embedded schema is broken, which is a build defect.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry, defaultErr = loadEmbedded()
	})
	if defaultErr != nil {
		panic("schema: " + defaultErr.Error())
	}
	return defaultRegistry
}

func loadEmbedded() (*Registry, error) {
	r := NewRegistry()
	var errs []error
	for _, v := range knownVersions {
		def, err := embedded.ReadFile("schemas/config-v" + string(v) + ".json")
		if err != nil {
			errs = append(errs, fmt.Errorf("missing schema for %s: %w", v, err))
			continue
		}
		if err := r.Register(v, def); err != nil {
			errs = append(errs, err)
		}
	}
	return r, errors.Join(errs...)
}
