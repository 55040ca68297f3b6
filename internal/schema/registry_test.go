package schema

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_RegistersEveryKnownVersion(t *testing.T) {
	t.Parallel()

	r := Default()
	assert.Equal(t, Known(), r.Versions())

	latest, err := r.Latest()
	require.NoError(t, err)
	assert.Equal(t, Latest, latest)
	assert.Same(t, r, Default())
}

func TestRegister_RejectsUnknownVersion(t *testing.T) {
	t.Parallel()

	err := NewRegistry().Register(Version("9.9.9"), []byte(`{"type":"object","properties":{"format_version":{"type":"string"}}}`))
	assert.ErrorIs(t, err, ErrUnknownVersion)
}

func TestRegister_IsIdempotent(t *testing.T) {
	t.Parallel()

	def, err := os.ReadFile("schemas/config-v0.2.0.json")
	require.NoError(t, err)

	r := NewRegistry()
	require.NoError(t, r.Register(V020, def))
	require.NoError(t, r.Register(V020, def))
	assert.Equal(t, []Version{V020}, r.Versions())

	other := []byte(`{"type":"object","properties":{"format_version":{"type":"string"}}}`)
	assert.Error(t, r.Register(V020, other), "conflicting redefinition must fail")
}

func TestRegister_RejectsMalformedSchemas(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		def  string
	}{
		{"not json", `{`},
		{"not an object schema", `{"type":"string"}`},
		{"no format_version", `{"type":"object","properties":{"net":{"type":"string"}}}`},
		{"uncompilable", `{"type":"object","properties":{"format_version":{"type":"string","pattern":"("}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewRegistry()
			assert.Error(t, r.Register(V010, []byte(tt.def)))
			assert.False(t, r.Has(V010))
		})
	}
}

func TestValidate_UnknownVersion(t *testing.T) {
	t.Parallel()

	res, err := NewRegistry().Validate(V020, map[string]any{})
	assert.ErrorIs(t, err, ErrUnknownVersion)
	assert.Nil(t, res)

	_, err = Default().Validate(Version("0.0.1"), map[string]any{})
	assert.ErrorIs(t, err, ErrUnknownVersion)
}

func TestValidate_FillsDefaultsOnly(t *testing.T) {
	t.Parallel()

	doc := map[string]any{
		"format_version":     "0.2.0",
		"net":                "mainnet",
		"features":           []any{"lightning"},
		"bitcoin_prune":      false,
		"gatekeeper_port":    float64(443),
		"gatekeeper_keys":    map[string]any{"configEntries": []any{}, "clientInformation": []any{}},
		"lightning_nodename": "satoshi",
	}

	res, err := Default().Validate(V020, doc)
	require.NoError(t, err)
	require.True(t, res.Valid, "errors: %v", res.Errors)

	for key, value := range doc {
		assert.Equal(t, value, res.Document[key], "field %s must be unchanged", key)
	}
	assert.Equal(t, "0/n", res.Document["derivation_path"])
	assert.Equal(t, true, res.Document["enablehelp"])
	assert.Equal(t, "c-lightning", res.Document["lightning_implementation"])
	assert.NotContains(t, res.Document, "bitcoin_prune_size", "no schema default for prune size")
	assert.NotContains(t, res.Document, "gatekeeper_version", "env-driven fields have no schema default")
}

func TestValidate_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	doc := map[string]any{"format_version": "0.2.0", "foo": "bar"}
	_, err := Default().Validate(V020, doc)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"format_version": "0.2.0", "foo": "bar"}, doc)
}

func TestValidate_StripsUnknownFields(t *testing.T) {
	t.Parallel()

	for _, v := range Known() {
		t.Run(string(v), func(t *testing.T) {
			t.Parallel()

			doc := map[string]any{
				"format_version": string(v),
				"foo":            "bar",
				"bar":            "foo",
				"gatekeeper_keys": map[string]any{
					"configEntries":     []any{},
					"clientInformation": []any{},
					"extra":             true,
				},
			}
			res, err := Default().Validate(v, doc)
			require.NoError(t, err)

			fields, err := Default().Fields(v)
			require.NoError(t, err)
			declared := make(map[string]bool)
			for _, f := range fields {
				declared[f] = true
			}
			for key := range res.Document {
				assert.True(t, declared[key], "undeclared key %s survived", key)
			}
			assert.NotContains(t, res.Document, "foo")
			assert.NotContains(t, res.Document["gatekeeper_keys"], "extra")
		})
	}
}

func TestValidate_CoercesLooseTypes(t *testing.T) {
	t.Parallel()

	doc := map[string]any{
		"format_version":      "0.2.0",
		"bitcoin_prune":       "true",
		"devmode":             "0",
		"bitcoin_prune_size":  "550",
		"gatekeeper_port":     "2009",
		"bitcoin_rpcpassword": float64(1234),
		"installer_cleanup":   float64(1),
		"features":            "tor",
	}

	res, err := Default().Validate(V020, doc)
	require.NoError(t, err)
	require.True(t, res.Valid, "errors: %v", res.Errors)

	assert.Equal(t, true, res.Document["bitcoin_prune"])
	assert.Equal(t, false, res.Document["devmode"])
	assert.Equal(t, float64(550), res.Document["bitcoin_prune_size"])
	assert.Equal(t, float64(2009), res.Document["gatekeeper_port"])
	assert.Equal(t, "1234", res.Document["bitcoin_rpcpassword"])
	assert.Equal(t, true, res.Document["installer_cleanup"])
	assert.Equal(t, []any{"tor"}, res.Document["features"])
}

func TestValidate_ReportsViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		doc       map[string]any
		wantField string
	}{
		{
			name:      "missing format_version",
			doc:       map[string]any{},
			wantField: "format_version",
		},
		{
			name:      "uncoercible boolean",
			doc:       map[string]any{"format_version": "0.2.0", "bitcoin_prune": "maybe"},
			wantField: "bitcoin_prune",
		},
		{
			name:      "fractional integer",
			doc:       map[string]any{"format_version": "0.2.0", "gatekeeper_port": "20.5"},
			wantField: "gatekeeper_port",
		},
		{
			name:      "enum",
			doc:       map[string]any{"format_version": "0.2.0", "net": "signet"},
			wantField: "net",
		},
		{
			name:      "prune size below minimum",
			doc:       map[string]any{"format_version": "0.2.0", "bitcoin_prune_size": float64(10)},
			wantField: "bitcoin_prune_size",
		},
		{
			name:      "wrong format_version for schema",
			doc:       map[string]any{"format_version": "0.1.0"},
			wantField: "format_version",
		},
		{
			name:      "node name too long",
			doc:       map[string]any{"format_version": "0.2.0", "lightning_nodename": "abcdefghijklmnopqrstuvwxyz0123456789"},
			wantField: "lightning_nodename",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res, err := Default().Validate(V020, tt.doc)
			require.NoError(t, err)
			assert.False(t, res.Valid)
			require.NotEmpty(t, res.Errors)

			var fields []string
			for _, e := range res.Errors {
				fields = append(fields, e.Field)
				assert.NotEmpty(t, e.Message)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestFields(t *testing.T) {
	t.Parallel()

	v010, err := Default().Fields(V010)
	require.NoError(t, err)
	v020, err := Default().Fields(V020)
	require.NoError(t, err)

	assert.Contains(t, v010, "gatekeeper_sslcert_cn")
	assert.NotContains(t, v020, "gatekeeper_sslcert_cn")
	assert.Contains(t, v020, "gatekeeper_cns")
	assert.Contains(t, v020, "lightning_implementation")

	_, err = Default().Fields(Version("1.0.0"))
	assert.ErrorIs(t, err, ErrUnknownVersion)
}
