package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schulterklopfer/cyphernodeconf/internal/archive"
	"github.com/schulterklopfer/cyphernodeconf/internal/metrics"
	"github.com/schulterklopfer/cyphernodeconf/internal/schema"
)

const testWorkFactor = 10

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return &Store{
		Path:       filepath.Join(t.TempDir(), "config.7z"),
		WorkFactor: testWorkFactor,
	}
}

func storeExists(t *testing.T, st *Store) bool {
	t.Helper()
	ok, err := st.Exists()
	require.NoError(t, err)
	return ok
}

// writeRaw stores a document as-is, bypassing the session checks.
func writeRaw(t *testing.T, st *Store, password, doc string) {
	t.Helper()
	a := archive.Open(st.Path, password, archive.WithWorkFactor(testWorkFactor))
	defer a.Close()
	require.NoError(t, a.WriteEntry(EntryName, []byte(doc)))
}

func readStored(t *testing.T, st *Store, password string) Document {
	t.Helper()
	a := archive.Open(st.Path, password)
	defer a.Close()
	raw, err := a.ReadEntry(EntryName)
	require.NoError(t, err)
	doc, err := ParseDocument(raw)
	require.NoError(t, err)
	return doc
}

func TestLoad_NewContainer(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	sess, err := st.Load("correct")
	require.NoError(t, err)

	assert.Equal(t, StateReady, sess.State())
	assert.Equal(t, schema.Latest, sess.Version())
	assert.Equal(t, schema.Latest.String(), sess.GetString(VersionField))
	assert.Equal(t, "testnet", sess.GetString("net"))
	assert.False(t, storeExists(t, st), "loading must not create the container")
}

func TestLoad_DirectoryInPlaceOfContainer(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	require.NoError(t, os.Mkdir(st.Path, 0o700))

	_, err := st.Exists()
	require.Error(t, err)

	sess, err := st.Load("correct")
	assert.Error(t, err, "a directory at the path must not be treated as a new configuration")
	assert.Nil(t, sess)
}

func TestLoad_DefaultsOnlyFillAbsentFields(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	st.Defaults = map[string]any{
		"gatekeeper_version": "v0.3.0",
		"bitcoin_prune":      true,
		"xpub":               "tpubDefault",
		"gatekeeper_port":    9999,
		"username":           "satoshi",
	}
	writeRaw(t, st, "correct", `{
		"format_version": "0.2.0",
		"net": "regtest",
		"bitcoin_prune": false,
		"xpub": ""
	}`)

	sess, err := st.Load("correct")
	require.NoError(t, err)

	assert.Equal(t, "v0.3.0", sess.GetString("gatekeeper_version"))
	assert.Equal(t, false, sess.GetBool("bitcoin_prune"), "explicit false must survive")
	assert.Equal(t, "", sess.GetString("xpub"), "explicit empty string must survive")
	port, _ := sess.Get("gatekeeper_port")
	assert.Equal(t, float64(2009), port, "schema defaults are applied before the table")
	assert.Equal(t, "cyphernode", sess.GetString("username"), "schema default is applied before the table")
	assert.Equal(t, "regtest", sess.GetString("net"))
}

func TestLoad_DefaultsCannotUndoConflictRules(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	st.Defaults = map[string]any{"bitcoin_prune_size": 550, "bitcoin_prune": true}
	writeRaw(t, st, "correct", `{"format_version":"0.2.0","features":["lightning"]}`)

	sess, err := st.Load("correct")
	require.NoError(t, err)
	assert.False(t, sess.GetBool("bitcoin_prune"))
	_, present := sess.Get("bitcoin_prune_size")
	assert.False(t, present)
}

func TestLoad_InvalidDefaultsAreRejected(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	st.Defaults = map[string]any{"lightning_nodename": strings.Repeat("n", 40)}

	_, err := st.Load("correct")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields(), "lightning_nodename")
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	sess, err := st.Load("correct")
	require.NoError(t, err)

	require.NoError(t, sess.Set("net", "mainnet"))
	require.NoError(t, sess.Set("features", []string{"tor", "otsclient"}))
	require.NoError(t, sess.Set("gatekeeper_port", "443"))
	require.NoError(t, sess.Set("xpub", "xpub6CUGRUonZSQ4TWtTMmzXdrXDtyPWKiKbERr4d5qkSmh5h17C1TjvMt7DJ9Qve4dRxm91CDv6cNfKsq2mK1rMsJKhtRUPZz7MQtp3y6atC1U"))
	require.NoError(t, sess.Save("correct"))
	assert.Equal(t, StateReady, sess.State())

	saved := sess.Document()
	assert.Equal(t, float64(443), saved["gatekeeper_port"], "save stores the normalized document")

	reloaded, err := st.Load("correct")
	require.NoError(t, err)
	assert.Equal(t, saved, reloaded.Document())
	assert.Equal(t, saved, readStored(t, st, "correct"))
}

func TestSave_IsCanonical(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	sess, err := st.Load("correct")
	require.NoError(t, err)
	require.NoError(t, sess.Save("correct"))

	a := archive.Open(st.Path, "correct")
	defer a.Close()
	raw, err := a.ReadEntry(EntryName)
	require.NoError(t, err)

	want, err := sess.Document().MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, string(want), string(raw))
	assert.True(t, strings.HasPrefix(string(raw), "{\n    \""))
}

func TestLightningPruneScenario(t *testing.T) {
	t.Parallel()

	t.Run("through a session", func(t *testing.T) {
		t.Parallel()

		st := newTestStore(t)
		sess, err := st.Load("correct")
		require.NoError(t, err)
		require.NoError(t, sess.Set("features", []any{"lightning"}))
		require.NoError(t, sess.Set("bitcoin_prune", true))
		require.NoError(t, sess.Set("bitcoin_prune_size", 550))
		require.NoError(t, sess.Save("correct"))

		reloaded, err := st.Load("correct")
		require.NoError(t, err)
		assert.Equal(t, false, reloaded.GetBool("bitcoin_prune"))
		_, present := reloaded.Get("bitcoin_prune_size")
		assert.False(t, present)
	})

	t.Run("stored inconsistent", func(t *testing.T) {
		t.Parallel()

		st := newTestStore(t)
		writeRaw(t, st, "correct", `{"format_version":"0.2.0","features":["lightning"],"bitcoin_prune":true,"bitcoin_prune_size":550}`)

		sess, err := st.Load("correct")
		require.NoError(t, err)
		assert.Equal(t, false, sess.GetBool("bitcoin_prune"))
		_, present := sess.Get("bitcoin_prune_size")
		assert.False(t, present)
	})
}

func TestLoad_WrongPasswordLeavesContainerUntouched(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	sess, err := st.Load("correct")
	require.NoError(t, err)
	require.NoError(t, sess.Set("features", []any{"lightning"}))
	require.NoError(t, sess.Save("correct"))

	before, err := os.ReadFile(st.Path)
	require.NoError(t, err)

	loaded, err := st.Load("wrong")
	assert.Nil(t, loaded)
	assert.ErrorIs(t, err, ErrWrongPassword)
	assert.ErrorIs(t, err, archive.ErrAuthentication)
	assert.NotErrorIs(t, err, ErrCorrupt)

	after, err := os.ReadFile(st.Path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSave_WrongPasswordFailsSession(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	sess, err := st.Load("correct")
	require.NoError(t, err)
	require.NoError(t, sess.Save("correct"))

	before, err := os.ReadFile(st.Path)
	require.NoError(t, err)

	err = sess.Save("wrong")
	assert.ErrorIs(t, err, ErrWrongPassword)
	assert.Equal(t, StateFailed, sess.State())

	after, err := os.ReadFile(st.Path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	assert.ErrorIs(t, sess.Set("net", "mainnet"), ErrInvalidState)
	assert.ErrorIs(t, sess.Save("correct"), ErrInvalidState)
}

func TestLoad_CorruptContainer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(t *testing.T, st *Store)
	}{
		{
			name: "garbage file",
			setup: func(t *testing.T, st *Store) {
				require.NoError(t, os.WriteFile(st.Path, []byte("definitely not a container"), 0o600))
			},
		},
		{
			name: "missing config entry",
			setup: func(t *testing.T, st *Store) {
				a := archive.Open(st.Path, "correct", archive.WithWorkFactor(testWorkFactor))
				defer a.Close()
				require.NoError(t, a.WriteEntry("keys.txt", []byte("000=abc")))
			},
		},
		{
			name: "unparsable json",
			setup: func(t *testing.T, st *Store) {
				writeRaw(t, st, "correct", `{"format_version": "0.2.0",`)
			},
		},
		{
			name: "json array",
			setup: func(t *testing.T, st *Store) {
				writeRaw(t, st, "correct", `["format_version"]`)
			},
		},
		{
			name: "json null",
			setup: func(t *testing.T, st *Store) {
				writeRaw(t, st, "correct", `null`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			st := newTestStore(t)
			tt.setup(t, st)

			sess, err := st.Load("correct")
			assert.Nil(t, sess)
			assert.ErrorIs(t, err, ErrCorrupt)
			assert.NotErrorIs(t, err, ErrWrongPassword)
		})
	}
}

func TestLoad_MigratesPreVersioningDocument(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	st := newTestStore(t)
	st.Metrics = m
	writeRaw(t, st, "correct", `{
		"features": ["tor", "otsclient"],
		"net": "mainnet",
		"xpub": "tpubABC",
		"derivation_path": "0/1/n",
		"gatekeeper_sslcert_cn": "node.example.com",
		"gatekeeper_port": 2010,
		"bitcoin_rpcuser": "alice",
		"bitcoin_prune": true,
		"bitcoin_prune_size": 1000,
		"gatekeeper_version": "v0.1"
	}`)

	sess, err := st.Load("correct")
	require.NoError(t, err)
	assert.Equal(t, schema.V020, sess.Version())

	doc := sess.Document()
	assert.Equal(t, "0.2.0", doc[VersionField])
	assert.Equal(t, "node.example.com", doc["gatekeeper_cns"])
	assert.NotContains(t, doc, "gatekeeper_sslcert_cn")

	expected := map[string]any{
		"features":           []any{"tor", "otsclient"},
		"net":                "mainnet",
		"xpub":               "tpubABC",
		"derivation_path":    "0/1/n",
		"gatekeeper_port":    float64(2010),
		"bitcoin_rpcuser":    "alice",
		"bitcoin_prune":      true,
		"bitcoin_prune_size": float64(1000),
		"gatekeeper_version": "v0.1",
	}
	for key, value := range expected {
		assert.Equal(t, value, doc[key], "field %s must survive migration", key)
	}

	want := `
# HELP cyphernodeconf_migrations_total Configuration documents migrated between format versions
# TYPE cyphernodeconf_migrations_total counter
cyphernodeconf_migrations_total{from="0.1.0",to="0.2.0"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(want), "cyphernodeconf_migrations_total"))
}

func TestLoad_LegacyVersionKey(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	writeRaw(t, st, "correct", `{"__version":"0.1.0","gatekeeper_sslcert_cn":"a.example"}`)

	sess, err := st.Load("correct")
	require.NoError(t, err)
	doc := sess.Document()
	assert.NotContains(t, doc, "__version")
	assert.Equal(t, "0.2.0", doc[VersionField])
	assert.Equal(t, "a.example", doc["gatekeeper_cns"])
}

func TestLoad_UnknownVersion(t *testing.T) {
	t.Parallel()

	for _, doc := range []string{`{"format_version":"9.0.0"}`, `{"format_version":2}`} {
		st := newTestStore(t)
		writeRaw(t, st, "correct", doc)

		sess, err := st.Load("correct")
		assert.Nil(t, sess)
		assert.ErrorIs(t, err, schema.ErrUnknownVersion, doc)
	}
}

func TestLoad_InvalidDocument(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	writeRaw(t, st, "correct", `{"format_version":"0.2.0","net":"signet","gatekeeper_port":"http"}`)

	sess, err := st.Load("correct")
	assert.Nil(t, sess)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, schema.V020, verr.Version)
	assert.Contains(t, verr.Fields(), "net")
	assert.Contains(t, verr.Fields(), "gatekeeper_port")
	assert.Contains(t, err.Error(), "net")
}

func TestLoad_StripsUnknownFields(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	writeRaw(t, st, "correct", `{"format_version":"0.2.0","foo":"bar","bar":1}`)

	sess, err := st.Load("correct")
	require.NoError(t, err)
	require.NoError(t, sess.Save("correct"))

	stored := readStored(t, st, "correct")
	assert.NotContains(t, stored, "foo")
	assert.NotContains(t, stored, "bar")
}

func TestSave_InvalidDocumentIsNotWritten(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	sess, err := st.Load("correct")
	require.NoError(t, err)
	require.NoError(t, sess.Set("gatekeeper_port", "not a number"))

	err = sess.Save("correct")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, StateReady, sess.State(), "validation failures keep the session usable")
	assert.False(t, storeExists(t, st))

	require.NoError(t, sess.Set("gatekeeper_port", 2009))
	require.NoError(t, sess.Save("correct"))
	assert.True(t, storeExists(t, st))
}

func TestSave_EmptyPassword(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	sess, err := st.Load("")
	require.NoError(t, err)

	err = sess.Save("")
	assert.ErrorIs(t, err, archive.ErrEmptyPassword)
	assert.False(t, storeExists(t, st))
}

func TestStore_ChangePassword(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	sess, err := st.Load("old")
	require.NoError(t, err)
	require.NoError(t, sess.Set("net", "regtest"))
	require.NoError(t, sess.Save("old"))

	assert.ErrorIs(t, st.ChangePassword("nope", "new"), ErrWrongPassword)
	require.NoError(t, st.ChangePassword("old", "new"))

	_, err = st.Load("old")
	assert.ErrorIs(t, err, ErrWrongPassword)

	reloaded, err := st.Load("new")
	require.NoError(t, err)
	assert.Equal(t, "regtest", reloaded.GetString("net"))
}

func TestStore_Migrate(t *testing.T) {
	t.Parallel()

	st := &Store{}
	out, err := st.Migrate(Document{"gatekeeper_sslcert_cn": "x"}, schema.V010, schema.V020)
	require.NoError(t, err)
	assert.Equal(t, Document{"gatekeeper_cns": "x", VersionField: "0.2.0"}, out)
}

func TestStore_Import(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	sess, err := st.Import(Document{
		"net":                   "mainnet",
		"gatekeeper_sslcert_cn": "imported.example.com",
		"unknown_field":         "dropped",
	})
	require.NoError(t, err)
	assert.Equal(t, StateReady, sess.State())
	assert.Equal(t, schema.V020, sess.Version())
	assert.Equal(t, "imported.example.com", sess.GetString("gatekeeper_cns"))
	_, present := sess.Get("unknown_field")
	assert.False(t, present)
	assert.NoFileExists(t, st.Path, "import must not write before save")

	require.NoError(t, sess.Save("pw"))
	assert.Equal(t, "mainnet", readStored(t, st, "pw")["net"])
}

func TestStore_ImportInvalid(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	_, err := st.Import(Document{VersionField: "0.2.0", "net": "moonnet"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}
