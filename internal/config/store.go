package config

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/schulterklopfer/cyphernodeconf/internal/archive"
	"github.com/schulterklopfer/cyphernodeconf/internal/logging"
	"github.com/schulterklopfer/cyphernodeconf/internal/metrics"
	"github.com/schulterklopfer/cyphernodeconf/internal/schema"
)

// EntryName is the container entry holding the configuration document.
const EntryName = "config.json"

// Store describes where the configuration document lives and how it is
// checked. The zero values of the optional fields select the built-in
// schemas and conflict rules, no defaults table, the container's default
// work factor, a silent logger and no metrics.
type Store struct {
	Path       string
	Registry   *schema.Registry
	Rules      []ConflictRule
	Defaults   map[string]any
	WorkFactor int
	Logger     *logging.Logger
	Metrics    *metrics.Metrics
}

func (s *Store) registry() *schema.Registry {
	if s.Registry != nil {
		return s.Registry
	}
	return schema.Default()
}

func (s *Store) rules() []ConflictRule {
	if s.Rules != nil {
		return s.Rules
	}
	return DefaultConflictRules
}

func (s *Store) logger() *logging.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logging.New(false, true).WithOutput(io.Discard)
}

func (s *Store) open(password string) *archive.Archive {
	return archive.Open(s.Path, password,
		archive.WithWorkFactor(s.WorkFactor),
		archive.WithMetrics(s.Metrics),
	)
}

// Exists reports whether a configuration container is present. Stat
// failures other than a missing file are returned.
func (s *Store) Exists() (bool, error) {
	a := archive.Open(s.Path, "")
	defer a.Close()
	return a.Exists()
}

// Load opens the configuration container with password and returns a ready
// session. Without a container, the session holds a new document at the
// latest format version. Stored documents are migrated to the latest
// version, conflict-resolved, validated and completed from the defaults
// table, in that order.
//
// Errors match ErrWrongPassword, ErrCorrupt, schema.ErrUnknownVersion or
// *ValidationError. No session is returned on error.
func (s *Store) Load(password string) (*Session, error) {
	sess := &Session{store: s, state: StateUnloaded}
	if err := sess.transition(StateLoading); err != nil {
		return nil, err
	}

	a := s.open(password)
	defer a.Close()

	exists, err := a.Exists()
	if err != nil {
		return nil, sess.fail(err)
	}
	if !exists {
		s.logger().Debug("No configuration at %s, starting a new document", s.Path)
		doc, err := s.prepare(schema.Latest, Document{VersionField: schema.Latest.String()})
		if err != nil {
			return nil, sess.fail(err)
		}
		sess.doc = doc
		sess.version = schema.Latest
		if err := sess.transition(StateReady); err != nil {
			return nil, err
		}
		return sess, nil
	}

	raw, err := a.ReadEntry(EntryName)
	if err != nil {
		return nil, sess.fail(readError(s.Path, err))
	}
	doc, err := ParseDocument(raw)
	if err != nil {
		return nil, sess.fail(fmt.Errorf("%w: %s: %v", ErrCorrupt, EntryName, err))
	}

	if err := s.ingest(sess, doc); err != nil {
		return nil, err
	}
	s.logger().Debug("Loaded configuration %s (format %s)", s.Path, sess.version)
	return sess, nil
}

// Import runs doc through the same migration and validation as a stored
// document and returns a ready session holding it. Nothing is written until
// the session is saved.
func (s *Store) Import(doc Document) (*Session, error) {
	sess := &Session{store: s, state: StateUnloaded}
	if err := sess.transition(StateLoading); err != nil {
		return nil, err
	}
	if err := s.ingest(sess, doc.Clone()); err != nil {
		return nil, err
	}
	return sess, nil
}

// ingest takes a loading session through version detection, migration and
// validation to Ready.
func (s *Store) ingest(sess *Session, doc Document) error {
	if err := sess.transition(StateValidating); err != nil {
		return err
	}
	version, err := DetectVersion(doc)
	if err != nil {
		return sess.fail(err)
	}
	delete(doc, legacyVersionField)
	doc[VersionField] = version.String()

	if version.Before(schema.Latest) {
		doc, err = sess.migrate(doc, version)
		if err != nil {
			return sess.fail(err)
		}
		version = schema.Latest
	}

	doc, err = s.prepare(version, doc)
	if err != nil {
		return sess.fail(err)
	}
	sess.doc = doc
	sess.version = version
	return sess.transition(StateReady)
}

// prepare resolves conflicts, validates, fills absent fields from the
// defaults table and then resolves and validates once more, so the table can
// neither undo a conflict rule nor introduce an invalid value.
func (s *Store) prepare(v schema.Version, doc Document) (Document, error) {
	rules := s.rules()
	applyRules(doc, rules)
	normalized, err := s.validate(v, doc)
	if err != nil {
		return nil, err
	}
	if filled := fillAbsent(normalized, s.Defaults); len(filled) > 0 {
		s.logger().Debug("Filled %d fields from defaults: %v", len(filled), filled)
	}
	applyRules(normalized, rules)
	return s.validate(v, normalized)
}

func (s *Store) validate(v schema.Version, doc Document) (Document, error) {
	res, err := s.registry().Validate(v, doc)
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		return nil, &ValidationError{Version: v, Errors: res.Errors}
	}
	return Document(res.Document), nil
}

// Migrate upgrades a copy of doc from one format version to another.
func (s *Store) Migrate(doc Document, from, to schema.Version) (Document, error) {
	out, err := Migrate(doc, from, to)
	if err != nil {
		return nil, err
	}
	if from != to {
		s.Metrics.RecordMigration(from.String(), to.String())
	}
	return out, nil
}

// ChangePassword re-seals the configuration container under newPassword.
func (s *Store) ChangePassword(oldPassword, newPassword string) error {
	a := s.open(oldPassword)
	defer a.Close()

	if err := a.Rekey(newPassword); err != nil {
		return readError(s.Path, err)
	}
	s.logger().Debug("Re-sealed configuration %s", s.Path)
	return nil
}

// fillAbsent copies every defaults entry whose key is absent from doc. Keys
// that are present are never overwritten, whatever their value. It returns
// the filled keys.
func fillAbsent(doc Document, defaults map[string]any) []string {
	keys := make([]string, 0, len(defaults))
	for key := range defaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var filled []string
	for _, key := range keys {
		if _, present := doc[key]; present {
			continue
		}
		doc[key] = schema.DeepCopy(defaults[key])
		filled = append(filled, key)
	}
	return filled
}

// readError maps container errors onto the store's error kinds.
func readError(path string, err error) error {
	switch {
	case errors.Is(err, archive.ErrEmptyPassword):
		return err
	case errors.Is(err, archive.ErrAuthentication):
		return fmt.Errorf("%w: %w", ErrWrongPassword, err)
	case errors.Is(err, archive.ErrCorrupt), errors.Is(err, archive.ErrEntryNotFound):
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	default:
		return fmt.Errorf("failed to read configuration %s: %w", path, err)
	}
}
