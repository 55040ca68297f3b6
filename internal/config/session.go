package config

import (
	"fmt"

	"github.com/schulterklopfer/cyphernodeconf/internal/schema"
)

// Session is the exclusive handle on one loaded configuration document.
// Sessions are not safe for concurrent use.
type Session struct {
	store   *Store
	state   State
	version schema.Version
	doc     Document
}

// State returns the session's lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Version returns the document's format version.
func (s *Session) Version() schema.Version {
	return s.version
}

// Document returns a copy of the current document.
func (s *Session) Document() Document {
	return s.doc.Clone()
}

// Get returns a copy of the named field.
func (s *Session) Get(key string) (any, bool) {
	v, ok := s.doc[key]
	if !ok {
		return nil, false
	}
	return schema.DeepCopy(v), true
}

// GetString returns the named field if it is a string.
func (s *Session) GetString(key string) string {
	v, _ := s.doc[key].(string)
	return v
}

// GetBool returns the named field if it is a boolean.
func (s *Session) GetBool(key string) bool {
	v, _ := s.doc[key].(bool)
	return v
}

// Set stores a copy of value under key. Values are checked against the
// schema on the next Save or Validate.
func (s *Session) Set(key string, value any) error {
	if err := s.mutable(key); err != nil {
		return err
	}
	s.doc[key] = schema.DeepCopy(value)
	return nil
}

// Delete removes the named field.
func (s *Session) Delete(key string) error {
	if err := s.mutable(key); err != nil {
		return err
	}
	delete(s.doc, key)
	return nil
}

// ResolveConflicts applies the store's conflict rules to the document.
// Applying them again changes nothing.
func (s *Session) ResolveConflicts() error {
	if err := s.require(StateReady); err != nil {
		return err
	}
	applyRules(s.doc, s.store.rules())
	return nil
}

// Validate checks the current document against its schema without saving
// or changing it.
func (s *Session) Validate() error {
	if err := s.require(StateReady); err != nil {
		return err
	}
	_, err := s.store.validate(s.version, s.doc.Clone())
	return err
}

// Save resolves conflicts, validates and writes the document under
// password. A document that fails validation is not written and the session
// stays ready. A failed write leaves the session failed and any previously
// saved container intact.
func (s *Session) Save(password string) error {
	if err := s.transition(StateSaving); err != nil {
		return err
	}

	doc := s.doc.Clone()
	applyRules(doc, s.store.rules())
	normalized, err := s.store.validate(s.version, doc)
	if err != nil {
		if terr := s.transition(StateReady); terr != nil {
			return terr
		}
		return err
	}

	data, err := normalized.MarshalCanonical()
	if err != nil {
		return s.fail(fmt.Errorf("failed to encode configuration: %w", err))
	}

	a := s.store.open(password)
	defer a.Close()
	if err := a.WriteEntry(EntryName, data); err != nil {
		return s.fail(readError(s.store.Path, err))
	}

	s.doc = normalized
	s.store.logger().Debug("Saved configuration %s", s.store.Path)
	return s.transition(StateReady)
}

func (s *Session) migrate(doc Document, from schema.Version) (Document, error) {
	for current := from; current.Before(schema.Latest); {
		next, _ := current.Next()
		if err := s.transition(StateMigrating); err != nil {
			return nil, err
		}
		migrated, err := s.store.Migrate(doc, current, next)
		if err != nil {
			if terr := s.transition(StateValidating); terr != nil {
				return nil, terr
			}
			return nil, err
		}
		s.store.logger().Info("Migrated configuration from format %s to %s", current, next)
		doc = migrated
		current = next
	}
	if err := s.transition(StateValidating); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Session) mutable(key string) error {
	if err := s.require(StateReady); err != nil {
		return err
	}
	if key == VersionField {
		return fmt.Errorf("%s is managed by the store", VersionField)
	}
	return nil
}

func (s *Session) require(state State) error {
	if s.state != state {
		return fmt.Errorf("%w: session is %s, want %s", ErrInvalidState, s.state, state)
	}
	return nil
}

func (s *Session) transition(to State) error {
	if !s.state.canTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, s.state, to)
	}
	s.store.Metrics.RecordTransition(s.state.String(), to.String())
	s.state = to
	return nil
}

// fail moves the session to StateFailed and returns err.
func (s *Session) fail(err error) error {
	_ = s.transition(StateFailed)
	return err
}
