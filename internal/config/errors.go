package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/schulterklopfer/cyphernodeconf/internal/schema"
)

var (
	// ErrWrongPassword means the container exists but the password does not
	// unlock it. The wrapped error chain also matches archive.ErrAuthentication.
	ErrWrongPassword = errors.New("config: wrong password")
	// ErrCorrupt means the container or the document inside it is unusable.
	ErrCorrupt = errors.New("config: configuration archive is corrupt")
	// ErrInvalidState is returned when an operation is not allowed in the
	// session's current state.
	ErrInvalidState = errors.New("config: operation not allowed in current state")
	// ErrNoMigration means no migration path exists between two versions.
	ErrNoMigration = errors.New("config: no migration path")
)

// ValidationError reports a document that does not satisfy its schema.
type ValidationError struct {
	Version schema.Version
	Errors  []schema.FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.String())
	}
	return fmt.Sprintf("configuration is invalid for format %s: %s", e.Version, strings.Join(msgs, "; "))
}

// Fields returns the names of the offending fields.
func (e *ValidationError) Fields() []string {
	fields := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		fields = append(fields, fe.Field)
	}
	return fields
}
