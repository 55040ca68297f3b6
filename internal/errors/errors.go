package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/schulterklopfer/cyphernodeconf/internal/apikey"
	"github.com/schulterklopfer/cyphernodeconf/internal/archive"
	"github.com/schulterklopfer/cyphernodeconf/internal/config"
	"github.com/schulterklopfer/cyphernodeconf/internal/schema"
)

// Exit statuses reported by the CLI.
const (
	ExitOK             = 0
	ExitFailure        = 1
	ExitWrongPassword  = 2
	ExitCorrupt        = 3
	ExitInvalid        = 4
	ExitUnknownVersion = 5
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
	Err        error
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

func (e ConfigError) Unwrap() error {
	return e.Err
}

// ArchiveError wraps an error from reading or writing a configuration or
// client container with a suggestion for the operator.
func ArchiveError(path, operation string, err error) error {
	if err == nil {
		return nil
	}
	return UserError{
		Message:    fmt.Sprintf("Failed to %s %s", operation, path),
		Details:    err.Error(),
		Suggestion: archiveSuggestion(err),
		Err:        err,
	}
}

func archiveSuggestion(err error) string {
	switch {
	case errors.Is(err, config.ErrWrongPassword), errors.Is(err, archive.ErrAuthentication):
		return "Check the configuration password. If it came from CFG_PASSWORD, fix the variable or unset it to be prompted"
	case errors.Is(err, archive.ErrEmptyPassword):
		return "Provide a password through CFG_PASSWORD or run interactively"
	case errors.Is(err, config.ErrCorrupt), errors.Is(err, archive.ErrCorrupt), errors.Is(err, archive.ErrEntryNotFound):
		return "The file is damaged or not a configuration archive. Restore it from a backup or run 'cyphernodeconf init' in an empty data directory"
	case errors.Is(err, schema.ErrUnknownVersion):
		return "The configuration was written by a newer installer. Upgrade cyphernodeconf"
	case errors.Is(err, fs.ErrNotExist):
		return "Run 'cyphernodeconf init' to create a new configuration"
	case errors.Is(err, fs.ErrPermission):
		return "Check file permissions on the data directory"
	}
	return ""
}

// ValidationErrors turns a store validation failure into one ConfigError per
// offending field.
func ValidationErrors(err error) []ConfigError {
	var verr *config.ValidationError
	if !errors.As(err, &verr) {
		return nil
	}
	out := make([]ConfigError, 0, len(verr.Errors))
	for _, fe := range verr.Errors {
		out = append(out, ConfigError{
			Field:      fe.Field,
			Message:    fe.Message,
			Suggestion: fmt.Sprintf("Fix or remove the field with 'cyphernodeconf set %s=<value>'", fe.Field),
			Err:        err,
		})
	}
	return out
}

// KeyError explains an API key precondition failure.
func KeyError(id string, err error) error {
	switch {
	case errors.Is(err, apikey.ErrEmptyID):
		return ConfigError{Field: "gatekeeper_keys", Message: "API key id must not be empty", Err: err}
	case errors.Is(err, apikey.ErrNoGroups):
		return ConfigError{Field: "gatekeeper_keys", Value: id, Message: "API key needs at least one group", Err: err}
	}
	return err
}

// IsWrongPassword reports whether err means the password did not unlock a
// container.
func IsWrongPassword(err error) bool {
	return errors.Is(err, config.ErrWrongPassword) || errors.Is(err, archive.ErrAuthentication)
}

// ExitCode maps an error to the CLI exit status.
func ExitCode(err error) int {
	var verr *config.ValidationError
	switch {
	case err == nil:
		return ExitOK
	case IsWrongPassword(err):
		return ExitWrongPassword
	case errors.Is(err, config.ErrCorrupt), errors.Is(err, archive.ErrCorrupt), errors.Is(err, archive.ErrEntryNotFound):
		return ExitCorrupt
	case errors.As(err, &verr):
		return ExitInvalid
	case errors.Is(err, schema.ErrUnknownVersion):
		return ExitUnknownVersion
	}
	return ExitFailure
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Already a user-friendly error
	if _, ok := err.(UserError); ok {
		return err
	}
	if _, ok := err.(ConfigError); ok {
		return err
	}

	if suggestion := archiveSuggestion(err); suggestion != "" {
		return UserError{
			Message:    rootCause(err).Error(),
			Suggestion: suggestion,
			Err:        err,
		}
	}

	var verr *config.ValidationError
	if errors.As(err, &verr) {
		return UserError{
			Message:    "Configuration does not match its schema",
			Details:    strings.Join(fieldMessages(verr), "; "),
			Suggestion: "Fix the listed fields with 'cyphernodeconf set' or re-import a corrected file",
			Err:        err,
		}
	}

	errStr := rootCause(err).Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format in defaults file",
			Suggestion: "Check for indentation errors and missing quotes",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "json:") || strings.Contains(errStr, "invalid character") {
		return ConfigError{
			Message:    "Invalid JSON format",
			Suggestion: "Check the file for trailing commas or unbalanced braces",
			Err:        err,
		}
	}

	return err
}

func rootCause(err error) error {
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return err
		}
		err = unwrapped
	}
}

func fieldMessages(verr *config.ValidationError) []string {
	msgs := make([]string, 0, len(verr.Errors))
	for _, fe := range verr.Errors {
		msgs = append(msgs, fe.String())
	}
	return msgs
}
