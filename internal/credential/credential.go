// Package credential obtains the configuration password from the operator:
// the CFG_PASSWORD environment variable, the OS keyring, or a no-echo
// terminal prompt, in that order.
package credential

import (
	"errors"
	"fmt"

	"github.com/schulterklopfer/cyphernodeconf/internal/secure"
)

var (
	// ErrUnavailable means a source cannot provide a password in this
	// environment; the next source is tried.
	ErrUnavailable = errors.New("credential: source unavailable")
	// ErrNoPassword means no source produced a password.
	ErrNoPassword = errors.New("credential: no password available")
	// ErrMismatch means the password and its confirmation differ.
	ErrMismatch = errors.New("credential: passwords do not match")
)

// Request describes the password being asked for.
type Request struct {
	// Path identifies the container; keyring entries are stored under it.
	Path string
	// Prompt is shown by interactive sources.
	Prompt string
	// Confirm asks interactive sources to read the password twice, for
	// containers that do not exist yet.
	Confirm bool
}

// Source produces a password or ErrUnavailable.
type Source interface {
	Name() string
	Password(req Request) (*Password, error)
}

// Password is a password held in locked memory.
type Password struct {
	buf *secure.Buffer
	// Forced is set when the operator supplied the password
	// non-interactively. A wrong forced password must not be retried.
	Forced bool
	// Source names where the password came from.
	Source string
}

// NewPassword moves value into locked memory. Empty values are rejected.
func NewPassword(value, source string, forced bool) (*Password, error) {
	buf, err := secure.FromString(value)
	if err != nil {
		return nil, fmt.Errorf("credential: %w", err)
	}
	return &Password{buf: buf, Forced: forced, Source: source}, nil
}

// Value returns the password as a string.
func (p *Password) Value() string {
	var out string
	_ = p.buf.With(func(b []byte) error {
		out = string(b)
		return nil
	})
	return out
}

// Matches reports whether other equals the password, in constant time.
func (p *Password) Matches(other string) bool {
	return p.buf.Equal(other)
}

// Destroy wipes the password.
func (p *Password) Destroy() {
	if p != nil && p.buf != nil {
		p.buf.Destroy()
	}
}

// Chain asks each source in turn and returns the first password.
type Chain []Source

// Password implements Source.
func (c Chain) Password(req Request) (*Password, error) {
	for _, src := range c {
		pw, err := src.Password(req)
		if errors.Is(err, ErrUnavailable) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src.Name(), err)
		}
		return pw, nil
	}
	return nil, ErrNoPassword
}

// Name implements Source.
func (c Chain) Name() string {
	return "chain"
}
