package credential

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the keyring service name for stored passwords.
const DefaultKeyringService = "cyphernodeconf"

// Keyring reads a remembered password from the OS keyring. The account is
// the container path.
type Keyring struct {
	Service string
}

func (k Keyring) service() string {
	if k.Service == "" {
		return DefaultKeyringService
	}
	return k.Service
}

func (k Keyring) Name() string { return "keyring" }

// Password implements Source. A missing entry or an unreachable keyring
// both yield ErrUnavailable.
func (k Keyring) Password(req Request) (*Password, error) {
	if req.Path == "" {
		return nil, ErrUnavailable
	}
	secret, err := keyring.Get(k.service(), req.Path)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrUnavailable
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if secret == "" {
		return nil, ErrUnavailable
	}
	return NewPassword(secret, k.Name(), false)
}

// Remember stores password for path.
func (k Keyring) Remember(path string, password *Password) error {
	if err := keyring.Set(k.service(), path, password.Value()); err != nil {
		return fmt.Errorf("failed to store password in keyring: %w", err)
	}
	return nil
}

// Forget removes the stored password for path. Forgetting a password that
// was never stored is not an error.
func (k Keyring) Forget(path string) error {
	err := keyring.Delete(k.service(), path)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to remove password from keyring: %w", err)
	}
	return nil
}
