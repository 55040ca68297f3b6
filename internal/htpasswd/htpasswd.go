// Package htpasswd renders Apache-compatible bcrypt password lines.
package htpasswd

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Cost is the bcrypt cost used for new hashes.
const Cost = bcrypt.DefaultCost

var (
	// ErrInvalidUser is returned for user names that cannot appear in an
	// htpasswd line.
	ErrInvalidUser = errors.New("htpasswd: invalid user name")
	// ErrMismatch is returned by Verify when the password does not match.
	ErrMismatch = errors.New("htpasswd: password does not match")
)

// Hash returns "user:$2y$..." for password. Apache tools expect the 2y
// prefix; the hash itself is identical to Go's 2a output.
func Hash(user, password string) (string, error) {
	return hashWithCost(user, password, Cost)
}

func hashWithCost(user, password string, cost int) (string, error) {
	if user == "" || strings.ContainsAny(user, ":\n\r") {
		return "", fmt.Errorf("%w: %q", ErrInvalidUser, user)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return user + ":" + "$2y$" + strings.TrimPrefix(string(hash), "$2a$"), nil
}

// Verify checks password against an htpasswd line and returns the user.
func Verify(line, password string) (string, error) {
	user, hash, ok := strings.Cut(strings.TrimSpace(line), ":")
	if !ok || user == "" {
		return "", fmt.Errorf("malformed htpasswd line")
	}
	if strings.HasPrefix(hash, "$2y$") {
		hash = "$2a$" + strings.TrimPrefix(hash, "$2y$")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return "", ErrMismatch
		}
		return "", fmt.Errorf("invalid hash: %w", err)
	}
	return user, nil
}
