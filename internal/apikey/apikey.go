// Package apikey generates the gatekeeper API keys and renders them in the two
// formats the node stack consumes: a shell-sourceable config entry for the
// gatekeeper and an id=secret line handed to clients.
package apikey

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// SecretSize is the number of random bytes in a key; the rendered secret is
// twice as long in hex.
const SecretSize = 32

// scriptTrailer is appended to every config entry. The gatekeeper sources the
// entry in a shell and evaluates it to define ugroups_<id> and ukey_<id>.
const scriptTrailer = "eval ugroups_${kapi_id}=${kapi_groups};eval ukey_${kapi_id}=${kapi_key}"

var (
	// ErrEmptyID is returned by Generate when the key id is empty.
	ErrEmptyID = errors.New("apikey: id must not be empty")
	// ErrNoGroups is returned by Generate when no capability group is given.
	ErrNoGroups = errors.New("apikey: at least one group is required")
)

// DefaultKeyIDs is the key set a fresh installation gets: each id enables a
// growing set of gatekeeper capability groups.
var DefaultKeyIDs = map[string][]string{
	"000": {"stats"},
	"001": {"stats", "watcher"},
	"002": {"stats", "watcher", "spender"},
	"003": {"stats", "watcher", "spender", "admin"},
}

var randReader io.Reader = rand.Reader

// Key is an immutable API key record.
type Key struct {
	id     string
	groups []string
	secret string
}

// Generate draws a new random secret for id and groups.
func Generate(id string, groups []string) (*Key, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	if len(groups) == 0 {
		return nil, ErrNoGroups
	}
	for _, g := range groups {
		if g == "" {
			return nil, fmt.Errorf("%w: empty group name", ErrNoGroups)
		}
	}

	raw := make([]byte, SecretSize)
	if _, err := io.ReadFull(randReader, raw); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}

	return &Key{
		id:     id,
		groups: append([]string(nil), groups...),
		secret: hex.EncodeToString(raw),
	}, nil
}

// ID returns the key id.
func (k *Key) ID() string { return k.id }

// Groups returns a copy of the capability groups, in order.
func (k *Key) Groups() []string { return append([]string(nil), k.groups...) }

// Secret returns the hex encoded secret.
func (k *Key) Secret() string { return k.secret }

// ConfigEntry renders the gatekeeper config line:
//
//	kapi_id="<id>";kapi_key="<secret>";kapi_groups="<g1,g2>";eval ...
func (k *Key) ConfigEntry() string {
	return fmt.Sprintf(`kapi_id="%s";kapi_key="%s";kapi_groups="%s";%s`,
		k.id, k.secret, strings.Join(k.groups, ","), scriptTrailer)
}

// ClientInformation renders "<id>=<secret>". Groups are deliberately absent.
func (k *Key) ClientInformation() string {
	return k.id + "=" + k.secret
}

// String never includes the secret.
func (k *Key) String() string {
	return fmt.Sprintf("apikey(%s: %s)", k.id, strings.Join(k.groups, ","))
}

// Set is the document form of a generated key set, stored under
// gatekeeper_keys.
type Set struct {
	ConfigEntries     []string `json:"configEntries"`
	ClientInformation []string `json:"clientInformation"`
}

// GenerateSet generates one key per id, in ascending id order.
func GenerateSet(ids map[string][]string) (*Set, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyID
	}
	names := make([]string, 0, len(ids))
	for id := range ids {
		names = append(names, id)
	}
	sort.Strings(names)

	set := &Set{
		ConfigEntries:     make([]string, 0, len(names)),
		ClientInformation: make([]string, 0, len(names)),
	}
	for _, id := range names {
		key, err := Generate(id, ids[id])
		if err != nil {
			return nil, fmt.Errorf("failed to generate key %s: %w", id, err)
		}
		set.ConfigEntries = append(set.ConfigEntries, key.ConfigEntry())
		set.ClientInformation = append(set.ClientInformation, key.ClientInformation())
	}
	return set, nil
}

// Map returns the set in the generic document representation.
func (s *Set) Map() map[string]any {
	toAny := func(in []string) []any {
		out := make([]any, len(in))
		for i, v := range in {
			out[i] = v
		}
		return out
	}
	return map[string]any{
		"configEntries":     toAny(s.ConfigEntries),
		"clientInformation": toAny(s.ClientInformation),
	}
}
