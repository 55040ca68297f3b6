package secure

import (
	"crypto/subtle"
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

var (
	// ErrEmpty is returned when a buffer would hold zero bytes.
	ErrEmpty = errors.New("secure: empty secret")
	// ErrDestroyed is returned when a destroyed buffer is used.
	ErrDestroyed = errors.New("secure: buffer destroyed")
)

// Buffer holds one secret inside a memguard enclave.
type Buffer struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	destroyed bool
}

// New seals data into a new Buffer. memguard wipes data in the process, so
// callers must not rely on its contents afterwards.
func New(data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	enclave := memguard.NewEnclave(data)
	if enclave == nil {
		return nil, ErrEmpty
	}
	return &Buffer{enclave: enclave}, nil
}

// FromString seals a copy of s.
func FromString(s string) (*Buffer, error) {
	return New([]byte(s))
}

// With decrypts the secret into locked memory, passes it to fn and wipes it
// again when fn returns. fn must not retain the slice.
func (b *Buffer) With(fn func(plaintext []byte) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.destroyed {
		return ErrDestroyed
	}
	locked, err := b.enclave.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()

	return fn(locked.Bytes())
}

// Equal reports whether the sealed secret equals other, in constant time.
func (b *Buffer) Equal(other string) bool {
	var equal bool
	_ = b.With(func(plaintext []byte) error {
		equal = subtle.ConstantTimeCompare(plaintext, []byte(other)) == 1
		return nil
	})
	return equal
}

// Destroy drops the enclave. It is idempotent; later calls to With fail with
// ErrDestroyed.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return
	}
	b.enclave = nil
	b.destroyed = true
}

// Purge wipes all memguard state. Call it once, deferred in main.
func Purge() {
	memguard.Purge()
}
