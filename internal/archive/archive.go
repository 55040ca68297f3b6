package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/moby/sys/atomicwriter"

	"github.com/schulterklopfer/cyphernodeconf/internal/metrics"
	"github.com/schulterklopfer/cyphernodeconf/internal/secure"
)

const (
	// DefaultWorkFactor is the scrypt cost (log2 N) used for new containers,
	// roughly one second on current hardware.
	DefaultWorkFactor = 18
	// MaxWorkFactor is the highest scrypt cost accepted when reading.
	MaxWorkFactor = 22
)

var (
	// ErrAuthentication means the password does not unlock the container.
	ErrAuthentication = errors.New("archive: wrong password")
	// ErrEntryNotFound means the container is intact but has no such entry.
	ErrEntryNotFound = errors.New("archive: entry not found")
	// ErrCorrupt means the container cannot be trusted.
	ErrCorrupt = errors.New("archive: container is corrupt")
	// ErrEmptyPassword is returned for every operation on a container opened
	// without a password.
	ErrEmptyPassword = errors.New("archive: password must not be empty")
	// ErrInvalidName is returned for entry names that cannot be stored.
	ErrInvalidName = errors.New("archive: invalid entry name")
)

// Option configures an Archive.
type Option func(*Archive)

// WithWorkFactor sets the scrypt cost (log2 N) for writes. Values outside
// 1..MaxWorkFactor are ignored.
func WithWorkFactor(logN int) Option {
	return func(a *Archive) {
		if logN >= 1 && logN <= MaxWorkFactor {
			a.workFactor = logN
		}
	}
}

// WithMetrics records operation outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Archive) {
		a.metrics = m
	}
}

// Archive is a handle on one container file and its password.
type Archive struct {
	mu         sync.Mutex
	path       string
	password   *secure.Buffer
	workFactor int
	metrics    *metrics.Metrics
}

// Open binds a container path and password. It does not touch the disk.
func Open(path, password string, opts ...Option) *Archive {
	a := &Archive{
		path:       path,
		workFactor: DefaultWorkFactor,
	}
	if password != "" {
		// FromString only fails for empty input, which is handled by
		// leaving a.password nil.
		a.password, _ = secure.FromString(password)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Path returns the container file path.
func (a *Archive) Path() string {
	return a.path
}

// Exists reports whether a container file is present at the path. Only a
// missing path counts as absent; any other stat failure, or something other
// than a regular file at the path, is returned as an error.
func (a *Archive) Exists() (bool, error) {
	info, err := os.Stat(a.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to stat archive: %w", err)
	case !info.Mode().IsRegular():
		return false, fmt.Errorf("archive path %s is not a regular file", a.path)
	}
	return true, nil
}

// ReadEntry decrypts the container and returns a copy of the named entry.
func (a *Archive) ReadEntry(name string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	data, err := a.readEntry(name)
	a.metrics.RecordArchiveOp("read", classify(err), time.Since(start))
	return data, err
}

func (a *Archive) readEntry(name string) ([]byte, error) {
	m, err := a.load()
	if err != nil {
		return nil, err
	}
	e, ok := m.Entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	if err := e.verify(); err != nil {
		return nil, err
	}
	return bytes.Clone(e.Data), nil
}

// Entries lists the entry names in the container, sorted.
func (a *Archive) Entries() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	m, err := a.load()
	a.metrics.RecordArchiveOp("list", classify(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(m.Entries))
	for name := range m.Entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// WriteEntry adds or replaces the named entry. Entries already in the
// container are kept. The file is replaced atomically; on any error the
// previous file is left untouched. Writing into an existing container that
// the password does not unlock, or that is corrupt, is refused.
func (a *Archive) WriteEntry(name string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	err := a.writeEntries(map[string][]byte{name: data})
	a.metrics.RecordArchiveOp("write", classify(err), time.Since(start))
	return err
}

// WriteEntries adds or replaces several entries with a single seal, so the
// file holds either all of them or none. It follows the rules of WriteEntry.
func (a *Archive) WriteEntries(entries map[string][]byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	err := a.writeEntries(entries)
	a.metrics.RecordArchiveOp("write", classify(err), time.Since(start))
	return err
}

func (a *Archive) writeEntries(entries map[string][]byte) error {
	if len(entries) == 0 {
		return fmt.Errorf("%w: no entries to write", ErrInvalidName)
	}
	for name := range entries {
		if name == "" {
			return ErrInvalidName
		}
	}

	m, err := a.load()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		m = newManifest()
	case err != nil:
		return err
	}
	for name, data := range entries {
		m.Entries[name] = newEntry(data)
	}

	var sealed []byte
	err = a.withPassword(func(password string) error {
		var sealErr error
		sealed, sealErr = seal(m, password, a.workFactor)
		return sealErr
	})
	if err != nil {
		return err
	}
	return writeFileAtomic(a.path, sealed, 0o600)
}

// Rekey re-seals every entry under newPassword. On success the archive uses
// the new password for subsequent operations.
func (a *Archive) Rekey(newPassword string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	err := a.rekey(newPassword)
	a.metrics.RecordArchiveOp("rekey", classify(err), time.Since(start))
	return err
}

func (a *Archive) rekey(newPassword string) error {
	if newPassword == "" {
		return ErrEmptyPassword
	}
	m, err := a.load()
	if err != nil {
		return err
	}
	sealed, err := seal(m, newPassword, a.workFactor)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(a.path, sealed, 0o600); err != nil {
		return err
	}

	replacement, err := secure.FromString(newPassword)
	if err != nil {
		return err
	}
	if a.password != nil {
		a.password.Destroy()
	}
	a.password = replacement
	return nil
}

// Remove deletes the container file. A missing file is not an error.
func (a *Archive) Remove() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.Remove(a.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove archive: %w", err)
	}
	return nil
}

// Close wipes the password held by the archive. The archive is unusable
// afterwards.
func (a *Archive) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.password != nil {
		a.password.Destroy()
	}
}

func (a *Archive) load() (*manifest, error) {
	if a.password == nil {
		return nil, ErrEmptyPassword
	}
	sealed, err := os.ReadFile(a.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}

	var m *manifest
	err = a.withPassword(func(password string) error {
		var openErr error
		m, openErr = unseal(sealed, password, MaxWorkFactor)
		return openErr
	})
	return m, err
}

func (a *Archive) withPassword(fn func(password string) error) error {
	if a.password == nil {
		return ErrEmptyPassword
	}
	return a.password.With(func(plaintext []byte) error {
		return fn(string(plaintext))
	})
}

// writeFileAtomic creates the parent directory and replaces path with data,
// so readers observe either the old or the new file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	if err := atomicwriter.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to replace archive: %w", err)
	}
	return nil
}

func classify(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ErrAuthentication):
		return metrics.ResultAuth
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, fs.ErrNotExist):
		return metrics.ResultNotFound
	case errors.Is(err, ErrCorrupt):
		return metrics.ResultCorrupt
	default:
		return metrics.ResultIOError
	}
}
