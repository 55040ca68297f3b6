package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// formatVersion is bumped whenever the manifest layout changes.
const formatVersion = 1

// maxPlaintextSize bounds decompression of a hostile payload.
const maxPlaintextSize = 64 << 20

// The envelope precedes the age stream: magic, envelope version and the
// BLAKE3-256 digest of the stream. It is unkeyed, so damage anywhere in the
// stream, including the scrypt stanza, is told apart from a wrong password
// before any key is derived.
const (
	envelopeMagic   = "cnconf"
	envelopeVersion = 1
	digestSize      = 32
	envelopeSize    = len(envelopeMagic) + 1 + digestSize
)

type manifest struct {
	Format  int               `cbor:"1,keyasint"`
	Entries map[string]*entry `cbor:"2,keyasint"`
}

type entry struct {
	Data   []byte `cbor:"1,keyasint"`
	Digest []byte `cbor:"2,keyasint"`
}

func newManifest() *manifest {
	return &manifest{Format: formatVersion, Entries: make(map[string]*entry)}
}

func newEntry(data []byte) *entry {
	digest := blake3.Sum256(data)
	return &entry{
		Data:   bytes.Clone(data),
		Digest: digest[:],
	}
}

func (e *entry) verify() error {
	digest := blake3.Sum256(e.Data)
	if !bytes.Equal(digest[:], e.Digest) {
		return fmt.Errorf("%w: entry digest mismatch", ErrCorrupt)
	}
	return nil
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("archive: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("archive: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("archive: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxPlaintextSize))
	if err != nil {
		panic("archive: zstd decoder initialization failed: " + err.Error())
	}
}

// seal encodes, compresses and encrypts m under password. Each call draws a
// fresh scrypt salt and file key.
func seal(m *manifest, password string, workFactor int) ([]byte, error) {
	encoded, err := encMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	compressed := zstdEncoder.EncodeAll(encoded, nil)

	recipient, err := age.NewScryptRecipient(password)
	if err != nil {
		return nil, fmt.Errorf("failed to create scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(workFactor)

	var out bytes.Buffer
	w, err := age.Encrypt(&out, recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to start encryption: %w", err)
	}
	if _, err := w.Write(compressed); err != nil {
		return nil, fmt.Errorf("failed to encrypt manifest: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize encryption: %w", err)
	}

	stream := out.Bytes()
	digest := blake3.Sum256(stream)
	sealed := make([]byte, 0, envelopeSize+len(stream))
	sealed = append(sealed, envelopeMagic...)
	sealed = append(sealed, envelopeVersion)
	sealed = append(sealed, digest[:]...)
	return append(sealed, stream...), nil
}

// openEnvelope checks the envelope and returns the age stream it carries.
func openEnvelope(sealed []byte) ([]byte, error) {
	if len(sealed) < envelopeSize {
		return nil, fmt.Errorf("%w: file too short", ErrCorrupt)
	}
	if string(sealed[:len(envelopeMagic)]) != envelopeMagic {
		return nil, fmt.Errorf("%w: not a container", ErrCorrupt)
	}
	if v := sealed[len(envelopeMagic)]; v != envelopeVersion {
		return nil, fmt.Errorf("%w: unsupported envelope version %d", ErrCorrupt, v)
	}
	want := sealed[len(envelopeMagic)+1 : envelopeSize]
	stream := sealed[envelopeSize:]
	got := blake3.Sum256(stream)
	if !bytes.Equal(got[:], want) {
		return nil, fmt.Errorf("%w: stream digest mismatch", ErrCorrupt)
	}
	return stream, nil
}

// unseal reverses seal. A wrong password yields ErrAuthentication; every
// other failure yields ErrCorrupt.
func unseal(sealed []byte, password string, maxWorkFactor int) (*manifest, error) {
	stream, err := openEnvelope(sealed)
	if err != nil {
		return nil, err
	}

	identity, err := age.NewScryptIdentity(password)
	if err != nil {
		return nil, fmt.Errorf("failed to create scrypt identity: %w", err)
	}
	identity.SetMaxWorkFactor(maxWorkFactor)

	r, err := age.Decrypt(bytes.NewReader(stream), identity)
	if err != nil {
		if errors.Is(err, age.ErrIncorrectIdentity) {
			return nil, ErrAuthentication
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	compressed, err := io.ReadAll(io.LimitReader(r, maxPlaintextSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(compressed) > maxPlaintextSize {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrCorrupt, maxPlaintextSize)
	}

	encoded, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var m manifest
	if err := decMode.Unmarshal(encoded, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if m.Format != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrCorrupt, m.Format)
	}
	if m.Entries == nil {
		m.Entries = make(map[string]*entry)
	}
	for name, e := range m.Entries {
		if e == nil {
			return nil, fmt.Errorf("%w: entry %q is empty", ErrCorrupt, name)
		}
	}
	return &m, nil
}
