// Package archive implements the password-protected container the installer
// keeps its configuration and client key material in.
//
// A container is a single file holding any number of named entries. It opens
// with an envelope: the magic "cnconf", a version byte and the BLAKE3-256
// digest of the rest of the file. The digest is checked before any key is
// derived, so damage anywhere, the scrypt stanza included, is reported as
// ErrCorrupt rather than as a wrong password. The rest of the file is an age
// stream encrypted to one scrypt passphrase recipient. The salt and work
// factor travel in the age header, which is authenticated with an HMAC, and
// the payload is sealed in ChaCha20-Poly1305 chunks. The decrypted payload is
// a zstd-compressed, deterministically encoded CBOR manifest mapping entry
// names to their bytes and a BLAKE3 digest that is checked on every read.
//
// Every operation unlocks the whole container. Writes read the existing
// manifest under the same password, replace the given entries and atomically
// replace the file, so other entries survive and a failed write leaves the
// previous file in place.
//
// Errors are classified with errors.Is:
//
//	ErrAuthentication  wrong password
//	ErrEntryNotFound   container is fine, entry is absent
//	ErrCorrupt         unreadable, truncated, tampered or unknown format
//	fs.ErrNotExist     no container file at the path
package archive
