// Package secure keeps passwords and other short secrets out of plain Go
// heap memory while the installer holds them.
//
// Secrets are stored in memguard enclaves: encrypted at rest in memory
// (XSalsa20Poly1305), decrypted into mlocked, guard-paged buffers only for
// the duration of a callback, and wiped afterwards.
//
//	pw, err := secure.FromString(password)
//	if err != nil {
//	    return err
//	}
//	defer pw.Destroy()
//
//	err = pw.With(func(plaintext []byte) error {
//	    return use(plaintext)
//	})
//
// The CLI defers Purge at the top of run, so every enclave key is wiped on
// exit. Buffers created before a Purge can no longer be opened.
package secure
