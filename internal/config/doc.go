// Package config owns the installer's configuration document: it loads the
// document from an encrypted container, migrates it to the latest schema
// version, resolves cross-field conflicts, validates it and writes it back.
//
// A Store describes where the document lives and how it is checked. Each
// call to Store.Load returns a Session, the only handle through which the
// document may be read or changed until it is saved.
package config
