package config

import (
	"fmt"

	"github.com/schulterklopfer/cyphernodeconf/internal/schema"
)

// VersionField is the document key holding the format version.
const VersionField = "format_version"

// legacyVersionField is where documents written before format_version
// existed kept their version, if they kept one at all.
const legacyVersionField = "__version"

// MigrationStep transforms a document of one format version into the next.
// Steps must not modify their input.
type MigrationStep func(Document) (Document, error)

// migrations maps a version to the step that upgrades it to its successor.
var migrations = map[schema.Version]MigrationStep{
	schema.V010: migrateV010toV020,
}

func init() {
	for _, v := range schema.Known() {
		if _, hasNext := v.Next(); hasNext {
			if _, ok := migrations[v]; !ok {
				panic(fmt.Sprintf("config: no migration step from %s", v))
			}
		}
	}
}

// migrateV010toV020 renames the single certificate name field to the
// comma-separated list introduced in 0.2.0.
func migrateV010toV020(in Document) (Document, error) {
	out := in.Clone()
	if cn, ok := out["gatekeeper_sslcert_cn"]; ok {
		if _, exists := out["gatekeeper_cns"]; !exists {
			out["gatekeeper_cns"] = cn
		}
		delete(out, "gatekeeper_sslcert_cn")
	}
	out[VersionField] = schema.V020.String()
	return out, nil
}

// DetectVersion returns the format version a stored document declares. A
// document without one predates versioning and is treated as the oldest
// known format; a legacy __version key is honored.
func DetectVersion(doc Document) (schema.Version, error) {
	raw, ok := doc[VersionField]
	if !ok {
		raw, ok = doc[legacyVersionField]
	}
	if !ok {
		return schema.Oldest, nil
	}
	s, isString := raw.(string)
	if !isString {
		return "", fmt.Errorf("%w: %v", schema.ErrUnknownVersion, raw)
	}
	return schema.ParseVersion(s)
}

// Migrate runs every migration step between from and to on a copy of doc.
// Migrating to the same version returns an unchanged copy.
func Migrate(doc Document, from, to schema.Version) (Document, error) {
	if from.Index() < 0 {
		return nil, fmt.Errorf("%w: %q", schema.ErrUnknownVersion, from)
	}
	if to.Index() < 0 {
		return nil, fmt.Errorf("%w: %q", schema.ErrUnknownVersion, to)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: cannot downgrade from %s to %s", ErrNoMigration, from, to)
	}

	out := doc.Clone()
	for current := from; current != to; {
		step, ok := migrations[current]
		next, hasNext := current.Next()
		if !ok || !hasNext {
			return nil, fmt.Errorf("%w: from %s", ErrNoMigration, current)
		}
		migrated, err := step(out)
		if err != nil {
			return nil, fmt.Errorf("failed to migrate from %s to %s: %w", current, next, err)
		}
		out = migrated
		current = next
	}
	return out, nil
}
