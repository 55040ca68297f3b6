package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/schulterklopfer/cyphernodeconf/internal/archive"
	"github.com/schulterklopfer/cyphernodeconf/internal/config"
	"github.com/schulterklopfer/cyphernodeconf/internal/credential"
	errs "github.com/schulterklopfer/cyphernodeconf/internal/errors"
	"github.com/schulterklopfer/cyphernodeconf/internal/setup"
)

const redacted = "[REDACTED]"

// secretFields are hidden by show unless --reveal is given.
var secretFields = []string{
	"bitcoin_rpcpassword",
	"gatekeeper_clientkeyspassword",
	"gatekeeper_keys",
	"gatekeeper_sslkey",
	"initial_admin_password",
}

func redact(doc config.Document) config.Document {
	out := doc.Clone()
	for _, field := range secretFields {
		if _, ok := out[field]; ok {
			out[field] = redacted
		}
	}
	return out
}

// parseAssignment splits key=value. Values that parse as JSON keep their
// type, anything else is a string; the schema coerces the rest on save.
func parseAssignment(arg string) (string, any, error) {
	key, raw, ok := strings.Cut(arg, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, fmt.Errorf("invalid assignment %q, want key=value", arg)
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}
	return key, value, nil
}

// runProcess fills the generated fields, saves the configuration and
// writes the client archive. The exit status file reports success to the
// installer scripts.
func (a *App) runProcess(st *config.Store, sess *config.Session, pw *credential.Password) error {
	dataDir := a.Settings.DataDir
	if err := setup.ClearExitStatus(dataDir); err != nil {
		return err
	}

	if a.Settings.VersionOverride {
		a.Logger.Debug("Version override: taking service versions from defaults")
		if err := setup.ApplyVersionOverride(sess, st.Defaults); err != nil {
			return err
		}
	}

	p := a.processor()
	report, err := p.Process(sess, pw.Value())
	if err != nil {
		return err
	}
	if err := sess.Save(pw.Value()); err != nil {
		return errs.ArchiveError(st.Path, "save", err)
	}
	a.Logger.Info("Saved configuration %s", st.Path)
	if report.KeysGenerated {
		a.Logger.Info("Generated new gatekeeper API keys")
	}
	if report.CertIssued {
		a.Logger.Info("Issued new gatekeeper certificate")
	}

	clientPath := a.Settings.ClientArchivePath()
	current := sess.GetString("gatekeeper_clientkeyspassword")
	if current == "" {
		a.Logger.Warn("gatekeeper_clientkeyspassword is not set, skipping %s", clientPath)
	} else {
		previous := ""
		if clientArchiveOpens(clientPath, current) {
			previous = current
		}
		if err := p.WriteClientArchive(clientPath, previous, sess); err != nil {
			return errs.ArchiveError(clientPath, "write", err)
		}
	}

	return setup.WriteExitStatus(dataDir, 0)
}

// clientArchiveOpens reports whether the client archive exists and is sealed
// with password.
func clientArchiveOpens(path, password string) bool {
	a := archive.Open(path, password)
	defer a.Close()
	if exists, err := a.Exists(); err != nil || !exists {
		return false
	}
	_, err := a.Entries()
	return err == nil
}

