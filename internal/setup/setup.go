// Package setup derives the generated parts of a configuration: API keys,
// the gatekeeper certificate, the admin password hash and the client key
// archive handed to operators.
package setup

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/schulterklopfer/cyphernodeconf/internal/apikey"
	"github.com/schulterklopfer/cyphernodeconf/internal/archive"
	"github.com/schulterklopfer/cyphernodeconf/internal/cert"
	"github.com/schulterklopfer/cyphernodeconf/internal/config"
	"github.com/schulterklopfer/cyphernodeconf/internal/htpasswd"
	"github.com/schulterklopfer/cyphernodeconf/internal/logging"
	"github.com/schulterklopfer/cyphernodeconf/internal/metrics"
	"github.com/schulterklopfer/cyphernodeconf/internal/settings"
)

// AdminUser is the account name in the initial admin password line.
const AdminUser = "admin"

// ExitStatusFile is written to the data directory after a successful run.
const ExitStatusFile = "exitStatus.sh"

// ErrNoClientPassword means the document has no client archive password.
var ErrNoClientPassword = errors.New("setup: gatekeeper_clientkeyspassword is not set")

// customPathFields are the datapath settings that accept "_custom".
var customPathFields = []string{
	"gatekeeper_datapath",
	"traefik_datapath",
	"proxy_datapath",
	"bitcoin_datapath",
	"lightning_datapath",
	"otsclient_datapath",
}

// PasswordHasher hashes the administrative credential.
type PasswordHasher func(password string) (string, error)

// AdminHasher renders an htpasswd line for AdminUser.
func AdminHasher(password string) (string, error) {
	return htpasswd.Hash(AdminUser, password)
}

// Processor fills in generated configuration fields.
type Processor struct {
	Issuer     cert.Issuer
	Hasher     PasswordHasher
	KeyIDs     map[string][]string
	WorkFactor int
	Logger     *logging.Logger
	Metrics    *metrics.Metrics

	now func() time.Time
}

func (p *Processor) logger() *logging.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return logging.New(false, true).WithOutput(io.Discard)
}

func (p *Processor) keyIDs() map[string][]string {
	if p.KeyIDs != nil {
		return p.KeyIDs
	}
	return apikey.DefaultKeyIDs
}

func (p *Processor) issuer() cert.Issuer {
	if p.Issuer != nil {
		return p.Issuer
	}
	return cert.SelfSigned{}
}

func (p *Processor) hasher() PasswordHasher {
	if p.Hasher != nil {
		return p.Hasher
	}
	return AdminHasher
}

func (p *Processor) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// Report summarizes what Process changed.
type Report struct {
	KeysGenerated bool
	CertIssued    bool
}

// Process generates keys and certificate where needed and hashes the admin
// password. Certificate failures are logged, not returned.
func (p *Processor) Process(sess *config.Session, password string) (*Report, error) {
	report := &Report{}

	generated, err := p.EnsureKeys(sess)
	if err != nil {
		return nil, err
	}
	report.KeysGenerated = generated

	issued, err := p.EnsureCert(sess)
	if err != nil {
		return nil, err
	}
	report.CertIssued = issued

	if err := p.HashAdminPassword(sess, password); err != nil {
		return nil, err
	}
	return report, nil
}

// EnsureKeys generates a fresh API key set when gatekeeper_recreatekeys is
// set or no keys exist yet. The trigger flag is always cleared.
func (p *Processor) EnsureKeys(sess *config.Session) (bool, error) {
	recreate := sess.GetBool("gatekeeper_recreatekeys")
	if err := sess.Delete("gatekeeper_recreatekeys"); err != nil {
		return false, err
	}
	if !recreate && len(keyList(sess, "configEntries")) > 0 {
		return false, nil
	}

	set, err := apikey.GenerateSet(p.keyIDs())
	if err != nil {
		return false, err
	}
	if err := sess.Set("gatekeeper_keys", set.Map()); err != nil {
		return false, err
	}
	p.Metrics.RecordKeysGenerated(len(set.ConfigEntries))
	p.logger().Info("Generated %d gatekeeper API keys", len(set.ConfigEntries))
	return true, nil
}

// EnsureCert issues a new gatekeeper certificate when
// gatekeeper_recreatecert is set, when key or certificate is missing, or
// when the stored certificate is unreadable. The trigger flag is always
// cleared. A failing issuer leaves the stored pair untouched and is only
// logged.
func (p *Processor) EnsureCert(sess *config.Session) (bool, error) {
	recreate := sess.GetBool("gatekeeper_recreatecert")
	if err := sess.Delete("gatekeeper_recreatecert"); err != nil {
		return false, err
	}

	storedCert := sess.GetString("gatekeeper_sslcert")
	storedKey := sess.GetString("gatekeeper_sslkey")
	if !recreate && storedCert != "" && storedKey != "" {
		err := cert.Verify([]byte(storedCert), p.clock())
		if err == nil {
			return false, nil
		}
		if _, parseErr := cert.Parse([]byte(storedCert)); parseErr == nil {
			p.logger().Warn("Gatekeeper certificate: %v", err)
			return false, nil
		}
		p.logger().Warn("Stored gatekeeper certificate is unreadable, issuing a new one")
	}

	cns := cert.CNs(sess.GetString("gatekeeper_cns"))
	p.logger().Info("Generating gatekeeper certificate for %s", strings.Join(cns, ", "))

	res, err := p.issuer().Issue(cns)
	if err != nil {
		p.logger().Error("Gatekeeper certificate was not created: %v", err)
		return false, nil
	}
	if res == nil || res.Code != 0 {
		code := -1
		if res != nil {
			code = res.Code
		}
		p.logger().Error("Gatekeeper certificate was not created (code %d)", code)
		return false, nil
	}

	if err := sess.Set("gatekeeper_sslkey", string(res.Key)); err != nil {
		return false, err
	}
	if err := sess.Set("gatekeeper_sslcert", string(res.Cert)); err != nil {
		return false, err
	}
	return true, nil
}

// HashAdminPassword stores the hashed configuration password as the
// initial admin credential.
func (p *Processor) HashAdminPassword(sess *config.Session, password string) error {
	hash, err := p.hasher()(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	return sess.Set("initial_admin_password", hash)
}

// ApplyVersionOverride replaces every stored service version with the value
// from defaults, so image versions follow the installer rather than the
// stored configuration.
func ApplyVersionOverride(sess *config.Session, defaults map[string]any) error {
	for _, svc := range settings.Services {
		key := svc + "_version"
		if err := sess.Delete(key); err != nil {
			return err
		}
		if value, ok := defaults[key]; ok {
			if err := sess.Set(key, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteClientArchive writes the client key archive: keys.txt with one
// client information line per key, and cacert.pem. If the archive password
// differs from previousPassword, the old archive is removed first so no
// copy sealed under the old password remains.
func (p *Processor) WriteClientArchive(path, previousPassword string, sess *config.Session) error {
	password := sess.GetString("gatekeeper_clientkeyspassword")
	if password == "" {
		return ErrNoClientPassword
	}

	if password != previousPassword {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove stale client archive: %w", err)
		}
	}

	a := archive.Open(path, password,
		archive.WithWorkFactor(p.WorkFactor),
		archive.WithMetrics(p.Metrics),
	)
	defer a.Close()

	keys := strings.Join(keyList(sess, "clientInformation"), "\n")
	err := a.WriteEntries(map[string][]byte{
		"keys.txt":   []byte(keys),
		"cacert.pem": []byte(sess.GetString("gatekeeper_sslcert")),
	})
	if err != nil {
		return fmt.Errorf("failed to write client archive: %w", err)
	}
	p.logger().Info("Creating: %s", filepath.Base(path))
	return nil
}

// ResolveCustomPaths returns a copy of doc where every datapath set to
// "_custom" is replaced by its companion _custom value. The stored document
// keeps "_custom" so the choice survives the next run.
func ResolveCustomPaths(doc config.Document) config.Document {
	out := doc.Clone()
	for _, field := range customPathFields {
		if out[field] != "_custom" {
			continue
		}
		custom, _ := out[field+"_custom"].(string)
		out[field] = custom
	}
	return out
}

// RenderView is the document as downstream consumers see it: custom paths
// resolved and the certificate names expanded into "cns".
func RenderView(doc config.Document) config.Document {
	out := ResolveCustomPaths(doc)
	raw, _ := out["gatekeeper_cns"].(string)
	names := cert.CNs(raw)
	cns := make([]any, len(names))
	for i, name := range names {
		cns[i] = name
	}
	out["cns"] = cns
	return out
}

// WriteExitStatus records the run's exit status for the calling scripts.
func WriteExitStatus(dir string, code int) error {
	path := filepath.Join(dir, ExitStatusFile)
	return os.WriteFile(path, []byte("EXIT_STATUS="+strconv.Itoa(code)), 0o644)
}

// ClearExitStatus removes a status left by a previous run.
func ClearExitStatus(dir string) error {
	err := os.Remove(filepath.Join(dir, ExitStatusFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func keyList(sess *config.Session, field string) []string {
	raw, _ := sess.Get("gatekeeper_keys")
	keys, _ := raw.(map[string]any)
	items, _ := keys[field].([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
