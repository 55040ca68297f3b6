package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/schulterklopfer/cyphernodeconf/internal/cert"
	"github.com/schulterklopfer/cyphernodeconf/internal/config"
	"github.com/schulterklopfer/cyphernodeconf/internal/credential"
	errs "github.com/schulterklopfer/cyphernodeconf/internal/errors"
	"github.com/schulterklopfer/cyphernodeconf/internal/logging"
	"github.com/schulterklopfer/cyphernodeconf/internal/metrics"
	"github.com/schulterklopfer/cyphernodeconf/internal/settings"
	"github.com/schulterklopfer/cyphernodeconf/internal/setup"
)

const maxPasswordAttempts = 3

// App is the state shared by all commands of one run. The root command
// fills it in before any subcommand runs.
type App struct {
	Settings *settings.Settings
	Logger   *logging.Logger
	Metrics  *metrics.Metrics

	// Passwords supplies the configuration password.
	Passwords credential.Source
	// NewPasswords supplies replacement passwords for passwd.
	NewPasswords credential.Source
	// Keyring, if set, remembers passwords entered on the terminal and
	// forgets stale ones.
	Keyring          *credential.Keyring
	RememberPassword bool

	Issuer cert.Issuer
	Out    io.Writer
}

func (a *App) out() io.Writer {
	if a.Out != nil {
		return a.Out
	}
	return os.Stdout
}

func (a *App) store() (*config.Store, error) {
	defaults, err := a.Settings.Defaults()
	if err != nil {
		return nil, fmt.Errorf("failed to build defaults: %w", err)
	}
	return &config.Store{
		Path:       a.Settings.ConfigPath(),
		Defaults:   defaults,
		WorkFactor: a.Settings.WorkFactor,
		Logger:     a.Logger,
		Metrics:    a.Metrics,
	}, nil
}

func (a *App) processor() *setup.Processor {
	return &setup.Processor{
		Issuer:     a.Issuer,
		WorkFactor: a.Settings.WorkFactor,
		Logger:     a.Logger,
		Metrics:    a.Metrics,
	}
}

// open loads the existing configuration. A wrong password entered on the
// terminal is asked for again; a wrong forced password is fatal at once.
func (a *App) open(st *config.Store) (*config.Session, *credential.Password, error) {
	exists, err := st.Exists()
	if err != nil {
		return nil, nil, errs.ArchiveError(st.Path, "open", err)
	}
	if !exists {
		return nil, nil, errs.ArchiveError(st.Path, "open", fmt.Errorf("%s: %w", st.Path, os.ErrNotExist))
	}
	return a.load(st, credential.Request{Path: st.Path, Prompt: "Configuration password"})
}

// create starts a new configuration, asking for the password twice.
func (a *App) create(st *config.Store) (*config.Session, *credential.Password, error) {
	return a.load(st, credential.Request{Path: st.Path, Prompt: "New configuration password", Confirm: true})
}

func (a *App) load(st *config.Store, req credential.Request) (*config.Session, *credential.Password, error) {
	for attempt := 1; ; attempt++ {
		pw, err := a.Passwords.Password(req)
		if err != nil {
			return nil, nil, errs.UserError{
				Message:    "No configuration password",
				Details:    err.Error(),
				Suggestion: "Set CFG_PASSWORD or run without --non-interactive",
				Err:        err,
			}
		}
		a.Logger.Debug("Using configuration password from %s", pw.Source)

		sess, err := st.Load(pw.Value())
		if err == nil {
			a.remember(st.Path, pw)
			return sess, pw, nil
		}
		pw.Destroy()

		if !errs.IsWrongPassword(err) {
			return nil, nil, loadError(st.Path, err)
		}
		if pw.Source == "keyring" && a.Keyring != nil {
			a.Logger.Warn("Password stored in the keyring does not open %s, removing it", st.Path)
			if ferr := a.Keyring.Forget(st.Path); ferr != nil {
				return nil, nil, ferr
			}
			continue
		}
		if pw.Forced || attempt >= maxPasswordAttempts {
			return nil, nil, errs.ArchiveError(st.Path, "open", err)
		}
		a.Logger.Warn("Wrong password, %d attempt(s) left", maxPasswordAttempts-attempt)
	}
}

func (a *App) remember(path string, pw *credential.Password) {
	if !a.RememberPassword || a.Keyring == nil || pw.Source != "terminal" {
		return
	}
	if err := a.Keyring.Remember(path, pw); err != nil {
		a.Logger.Warn("%v", err)
		return
	}
	a.Logger.Debug("Stored configuration password in the keyring")
}

// loadError keeps validation errors intact for field-level reporting and
// wraps container errors with a suggestion.
func loadError(path string, err error) error {
	var verr *config.ValidationError
	if errors.As(err, &verr) {
		return err
	}
	return errs.ArchiveError(path, "open", err)
}
