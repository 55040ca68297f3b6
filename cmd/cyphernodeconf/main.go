package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/schulterklopfer/cyphernodeconf/cmd/cyphernodeconf/commands"
	"github.com/schulterklopfer/cyphernodeconf/internal/credential"
	errs "github.com/schulterklopfer/cyphernodeconf/internal/errors"
	"github.com/schulterklopfer/cyphernodeconf/internal/logging"
	"github.com/schulterklopfer/cyphernodeconf/internal/metrics"
	"github.com/schulterklopfer/cyphernodeconf/internal/secure"
	"github.com/schulterklopfer/cyphernodeconf/internal/settings"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// newPasswordEnvVar supplies the replacement password for passwd.
const newPasswordEnvVar = "CFG_NEW_PASSWORD"

func main() {
	os.Exit(run())
}

func run() int {
	defer secure.Purge()

	app := &commands.App{}
	v := settings.NewViper()
	rootCmd := newRootCommand(app, v)

	err := rootCmd.Execute()
	writeMetrics(app)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", errs.SimplifyError(err))
		return errs.ExitCode(err)
	}
	return errs.ExitOK
}

func newRootCommand(app *commands.App, v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cyphernodeconf",
		Short: "Cyphernode configuration tool",
		Long: `cyphernodeconf keeps the Cyphernode installer configuration in an
encrypted container, validates and migrates it, and generates the gatekeeper
keys, certificate and client key archive.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.Load(v)
			if err != nil {
				return errs.UserError{Message: "Invalid settings", Details: err.Error(), Err: err}
			}
			configure(app, s, v.GetBool("remember_password"))
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("data-dir", "/data", "Directory holding config.7z and client.7z (env DATA_DIR)")
	flags.String("defaults", "", "YAML file overriding installer defaults (env CYPHERNODE_DEFAULTS)")
	flags.Bool("debug", false, "Enable debug logging")
	flags.Bool("no-color", false, "Disable colored output")
	flags.Bool("non-interactive", false, "Never prompt; read the password from CFG_PASSWORD")
	flags.String("metrics-file", "", "Write a Prometheus text snapshot here on exit (env METRICS_FILE)")
	flags.Bool("remember-password", false, "Store a password entered on the terminal in the OS keyring")

	for key, flag := range map[string]string{
		"data_dir":          "data-dir",
		"defaults_file":     "defaults",
		"debug":             "debug",
		"no_color":          "no-color",
		"non_interactive":   "non-interactive",
		"metrics_file":      "metrics-file",
		"remember_password": "remember-password",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(
		commands.NewInitCommand(app),
		commands.NewShowCommand(app),
		commands.NewSetCommand(app),
		commands.NewProcessCommand(app),
		commands.NewKeysCommand(app),
		commands.NewCertCommand(app),
		commands.NewImportCommand(app),
		commands.NewMigrateCommand(app),
		commands.NewPasswdCommand(app),
		commands.NewVerifyCommand(app),
		commands.NewCompletionCommand(app),
	)

	return rootCmd
}

// configure fills app from the loaded settings. Password sources are tried
// in order: environment, keyring, terminal. Non-interactive runs skip the
// keyring and terminal.
func configure(app *commands.App, s *settings.Settings, remember bool) {
	app.Settings = s
	app.Logger = logging.New(s.Debug, s.NoColor)
	if s.MetricsFile != "" {
		app.Metrics = metrics.New()
	}

	ring := &credential.Keyring{}
	term := credential.NewTerminal(os.Stdin, os.Stderr)

	if s.NonInteractive {
		app.Passwords = credential.Chain{credential.Env{}}
		app.NewPasswords = credential.Chain{credential.Env{Var: newPasswordEnvVar}}
		return
	}
	app.Keyring = ring
	app.RememberPassword = remember
	app.Passwords = credential.Chain{credential.Env{}, ring, term}
	app.NewPasswords = credential.Chain{credential.Env{Var: newPasswordEnvVar}, term}
}

func writeMetrics(app *commands.App) {
	if app.Metrics == nil || app.Settings == nil || app.Settings.MetricsFile == "" {
		return
	}
	if err := app.Metrics.WriteTextfile(app.Settings.MetricsFile); err != nil {
		app.Logger.Warn("Failed to write metrics: %v", err)
	}
}
