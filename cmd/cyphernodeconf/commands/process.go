package commands

import (
	"github.com/spf13/cobra"

	"github.com/schulterklopfer/cyphernodeconf/internal/config"
)

func NewProcessCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Generate keys and certificates and save",
		Long: `Generate the gatekeeper API keys and TLS certificate where they are
missing or flagged for recreation, hash the admin password, save the
configuration and write the client key archive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.processWith(nil)
		},
	}

	return cmd
}

func NewKeysCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage gatekeeper API keys",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "regenerate",
		Short: "Replace all gatekeeper API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.processWith(setFlag("gatekeeper_recreatekeys"))
		},
	})
	return cmd
}

func NewCertCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Manage the gatekeeper TLS certificate",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "regenerate",
		Short: "Issue a new gatekeeper certificate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.processWith(setFlag("gatekeeper_recreatecert"))
		},
	})
	return cmd
}

func setFlag(field string) func(*config.Session) error {
	return func(sess *config.Session) error {
		return sess.Set(field, true)
	}
}

func (a *App) processWith(prepare func(*config.Session) error) error {
	st, err := a.store()
	if err != nil {
		return err
	}
	sess, pw, err := a.open(st)
	if err != nil {
		return err
	}
	defer pw.Destroy()

	if prepare != nil {
		if err := prepare(sess); err != nil {
			return err
		}
	}
	return a.runProcess(st, sess, pw)
}
