package commands

import (
	"github.com/spf13/cobra"

	"github.com/schulterklopfer/cyphernodeconf/internal/credential"
	errs "github.com/schulterklopfer/cyphernodeconf/internal/errors"
)

func NewPasswdCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change the configuration password",
		Long: `Re-seal the configuration under a new password. The new password is
read from CFG_NEW_PASSWORD or prompted for twice.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.store()
			if err != nil {
				return err
			}
			_, oldPw, err := app.open(st)
			if err != nil {
				return err
			}
			defer oldPw.Destroy()

			newPw, err := app.NewPasswords.Password(credential.Request{
				Prompt:  "New configuration password",
				Confirm: true,
			})
			if err != nil {
				return errs.UserError{
					Message:    "No new password",
					Details:    err.Error(),
					Suggestion: "Set CFG_NEW_PASSWORD or run interactively",
					Err:        err,
				}
			}
			defer newPw.Destroy()

			if err := st.ChangePassword(oldPw.Value(), newPw.Value()); err != nil {
				return errs.ArchiveError(st.Path, "re-seal", err)
			}
			if app.Keyring != nil && oldPw.Source == "keyring" {
				if err := app.Keyring.Remember(st.Path, newPw); err != nil {
					app.Logger.Warn("%v", err)
				}
			}
			app.Logger.Info("Changed the password of %s", st.Path)
			return nil
		},
	}

	return cmd
}
