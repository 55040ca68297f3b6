package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	errs "github.com/schulterklopfer/cyphernodeconf/internal/errors"
)

func NewInitCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new configuration",
		Long: `Create a new encrypted configuration in the data directory, filled
with the installer defaults. Fails if a configuration already exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.store()
			if err != nil {
				return err
			}
			exists, err := st.Exists()
			if err != nil {
				return errs.ArchiveError(st.Path, "open", err)
			}
			if exists {
				return errs.UserError{
					Message:    fmt.Sprintf("%s already exists", st.Path),
					Suggestion: "Remove it first if you want to reinitialize, or use 'cyphernodeconf set' to change it",
				}
			}

			sess, pw, err := app.create(st)
			if err != nil {
				return err
			}
			defer pw.Destroy()

			if err := sess.Save(pw.Value()); err != nil {
				return errs.ArchiveError(st.Path, "save", err)
			}

			app.Logger.Info("Created %s", st.Path)
			app.Logger.Info("Next steps:")
			app.Logger.Info("  1. Run 'cyphernodeconf set key=value' to adjust the configuration")
			app.Logger.Info("  2. Run 'cyphernodeconf process' to generate keys and certificates")
			return nil
		},
	}

	return cmd
}
