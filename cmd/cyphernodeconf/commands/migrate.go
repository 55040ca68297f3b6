package commands

import (
	"github.com/spf13/cobra"

	errs "github.com/schulterklopfer/cyphernodeconf/internal/errors"
	"github.com/schulterklopfer/cyphernodeconf/internal/schema"
)

func NewMigrateCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade the configuration to the latest format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.store()
			if err != nil {
				return err
			}
			sess, pw, err := app.open(st)
			if err != nil {
				return err
			}
			defer pw.Destroy()

			if err := sess.Save(pw.Value()); err != nil {
				return errs.ArchiveError(st.Path, "save", err)
			}
			app.Logger.Info("Configuration is at format %s", schema.Latest)
			return nil
		},
	}

	return cmd
}
