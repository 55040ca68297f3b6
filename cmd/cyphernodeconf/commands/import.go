package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidwall/jsonc"

	"github.com/schulterklopfer/cyphernodeconf/internal/config"
	"github.com/schulterklopfer/cyphernodeconf/internal/credential"
	errs "github.com/schulterklopfer/cyphernodeconf/internal/errors"
)

func NewImportCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the configuration with a JSON document",
		Long: `Read a configuration document (JSON, comments and trailing commas
allowed), migrate and validate it, and save it as the configuration. An
existing configuration is replaced and keeps its password.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			doc, err := config.ParseDocument(jsonc.ToJSON(raw))
			if err != nil {
				return fmt.Errorf("failed to parse %s: %w", args[0], err)
			}

			st, err := app.store()
			if err != nil {
				return err
			}
			sess, err := st.Import(doc)
			if err != nil {
				return err
			}

			pw, err := app.importPassword(st)
			if err != nil {
				return err
			}
			defer pw.Destroy()

			if err := sess.Save(pw.Value()); err != nil {
				return errs.ArchiveError(st.Path, "save", err)
			}
			app.Logger.Info("Imported %s into %s (format %s)", args[0], st.Path, sess.Version())
			return nil
		},
	}

	return cmd
}

// importPassword returns the password of the existing configuration, which
// must open with it, or a new confirmed password.
func (a *App) importPassword(st *config.Store) (*credential.Password, error) {
	var (
		pw  *credential.Password
		err error
	)
	exists, err := st.Exists()
	if err != nil {
		return nil, errs.ArchiveError(st.Path, "open", err)
	}
	if exists {
		_, pw, err = a.open(st)
	} else {
		_, pw, err = a.create(st)
	}
	return pw, err
}
