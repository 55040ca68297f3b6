package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewVerifyCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that the configuration opens and is valid",
		Long: `Open and validate the configuration without changing it. The exit
status tells the failure apart: 2 wrong password, 3 corrupt container,
4 invalid document, 5 unknown format version.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.store()
			if err != nil {
				return err
			}
			sess, pw, err := app.open(st)
			if err != nil {
				return err
			}
			pw.Destroy()

			fmt.Fprintf(app.out(), "%s: OK (format %s, %d fields)\n", st.Path, sess.Version(), len(sess.Document()))
			return nil
		},
	}

	return cmd
}
