package commands

import (
	"github.com/spf13/cobra"

	errs "github.com/schulterklopfer/cyphernodeconf/internal/errors"
)

func NewSetCommand(app *App) *cobra.Command {
	var unset []string

	cmd := &cobra.Command{
		Use:   "set key=value...",
		Short: "Change configuration fields",
		Long: `Change one or more configuration fields and save. Values are read as
JSON when possible (true, 550, ["tor"]) and as strings otherwise. The
result is checked against the schema before anything is written.`,
		Example: `  cyphernodeconf set net=mainnet bitcoin_prune=true bitcoin_prune_size=1000
  cyphernodeconf set features='["lightning","tor"]'
  cyphernodeconf set --unset lightning_nodecolor`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(unset) == 0 {
				return cmd.Usage()
			}

			type assignment struct {
				key   string
				value any
			}
			assignments := make([]assignment, 0, len(args))
			for _, arg := range args {
				key, value, err := parseAssignment(arg)
				if err != nil {
					return errs.ConfigError{Message: err.Error(), Suggestion: "Use key=value"}
				}
				assignments = append(assignments, assignment{key, value})
			}

			st, err := app.store()
			if err != nil {
				return err
			}
			sess, pw, err := app.open(st)
			if err != nil {
				return err
			}
			defer pw.Destroy()

			for _, a := range assignments {
				if err := sess.Set(a.key, a.value); err != nil {
					return errs.ConfigError{Field: a.key, Message: err.Error(), Err: err}
				}
			}
			for _, key := range unset {
				if err := sess.Delete(key); err != nil {
					return errs.ConfigError{Field: key, Message: err.Error(), Err: err}
				}
			}

			if err := sess.Save(pw.Value()); err != nil {
				return err
			}
			app.Logger.Info("Saved %d change(s) to %s", len(assignments)+len(unset), st.Path)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&unset, "unset", nil, "Remove a field (repeatable)")

	return cmd
}
