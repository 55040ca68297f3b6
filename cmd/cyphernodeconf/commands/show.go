package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/schulterklopfer/cyphernodeconf/internal/setup"
)

func NewShowCommand(app *App) *cobra.Command {
	var (
		asJSON   bool
		reveal   bool
		resolved bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the configuration",
		Long: `Print the decrypted configuration. Passwords, keys and the TLS private
key are redacted unless --reveal is given.`,
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

			doc := sess.Document()
			if resolved {
				doc = setup.RenderView(doc)
			}
			if !reveal {
				doc = redact(doc)
			}

			var out []byte
			if asJSON {
				out, err = doc.MarshalCanonical()
				out = append(out, '\n')
			} else {
				out, err = yaml.Marshal(map[string]any(doc))
			}
			if err != nil {
				return fmt.Errorf("failed to render configuration: %w", err)
			}
			fmt.Fprint(app.out(), string(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of YAML")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Show secret values")
	cmd.Flags().BoolVar(&resolved, "resolved", false, "Show the document as rendered for services (custom paths resolved, certificate names expanded)")

	return cmd
}
