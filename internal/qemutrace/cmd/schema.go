package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"qemutrace/internal/config"
	"qemutrace/internal/output"
)

var schemaCmd = &cobra.Command{
	Use:       "schema config|dump",
	Short:     "Generate JSON schema for the config file or a parse dump",
	Hidden:    true,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"config", "dump"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var v any = &config.Config{}
		if args[0] == "dump" {
			v = &output.Document{}
		}
		reflector := new(jsonschema.Reflector)
		bts, err := json.MarshalIndent(reflector.Reflect(v), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal schema: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(bts))
		return nil
	},
}
