package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	generateLanguage string
	generateOutput   string
)

var generateCmd = &cobra.Command{
	Use:   "generate <map-id>",
	Short: "Generate an executable script from a stored map",
	Long: `Generate a script that performs a stored map. The language defaults to the
map's own language; starlark is built in and other languages are delegated
to the remote runtime when one is configured.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := openEngine(ctx, false)
		if err != nil {
			return err
		}
		defer eng.Close()

		code, err := eng.GenerateScript(ctx, args[0], generateLanguage)
		if err != nil {
			return fmt.Errorf("generating script for map %s: %w", args[0], err)
		}
		return writeOutput(generateOutput, cmd.OutOrStdout(), code)
	},
}

func init() {
	generateCmd.Flags().StringVarP(&generateLanguage, "language", "l", "", "script language (default: the map's language)")
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "write the script to a file instead of stdout")
	rootCmd.AddCommand(generateCmd)
}
