package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mapsmith/mapsmith/internal/mapping"
)

var (
	parseJSON   bool
	parseOutput string
)

var parseCmd = &cobra.Command{
	Use:   "parse <file|->",
	Short: "Parse DSL text and print the resulting mappings",
	Long: `Parse a DSL file (or stdin with "-") and print its mappings as YAML.
Each malformed line is reported with its line number; the command fails
when any line could not be parsed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readSource(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}
		res := mapping.Parse(string(text))
		if parseOutput != "" {
			if err := mapping.WriteYAML(parseOutput, res.Mappings); err != nil {
				return err
			}
		} else if err := printMappings(cmd.OutOrStdout(), res.Mappings, parseJSON); err != nil {
			return err
		}
		return reportDiagnostics(cmd.ErrOrStderr(), "error", res.Errors)
	},
}

var renderCmd = &cobra.Command{
	Use:   "render <mappings.yaml>",
	Short: "Render a YAML mapping list back to DSL text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mappings, err := mapping.LoadYAML(args[0])
		if err != nil {
			return err
		}
		return writeOutput("", cmd.OutOrStdout(), mapping.Generate(mappings))
	},
}

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <map-id>",
	Short: "Render a stored map as DSL text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := openEngine(ctx, false)
		if err != nil {
			return err
		}
		defer eng.Close()

		text, err := eng.MapToDSL(ctx, args[0])
		if err != nil {
			return fmt.Errorf("exporting map %s: %w", args[0], err)
		}
		return writeOutput(exportOutput, cmd.OutOrStdout(), text)
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply <map-id> <file|->",
	Short: "Apply DSL text to a stored map",
	Long: `Apply DSL text to a stored map, replacing its references. The map is only
saved when every line parses; mappings whose source or target cannot be
found are skipped with a warning.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		text, err := readSource(args[1], cmd.InOrStdin())
		if err != nil {
			return err
		}

		eng, err := openEngine(ctx, false)
		if err != nil {
			return err
		}
		defer eng.Close()

		res, err := eng.ApplyDSLToMap(ctx, args[0], string(text))
		if err != nil {
			return err
		}
		reportDiagnostics(cmd.ErrOrStderr(), "warning", res.Warnings)
		if err := reportDiagnostics(cmd.ErrOrStderr(), "error", res.Errors); err != nil {
			return fmt.Errorf("map %s not updated: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Applied DSL to map %s (%d references)\n", args[0], len(res.State.References))
		return nil
	},
}

func printMappings(w io.Writer, mappings []mapping.Mapping, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(mappings)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(mappings)
}

// reportDiagnostics prints diagnostics and returns an error counting them.
func reportDiagnostics(w io.Writer, kind string, diags []mapping.Diagnostic) error {
	for _, d := range diags {
		fmt.Fprintf(w, "line %d: %s: %s\n", d.Line, kind, d.Message)
	}
	if len(diags) > 0 {
		return fmt.Errorf("%d %s(s)", len(diags), kind)
	}
	return nil
}

func init() {
	parseCmd.Flags().BoolVar(&parseJSON, "json", false, "print mappings as JSON")
	parseCmd.Flags().StringVarP(&parseOutput, "output", "o", "", "write mappings to a YAML file instead of stdout")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write DSL to a file instead of stdout")
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(applyCmd)
}
