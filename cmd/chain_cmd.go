package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mapsmith/mapsmith/internal/chain"
	"github.com/mapsmith/mapsmith/internal/engine"
	"github.com/mapsmith/mapsmith/internal/report"
	"github.com/mapsmith/mapsmith/internal/tui"
)

var (
	runInput     string
	runInputFile string
	runTUI       bool
	runReport    string
	runJSON      bool
)

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Manage and run chains of map and script steps",
}

var chainListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored chains",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := openEngine(ctx, false)
		if err != nil {
			return err
		}
		defer eng.Close()

		chains, err := eng.ListChains(ctx)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(chains) == 0 {
			fmt.Fprintln(w, "No chains stored.")
			return nil
		}
		for _, c := range chains {
			state := "ready"
			if !chain.IsExecutable(c.Links) {
				state = "incomplete"
			}
			fmt.Fprintf(w, "  %-36s  %-24s  %d links  %s\n", c.ID, c.Name, len(c.Links), state)
		}
		return nil
	},
}

var chainImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Store a chain read from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		data, err := readSource(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}
		var c chain.MapChain
		if err := yaml.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("parsing chain: %w", err)
		}

		eng, err := openEngine(ctx, false)
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.SaveChain(ctx, &c); err != nil {
			return fmt.Errorf("saving chain: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored chain %s (%s)\n", c.ID, c.Name)
		return nil
	},
}

var chainCheckCmd = &cobra.Command{
	Use:   "check <chain-id>",
	Short: "Check that every enabled link of a chain is configured",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := openEngine(ctx, false)
		if err != nil {
			return err
		}
		defer eng.Close()

		c, err := eng.LoadChain(ctx, args[0])
		if err != nil {
			return err
		}
		return printCheck(cmd.OutOrStdout(), c, eng.CheckChain(c.Links))
	},
}

var chainRunCmd = &cobra.Command{
	Use:   "run <chain-id>",
	Short: "Run a stored chain",
	Long: `Run a stored chain over an input payload. Without --input or --input-file
the chain's saved test input is used. Progress goes to stderr, or to a live
terminal view with --tui; the final output goes to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		input := runInput
		if runInputFile != "" {
			data, err := readSource(runInputFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			input = string(data)
		}

		eng, err := openEngine(ctx, false)
		if err != nil {
			return err
		}
		defer eng.Close()

		var rep *report.RunReport
		if runTUI {
			rep, err = runChainTUI(ctx, eng, args[0], input)
		} else {
			rep, err = eng.RunChainByID(ctx, args[0], input, progressCallbacks(cmd.ErrOrStderr()))
		}
		if err != nil {
			return err
		}
		return finishRun(cmd.OutOrStdout(), rep)
	},
}

// runChainTUI runs a chain behind the live terminal view.
func runChainTUI(ctx context.Context, eng *engine.Engine, chainID, input string) (*report.RunReport, error) {
	c, err := eng.LoadChain(ctx, chainID)
	if err != nil {
		return nil, err
	}
	if !chain.IsExecutable(c.Links) {
		return nil, fmt.Errorf("chain %s: %w", chainID, engine.ErrNotExecutable)
	}
	if input == "" {
		input = c.TestInput
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	return tui.Run(*c, eng.StreamChain(runCtx, c.Links, input), cancel)
}

func progressCallbacks(w io.Writer) chain.Callbacks {
	return chain.Callbacks{
		OnStepComplete: func(res chain.StepResult) {
			fmt.Fprintf(w, "  [%s] %s (%d ms)\n", res.Status, res.LinkID, res.DurationMs)
		},
		OnChainError: func(linkID, message string) {
			fmt.Fprintf(w, "  failed at %s: %s\n", linkID, message)
		},
	}
}

// finishRun writes the report where asked and prints the output.
func finishRun(w io.Writer, rep *report.RunReport) error {
	if runReport != "" {
		if err := report.WriteJSON(rep, runReport); err != nil {
			return err
		}
	}

	switch {
	case runJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
	case rep.Status == report.StatusCompleted:
		fmt.Fprintln(w, rep.Output)
	default:
		fmt.Fprint(w, report.FormatText(rep))
	}

	if rep.Status == report.StatusFailed {
		return fmt.Errorf("chain failed at %s: %s", rep.FailedLink, rep.Error)
	}
	return nil
}

func printCheck(w io.Writer, c *chain.MapChain, res engine.CheckResult) error {
	if res.Executable {
		fmt.Fprintf(w, "Chain %s is ready to run (%d links).\n", c.ID, len(c.Links))
		return nil
	}
	if len(c.Links) == 0 {
		fmt.Fprintf(w, "Chain %s has no links.\n", c.ID)
		return fmt.Errorf("chain %s: %w", c.ID, engine.ErrNotExecutable)
	}
	fmt.Fprintf(w, "Chain %s has unconfigured links:\n", c.ID)
	for _, id := range res.Unconfigured {
		fmt.Fprintf(w, "  - %s\n", id)
	}
	return fmt.Errorf("chain %s: %w", c.ID, engine.ErrNotExecutable)
}

func init() {
	chainRunCmd.Flags().StringVar(&runInput, "input", "", "input payload")
	chainRunCmd.Flags().StringVar(&runInputFile, "input-file", "", `read the input payload from a file ("-" for stdin)`)
	chainRunCmd.Flags().BoolVar(&runTUI, "tui", false, "show a live terminal view of the run")
	chainRunCmd.Flags().StringVar(&runReport, "report", "", "write a JSON run report to this path")
	chainRunCmd.Flags().BoolVar(&runJSON, "json", false, "print the full run report as JSON")
	chainRunCmd.MarkFlagsMutuallyExclusive("input", "input-file")

	chainCmd.AddCommand(chainListCmd)
	chainCmd.AddCommand(chainImportCmd)
	chainCmd.AddCommand(chainCheckCmd)
	chainCmd.AddCommand(chainRunCmd)
	rootCmd.AddCommand(chainCmd)
}
