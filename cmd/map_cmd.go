package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mapsmith/mapsmith/internal/state"
)

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Manage stored maps",
}

var mapImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Store a map read from a YAML or JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		m, err := state.Load(args[0])
		if err != nil {
			return err
		}
		if m.Source == nil || m.Target == nil {
			return fmt.Errorf("%s: a map needs both a source and a target tree", args[0])
		}

		eng, err := openEngine(ctx, false)
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.SaveMap(ctx, m); err != nil {
			return fmt.Errorf("saving map: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored map %s (%s)\n", m.ID, m.Name)
		return nil
	},
}

var mapShowCmd = &cobra.Command{
	Use:   "show <map-id>",
	Short: "Print a stored map as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := openEngine(ctx, false)
		if err != nil {
			return err
		}
		defer eng.Close()

		m, err := eng.LoadMap(ctx, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	},
}

func init() {
	mapCmd.AddCommand(mapImportCmd)
	mapCmd.AddCommand(mapShowCmd)
	rootCmd.AddCommand(mapCmd)
}
