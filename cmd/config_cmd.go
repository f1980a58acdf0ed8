package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mapsmith/mapsmith/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Create, view, and validate the Mapsmith configuration file.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.ExpandHome(config.DefaultPath)
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current config (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintln(w, "Current configuration:")
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  Store:\n")
		fmt.Fprintf(w, "    Type:           %s\n", cfg.Store.Type)
		switch cfg.Store.Type {
		case config.StoreFile:
			fmt.Fprintf(w, "    Directory:      %s\n", cfg.Store.Directory)
		default:
			fmt.Fprintf(w, "    Connection:     %s\n", maskSecret(cfg.Store.ConnectionString))
			fmt.Fprintf(w, "    Database:       %s\n", cfg.Store.Database)
			fmt.Fprintf(w, "    Max Conns:      %d\n", cfg.Store.MaxConnections)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  Runtime:\n")
		fmt.Fprintf(w, "    Language:       %s\n", cfg.Runtime.DefaultLanguage)
		fmt.Fprintf(w, "    Timeout:        %s\n", cfg.Runtime.Timeout)
		fmt.Fprintf(w, "    Max Steps:      %d\n", cfg.Runtime.MaxSteps)
		if cfg.Runtime.RemoteURL != "" {
			fmt.Fprintf(w, "    Remote:         %s\n", cfg.Runtime.RemoteURL)
			fmt.Fprintf(w, "    Remote Token:   %s\n", maskSecret(cfg.Runtime.RemoteToken))
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  Server:\n")
		fmt.Fprintf(w, "    Port:           %d\n", cfg.Server.Port)
		fmt.Fprintf(w, "    Rate Limit:     %g req/s (burst %d)\n", cfg.Server.RateLimit, cfg.Server.Burst)
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  Logging:\n")
		fmt.Fprintf(w, "    Level:          %s\n", cfg.Logging.Level)
		fmt.Fprintf(w, "    Directory:      %s\n", cfg.Logging.Directory)
		fmt.Fprintf(w, "    Retention:      %d days\n", cfg.Logging.RetentionDays)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(cfgFile); err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid.")
		return nil
	},
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
