package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencradle/cradle/pkg/config"
	"github.com/opencradle/cradle/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cradle",
	Short: "CRADLE - distributed computation caching and resolution runtime",
	Long: `CRADLE resolves tree-structured descriptions of pure computations,
reusing previously computed results from a two-level memory cache,
pluggable secondary storage and remote peers.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"CRADLE version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Configuration file (TOML, JSON or YAML)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(cacheInfoCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// loadConfig reads the configuration file named by the --config flag,
// falling back to an empty configuration.
func loadConfig() (config.Config, error) {
	path, _ := rootCmd.PersistentFlags().GetString("config")
	if path == "" {
		return config.MustNew(nil), nil
	}
	return config.LoadFile(path)
}
