// Lumen is a companion CLI for ESP-C6 WiFi smart lights.
//
// It provisions factory-fresh lights onto a WiFi network over the
// setup-mode characteristic bridge, then controls them over IP: status,
// toggle, firmware updates with live progress, and a watch mode.
//
// Usage:
//
//	lumen [command] [flags]
//
// See 'lumen --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aldervik/lumen/internal/logging"
	"github.com/aldervik/lumen/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lumen",
	Short: "Companion CLI for ESP-C6 WiFi smart lights",
	Long: `Lumen pairs and controls ESP-C6 WiFi smart lights.

A factory-fresh light opens a setup hotspot; 'lumen provision' hands it
your WiFi credentials over the characteristic bridge and saves it as a
paired device. After that everything runs over IP: 'status', 'toggle',
'update' with live progress, and 'watch'.`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.InitializeFromEnv()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lumen %s (commit: %s)\n", version.Version, version.Commit)
	},
}
