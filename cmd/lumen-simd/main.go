// Lumen-simd is a simulated ESP-C6 light for development and testing.
//
// It serves the same HTTP control API and setup-mode characteristic bridge
// as a real light, so the lumen CLI can be exercised end to end with no
// hardware: provisioning over ws://<addr>/bridge, then status, toggle, and
// firmware-update cycles over plain HTTP.
//
// Usage:
//
//	lumen-simd serve [flags]
//
// See 'lumen-simd serve --help' for available options.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aldervik/lumen/internal/logging"
	"github.com/aldervik/lumen/internal/simulator"
	"github.com/aldervik/lumen/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lumen-simd",
	Short: "Simulated ESP-C6 light",
	Long: `A simulated ESP-C6 light for developing against no hardware.

Serves the light's HTTP control API plus the setup-mode characteristic
bridge at /bridge, backed by one simulated device state.`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.InitializeFromEnv()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Serve command flags
var (
	listenAddr   string
	deviceID     string
	fwVersion    string
	nextVersion  string
	joinDelay    time.Duration
	noNotify     bool
	progressStep int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the simulated light",
	Example: `  # Defaults: device AB12 on :8080
  lumen-simd serve

  # A slow-joining light that never pushes notifications
  lumen-simd serve --join-delay 5s --no-notify

  # Provision against it
  lumen provision --bridge ws://127.0.0.1:8080/bridge`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&deviceID, "id", "AB12", "Device ID")
	serveCmd.Flags().StringVar(&fwVersion, "fw-version", "1.0.0", "Reported firmware version")
	serveCmd.Flags().StringVar(&nextVersion, "next-version", "1.1.0", "Firmware version after an update")
	serveCmd.Flags().DurationVar(&joinDelay, "join-delay", 2*time.Second, "Delay between credentials and joining WiFi")
	serveCmd.Flags().BoolVar(&noNotify, "no-notify", false, "Never push device-info notifications (forces the polling fallback)")
	serveCmd.Flags().IntVar(&progressStep, "progress-step", 5, "Percent advance per update-progress poll")
}

func runServe(cmd *cobra.Command, args []string) error {
	sim := simulator.New(simulator.Options{
		ID:                deviceID,
		Version:           fwVersion,
		NextVersion:       nextVersion,
		JoinDelay:         joinDelay,
		PushNotifications: !noNotify,
		ProgressStep:      progressStep,
	})

	fmt.Printf("Simulated light %s listening on %s\n", sim.Name(), listenAddr)
	fmt.Printf("  bridge: ws://%s/bridge\n", listenAddr)

	logging.Info("Simulator starting",
		zap.String("id", deviceID),
		zap.String("listen", listenAddr),
	)
	return http.ListenAndServe(listenAddr, sim.Handler())
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lumen-simd %s (commit: %s)\n", version.Version, version.Commit)
	},
}
