package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aldervik/lumen/internal/control"
	"github.com/aldervik/lumen/internal/discovery"
	"github.com/aldervik/lumen/internal/ota"
	"github.com/aldervik/lumen/internal/probe"
	"github.com/aldervik/lumen/internal/provision"
	"github.com/aldervik/lumen/internal/radio"
	"github.com/aldervik/lumen/internal/registry"
	"github.com/aldervik/lumen/internal/ui"
)

// Command flags
var (
	scanTimeout   int
	bridgeURL     string
	ssidFlag      string
	passwordFlag  string
	updateURL     string
	watchInterval int
)

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(watchCmd)
}

// openStore opens the paired-device registry at its default path.
func openStore() (registry.Store, error) {
	path, err := registry.DefaultPath()
	if err != nil {
		return nil, fmt.Errorf("failed to locate device registry: %w", err)
	}
	store, err := registry.NewFileStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open device registry: %w", err)
	}
	return store, nil
}

// resolveRecord picks the target device: an explicit ID argument, or the
// only paired light when there is exactly one.
func resolveRecord(store registry.Store, args []string) (*registry.Record, error) {
	if len(args) > 0 {
		id := strings.ToUpper(args[0])
		rec, err := store.Get(id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("no paired light with ID %s (see 'lumen devices')", id)
		}
		return rec, nil
	}

	records, err := store.List()
	if err != nil {
		return nil, err
	}
	switch len(records) {
	case 0:
		return nil, fmt.Errorf("no paired lights; run 'lumen provision' first")
	case 1:
		return records[0], nil
	default:
		return nil, fmt.Errorf("multiple paired lights; pass a device ID (see 'lumen devices')")
	}
}

// reResolveIP tries to find a light whose recorded address went stale, via
// mDNS. Returns the updated record, or nil if nothing changed.
func reResolveIP(store registry.Store, rec *registry.Record) *registry.Record {
	scanner := discovery.NewScanner()
	scanner.Timeout = 3 * time.Second
	dev, err := scanner.WaitForDevice(rec.ID)
	if err != nil || dev.IP == rec.IP {
		return nil
	}
	updated, err := store.Merge(rec.ID, func(r *registry.Record) {
		r.IP = dev.IP
	})
	if err != nil {
		return nil
	}
	fmt.Printf("Light %s moved to %s\n", rec.ID, dev.IP)
	return updated
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for lights on the network",
	Long: `Scan for ESP-C6 lights using mDNS discovery.

Provisioned lights advertise their control API on the local network; this
lists every light that answers, paired or not.`,
	Example: `  # Scan for 10 seconds (default)
  lumen scan

  # Quick scan
  lumen scan --timeout 3`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 10, "Scan timeout in seconds")
}

func runScan(cmd *cobra.Command, args []string) error {
	fmt.Printf("Scanning for lights (timeout: %ds)...\n\n", scanTimeout)

	devices, err := discovery.ScanForDevices(time.Duration(scanTimeout) * time.Second)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("No lights found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - A light that was never provisioned is not on your network yet;")
		fmt.Println("    run 'lumen provision' from its setup hotspot instead")
		fmt.Println("  - Check that your machine allows mDNS (UDP port 5353)")
		fmt.Println("  - Try increasing --timeout on slower networks")
		return nil
	}

	fmt.Printf("Found %d light(s):\n\n", len(devices))
	for i, dev := range devices {
		fmt.Printf("%d. %s\n", i+1, dev.Hostname)
		fmt.Printf("   ID:  %s\n", dev.ID)
		fmt.Printf("   IP:  %s:%d\n", dev.IP, dev.Port)
		fmt.Println()
	}
	fmt.Println("Use 'lumen status <id>' to check a paired light")
	return nil
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List paired lights",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		records, err := store.List()
		if err != nil {
			return err
		}
		ui.NewPrinter(nil).PrintDeviceList(records)
		return nil
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget <id>",
	Short: "Remove a paired light",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		id := strings.ToUpper(args[0])
		rec, err := store.Get(id)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("no paired light with ID %s", id)
		}
		if err := store.Delete(id); err != nil {
			return fmt.Errorf("failed to remove %s: %w", id, err)
		}
		fmt.Printf("Forgot light %s. It stays on your WiFi until factory reset.\n", id)
		return nil
	},
}

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Put a factory-fresh light onto your WiFi",
	Long: `Hand WiFi credentials to a light in setup mode.

A factory-fresh light opens a setup hotspot. Join that hotspot, then run
this command: it connects to the light's characteristic bridge, sends your
network credentials, waits for the light to join, and saves it as a paired
device.`,
	Example: `  # From the light's setup hotspot
  lumen provision

  # Non-interactive
  lumen provision --ssid Home --password secret123`,
	RunE: runProvision,
}

func init() {
	provisionCmd.Flags().StringVar(&bridgeURL, "bridge", radio.DefaultBridgeURL, "Characteristic bridge URL")
	provisionCmd.Flags().StringVar(&ssidFlag, "ssid", "", "WiFi network name")
	provisionCmd.Flags().StringVar(&passwordFlag, "password", "", "WiFi password (prompted if omitted)")
}

func runProvision(cmd *cobra.Command, args []string) error {
	creds, err := promptCredentials()
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Connecting to the light at %s...\n", bridgeURL)
	link, err := radio.DialBridge(ctx, bridgeURL)
	if err != nil {
		p := ui.NewPrinter(nil)
		p.PrintError("Could not reach the light", err, []string{
			"Make sure the light is in setup mode (slow pulsing)",
			"Join the light's setup hotspot before running this command",
		})
		return fmt.Errorf("provisioning failed")
	}

	fmt.Println("Sending credentials and waiting for the light to join...")
	sess := provision.New(bridgeURL, link, store, provision.DefaultConfig())
	out := sess.Run(ctx, creds)

	p := ui.NewPrinter(nil)
	switch {
	case out.State == provision.StateConfirmed && out.Err == nil:
		p.PrintSuccess("Light provisioned", [][2]string{
			{"ID", out.Record.ID},
			{"Name", out.Record.Name},
			{"IP", out.Record.IP},
			{"Firmware", out.Record.FirmwareVersion},
		})
		return nil

	case out.State == provision.StateConfirmed && errors.Is(out.Err, provision.ErrPersistFailed):
		p.PrintError("Light provisioned, but saving it failed", out.Err, []string{
			"The light is on your WiFi; 'lumen scan' will find it",
			"Check permissions on the config directory, then re-run provisioning",
		})
		return fmt.Errorf("provisioning incomplete")

	case out.State == provision.StateTimedOut:
		p.PrintError("The light never joined the network", out.Err, []string{
			"Double-check the WiFi name and password",
			"The light only supports 2.4 GHz networks",
			"Keep the light close to your access point and try again",
		})
		return fmt.Errorf("provisioning failed")

	case errors.Is(out.Err, provision.ErrCredentialWrite):
		p.PrintError("Could not send credentials to the light", out.Err, []string{
			"Your machine may have dropped off the setup hotspot; rejoin it",
			"Power-cycle the light to restart setup mode",
		})
		return fmt.Errorf("provisioning failed")

	case errors.Is(out.Err, provision.ErrConfirmation):
		p.PrintError("The light joined WiFi but the handshake broke off", out.Err, []string{
			"Run 'lumen provision' again to complete the pairing",
		})
		return fmt.Errorf("provisioning failed")

	default:
		p.PrintError("Provisioning failed", out.Err, nil)
		return fmt.Errorf("provisioning failed")
	}
}

// promptCredentials collects the WiFi credentials, reading the password
// with echo off.
func promptCredentials() (radio.Credentials, error) {
	creds := radio.Credentials{SSID: ssidFlag, Password: passwordFlag}
	reader := bufio.NewReader(os.Stdin)

	if creds.SSID == "" {
		fmt.Print("WiFi network (SSID): ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return creds, fmt.Errorf("failed to read SSID: %w", err)
		}
		creds.SSID = strings.TrimSpace(line)
	}

	if creds.Password == "" {
		fmt.Print("WiFi password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return creds, fmt.Errorf("failed to read password: %w", err)
		}
		creds.Password = string(raw)
	}

	if creds.SSID == "" || creds.Password == "" {
		return creds, fmt.Errorf("both SSID and password are required")
	}
	return creds, nil
}

var statusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show a light's current state",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	rec, err := resolveRecord(store, args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := control.NewClient(rec.IP)
	if _, err := client.Online(ctx); err != nil {
		// The light may have moved to a new address since we last saw it
		if updated := reResolveIP(store, rec); updated != nil {
			rec = updated
			client = control.NewClient(rec.IP)
			_, err = client.Online(ctx)
		}
		if err != nil {
			return printOffline(rec, err)
		}
	}

	light, err := client.Light(ctx)
	if err != nil {
		return printOffline(rec, err)
	}
	info, err := client.GetFirmwareInfo(ctx)
	if err != nil {
		return printOffline(rec, err)
	}

	details := [][2]string{
		{"ID", rec.ID},
		{"IP", rec.IP},
		{"Light", light.State},
		{"Firmware", info.Version},
		{"Built", info.BuildTimestamp()},
	}
	if info.OTAInProgress {
		details = append(details, [2]string{"Update", "in progress"})
	}
	ui.NewPrinter(nil).PrintSuccess("Light "+rec.ID+" is online", details)
	return nil
}

// printOffline reports an unreachable light, distinguishing a timeout from
// an active refusal.
func printOffline(rec *registry.Record, err error) error {
	title := "Light " + rec.ID + " is offline"
	tips := []string{
		"Check the light has power",
		"Run 'lumen scan' to see if it moved to a new address",
	}
	if control.IsTimeout(err) {
		title = "Light " + rec.ID + " is not answering"
		tips = append([]string{"The light may be rebooting; try again shortly"}, tips...)
	}
	ui.NewPrinter(nil).PrintError(title, err, tips)
	return fmt.Errorf("device offline")
}

var toggleCmd = &cobra.Command{
	Use:   "toggle [id]",
	Short: "Toggle a light on or off",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		rec, err := resolveRecord(store, args)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		client := control.NewClient(rec.IP)
		state, err := client.Toggle(ctx)
		if err != nil && control.IsOffline(err) {
			if updated := reResolveIP(store, rec); updated != nil {
				rec = updated
				client = control.NewClient(rec.IP)
				state, err = client.Toggle(ctx)
			}
		}
		if err != nil {
			return printOffline(rec, err)
		}

		fmt.Printf("Light %s is now %s\n", rec.ID, state)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Update a light's firmware",
	Long: `Start a firmware update and watch its progress.

The update keeps running on the light even if you quit the progress
screen; running 'lumen update' again resumes watching it. If a previous
run left an update in flight, this command resumes automatically and
--url is not needed.`,
	Example: `  lumen update --url http://example.com/fw.bin
  lumen update AB12 --url http://example.com/fw.bin

  # Resume watching an in-flight update
  lumen update AB12`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().StringVar(&updateURL, "url", "", "Firmware image URL")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	rec, err := resolveRecord(store, args)
	if err != nil {
		return err
	}

	sup := ota.NewSupervisor(store, ota.DefaultConfig())
	program := tea.NewProgram(ui.NewUpdateModel(rec.ID))

	onProgress := func(s ota.Snapshot) {
		program.Send(ui.SnapshotMsg(s))
	}

	var monitor *ota.Monitor
	if rec.OTAInProgress {
		monitor, _, err = sup.Resume(rec, onProgress)
		if err != nil {
			return err
		}
		if monitor != nil {
			fmt.Printf("Resuming update already in flight on %s\n", rec.ID)
		}
	}
	if monitor == nil {
		if updateURL == "" {
			return fmt.Errorf("no update in flight on %s; pass --url", rec.ID)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		monitor, _, err = sup.Start(ctx, rec, updateURL, onProgress)
		if err != nil {
			ui.NewPrinter(nil).PrintError("Could not start the update", err, []string{
				"Check the light is online ('lumen status')",
				"The firmware URL must be reachable from the light itself",
			})
			return fmt.Errorf("update failed")
		}
	}

	go func() {
		<-monitor.Done()
		program.Send(ui.UpdateDoneMsg{})
	}()

	final, err := program.Run()
	if err != nil {
		monitor.Stop()
		return fmt.Errorf("progress screen error: %w", err)
	}

	model := final.(ui.UpdateModel)
	if model.Cancelled() {
		// Teardown, not completion: the rollout continues on the light and
		// 'lumen update' resumes watching it.
		monitor.Stop()
		fmt.Printf("Left the update running on %s. 'lumen update %s' resumes watching it.\n", rec.ID, rec.ID)
		return nil
	}
	if model.Err() != nil {
		return model.Err()
	}

	if updated, err := store.Get(rec.ID); err == nil && updated != nil {
		fmt.Printf("Light %s updated to firmware %s\n", rec.ID, updated.FirmwareVersion)
	}
	return nil
}

var watchCmd = &cobra.Command{
	Use:   "watch [id]",
	Short: "Watch a light's reachability and state",
	Long: `Poll a light on a fixed interval and print each observation.

If an update is in flight on the light, its progress is folded into the
output at a slower poll rate. Stop with Ctrl-C.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().IntVar(&watchInterval, "interval", 5, "Poll interval in seconds")
}

func runWatch(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	rec, err := resolveRecord(store, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := probe.New(rec, store, time.Duration(watchInterval)*time.Second, func(s probe.Status) {
		version := ""
		if s.Firmware != nil {
			version = s.Firmware.Version
		}
		fmt.Println(ui.RenderStatusLine(s.DeviceID, s.Online, s.LightOn, version))
	})

	// A rollout that began before this process is picked back up at the
	// background poll rate.
	sup := ota.NewSupervisor(store, ota.SlowConfig())
	if monitor, resumed, err := sup.Resume(rec, func(s ota.Snapshot) {
		if s.InProgress {
			fmt.Printf("  update %d%% (%s)\n", s.Percent, s.Status)
		} else {
			fmt.Println("  update complete")
		}
	}); err == nil && resumed {
		fmt.Printf("Update in flight on %s; folding progress into the watch\n", rec.ID)
		defer monitor.Stop()
	}

	fmt.Printf("Watching %s every %ds (Ctrl-C to stop)\n\n", rec.ID, watchInterval)
	p.Start()
	<-ctx.Done()
	p.Stop()
	fmt.Println()
	return nil
}
