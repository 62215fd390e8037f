package discovery

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type the lights advertise under.
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain.
	ServiceDomain = "local."

	// DefaultScanTimeout bounds a discovery pass.
	DefaultScanTimeout = 10 * time.Second

	// DefaultPort is the control API port when the advertisement omits one.
	DefaultPort = 80
)

// hostnamePattern matches light hostnames, e.g. "ESP-C6-Light-AB12.local.".
// The suffix is the device's short identifier.
var hostnamePattern = regexp.MustCompile(`^ESP-C6-Light-([0-9A-Fa-f]{4,12})\.local\.?$`)

// Scanner discovers lights over mDNS.
type Scanner struct {
	// Timeout is the maximum time one discovery pass waits for answers.
	Timeout time.Duration
}

// NewScanner creates a scanner with the default timeout.
func NewScanner() *Scanner {
	return &Scanner{Timeout: DefaultScanTimeout}
}

// ScanForDevices discovers all lights on the local network, waiting the
// full timeout to collect answers.
func (s *Scanner) ScanForDevices() ([]*Device, error) {
	return s.ScanForDevicesWithContext(context.Background())
}

// ScanForDevicesWithContext discovers lights with a caller-supplied context.
func (s *Scanner) ScanForDevicesWithContext(ctx context.Context) ([]*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	devices := make([]*Device, 0)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		for entry := range entries {
			if device := s.parseServiceEntry(entry); device != nil {
				devices = append(devices, device)
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	return devices, nil
}

// WaitForDevice browses until the light with the given ID answers, or the
// timeout elapses. The comparison is case-insensitive: IDs are hex.
func (s *Scanner) WaitForDevice(id string) (*Device, error) {
	return s.WaitForDeviceWithContext(context.Background(), id)
}

// WaitForDeviceWithContext waits for a specific light with a caller context.
func (s *Scanner) WaitForDeviceWithContext(ctx context.Context, id string) (*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	deviceChan := make(chan *Device, 1)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		for entry := range entries {
			device := s.parseServiceEntry(entry)
			if device != nil && strings.EqualFold(device.ID, id) {
				deviceChan <- device
				cancel()
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case device := <-deviceChan:
		return device, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("light %s not found within timeout", id)
	}
}

// parseServiceEntry converts a zeroconf entry to a Device, or nil when the
// entry is not one of our lights.
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	hostname := entry.HostName
	if hostname == "" {
		return nil
	}

	matches := hostnamePattern.FindStringSubmatch(hostname)
	if len(matches) < 2 {
		return nil
	}
	id := strings.ToUpper(matches[1])

	// Prefer IPv4; the firmware's HTTP stack is v4-only in practice
	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	return &Device{
		ID:           id,
		Hostname:     hostname,
		IP:           ip,
		Port:         port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// ScanForDevices scans with a custom timeout.
func ScanForDevices(timeout time.Duration) ([]*Device, error) {
	scanner := NewScanner()
	scanner.Timeout = timeout
	return scanner.ScanForDevices()
}

// QuickScan performs a fast scan with a 3-second timeout.
func QuickScan() ([]*Device, error) {
	scanner := NewScanner()
	scanner.Timeout = 3 * time.Second
	return scanner.ScanForDevices()
}

// FindDevice searches for one light by ID with the default timeout.
func FindDevice(id string) (*Device, error) {
	return NewScanner().WaitForDevice(id)
}
