package discovery

import (
	"fmt"
	"time"

	"github.com/aldervik/lumen/internal/registry"
)

// Device is a light found on the local network.
type Device struct {
	// ID is the short device identifier from the hostname (e.g. "AB12")
	ID string

	// Hostname is the mDNS hostname (e.g. "ESP-C6-Light-AB12.local.")
	Hostname string

	// IP is the address to reach the control API on
	IP string

	// Port is the control API port (normally 80)
	Port int

	// Metadata holds the mDNS TXT records, key=value
	Metadata map[string]string

	// DiscoveredAt is when the advertisement was seen
	DiscoveredAt time.Time
}

// String returns a human-readable description of the device.
func (d *Device) String() string {
	return fmt.Sprintf("Light %s (%s) at %s:%d", d.ID, d.Hostname, d.IP, d.Port)
}

// BaseURL returns the control API base URL for the device.
func (d *Device) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", d.IP, d.Port)
}

// GetMetadata returns the TXT record value for key, or "".
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}

// Record converts the discovery result into a registry record skeleton.
// Fields mDNS cannot know (firmware metadata, flags) stay zero and are
// filled in by the connectivity probe.
func (d *Device) Record() *registry.Record {
	return &registry.Record{
		ID:   d.ID,
		Name: "ESP-C6-Light-" + d.ID,
		IP:   d.IP,
	}
}
