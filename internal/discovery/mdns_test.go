package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestScanner_parseServiceEntry(t *testing.T) {
	scanner := NewScanner()

	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		wantID   string
		wantIP   string
		wantPort int
	}{
		{
			name: "light with IPv4",
			entry: &zeroconf.ServiceEntry{
				HostName: "ESP-C6-Light-AB12.local.",
				Port:     80,
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.50")},
				Text:     []string{"path=/"},
			},
			wantID:   "AB12",
			wantIP:   "192.168.1.50",
			wantPort: 80,
		},
		{
			name: "hostname without trailing dot",
			entry: &zeroconf.ServiceEntry{
				HostName: "ESP-C6-Light-7F3C.local",
				Port:     80,
				AddrIPv4: []net.IP{net.ParseIP("10.0.0.5")},
			},
			wantID:   "7F3C",
			wantIP:   "10.0.0.5",
			wantPort: 80,
		},
		{
			name: "lowercase hex ID is normalized",
			entry: &zeroconf.ServiceEntry{
				HostName: "ESP-C6-Light-ab12.local",
				Port:     80,
				AddrIPv4: []net.IP{net.ParseIP("10.0.0.6")},
			},
			wantID:   "AB12",
			wantIP:   "10.0.0.6",
			wantPort: 80,
		},
		{
			name: "no port defaults to 80",
			entry: &zeroconf.ServiceEntry{
				HostName: "ESP-C6-Light-1234.local",
				Port:     0,
				AddrIPv4: []net.IP{net.ParseIP("172.16.0.1")},
			},
			wantID:   "1234",
			wantIP:   "172.16.0.1",
			wantPort: 80,
		},
		{
			name: "unrelated device",
			entry: &zeroconf.ServiceEntry{
				HostName: "printer.local",
				Port:     80,
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.1")},
			},
			wantNil: true,
		},
		{
			name: "empty hostname",
			entry: &zeroconf.ServiceEntry{
				HostName: "",
				Port:     80,
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.1")},
			},
			wantNil: true,
		},
		{
			name: "no address",
			entry: &zeroconf.ServiceEntry{
				HostName: "ESP-C6-Light-AB12.local",
				Port:     80,
			},
			wantNil: true,
		},
		{
			name: "IPv6 only",
			entry: &zeroconf.ServiceEntry{
				HostName: "ESP-C6-Light-CAFE.local",
				Port:     80,
				AddrIPv6: []net.IP{net.ParseIP("fe80::1")},
			},
			wantID:   "CAFE",
			wantIP:   "fe80::1",
			wantPort: 80,
		},
		{
			name: "both families prefers IPv4",
			entry: &zeroconf.ServiceEntry{
				HostName: "ESP-C6-Light-BEEF.local",
				Port:     80,
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.60")},
				AddrIPv6: []net.IP{net.ParseIP("fe80::2")},
			},
			wantID:   "BEEF",
			wantIP:   "192.168.1.60",
			wantPort: 80,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := scanner.parseServiceEntry(tt.entry)

			if tt.wantNil {
				if device != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", device)
				}
				return
			}
			if device == nil {
				t.Fatal("parseServiceEntry() = nil, want device")
			}
			if device.ID != tt.wantID {
				t.Errorf("device.ID = %v, want %v", device.ID, tt.wantID)
			}
			if device.IP != tt.wantIP {
				t.Errorf("device.IP = %v, want %v", device.IP, tt.wantIP)
			}
			if device.Port != tt.wantPort {
				t.Errorf("device.Port = %v, want %v", device.Port, tt.wantPort)
			}
			if time.Since(device.DiscoveredAt) > time.Second {
				t.Errorf("device.DiscoveredAt is not recent: %v", device.DiscoveredAt)
			}
		})
	}
}

func TestHostnamePattern(t *testing.T) {
	tests := []struct {
		hostname    string
		shouldMatch bool
		id          string
	}{
		{"ESP-C6-Light-AB12.local", true, "AB12"},
		{"ESP-C6-Light-AB12.local.", true, "AB12"},
		{"ESP-C6-Light-ab12.local", true, "ab12"},
		{"ESP-C6-Light-0A1B2C3D.local", true, "0A1B2C3D"},
		{"esp-c6-light-AB12.local", false, ""}, // prefix is case-sensitive
		{"ESP-C6-Light-.local", false, ""},     // no ID
		{"ESP-C6-Light-XYZ9.local", false, ""}, // non-hex ID
		{"ESP-C6-Light-AB.local", false, ""},   // ID too short
		{"ESP-C6-Light-AB12", false, ""},       // missing .local
		{"somedevice.local", false, ""},
		{"", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			matches := hostnamePattern.FindStringSubmatch(tt.hostname)
			if tt.shouldMatch {
				if len(matches) < 2 {
					t.Fatalf("hostnamePattern did not match %q", tt.hostname)
				}
				if matches[1] != tt.id {
					t.Errorf("matched %q with ID %q, want %q", tt.hostname, matches[1], tt.id)
				}
			} else if matches != nil {
				t.Errorf("hostnamePattern matched %q, want no match", tt.hostname)
			}
		})
	}
}

func TestDeviceRecord(t *testing.T) {
	d := &Device{ID: "AB12", Hostname: "ESP-C6-Light-AB12.local.", IP: "192.168.1.50", Port: 80}
	rec := d.Record()
	if rec.ID != "AB12" {
		t.Errorf("rec.ID = %s, want AB12", rec.ID)
	}
	if rec.Name != "ESP-C6-Light-AB12" {
		t.Errorf("rec.Name = %s", rec.Name)
	}
	if rec.IP != "192.168.1.50" {
		t.Errorf("rec.IP = %s", rec.IP)
	}
	if rec.OTAInProgress {
		t.Error("fresh record must not claim an update in flight")
	}
}

func TestDeviceBaseURL(t *testing.T) {
	d := &Device{ID: "AB12", IP: "192.168.1.50", Port: 8080}
	if got := d.BaseURL(); got != "http://192.168.1.50:8080" {
		t.Errorf("BaseURL() = %s", got)
	}
}
