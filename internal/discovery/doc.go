// Package discovery finds lights on the local network over mDNS.
//
// Once provisioned, a light advertises its control API as an "_http._tcp"
// service with a hostname of the form "ESP-C6-Light-<ID>.local", where the
// ID is the device's short identifier. A Scanner browses for those
// advertisements and returns the matching devices; everything else on the
// network is filtered out by hostname.
//
// Discovery also serves as the IP fallback: when a saved device stops
// answering at its recorded address (DHCP moved it), WaitForDevice
// re-resolves it by ID.
//
// Requires multicast on the local segment (UDP port 5353).
package discovery
