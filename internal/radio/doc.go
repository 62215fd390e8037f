// Package radio defines the short-range link used to bootstrap a light onto
// the network, and the payloads exchanged over it.
//
// The provisioning service on the light exposes two characteristics: a
// write-only WiFi characteristic that accepts credential and confirmation
// payloads, and a device-info characteristic that holds a zero sentinel
// until the light joins WiFi, then carries its network identity (readable
// and notifiable). All payloads are UTF-8 JSON; the GATT layer transports
// them base64-encoded.
//
// The Link interface is deliberately narrow so the handshake engine can be
// driven by any transport. Bridge is the concrete implementation shipped
// with the CLI: lights in setup mode open a SoftAP and bridge their
// characteristics over a WebSocket at ws://192.168.4.1/bridge, which lets a
// laptop without a usable BLE stack provision them.
package radio
