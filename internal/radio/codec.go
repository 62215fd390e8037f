package radio

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Credentials is the WiFi credential payload written to the light during
// provisioning.
type Credentials struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// Confirmation is the acknowledgment payload written to the light after its
// network identity has been received and stored.
type Confirmation struct {
	Success int `json:"success"` // 1 = provisioned, 0 = rejected
}

// DeviceInfo is the network identity the light publishes on the device-info
// characteristic once it has joined WiFi.
//
//	{"name":"ESP-C6-Light-AB12","id":"AB12","ip":"192.168.1.50","version":"1.0.0"}
type DeviceInfo struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	IP      string `json:"ip"`
	Version string `json:"version"`
}

// EncodeCredentials serializes a credential payload. Both fields are
// required; the firmware rejects empty writes by going silent, which is far
// harder to diagnose than failing here.
func EncodeCredentials(c Credentials) ([]byte, error) {
	if c.SSID == "" {
		return nil, fmt.Errorf("credentials missing ssid")
	}
	if c.Password == "" {
		return nil, fmt.Errorf("credentials missing password")
	}
	return json.Marshal(c)
}

// EncodeConfirmation serializes a confirmation payload.
func EncodeConfirmation(success bool) []byte {
	v := 0
	if success {
		v = 1
	}
	data, _ := json.Marshal(Confirmation{Success: v})
	return data
}

// DecodeDeviceInfo parses a device-info characteristic value.
//
// The firmware leaves the characteristic holding a single zero byte until
// it has joined WiFi; that sentinel (and an empty value) decodes to
// ErrNotReady so polling callers can keep waiting. A value that parses but
// lacks the ip field is a protocol violation: the payload arrived, it is
// just unusable.
func DecodeDeviceInfo(raw []byte) (*DeviceInfo, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || isZeroSentinel(trimmed) {
		return nil, ErrNotReady
	}

	var info DeviceInfo
	if err := json.Unmarshal(trimmed, &info); err != nil {
		return nil, &ProtocolError{Message: "malformed device info payload", Err: err}
	}
	if info.IP == "" {
		return nil, &ProtocolError{Message: "device info payload missing ip"}
	}
	return &info, nil
}

// isZeroSentinel reports whether the value is the firmware's "not joined
// yet" placeholder (one or more NUL bytes).
func isZeroSentinel(raw []byte) bool {
	for _, b := range raw {
		if b != 0 {
			return false
		}
	}
	return true
}
