package radio

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeCredentials(t *testing.T) {
	data, err := EncodeCredentials(Credentials{SSID: "Home", Password: "secret123"})
	if err != nil {
		t.Fatalf("EncodeCredentials() error = %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if decoded["ssid"] != "Home" {
		t.Errorf("ssid = %s, want Home", decoded["ssid"])
	}
	if decoded["password"] != "secret123" {
		t.Errorf("password = %s, want secret123", decoded["password"])
	}
}

func TestEncodeCredentialsValidation(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
	}{
		{"missing ssid", Credentials{Password: "secret123"}},
		{"missing password", Credentials{SSID: "Home"}},
		{"both empty", Credentials{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeCredentials(tt.creds); err == nil {
				t.Error("EncodeCredentials() should reject incomplete credentials")
			}
		})
	}
}

func TestEncodeConfirmation(t *testing.T) {
	var conf Confirmation
	if err := json.Unmarshal(EncodeConfirmation(true), &conf); err != nil {
		t.Fatalf("confirmation is not valid JSON: %v", err)
	}
	if conf.Success != 1 {
		t.Errorf("success = %d, want 1", conf.Success)
	}

	if err := json.Unmarshal(EncodeConfirmation(false), &conf); err != nil {
		t.Fatalf("confirmation is not valid JSON: %v", err)
	}
	if conf.Success != 0 {
		t.Errorf("success = %d, want 0", conf.Success)
	}
}

func TestDecodeDeviceInfo(t *testing.T) {
	raw := []byte(`{"name":"ESP-C6-Light-AB12","id":"AB12","ip":"192.168.1.50","version":"1.0.0"}`)

	info, err := DecodeDeviceInfo(raw)
	if err != nil {
		t.Fatalf("DecodeDeviceInfo() error = %v", err)
	}
	if info.ID != "AB12" {
		t.Errorf("ID = %s, want AB12", info.ID)
	}
	if info.IP != "192.168.1.50" {
		t.Errorf("IP = %s, want 192.168.1.50", info.IP)
	}
	if info.Name != "ESP-C6-Light-AB12" {
		t.Errorf("Name = %s, want ESP-C6-Light-AB12", info.Name)
	}
	if info.Version != "1.0.0" {
		t.Errorf("Version = %s, want 1.0.0", info.Version)
	}
}

func TestDecodeDeviceInfoNotReady(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", []byte{}},
		{"whitespace", []byte("  \n")},
		{"zero sentinel", []byte{0}},
		{"multiple zeros", []byte{0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDeviceInfo(tt.raw)
			if !errors.Is(err, ErrNotReady) {
				t.Errorf("DecodeDeviceInfo() error = %v, want ErrNotReady", err)
			}
		})
	}
}

func TestDecodeDeviceInfoViolations(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"malformed json", []byte(`{"name":`)},
		{"missing ip", []byte(`{"name":"ESP-C6-Light-AB12","id":"AB12","version":"1.0.0"}`)},
		{"not an object", []byte(`42`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDeviceInfo(tt.raw)
			if err == nil {
				t.Fatal("DecodeDeviceInfo() should fail")
			}
			if !IsProtocolViolation(err) {
				t.Errorf("error = %v, want protocol violation", err)
			}
			if errors.Is(err, ErrNotReady) {
				t.Error("violation must be distinguishable from not-ready")
			}
		})
	}
}
