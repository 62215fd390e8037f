package registry

import "time"

// Record is the identity and last-known state of a paired light.
// Records are keyed by the device's stable short identifier (the suffix of
// its advertised name, e.g. "AB12" for "ESP-C6-Light-AB12"). The ID never
// changes after creation.
type Record struct {
	ID              string    `yaml:"id" json:"id"`
	Name            string    `yaml:"name" json:"name"`
	IP              string    `yaml:"ip" json:"ip"`                             // Last known network address
	FirmwareVersion string    `yaml:"firmware_version" json:"firmwareVersion"`  // e.g. "1.0.0"
	ProjectName     string    `yaml:"project_name,omitempty" json:"projectName"` // Firmware project name
	BuildTimestamp  string    `yaml:"build_timestamp,omitempty" json:"buildTimestamp"`
	LastConnectedAt time.Time `yaml:"last_connected_at" json:"lastConnectedAt"`
	OTAInProgress   bool      `yaml:"ota_in_progress" json:"otaInProgress"` // Durable flag, survives restarts
}

// Clone returns a copy of the record so callers can mutate it without
// affecting the stored version.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	copy := *r
	return &copy
}

// Touch updates the last-connected timestamp to now.
func (r *Record) Touch() {
	r.LastConnectedAt = time.Now()
}
