package control

// HTTP API paths served by the light's firmware.
const (
	PathOnline       = "/online"
	PathLight        = "/light"
	PathToggle       = "/toggle"
	PathFirmwareInfo = "/ota/firmware-info"
	PathOTAUpdate    = "/ota/update"
	PathOTAProgress  = "/ota/progress"
)

// OnlineStatus is the response of GET /online.
type OnlineStatus struct {
	Device int    `json:"device"`
	State  string `json:"state"`
}

// LightStatus is the response of GET /light. State is "on" or "off".
type LightStatus struct {
	State string `json:"state"`
}

// FirmwareInfo is the response of GET /ota/firmware-info. Field names
// mirror the firmware's JSON keys.
type FirmwareInfo struct {
	Version       string `json:"version"`
	ProjectName   string `json:"project_name"`
	AppELFSHA256  string `json:"app_elf_sha256"`
	Date          string `json:"date"` // Build date, e.g. "Mar 10 2026"
	Time          string `json:"time"` // Build time, e.g. "12:00:00"
	OTAInProgress bool   `json:"ota_in_progress"`
}

// BuildTimestamp joins the firmware's build date and time fields.
func (f *FirmwareInfo) BuildTimestamp() string {
	if f.Date == "" {
		return f.Time
	}
	if f.Time == "" {
		return f.Date
	}
	return f.Date + " " + f.Time
}

// UpdateRequest is the body of POST /ota/update.
type UpdateRequest struct {
	URL string `json:"url"`
}

// UpdateResponse is the response of POST /ota/update.
type UpdateResponse struct {
	Status string `json:"status"`
}

// Progress is the response of GET /ota/progress. Percent is a pointer
// because the firmware omits it before the download has produced a
// measurable value.
type Progress struct {
	InProgress bool   `json:"in_progress"`
	Percent    *int   `json:"progress,omitempty"`
	Status     string `json:"status,omitempty"`
}
