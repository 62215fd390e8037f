package simulator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aldervik/lumen/internal/control"
	"github.com/aldervik/lumen/internal/logging"
	"github.com/aldervik/lumen/internal/radio"
)

// Options configures a simulated light.
type Options struct {
	// ID is the device's short identifier (e.g. "AB12").
	ID string

	// IP is the address the device reports after joining WiFi.
	IP string

	// Version and ProjectName describe the running firmware.
	Version     string
	ProjectName string

	// NextVersion is what the firmware reports after a completed update.
	NextVersion string

	// JoinDelay is how long the device "takes" to join WiFi after a
	// credential write.
	JoinDelay time.Duration

	// PushNotifications controls whether the device notifies the
	// device-info characteristic on join. Real units are flaky about this;
	// turning it off exercises the polling fallback.
	PushNotifications bool

	// ProgressStep is the percent advance per progress poll during an
	// update.
	ProgressStep int
}

func (o Options) withDefaults() Options {
	if o.ID == "" {
		o.ID = "AB12"
	}
	if o.IP == "" {
		o.IP = "192.168.1.50"
	}
	if o.Version == "" {
		o.Version = "1.0.0"
	}
	if o.ProjectName == "" {
		o.ProjectName = "esp_c6_light"
	}
	if o.NextVersion == "" {
		o.NextVersion = o.Version
	}
	if o.JoinDelay <= 0 {
		o.JoinDelay = 500 * time.Millisecond
	}
	if o.ProgressStep <= 0 {
		o.ProgressStep = 25
	}
	return o
}

// Simulator is an in-process stand-in for a light's firmware: the HTTP
// control API plus the setup-mode characteristic bridge, backed by one
// shared device state.
type Simulator struct {
	opts Options

	mu        sync.Mutex
	lightOn   bool
	ssid      string
	password  string
	joined    bool
	confirmed bool

	otaInProgress bool
	otaPercent    int
	version       string

	conns map[*bridgeConn]struct{}
}

// New creates a simulated light.
func New(opts Options) *Simulator {
	opts = opts.withDefaults()
	return &Simulator{
		opts:    opts,
		version: opts.Version,
		conns:   make(map[*bridgeConn]struct{}),
	}
}

// Name returns the device's advertised name.
func (s *Simulator) Name() string {
	return radio.DeviceNamePrefix + "-" + s.opts.ID
}

// Joined reports whether the device has joined WiFi.
func (s *Simulator) Joined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined
}

// Confirmed reports whether the controller acknowledged provisioning.
func (s *Simulator) Confirmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed
}

// SSID returns the credentials last written to the device.
func (s *Simulator) SSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ssid
}

// LightOn reports the light's on/off state.
func (s *Simulator) LightOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lightOn
}

// Handler returns the device's full HTTP surface: the control API and the
// characteristic bridge at /bridge.
func (s *Simulator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(control.PathOnline, s.handleOnline)
	mux.HandleFunc(control.PathLight, s.handleLight)
	mux.HandleFunc(control.PathToggle, s.handleToggle)
	mux.HandleFunc(control.PathFirmwareInfo, s.handleFirmwareInfo)
	mux.HandleFunc(control.PathOTAUpdate, s.handleOTAUpdate)
	mux.HandleFunc(control.PathOTAProgress, s.handleOTAProgress)
	mux.HandleFunc("/bridge", s.handleBridge)
	return mux
}

func (s *Simulator) handleOnline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, control.OnlineStatus{Device: 1, State: "ready"})
}

func (s *Simulator) handleLight(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	state := lightState(s.lightOn)
	s.mu.Unlock()
	writeJSON(w, control.LightStatus{State: state})
}

// handleToggle flips the light. The firmware answers in plain text, not
// JSON; the client treats the body as the new state.
func (s *Simulator) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	s.lightOn = !s.lightOn
	state := lightState(s.lightOn)
	s.mu.Unlock()
	fmt.Fprint(w, state)
}

func (s *Simulator) handleFirmwareInfo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	info := control.FirmwareInfo{
		Version:       s.version,
		ProjectName:   s.opts.ProjectName,
		Date:          "Mar 10 2026",
		Time:          "12:00:00",
		OTAInProgress: s.otaInProgress,
	}
	s.mu.Unlock()
	writeJSON(w, info)
}

func (s *Simulator) handleOTAUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req control.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "missing firmware url")
		return
	}

	s.mu.Lock()
	if s.otaInProgress {
		s.mu.Unlock()
		writeJSON(w, control.UpdateResponse{Status: "already in progress"})
		return
	}
	s.otaInProgress = true
	s.otaPercent = 0
	s.mu.Unlock()

	logging.Info("Simulated update started", zap.String("url", req.URL))
	writeJSON(w, control.UpdateResponse{Status: "started"})
}

// handleOTAProgress advances the simulated download one step per poll and
// completes it at 100 percent. Like the firmware, the percent field is
// omitted before the first measurable step.
func (s *Simulator) handleOTAProgress(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.otaInProgress {
		writeJSON(w, control.Progress{InProgress: false})
		return
	}

	resp := control.Progress{InProgress: true, Status: "downloading"}
	if s.otaPercent > 0 {
		p := s.otaPercent
		resp.Percent = &p
	}
	s.otaPercent += s.opts.ProgressStep
	if s.otaPercent > 100 {
		s.otaInProgress = false
		s.version = s.opts.NextVersion
	}
	writeJSON(w, resp)
}

// applyWrite handles a characteristic write arriving over the bridge.
func (s *Simulator) applyWrite(serviceUUID, charUUID string, value []byte) error {
	if serviceUUID != radio.ServiceUUID || charUUID != radio.WiFiCharacteristicUUID {
		return fmt.Errorf("characteristic %s is not writable", charUUID)
	}

	// Credential and confirmation payloads share the characteristic; tell
	// them apart by shape.
	var msg struct {
		SSID     *string `json:"ssid"`
		Password *string `json:"password"`
		Success  *int    `json:"success"`
	}
	if err := json.Unmarshal(value, &msg); err != nil {
		return fmt.Errorf("malformed payload: %v", err)
	}

	switch {
	case msg.Success != nil:
		s.mu.Lock()
		joined := s.joined
		if joined && *msg.Success == 1 {
			s.confirmed = true
		}
		s.mu.Unlock()
		if !joined {
			return fmt.Errorf("confirmation before join")
		}
		logging.Debug("Simulated device confirmed", zap.String("id", s.opts.ID))
		return nil

	case msg.SSID != nil && msg.Password != nil:
		s.mu.Lock()
		s.ssid = *msg.SSID
		s.password = *msg.Password
		s.mu.Unlock()
		time.AfterFunc(s.opts.JoinDelay, s.join)
		logging.Debug("Simulated device received credentials", zap.String("ssid", *msg.SSID))
		return nil

	default:
		return fmt.Errorf("unrecognized payload")
	}
}

// join marks the device as on the network and, when enabled, pushes the
// device-info notification.
func (s *Simulator) join() {
	s.mu.Lock()
	if s.joined {
		s.mu.Unlock()
		return
	}
	s.joined = true
	push := s.opts.PushNotifications
	s.mu.Unlock()

	logging.Debug("Simulated device joined network", zap.String("id", s.opts.ID))
	if push {
		s.notify(radio.ServiceUUID, radio.DeviceInfoCharacteristicUUID, s.deviceInfoValue())
	}
}

// readCharacteristic handles a characteristic read arriving over the bridge.
func (s *Simulator) readCharacteristic(serviceUUID, charUUID string) ([]byte, error) {
	if serviceUUID != radio.ServiceUUID || charUUID != radio.DeviceInfoCharacteristicUUID {
		return nil, fmt.Errorf("characteristic %s is not readable", charUUID)
	}
	return s.deviceInfoValue(), nil
}

// deviceInfoValue is the device-info characteristic: a single zero byte
// until the device joins, its network identity afterwards.
func (s *Simulator) deviceInfoValue() []byte {
	s.mu.Lock()
	joined := s.joined
	version := s.version
	s.mu.Unlock()

	if !joined {
		return []byte{0x00}
	}
	data, _ := json.Marshal(radio.DeviceInfo{
		Name:    s.Name(),
		ID:      s.opts.ID,
		IP:      s.opts.IP,
		Version: version,
	})
	return data
}

func lightState(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
