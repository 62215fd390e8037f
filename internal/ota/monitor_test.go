package ota

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aldervik/lumen/internal/control"
	"github.com/aldervik/lumen/internal/registry"
)

// fakeDevice serves the OTA endpoints with a scripted sequence of progress
// responses and counts calls per endpoint.
type fakeDevice struct {
	mu        sync.Mutex
	responses []control.Progress // consumed one per progress poll; last repeats
	rn        int

	startCalls    atomic.Int32
	progressCalls atomic.Int32
	infoCalls     atomic.Int32

	firmware control.FirmwareInfo
	server   *httptest.Server
}

func newFakeDevice(t *testing.T, responses []control.Progress) *fakeDevice {
	t.Helper()
	d := &fakeDevice{
		responses: responses,
		firmware: control.FirmwareInfo{
			Version:     "1.1.0",
			ProjectName: "esp_c6_light",
			Date:        "Mar 10 2026",
			Time:        "12:00:00",
		},
	}
	d.server = httptest.NewServer(http.HandlerFunc(d.handle))
	t.Cleanup(d.server.Close)
	return d
}

func (d *fakeDevice) handle(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case control.PathOTAUpdate:
		d.startCalls.Add(1)
		json.NewEncoder(w).Encode(control.UpdateResponse{Status: "started"})
	case control.PathOTAProgress:
		d.progressCalls.Add(1)
		d.mu.Lock()
		resp := d.responses[d.rn]
		if d.rn < len(d.responses)-1 {
			d.rn++
		}
		d.mu.Unlock()
		json.NewEncoder(w).Encode(resp)
	case control.PathFirmwareInfo:
		d.infoCalls.Add(1)
		json.NewEncoder(w).Encode(d.firmware)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func pct(v int) *int { return &v }

func newTestSupervisor(store registry.Store, device *fakeDevice, cfg Config) *Supervisor {
	sup := NewSupervisor(store, cfg)
	sup.SetClientFactory(func(ip string) *control.Client {
		return control.NewClientWithURL(device.server.URL)
	})
	return sup
}

func fastConfig() Config {
	return Config{
		PollInterval: 10 * time.Millisecond,
		Ceiling:      5 * time.Second,
		RefreshDelay: 30 * time.Millisecond,
	}
}

func waitDone(t *testing.T, m *Monitor) {
	t.Helper()
	select {
	case <-m.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("monitor never finished")
	}
}

func TestMonotonicPercent(t *testing.T) {
	// Out-of-order and duplicated poll responses must never regress the
	// exposed percent.
	device := newFakeDevice(t, []control.Progress{
		{InProgress: true, Percent: pct(10)},
		{InProgress: true, Percent: pct(5)},
		{InProgress: true, Percent: pct(20)},
		{InProgress: true, Percent: pct(18)},
		{InProgress: true, Percent: pct(30)},
		{InProgress: false},
	})

	store := registry.NewMemStore()
	store.Put(&registry.Record{ID: "AB12", IP: "192.168.1.50"})

	var mu sync.Mutex
	var observed []int
	sup := newTestSupervisor(store, device, fastConfig())

	m, started, err := sup.Start(context.Background(), &registry.Record{ID: "AB12", IP: "192.168.1.50"}, "http://example.com/fw.bin", func(s Snapshot) {
		if s.InProgress {
			mu.Lock()
			observed = append(observed, s.Percent)
			mu.Unlock()
		}
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !started {
		t.Fatal("Start() should report a new monitor")
	}
	waitDone(t, m)

	mu.Lock()
	defer mu.Unlock()
	want := []int{10, 20, 30}
	if len(observed) != len(want) {
		t.Fatalf("observed = %v, want %v", observed, want)
	}
	for i := range want {
		if observed[i] != want[i] {
			t.Fatalf("observed = %v, want %v", observed, want)
		}
	}
}

func TestCompletionClearsFlagAndRefreshes(t *testing.T) {
	device := newFakeDevice(t, []control.Progress{
		{InProgress: true, Percent: pct(40)},
		{InProgress: false},
	})

	store := registry.NewMemStore()
	store.Put(&registry.Record{ID: "AB12", IP: "192.168.1.50", FirmwareVersion: "1.0.0"})

	sup := newTestSupervisor(store, device, fastConfig())
	m, _, err := sup.Start(context.Background(), &registry.Record{ID: "AB12", IP: "192.168.1.50"}, "http://example.com/fw.bin", nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// The durable flag is set while the rollout is active
	rec, _ := store.Get("AB12")
	if !rec.OTAInProgress {
		t.Error("OTAInProgress should be set after Start")
	}

	waitDone(t, m)

	rec, _ = store.Get("AB12")
	if rec.OTAInProgress {
		t.Error("OTAInProgress should be cleared after completion")
	}
	if got := device.infoCalls.Load(); got != 1 {
		t.Errorf("firmware-info refresh calls = %d, want 1", got)
	}
	if rec.FirmwareVersion != "1.1.0" {
		t.Errorf("FirmwareVersion = %s, want refreshed 1.1.0", rec.FirmwareVersion)
	}
	if rec.ProjectName != "esp_c6_light" {
		t.Errorf("ProjectName = %s, want esp_c6_light", rec.ProjectName)
	}
}

func TestResumeSkipsStartCall(t *testing.T) {
	device := newFakeDevice(t, []control.Progress{
		{InProgress: true, Percent: pct(80)},
		{InProgress: false},
	})

	// Simulates a restart: the flag is already durable
	store := registry.NewMemStore()
	store.Put(&registry.Record{ID: "AB12", IP: "192.168.1.50", OTAInProgress: true})

	sup := newTestSupervisor(store, device, fastConfig())
	m, resumed, err := sup.Resume(&registry.Record{ID: "AB12", IP: "192.168.1.50"}, nil)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if !resumed {
		t.Fatal("Resume() should pick up the in-flight rollout")
	}
	waitDone(t, m)

	if got := device.startCalls.Load(); got != 0 {
		t.Errorf("start-update calls = %d, want 0 on resume", got)
	}
	rec, _ := store.Get("AB12")
	if rec.OTAInProgress {
		t.Error("OTAInProgress should be cleared after resumed rollout completes")
	}
}

func TestResumeNothingToDo(t *testing.T) {
	device := newFakeDevice(t, []control.Progress{{InProgress: false}})
	store := registry.NewMemStore()
	store.Put(&registry.Record{ID: "AB12", IP: "192.168.1.50", OTAInProgress: false})

	sup := newTestSupervisor(store, device, fastConfig())
	m, resumed, err := sup.Resume(&registry.Record{ID: "AB12", IP: "192.168.1.50"}, nil)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed || m != nil {
		t.Error("Resume() should be a no-op when no rollout is recorded")
	}
	if got := device.progressCalls.Load(); got != 0 {
		t.Errorf("progress calls = %d, want 0", got)
	}
}

func TestSingleFlight(t *testing.T) {
	device := newFakeDevice(t, []control.Progress{
		{InProgress: true, Percent: pct(10)},
	})

	store := registry.NewMemStore()
	store.Put(&registry.Record{ID: "AB12", IP: "192.168.1.50"})

	sup := newTestSupervisor(store, device, fastConfig())
	rec := &registry.Record{ID: "AB12", IP: "192.168.1.50"}

	m1, started1, err := sup.Start(context.Background(), rec, "http://example.com/fw.bin", nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	m2, started2, err := sup.Start(context.Background(), rec, "http://example.com/fw.bin", nil)
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	if !started1 {
		t.Error("first Start() should start a monitor")
	}
	if started2 {
		t.Error("second Start() must be a no-op")
	}
	if m1 != m2 {
		t.Error("second Start() should return the already-active monitor")
	}
	if got := device.startCalls.Load(); got != 1 {
		t.Errorf("start-update calls = %d, want 1", got)
	}

	// Only one poll timer: stopping the monitor stops all polling
	m1.Stop()
	settled := device.progressCalls.Load()
	time.Sleep(100 * time.Millisecond)
	if got := device.progressCalls.Load(); got != settled {
		t.Errorf("progress calls went from %d to %d after Stop, want no change", settled, got)
	}
}

func TestStopCancelsPolling(t *testing.T) {
	device := newFakeDevice(t, []control.Progress{
		{InProgress: true, Percent: pct(10)},
	})

	store := registry.NewMemStore()
	store.Put(&registry.Record{ID: "AB12", IP: "192.168.1.50", OTAInProgress: true})

	sup := newTestSupervisor(store, device, fastConfig())
	m, _, err := sup.Resume(&registry.Record{ID: "AB12", IP: "192.168.1.50"}, nil)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	// Let it poll a few times, then tear down
	time.Sleep(50 * time.Millisecond)
	m.Stop()

	settled := device.progressCalls.Load()
	if settled == 0 {
		t.Fatal("monitor never polled before Stop")
	}
	time.Sleep(100 * time.Millisecond)
	if got := device.progressCalls.Load(); got != settled {
		t.Errorf("progress calls went from %d to %d after Stop, want no change", settled, got)
	}

	// Teardown is not completion: the durable flag stays for a later Resume
	rec, _ := store.Get("AB12")
	if !rec.OTAInProgress {
		t.Error("Stop must leave OTAInProgress set")
	}

	// The supervisor slot is free again
	if sup.Active("AB12") != nil {
		t.Error("stopped monitor should be removed from the supervisor")
	}
}

func TestCeilingForcesTermination(t *testing.T) {
	// The device never reports completion
	device := newFakeDevice(t, []control.Progress{
		{InProgress: true, Percent: pct(50)},
	})

	store := registry.NewMemStore()
	store.Put(&registry.Record{ID: "AB12", IP: "192.168.1.50"})

	cfg := fastConfig()
	cfg.Ceiling = 80 * time.Millisecond

	sup := newTestSupervisor(store, device, cfg)
	m, _, err := sup.Start(context.Background(), &registry.Record{ID: "AB12", IP: "192.168.1.50"}, "http://example.com/fw.bin", nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, m)

	settled := device.progressCalls.Load()
	time.Sleep(60 * time.Millisecond)
	if got := device.progressCalls.Load(); got != settled {
		t.Errorf("progress calls continued after ceiling (%d -> %d)", settled, got)
	}

	// The ceiling clears the durable flag so the registry cannot believe
	// forever that an update is active
	rec, _ := store.Get("AB12")
	if rec.OTAInProgress {
		t.Error("OTAInProgress should be cleared when the ceiling fires")
	}
	if sup.Active("AB12") != nil {
		t.Error("ceiling should remove the monitor from the supervisor")
	}
}

func TestStartFailureLeavesNoMonitor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := registry.NewMemStore()
	sup := NewSupervisor(store, fastConfig())
	sup.SetClientFactory(func(ip string) *control.Client {
		return control.NewClientWithURL(server.URL)
	})

	_, started, err := sup.Start(context.Background(), &registry.Record{ID: "AB12", IP: "192.168.1.50"}, "http://example.com/fw.bin", nil)
	if err == nil {
		t.Fatal("Start() should surface the start-update failure")
	}
	if started {
		t.Error("failed Start() must not report a running monitor")
	}
	if sup.Active("AB12") != nil {
		t.Error("failed Start() must not leave a registered monitor")
	}

	rec, _ := store.Get("AB12")
	if rec != nil && rec.OTAInProgress {
		t.Error("failed Start() must not set the durable flag")
	}
}

func TestPollErrorsAreSwallowed(t *testing.T) {
	// First polls fail at the HTTP level, then the rollout completes.
	var calls atomic.Int32
	var device *fakeDevice
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == control.PathOTAProgress && calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		device.handle(w, r)
	}))
	defer server.Close()

	device = &fakeDevice{
		responses: []control.Progress{{InProgress: false}},
		firmware:  control.FirmwareInfo{Version: "1.1.0"},
	}

	store := registry.NewMemStore()
	store.Put(&registry.Record{ID: "AB12", IP: "192.168.1.50", OTAInProgress: true})

	sup := NewSupervisor(store, fastConfig())
	sup.SetClientFactory(func(ip string) *control.Client {
		return control.NewClientWithURL(server.URL)
	})

	m, _, err := sup.Resume(&registry.Record{ID: "AB12", IP: "192.168.1.50"}, nil)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	waitDone(t, m)

	rec, _ := store.Get("AB12")
	if rec.OTAInProgress {
		t.Error("rollout should complete despite transient poll failures")
	}
}
