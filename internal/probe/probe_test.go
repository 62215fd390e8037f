package probe

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aldervik/lumen/internal/control"
	"github.com/aldervik/lumen/internal/registry"
)

func newLightServer(t *testing.T, onlineCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case control.PathOnline:
			if onlineCalls != nil {
				onlineCalls.Add(1)
			}
			json.NewEncoder(w).Encode(control.OnlineStatus{Device: 1, State: "ready"})
		case control.PathLight:
			json.NewEncoder(w).Encode(control.LightStatus{State: "on"})
		case control.PathFirmwareInfo:
			json.NewEncoder(w).Encode(control.FirmwareInfo{
				Version:     "1.0.3",
				ProjectName: "esp_c6_light",
				Date:        "Mar 10 2026",
				Time:        "12:00:00",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func awaitStatus(t *testing.T, ch <-chan Status) Status {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no probe observation arrived")
		return Status{}
	}
}

func TestObservationUpdatesRecord(t *testing.T) {
	server := newLightServer(t, nil)

	store := registry.NewMemStore()
	store.Put(&registry.Record{ID: "AB12", IP: "192.168.1.50", OTAInProgress: true})

	statuses := make(chan Status, 16)
	p := New(&registry.Record{ID: "AB12", IP: "192.168.1.50"}, store, time.Second, func(s Status) {
		statuses <- s
	})
	p.SetClient(control.NewClientWithURL(server.URL))
	p.Start()
	defer p.Stop()

	s := awaitStatus(t, statuses)
	if !s.Online {
		t.Fatalf("Online = false, err = %v", s.Err)
	}
	if !s.LightOn {
		t.Error("LightOn = false, want true")
	}
	if s.Firmware == nil || s.Firmware.Version != "1.0.3" {
		t.Errorf("Firmware = %+v, want version 1.0.3", s.Firmware)
	}

	rec, _ := store.Get("AB12")
	if rec.FirmwareVersion != "1.0.3" {
		t.Errorf("FirmwareVersion = %s, want 1.0.3", rec.FirmwareVersion)
	}
	if rec.ProjectName != "esp_c6_light" {
		t.Errorf("ProjectName = %s, want esp_c6_light", rec.ProjectName)
	}
	if rec.BuildTimestamp != "Mar 10 2026 12:00:00" {
		t.Errorf("BuildTimestamp = %s", rec.BuildTimestamp)
	}
	if rec.LastConnectedAt.IsZero() {
		t.Error("LastConnectedAt should be set")
	}

	// The merge must not clobber the update monitor's field
	if !rec.OTAInProgress {
		t.Error("OTAInProgress must survive a probe merge")
	}
}

func TestOfflineDeviceWritesNothing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := registry.NewMemStore()
	store.Put(&registry.Record{ID: "AB12", IP: "192.168.1.50"})
	writesBefore := store.PutCount

	statuses := make(chan Status, 16)
	p := New(&registry.Record{ID: "AB12", IP: "192.168.1.50"}, store, time.Second, func(s Status) {
		statuses <- s
	})
	p.SetClient(control.NewClientWithURL(server.URL))
	p.Start()
	defer p.Stop()

	s := awaitStatus(t, statuses)
	if s.Online {
		t.Fatal("Online = true for a failing device")
	}
	if !control.IsOffline(s.Err) {
		t.Errorf("Err = %v, want an offline classification", s.Err)
	}
	if store.PutCount != writesBefore {
		t.Errorf("registry writes = %d, want %d (offline tick must not write)", store.PutCount, writesBefore)
	}
}

func TestStopCancelsTicking(t *testing.T) {
	var onlineCalls atomic.Int32
	server := newLightServer(t, &onlineCalls)

	store := registry.NewMemStore()
	store.Put(&registry.Record{ID: "AB12", IP: "192.168.1.50"})

	p := New(&registry.Record{ID: "AB12", IP: "192.168.1.50"}, store, 10*time.Millisecond, nil)
	p.SetClient(control.NewClientWithURL(server.URL))
	p.Start()

	deadline := time.Now().Add(2 * time.Second)
	for onlineCalls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if onlineCalls.Load() < 3 {
		t.Fatal("probe never ticked repeatedly")
	}

	p.Stop()
	if p.Running() {
		t.Error("Running() = true after Stop")
	}
	time.Sleep(30 * time.Millisecond) // let any in-flight tick drain
	settled := onlineCalls.Load()
	time.Sleep(100 * time.Millisecond)
	if got := onlineCalls.Load(); got != settled {
		t.Errorf("reachability calls went from %d to %d after Stop", settled, got)
	}
}

func TestRestartable(t *testing.T) {
	var onlineCalls atomic.Int32
	server := newLightServer(t, &onlineCalls)

	store := registry.NewMemStore()
	store.Put(&registry.Record{ID: "AB12", IP: "192.168.1.50"})

	p := New(&registry.Record{ID: "AB12", IP: "192.168.1.50"}, store, 10*time.Millisecond, nil)
	p.SetClient(control.NewClientWithURL(server.URL))

	p.Start()
	p.Start() // no-op on a running probe
	if !p.Running() {
		t.Fatal("Running() = false after Start")
	}
	p.Stop()
	p.Stop() // idempotent

	before := onlineCalls.Load()
	p.Start()
	deadline := time.Now().Add(2 * time.Second)
	for onlineCalls.Load() <= before && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	p.Stop()
	if onlineCalls.Load() <= before {
		t.Error("probe did not tick after restart")
	}
}
