package probe

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aldervik/lumen/internal/clock"
	"github.com/aldervik/lumen/internal/control"
	"github.com/aldervik/lumen/internal/logging"
	"github.com/aldervik/lumen/internal/registry"
)

// DefaultInterval is the tick spacing while a probe is running.
const DefaultInterval = 5 * time.Second

// Status is one probe observation, pushed to the caller after every tick.
type Status struct {
	DeviceID string
	Online   bool
	LightOn  bool
	Firmware *control.FirmwareInfo // nil when offline or the read failed
	Err      error                 // the reachability error when Online is false
}

// StatusFunc receives probe observations. Called from the probe's tick
// goroutine; implementations must not block.
type StatusFunc func(Status)

// Probe periodically checks one device's reachability and refreshes its
// cheap metadata. It runs only while started, so an idle CLI costs the
// device nothing. A probe is restartable: Stop then Start begins a fresh
// interval.
type Probe struct {
	deviceID string
	client   *control.Client
	store    registry.Store
	interval time.Duration
	onStatus StatusFunc

	mu       sync.Mutex
	clk      *clock.SessionClock
	inFlight bool
}

// New creates a probe for the device record. onStatus may be nil.
func New(rec *registry.Record, store registry.Store, interval time.Duration, onStatus StatusFunc) *Probe {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Probe{
		deviceID: rec.ID,
		client:   control.NewClient(rec.IP),
		store:    store,
		interval: interval,
		onStatus: onStatus,
	}
}

// SetClient overrides the control client. Used in tests.
func (p *Probe) SetClient(c *control.Client) {
	p.client = c
}

// Start begins ticking. The first tick fires immediately so the caller is
// not stuck on a blank screen for a full interval. Calling Start on a
// running probe is a no-op.
func (p *Probe) Start() {
	p.mu.Lock()
	if p.clk != nil {
		p.mu.Unlock()
		return
	}
	p.clk = clock.New()
	p.clk.Every(p.interval, p.tick)
	p.mu.Unlock()

	go p.tick()
}

// Stop cancels the interval. No observations are delivered after the
// current tick (if any) finishes.
func (p *Probe) Stop() {
	p.mu.Lock()
	clk := p.clk
	p.clk = nil
	p.mu.Unlock()

	if clk != nil {
		clk.CancelAll()
	}
}

// Running reports whether the probe is ticking.
func (p *Probe) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clk != nil
}

// tick performs one observation. Errors never stop the probe; the next
// tick tries again.
func (p *Probe) tick() {
	p.mu.Lock()
	if p.clk == nil || p.inFlight {
		p.mu.Unlock()
		return
	}
	p.inFlight = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	start := time.Now()
	status := p.observe()

	p.mu.Lock()
	stopped := p.clk == nil
	p.mu.Unlock()
	if stopped {
		return
	}

	logging.LogProbeTick(p.deviceID, status.Online, time.Since(start))
	if p.onStatus != nil {
		p.onStatus(status)
	}
}

// observe runs the reachability check and, only when the device answers,
// the cheap metadata reads and the registry merge.
func (p *Probe) observe() Status {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	status := Status{DeviceID: p.deviceID}

	if _, err := p.client.Online(ctx); err != nil {
		status.Err = err
		return status
	}
	status.Online = true

	if light, err := p.client.Light(ctx); err != nil {
		logging.Debug("Light status read failed",
			zap.String("device_id", p.deviceID),
			zap.Error(err),
		)
	} else {
		status.LightOn = light.State == "on"
	}

	info, err := p.client.GetFirmwareInfo(ctx)
	if err != nil {
		logging.Debug("Firmware info read failed",
			zap.String("device_id", p.deviceID),
			zap.Error(err),
		)
	} else {
		status.Firmware = info
	}

	p.persist(info)
	return status
}

// persist folds the observation into the device record. The merge only
// touches fields the probe owns; ota_in_progress in particular stays
// whatever the update monitor last wrote. info may be nil.
func (p *Probe) persist(info *control.FirmwareInfo) {
	_, err := p.store.Merge(p.deviceID, func(rec *registry.Record) {
		rec.IP = p.client.IP()
		if info != nil {
			rec.FirmwareVersion = info.Version
			rec.ProjectName = info.ProjectName
			rec.BuildTimestamp = info.BuildTimestamp()
		}
		rec.Touch()
	})
	if err != nil {
		logging.Warn("Failed to persist probe observation",
			zap.String("device_id", p.deviceID),
			zap.Error(err),
		)
		return
	}
	logging.LogRegistryWrite(p.deviceID, "probe")
}
