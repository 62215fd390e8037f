package ota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aldervik/lumen/internal/clock"
	"github.com/aldervik/lumen/internal/control"
	"github.com/aldervik/lumen/internal/logging"
	"github.com/aldervik/lumen/internal/registry"
)

// Config tunes a monitor's timers.
type Config struct {
	// PollInterval is the progress poll spacing. The UI-facing default is
	// fast for progress-bar smoothness; background callers (the probe
	// merge path) use SlowConfig.
	PollInterval time.Duration

	// Ceiling force-terminates monitoring even if the device never reports
	// completion, so a wedged rollout cannot poll forever.
	Ceiling time.Duration

	// RefreshDelay is the grace period between observed completion and the
	// firmware metadata refresh, giving the device time to finish
	// rebooting into the new image.
	RefreshDelay time.Duration
}

// DefaultConfig returns the UI-facing timer settings.
func DefaultConfig() Config {
	return Config{
		PollInterval: 100 * time.Millisecond,
		Ceiling:      5 * time.Minute,
		RefreshDelay: 2 * time.Second,
	}
}

// SlowConfig returns the background timer settings used when progress is
// merged into connectivity polling rather than driving a progress bar.
func SlowConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 2 * time.Second
	return cfg
}

// Snapshot is the progress state exposed to callers. Percent is
// monotonically non-decreasing for the lifetime of one monitoring session;
// stale or reordered poll responses are discarded, never displayed.
type Snapshot struct {
	InProgress bool
	Percent    int
	Status     string
}

// ProgressFunc receives progress snapshots. It is called from the
// monitor's poll goroutine; implementations must not block.
type ProgressFunc func(Snapshot)

// ClientFactory builds a control client for a device IP. Tests substitute
// httptest-backed clients here.
type ClientFactory func(ip string) *control.Client

// Supervisor owns the single-flight guarantee: at most one active monitor
// per device per process. All monitors are created through it.
type Supervisor struct {
	store     registry.Store
	cfg       Config
	newClient ClientFactory

	mu     sync.Mutex
	active map[string]*Monitor
}

// NewSupervisor creates a supervisor writing durable state to store.
func NewSupervisor(store registry.Store, cfg Config) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg = DefaultConfig()
	}
	return &Supervisor{
		store:     store,
		cfg:       cfg,
		newClient: control.NewClient,
		active:    make(map[string]*Monitor),
	}
}

// SetClientFactory overrides how control clients are built. Used in tests.
func (s *Supervisor) SetClientFactory(f ClientFactory) {
	s.newClient = f
}

// Active returns the running monitor for deviceID, or nil.
func (s *Supervisor) Active(deviceID string) *Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[deviceID]
}

// Start triggers a firmware rollout from firmwareURL on the device and
// begins monitoring it. If a monitor is already active for the device the
// call is a no-op: the existing monitor is returned and started is false.
// On success the durable ota_in_progress flag is set before polling begins.
func (s *Supervisor) Start(ctx context.Context, rec *registry.Record, firmwareURL string, onProgress ProgressFunc) (m *Monitor, started bool, err error) {
	s.mu.Lock()
	if existing := s.active[rec.ID]; existing != nil {
		s.mu.Unlock()
		logging.Debug("Update already being monitored, ignoring start", zap.String("device_id", rec.ID))
		return existing, false, nil
	}
	m = s.newMonitorLocked(rec, onProgress)
	s.mu.Unlock()

	if _, err := m.client.StartUpdate(ctx, firmwareURL); err != nil {
		s.remove(rec.ID, m)
		return nil, false, fmt.Errorf("failed to start update: %w", err)
	}

	if _, err := s.store.Merge(rec.ID, func(r *registry.Record) {
		r.OTAInProgress = true
	}); err != nil {
		// The rollout is running on the device regardless; monitor it, but
		// surface that resume-after-restart will not work.
		logging.Error("Failed to persist ota_in_progress flag",
			zap.String("device_id", rec.ID),
			zap.Error(err),
		)
	}
	logging.Info("Update started",
		zap.String("device_id", rec.ID),
		zap.String("url", firmwareURL),
	)

	m.run()
	return m, true, nil
}

// Resume reconciles local state with a rollout that began before a
// restart: if the stored record says an update is in flight, monitoring
// starts directly with no start-update call. Returns (nil, false, nil)
// when there is nothing to resume.
func (s *Supervisor) Resume(rec *registry.Record, onProgress ProgressFunc) (m *Monitor, resumed bool, err error) {
	stored, err := s.store.Get(rec.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read device record: %w", err)
	}
	if stored == nil || !stored.OTAInProgress {
		return nil, false, nil
	}

	s.mu.Lock()
	if existing := s.active[rec.ID]; existing != nil {
		s.mu.Unlock()
		return existing, false, nil
	}
	m = s.newMonitorLocked(rec, onProgress)
	s.mu.Unlock()

	logging.Info("Resuming update monitoring", zap.String("device_id", rec.ID))
	m.run()
	return m, true, nil
}

// newMonitorLocked creates and registers a monitor. Callers hold s.mu.
func (s *Supervisor) newMonitorLocked(rec *registry.Record, onProgress ProgressFunc) *Monitor {
	m := &Monitor{
		deviceID:   rec.ID,
		client:     s.newClient(rec.IP),
		store:      s.store,
		cfg:        s.cfg,
		sup:        s,
		onProgress: onProgress,
		clk:        clock.New(),
		done:       make(chan struct{}),
	}
	s.active[rec.ID] = m
	return m
}

// remove drops m from the active set if it is still the registered monitor
// for the device.
func (s *Supervisor) remove(deviceID string, m *Monitor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[deviceID] == m {
		delete(s.active, deviceID)
	}
}

// Monitor tracks one firmware rollout to completion. Monitors are created
// by a Supervisor and are single-use.
type Monitor struct {
	deviceID   string
	client     *control.Client
	store      registry.Store
	cfg        Config
	sup        *Supervisor
	onProgress ProgressFunc
	clk        *clock.SessionClock

	mu          sync.Mutex
	lastPercent int // session-scoped monotonic guard
	inFlight    bool
	finished    bool
	stopPolling func()

	doneOnce sync.Once
	done     chan struct{}
}

// Done is closed when monitoring ends for any reason (completion, ceiling,
// Stop).
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Percent returns the highest progress value observed this session.
func (m *Monitor) Percent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPercent
}

// run arms the poll interval and the hard ceiling.
func (m *Monitor) run() {
	m.mu.Lock()
	m.stopPolling = m.clk.Every(m.cfg.PollInterval, m.tick)
	m.mu.Unlock()
	m.clk.AfterFunc(m.cfg.Ceiling, m.onCeiling)
}

// Stop tears the monitor down without touching the durable flag: teardown
// is not completion, and a later Resume should pick the rollout back up.
// No progress polls happen after Stop returns.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return
	}
	m.finished = true
	m.mu.Unlock()

	m.clk.CancelAll()
	m.sup.remove(m.deviceID, m)
	m.doneOnce.Do(func() { close(m.done) })
	logging.Debug("Update monitor stopped", zap.String("device_id", m.deviceID))
}

// tick performs one progress poll. Errors are swallowed with a warning and
// retried next tick; a tick that overlaps a slow in-flight poll is skipped.
func (m *Monitor) tick() {
	m.mu.Lock()
	if m.finished || m.inFlight {
		m.mu.Unlock()
		return
	}
	m.inFlight = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.inFlight = false
		m.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), control.DefaultTimeout)
	defer cancel()

	progress, err := m.client.GetProgress(ctx)
	if err != nil {
		logging.Warn("Progress poll failed, will retry",
			zap.String("device_id", m.deviceID),
			zap.Error(err),
		)
		return
	}

	if progress.InProgress {
		m.observe(progress)
		return
	}
	m.complete()
}

// observe applies the monotonic guard and publishes a snapshot only when
// the reported percent advances past the last observed value.
func (m *Monitor) observe(progress *control.Progress) {
	if progress.Percent == nil {
		return
	}

	m.mu.Lock()
	if m.finished || *progress.Percent <= m.lastPercent {
		m.mu.Unlock()
		return
	}
	m.lastPercent = *progress.Percent
	snap := Snapshot{InProgress: true, Percent: m.lastPercent, Status: progress.Status}
	onProgress := m.onProgress
	m.mu.Unlock()

	logging.LogOTAProgress(m.deviceID, snap.Percent, snap.Status)
	if onProgress != nil {
		onProgress(snap)
	}
}

// complete handles the first not-in-progress response: clear the durable
// flag, clear the exposed progress, and refresh firmware metadata after
// the reboot grace period.
func (m *Monitor) complete() {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return
	}
	m.finished = true
	stopPolling := m.stopPolling
	onProgress := m.onProgress
	m.mu.Unlock()

	if stopPolling != nil {
		stopPolling()
	}
	m.sup.remove(m.deviceID, m)

	if _, err := m.store.Merge(m.deviceID, func(r *registry.Record) {
		r.OTAInProgress = false
	}); err != nil {
		logging.Error("Failed to clear ota_in_progress flag",
			zap.String("device_id", m.deviceID),
			zap.Error(err),
		)
	}
	logging.Info("Update finished", zap.String("device_id", m.deviceID))

	if onProgress != nil {
		onProgress(Snapshot{InProgress: false})
	}

	// Let the device finish rebooting before reading the new metadata
	m.clk.AfterFunc(m.cfg.RefreshDelay, func() {
		m.refreshFirmwareInfo()
		m.clk.CancelAll()
		m.doneOnce.Do(func() { close(m.done) })
	})
}

// onCeiling force-terminates a rollout that never reported completion.
// The durable flag is cleared as well: leaving it set would make the
// registry believe forever that an update is active on a device that
// silently failed mid-rollout.
func (m *Monitor) onCeiling() {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return
	}
	m.finished = true
	onProgress := m.onProgress
	m.mu.Unlock()

	logging.Warn("Update monitoring hit hard ceiling without completion",
		zap.String("device_id", m.deviceID),
		zap.Duration("ceiling", m.cfg.Ceiling),
	)

	if _, err := m.store.Merge(m.deviceID, func(r *registry.Record) {
		r.OTAInProgress = false
	}); err != nil {
		logging.Error("Failed to clear ota_in_progress flag after ceiling",
			zap.String("device_id", m.deviceID),
			zap.Error(err),
		)
	}

	if onProgress != nil {
		onProgress(Snapshot{InProgress: false})
	}

	m.clk.CancelAll()
	m.sup.remove(m.deviceID, m)
	m.doneOnce.Do(func() { close(m.done) })
}

// refreshFirmwareInfo folds the post-update firmware metadata into the
// device record.
func (m *Monitor) refreshFirmwareInfo() {
	ctx, cancel := context.WithTimeout(context.Background(), control.DefaultTimeout)
	defer cancel()

	info, err := m.client.GetFirmwareInfo(ctx)
	if err != nil {
		logging.Warn("Post-update firmware refresh failed",
			zap.String("device_id", m.deviceID),
			zap.Error(err),
		)
		return
	}

	if _, err := m.store.Merge(m.deviceID, func(r *registry.Record) {
		r.FirmwareVersion = info.Version
		r.ProjectName = info.ProjectName
		r.BuildTimestamp = info.BuildTimestamp()
		r.Touch()
	}); err != nil {
		logging.Warn("Failed to persist refreshed firmware metadata",
			zap.String("device_id", m.deviceID),
			zap.Error(err),
		)
		return
	}
	logging.LogRegistryWrite(m.deviceID, "firmware_refresh")
}
