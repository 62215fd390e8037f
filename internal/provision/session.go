package provision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aldervik/lumen/internal/clock"
	"github.com/aldervik/lumen/internal/logging"
	"github.com/aldervik/lumen/internal/radio"
	"github.com/aldervik/lumen/internal/registry"
)

// ErrTimedOut is the terminal error of a session whose deadline elapsed
// before the light reported its network identity. It is deliberately
// distinct from a confirmation failure so callers can give different
// guidance ("check the credentials and try again" vs "the light joined but
// the handshake broke off").
var ErrTimedOut = errors.New("no response from device within the deadline")

// ErrPersistFailed wraps a registry write failure after an otherwise
// successful handshake. The light is provisioned and confirmed; only the
// local record is missing.
var ErrPersistFailed = errors.New("device provisioned but saving the record failed")

// ErrCredentialWrite marks a failure to deliver the credential payload;
// the handshake never got off the ground.
var ErrCredentialWrite = errors.New("failed to send credentials")

// ErrConfirmation marks a failed acknowledgment write: the light joined
// the network, but the handshake broke off before it was confirmed.
var ErrConfirmation = errors.New("confirmation failed")

// Config tunes the session timers. The defaults line up: ten polls at
// three-second spacing cover the thirty-second deadline.
type Config struct {
	// Deadline is the absolute budget from the credential write to a
	// terminal state.
	Deadline time.Duration

	// PollInterval is the spacing of explicit device-info reads.
	PollInterval time.Duration

	// MaxPolls caps the number of explicit reads.
	MaxPolls int
}

// DefaultConfig returns the production timer settings.
func DefaultConfig() Config {
	return Config{
		Deadline:     30 * time.Second,
		PollInterval: 3 * time.Second,
		MaxPolls:     10,
	}
}

// Outcome is the terminal result of a session.
type Outcome struct {
	State  State
	Record *registry.Record // Set on StateConfirmed (nil if persisting failed)
	Err    error            // Set on StateFailed/StateTimedOut, or ErrPersistFailed on StateConfirmed
}

// Session drives one credential-handoff attempt over an already-connected
// radio link. A session is single-use: it runs to exactly one terminal
// state and is then dead. The caller owns the link's connection; the
// session disconnects it only on a confirmed handshake, where the radio
// channel is no longer needed.
type Session struct {
	peripheralID string
	link         radio.Link
	store        registry.Store
	cfg          Config
	clk          *clock.SessionClock

	mu        sync.Mutex
	state     State
	resolved  bool // single-resolution gate across the two detection channels
	closed    bool
	pollCount int

	unsubscribe func()
	stopPolling func()

	runCtx   context.Context
	doneOnce sync.Once
	done     chan Outcome
}

// New creates a session for the peripheral on the given link. The store
// receives the device record on success.
func New(peripheralID string, link radio.Link, store registry.Store, cfg Config) *Session {
	if cfg.Deadline <= 0 {
		cfg = DefaultConfig()
	}
	return &Session{
		peripheralID: peripheralID,
		link:         link,
		store:        store,
		cfg:          cfg,
		clk:          clock.New(),
		state:        StateIdle,
		done:         make(chan Outcome, 1),
	}
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run executes the handshake and blocks until a terminal state. Cancelling
// ctx tears the session down and returns with ctx's error; no callbacks
// fire after that.
func (s *Session) Run(ctx context.Context, creds radio.Credentials) Outcome {
	s.runCtx = ctx

	payload, err := radio.EncodeCredentials(creds)
	if err != nil {
		s.finish(StateFailed, nil, err)
		return <-s.done
	}

	s.transition(StateSendingCredentials)
	if err := s.link.WriteCharacteristic(ctx, radio.ServiceUUID, radio.WiFiCharacteristicUUID, payload); err != nil {
		s.finish(StateFailed, nil, fmt.Errorf("%w: %v", ErrCredentialWrite, err))
		return <-s.done
	}

	s.transition(StateAwaitingJoin)

	// Deadline governs every non-terminal state from here on
	s.clk.AfterFunc(s.cfg.Deadline, s.onDeadline)

	// Detection channel one: notification push. The device-side stack does
	// not always deliver these, so it never runs alone.
	unsubscribe, err := s.link.Subscribe(radio.ServiceUUID, radio.DeviceInfoCharacteristicUUID, s.onNotify)
	if err != nil {
		logging.Warn("Device info subscription failed, relying on polling",
			zap.String("peripheral_id", s.peripheralID),
			zap.Error(err),
		)
	} else {
		s.mu.Lock()
		s.unsubscribe = unsubscribe
		s.mu.Unlock()
	}

	// Detection channel two: explicit reads on a fixed interval.
	stopPolling := s.clk.Every(s.cfg.PollInterval, s.onPollTick)
	s.mu.Lock()
	s.stopPolling = stopPolling
	s.mu.Unlock()

	select {
	case out := <-s.done:
		return out
	case <-ctx.Done():
		s.Close()
		return Outcome{State: s.State(), Err: ctx.Err()}
	}
}

// Close cancels all outstanding timers and the notification subscription.
// It is called automatically on every terminal transition; callers tearing
// down mid-flight (screen unmount, ctx cancellation) call it directly.
// Safe to call multiple times.
func (s *Session) Close() {
	s.clk.CancelAll()

	s.mu.Lock()
	s.closed = true
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// transition moves to a non-terminal state.
func (s *Session) transition(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	logging.LogSessionState(s.peripheralID, prev.String(), next.String())
}

// finish moves to a terminal state exactly once and delivers the outcome.
func (s *Session) finish(final State, rec *registry.Record, err error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = final
	s.mu.Unlock()

	logging.LogSessionState(s.peripheralID, prev.String(), final.String())
	s.Close()

	s.doneOnce.Do(func() {
		s.done <- Outcome{State: final, Record: rec, Err: err}
	})
}

// onDeadline fires when the session deadline elapses in a non-terminal
// state. By construction it performs zero registry writes.
func (s *Session) onDeadline() {
	s.mu.Lock()
	if s.resolved || s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.finish(StateTimedOut, nil, ErrTimedOut)
}

// onNotify handles a device-info notification.
func (s *Session) onNotify(value []byte) {
	info, err := radio.DecodeDeviceInfo(value)
	if err != nil {
		if !errors.Is(err, radio.ErrNotReady) {
			logging.Warn("Ignoring unusable device info notification",
				zap.String("peripheral_id", s.peripheralID),
				zap.Error(err),
			)
		}
		return
	}
	s.resolve(info, "notification")
}

// onPollTick performs one explicit device-info read. Transport errors and
// not-ready values just mean "next tick"; an unusable payload is logged and
// also treated as not-yet.
func (s *Session) onPollTick() {
	s.mu.Lock()
	if s.resolved || s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.pollCount++
	attempt := s.pollCount
	stopPolling := s.stopPolling
	s.mu.Unlock()

	if attempt > s.cfg.MaxPolls {
		if stopPolling != nil {
			stopPolling()
		}
		return
	}
	logging.LogPollTick(s.peripheralID, attempt, s.cfg.MaxPolls)

	ctx, cancel := context.WithTimeout(s.runCtx, s.cfg.PollInterval)
	defer cancel()

	value, err := s.link.ReadCharacteristic(ctx, radio.ServiceUUID, radio.DeviceInfoCharacteristicUUID)
	if err != nil {
		logging.Debug("Device info read failed, will retry",
			zap.String("peripheral_id", s.peripheralID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return
	}

	info, err := radio.DecodeDeviceInfo(value)
	if err != nil {
		if !errors.Is(err, radio.ErrNotReady) {
			logging.Warn("Ignoring unusable device info value",
				zap.String("peripheral_id", s.peripheralID),
				zap.Error(err),
			)
		}
		return
	}
	s.resolve(info, "poll")
}

// resolve is the single-resolution gate both detection channels race into.
// The first caller wins and carries the handshake to its terminal state;
// every later caller is a no-op. This is what guarantees at most one
// confirmation write and at most one registry write per session.
func (s *Session) resolve(info *radio.DeviceInfo, channel string) {
	s.mu.Lock()
	if s.resolved || s.closed || s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.resolved = true
	s.mu.Unlock()

	logging.Info("Device joined network",
		zap.String("peripheral_id", s.peripheralID),
		zap.String("channel", channel),
		zap.String("device_id", info.ID),
		zap.String("ip", info.IP),
	)

	s.transition(StateConfirming)
	s.confirm(info)
}

// confirm writes the acknowledgment and persists the device record.
func (s *Session) confirm(info *radio.DeviceInfo) {
	err := s.link.WriteCharacteristic(s.runCtx, radio.ServiceUUID, radio.WiFiCharacteristicUUID, radio.EncodeConfirmation(true))
	if err != nil {
		// The light is on the network but unconfirmed. No automatic retry;
		// re-running provisioning is the documented recovery path.
		s.finish(StateFailed, nil, fmt.Errorf("%w: %v", ErrConfirmation, err))
		return
	}

	rec, perr := s.store.Merge(info.ID, func(rec *registry.Record) {
		// ProjectName and BuildTimestamp belong to the connectivity probe;
		// a re-provisioned device keeps them.
		rec.Name = info.Name
		rec.IP = info.IP
		rec.FirmwareVersion = info.Version
		rec.Touch()
	})
	if perr != nil {
		// The handshake itself succeeded; surface the persistence failure
		// without failing the session.
		logging.Error("Failed to persist device record",
			zap.String("device_id", info.ID),
			zap.Error(perr),
		)
		s.disconnectLink()
		s.finish(StateConfirmed, nil, fmt.Errorf("%w: %v", ErrPersistFailed, perr))
		return
	}
	logging.LogRegistryWrite(info.ID, "provisioned")

	// IP-based control takes over from here
	s.disconnectLink()
	s.finish(StateConfirmed, rec, nil)
}

func (s *Session) disconnectLink() {
	if err := s.link.Disconnect(); err != nil {
		logging.Debug("Radio disconnect failed",
			zap.String("peripheral_id", s.peripheralID),
			zap.Error(err),
		)
	}
}
