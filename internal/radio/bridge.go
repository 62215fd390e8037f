package radio

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aldervik/lumen/internal/logging"
)

const (
	// DefaultBridgeURL is where a light in setup mode serves its
	// characteristic bridge: the firmware opens a SoftAP at 192.168.4.1
	// and bridges GATT characteristics over a WebSocket on it.
	DefaultBridgeURL = "ws://192.168.4.1/bridge"

	// writeWait is the time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// requestTimeout bounds a single read/write exchange when the caller's
	// context carries no deadline of its own.
	requestTimeout = 15 * time.Second
)

// bridgeFrame is one JSON frame on the bridge, in either direction.
// Characteristic values travel base64-encoded, matching how the GATT layer
// transports them.
type bridgeFrame struct {
	ID             uint64 `json:"id,omitempty"`
	Op             string `json:"op"` // write | read | subscribe | unsubscribe | result | notify
	Service        string `json:"service,omitempty"`
	Characteristic string `json:"characteristic,omitempty"`
	Value          string `json:"value,omitempty"`
	OK             bool   `json:"ok,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Bridge implements Link over the setup-mode WebSocket characteristic
// bridge. One Bridge corresponds to one radio connection; it is destroyed
// by Disconnect and never reused.
type Bridge struct {
	conn *websocket.Conn

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan bridgeFrame
	subs    map[string]func([]byte) // keyed by service+"/"+characteristic
	closed  bool

	writeMu sync.Mutex // websocket allows one concurrent writer
}

// DialBridge connects to a light's characteristic bridge. Pass
// DefaultBridgeURL for a light in setup mode, or a custom URL in tests.
func DialBridge(ctx context.Context, url string) (*Bridge, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial characteristic bridge: %w", err)
	}

	b := &Bridge{
		conn:    conn,
		pending: make(map[uint64]chan bridgeFrame),
		subs:    make(map[string]func([]byte)),
	}
	go b.readLoop()

	logging.Debug("Characteristic bridge connected", zap.String("url", url))
	return b, nil
}

// readLoop dispatches incoming frames to pending requests and subscribers.
func (b *Bridge) readLoop() {
	for {
		var frame bridgeFrame
		if err := b.conn.ReadJSON(&frame); err != nil {
			b.failAll(err)
			return
		}

		switch frame.Op {
		case "notify":
			b.mu.Lock()
			onValue := b.subs[subKey(frame.Service, frame.Characteristic)]
			b.mu.Unlock()
			if onValue == nil {
				continue
			}
			value, err := base64.StdEncoding.DecodeString(frame.Value)
			if err != nil {
				logging.Warn("Dropping notification with invalid base64 value", zap.Error(err))
				continue
			}
			// Off the read loop: a subscriber may issue bridge requests of
			// its own and would otherwise starve the result dispatcher.
			go onValue(value)

		case "result":
			b.mu.Lock()
			ch := b.pending[frame.ID]
			delete(b.pending, frame.ID)
			b.mu.Unlock()
			if ch != nil {
				ch <- frame
			}

		default:
			logging.Warn("Unexpected bridge frame", zap.String("op", frame.Op))
		}
	}
}

// failAll wakes every pending request after the connection dies.
func (b *Bridge) failAll(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		logging.Debug("Characteristic bridge read loop ended", zap.Error(err))
	}
	for id, ch := range b.pending {
		delete(b.pending, id)
		close(ch)
	}
}

// roundTrip sends a frame and waits for the matching result.
func (b *Bridge) roundTrip(ctx context.Context, frame bridgeFrame) (bridgeFrame, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return bridgeFrame{}, ErrClosed
	}
	b.nextID++
	frame.ID = b.nextID
	ch := make(chan bridgeFrame, 1)
	b.pending[frame.ID] = ch
	b.mu.Unlock()

	b.writeMu.Lock()
	_ = b.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := b.conn.WriteJSON(frame)
	b.writeMu.Unlock()
	if err != nil {
		b.mu.Lock()
		delete(b.pending, frame.ID)
		b.mu.Unlock()
		return bridgeFrame{}, fmt.Errorf("bridge write failed: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestTimeout)
		defer cancel()
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return bridgeFrame{}, ErrClosed
		}
		if !resp.OK {
			return bridgeFrame{}, fmt.Errorf("bridge request rejected: %s", resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pending, frame.ID)
		b.mu.Unlock()
		return bridgeFrame{}, ctx.Err()
	}
}

// WriteCharacteristic implements Link.
func (b *Bridge) WriteCharacteristic(ctx context.Context, serviceUUID, charUUID string, value []byte) error {
	_, err := b.roundTrip(ctx, bridgeFrame{
		Op:             "write",
		Service:        serviceUUID,
		Characteristic: charUUID,
		Value:          base64.StdEncoding.EncodeToString(value),
	})
	return err
}

// ReadCharacteristic implements Link.
func (b *Bridge) ReadCharacteristic(ctx context.Context, serviceUUID, charUUID string) ([]byte, error) {
	resp, err := b.roundTrip(ctx, bridgeFrame{
		Op:             "read",
		Service:        serviceUUID,
		Characteristic: charUUID,
	})
	if err != nil {
		return nil, err
	}
	value, err := base64.StdEncoding.DecodeString(resp.Value)
	if err != nil {
		return nil, &ProtocolError{Message: "invalid base64 characteristic value", Err: err}
	}
	return value, nil
}

// Subscribe implements Link.
func (b *Bridge) Subscribe(serviceUUID, charUUID string, onValue func([]byte)) (func(), error) {
	key := subKey(serviceUUID, charUUID)

	b.mu.Lock()
	b.subs[key] = onValue
	b.mu.Unlock()

	if _, err := b.roundTrip(context.Background(), bridgeFrame{
		Op:             "subscribe",
		Service:        serviceUUID,
		Characteristic: charUUID,
	}); err != nil {
		b.mu.Lock()
		delete(b.subs, key)
		b.mu.Unlock()
		return nil, err
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, key)
			closed := b.closed
			b.mu.Unlock()
			if closed {
				return
			}
			// Best effort; the device drops the subscription on disconnect anyway
			_, _ = b.roundTrip(context.Background(), bridgeFrame{
				Op:             "unsubscribe",
				Service:        serviceUUID,
				Characteristic: charUUID,
			})
		})
	}
	return unsubscribe, nil
}

// Disconnect implements Link.
func (b *Bridge) Disconnect() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	logging.Debug("Characteristic bridge disconnecting")
	return b.conn.Close()
}

func subKey(serviceUUID, charUUID string) string {
	return serviceUUID + "/" + charUUID
}
