package simulator

import (
	"encoding/base64"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aldervik/lumen/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// bridgeFrame mirrors the controller side of the characteristic bridge:
// one JSON frame per request, result, or notification, with values
// base64-encoded.
type bridgeFrame struct {
	ID             uint64 `json:"id,omitempty"`
	Op             string `json:"op"`
	Service        string `json:"service,omitempty"`
	Characteristic string `json:"characteristic,omitempty"`
	Value          string `json:"value,omitempty"`
	OK             bool   `json:"ok,omitempty"`
	Error          string `json:"error,omitempty"`
}

// bridgeConn is one controller connected to the characteristic bridge.
type bridgeConn struct {
	conn *websocket.Conn

	writeMu sync.Mutex // websocket allows one concurrent writer

	mu   sync.Mutex
	subs map[string]bool // service+"/"+characteristic
}

// handleBridge upgrades the connection and serves characteristic requests
// until the controller disconnects.
func (s *Simulator) handleBridge(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debug("Bridge upgrade failed", zap.Error(err))
		return
	}

	c := &bridgeConn{conn: conn, subs: make(map[string]bool)}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		var frame bridgeFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		s.serveFrame(c, frame)
	}
}

// serveFrame handles one request frame and writes the result.
func (s *Simulator) serveFrame(c *bridgeConn, frame bridgeFrame) {
	result := bridgeFrame{ID: frame.ID, Op: "result", OK: true}

	switch frame.Op {
	case "write":
		value, err := base64.StdEncoding.DecodeString(frame.Value)
		if err == nil {
			err = s.applyWrite(frame.Service, frame.Characteristic, value)
		}
		if err != nil {
			result.OK = false
			result.Error = err.Error()
		}

	case "read":
		value, err := s.readCharacteristic(frame.Service, frame.Characteristic)
		if err != nil {
			result.OK = false
			result.Error = err.Error()
		} else {
			result.Value = base64.StdEncoding.EncodeToString(value)
		}

	case "subscribe":
		c.mu.Lock()
		c.subs[frame.Service+"/"+frame.Characteristic] = true
		c.mu.Unlock()

	case "unsubscribe":
		c.mu.Lock()
		delete(c.subs, frame.Service+"/"+frame.Characteristic)
		c.mu.Unlock()

	default:
		result.OK = false
		result.Error = "unknown op " + frame.Op
	}

	c.send(result)
}

// notify pushes a characteristic value to every subscribed controller.
func (s *Simulator) notify(serviceUUID, charUUID string, value []byte) {
	frame := bridgeFrame{
		Op:             "notify",
		Service:        serviceUUID,
		Characteristic: charUUID,
		Value:          base64.StdEncoding.EncodeToString(value),
	}

	s.mu.Lock()
	conns := make([]*bridgeConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	key := serviceUUID + "/" + charUUID
	for _, c := range conns {
		c.mu.Lock()
		subscribed := c.subs[key]
		c.mu.Unlock()
		if subscribed {
			c.send(frame)
		}
	}
}

func (c *bridgeConn) send(frame bridgeFrame) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(frame); err != nil {
		logging.Debug("Bridge write failed", zap.Error(err))
	}
}
