package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mirv-rover/relay-core/internal/audit"
	"github.com/mirv-rover/relay-core/internal/fleet"
	"github.com/mirv-rover/relay-core/internal/infrastructure/config"
	"github.com/mirv-rover/relay-core/internal/infrastructure/mqtt"
)

// Device event names on the wire.
const (
	eventData         = "data"
	eventDataSpecific = "data_specific"
	eventReply        = "reply"
	eventDisconnect   = "disconnect"
	eventException    = "exception"
)

// Exception codes sent to devices. The prefix tells the device whether to
// re-authenticate (AUTH), fix its message (ERROR), or reconnect (RECONNECT).
const (
	excInvalidToken      = "AUTH-invalid token"
	excNoDeviceID        = "AUTH-no device id"
	excDuplicateDeviceID = "ERROR-device_id already exists"
	excUnknownDeviceType = "ERROR-unknown device type"
	excInvalidMessage    = "ERROR-invalid message"
	excIncorrectDeviceID = "ERROR-incorrect device id"
	excSessionNotFound   = "RECONNECT-sid not found"
)

// envelope is the JSON frame exchanged with devices.
type envelope struct {
	Event         string          `json:"event"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// upgrader configures the WebSocket upgrader for device connections.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Devices are not browsers; origin checks do not apply.
		return true
	},
}

// wsSession is one device WebSocket connection.
//
// It implements fleet.Sender so the registry and relay gateway can push
// frames without knowing about WebSockets. All outbound traffic goes
// through the send channel and a single writePump goroutine.
type wsSession struct {
	server    *Server
	conn      *websocket.Conn
	sessionID string
	identity  fleet.Identity
	send      chan []byte
	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
}

// SessionID returns the transport session handle.
func (c *wsSession) SessionID() string {
	return c.sessionID
}

// Send queues an event frame for delivery to the device.
func (c *wsSession) Send(event string, data json.RawMessage, correlationID string) error {
	frame, err := json.Marshal(envelope{
		Event:         event,
		CorrelationID: correlationID,
		Data:          data,
	})
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	return c.trySend(frame)
}

// trySend queues a frame without blocking. A full buffer means the device
// has stopped draining; dropping beats stalling the caller. Holders of a
// Sender may outlive the session, so a closed session returns an error
// rather than touching the channel.
func (c *wsSession) trySend(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("session %s is closed", c.sessionID)
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return fmt.Errorf("send buffer full for session %s", c.sessionID)
	}
}

// Close terminates the connection and the send channel. Safe to call more
// than once and from any goroutine; the closed flag is set before the
// channel closes so in-flight Sends fail instead of panicking.
func (c *wsSession) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.conn.Close()
		close(c.send)
	})
	return nil
}

// sendException reports an error condition to the device out of band.
func (c *wsSession) sendException(code string) {
	//nolint:errcheck // Best-effort; a dead session drops the frame anyway
	c.Send(eventException, json.RawMessage(fmt.Sprintf("%q", code)), "")
}

// writeException writes an exception frame directly on the connection.
// Only valid before the write pump starts; the frame is flushed before
// the caller closes the session, so rejected devices always see the code.
func (c *wsSession) writeException(code string) {
	frame, err := json.Marshal(envelope{
		Event: eventException,
		Data:  json.RawMessage(fmt.Sprintf("%q", code)),
	})
	if err != nil {
		return
	}
	//nolint:errcheck // Best-effort deadline on a dying connection
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	//nolint:errcheck // Best-effort; the session is being rejected anyway
	c.conn.WriteMessage(websocket.TextMessage, frame)
}

// handleDeviceSocket upgrades a device connection and runs its session.
//
// Identification is via the RoverID or GarageID header plus a device bearer
// token. Admission failures send one exception frame and close; the HTTP
// response itself is always a successful upgrade so the device gets a
// readable error code.
func (s *Server) handleDeviceSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	deviceID, deviceType := deviceIdentity(r)

	session := &wsSession{
		server:    s,
		conn:      conn,
		sessionID: uuid.NewString(),
		send:      make(chan []byte, s.sendBufferSize()),
	}

	identity, err := s.registry.Admit(r.Context(), fleet.AdmitRequest{
		SessionID:  session.sessionID,
		DeviceID:   deviceID,
		DeviceType: deviceType,
		Credential: bearerToken(r),
		Conn:       session,
	})
	if err != nil {
		// The write pump has not started yet; write the exception frame
		// synchronously so it is flushed before the close.
		session.writeException(admitExceptionCode(err))
		s.noteConnectionEvent(deviceID, string(deviceType), session.sessionID, audit.EventRejected)
		session.Close()
		return
	}

	session.identity = identity
	go session.writePump(s.wsCfg)
	s.noteConnectionEvent(identity.DeviceID, string(identity.DeviceType), identity.SessionID, audit.EventConnected)
	s.logger.Info("device session opened",
		"device_id", identity.DeviceID,
		"device_type", string(identity.DeviceType),
		"session_id", identity.SessionID)

	session.readPump()
}

// deviceIdentity extracts the declared device id and type from headers.
func deviceIdentity(r *http.Request) (string, fleet.DeviceType) {
	if id := r.Header.Get("RoverID"); id != "" {
		return id, fleet.DeviceTypeRover
	}
	if id := r.Header.Get("GarageID"); id != "" {
		return id, fleet.DeviceTypeGarage
	}
	return "", ""
}

// admitExceptionCode maps an admission error to its wire exception code.
func admitExceptionCode(err error) string {
	switch {
	case errors.Is(err, fleet.ErrUnauthenticated):
		return excInvalidToken
	case errors.Is(err, fleet.ErrMissingID):
		return excNoDeviceID
	case errors.Is(err, fleet.ErrDuplicateID):
		return excDuplicateDeviceID
	case errors.Is(err, fleet.ErrUnknownDeviceType):
		return excUnknownDeviceType
	default:
		return excInvalidMessage
	}
}

// readPump reads and dispatches device frames until the connection drops.
// Runs on the session's goroutine; per-device ordering follows from the
// single reader.
func (c *wsSession) readPump() {
	s := c.server

	defer func() {
		// A session the registry no longer knows was displaced by a
		// replacing admit; everything else is a plain disconnect.
		event := audit.EventDisconnected
		if !s.registry.Evict(c.sessionID) {
			event = audit.EventReplaced
		}
		s.noteConnectionEvent(c.identity.DeviceID, string(c.identity.DeviceType), c.sessionID, event)
		c.Close()
		s.logger.Info("device session closed",
			"device_id", c.identity.DeviceID,
			"session_id", c.sessionID)
	}()

	cfg := s.wsCfg
	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("device read error", "session_id", c.sessionID, "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))

		if done := c.handleFrame(message); done {
			return
		}
	}
}

// handleFrame dispatches one inbound frame. Returns true when the session
// should end.
func (c *wsSession) handleFrame(message []byte) bool {
	s := c.server

	var frame envelope
	if err := json.Unmarshal(message, &frame); err != nil {
		c.sendException(excInvalidMessage)
		return false
	}

	switch frame.Event {
	case eventData:
		if err := s.registry.UpdateState(c.sessionID, frame.Data); err != nil {
			c.sendException(updateExceptionCode(err))
			return false
		}
		s.fanOut(c.identity)

	case eventDataSpecific:
		var partial map[string]any
		if err := json.Unmarshal(frame.Data, &partial); err != nil {
			c.sendException(excInvalidMessage)
			return false
		}
		if err := s.registry.MergeState(c.sessionID, partial); err != nil {
			c.sendException(updateExceptionCode(err))
			return false
		}
		s.fanOut(c.identity)

	case eventReply:
		if frame.CorrelationID == "" {
			c.sendException(excInvalidMessage)
			return false
		}
		s.gateway.Resolve(frame.CorrelationID, frame.Data)

	case eventDisconnect:
		return true

	default:
		c.sendException(excInvalidMessage)
	}

	return false
}

// updateExceptionCode maps a state-update error to its wire exception code.
func updateExceptionCode(err error) string {
	switch {
	case errors.Is(err, fleet.ErrIdentityMismatch):
		return excIncorrectDeviceID
	case errors.Is(err, fleet.ErrSessionNotFound):
		return excSessionNotFound
	default:
		return excInvalidMessage
	}
}

// writePump writes queued frames and protocol pings until the send channel
// closes or a write fails.
func (c *wsSession) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// fanOut mirrors the refreshed state snapshot to MQTT and InfluxDB.
// Best effort: failures are logged and never reach the device.
func (s *Server) fanOut(identity fleet.Identity) {
	switch identity.DeviceType {
	case fleet.DeviceTypeRover:
		state, ok := s.registry.RoverByID(identity.DeviceID)
		if !ok {
			return
		}
		s.publishState(identity, state)
		if s.influx != nil {
			s.influx.WriteRoverTelemetry(state)
		}
	case fleet.DeviceTypeGarage:
		state, ok := s.registry.GarageByID(identity.DeviceID)
		if !ok {
			return
		}
		s.publishState(identity, state)
	}
}

// publishState sends a retained state snapshot to the device's MQTT topic.
func (s *Server) publishState(identity fleet.Identity, state any) {
	if s.mqtt == nil {
		return
	}

	payload, err := json.Marshal(state)
	if err != nil {
		s.logger.Error("failed to encode state for fan-out", "device_id", identity.DeviceID, "error", err)
		return
	}

	topic := mqtt.Topics{}.DeviceState(string(identity.DeviceType), identity.DeviceID)
	if err := s.mqtt.PublishRetained(topic, payload); err != nil {
		s.logger.Warn("state fan-out failed", "topic", topic, "error", err)
	}
}

// noteConnectionEvent records a connection event in the audit log and
// mirrors it to the device's MQTT connection topic. Both sinks are
// optional and best effort.
func (s *Server) noteConnectionEvent(deviceID, deviceType, sessionID, event string) {
	if deviceID == "" {
		return
	}

	if s.audit != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := s.audit.Record(ctx, deviceID, deviceType, sessionID, event); err != nil {
			s.logger.Warn("audit write failed", "device_id", deviceID, "event", event, "error", err)
		}
	}

	if s.mqtt != nil {
		payload, err := json.Marshal(map[string]string{
			"device_id":  deviceID,
			"session_id": sessionID,
			"event":      event,
		})
		if err != nil {
			return
		}
		topic := mqtt.Topics{}.DeviceConnection(deviceType, deviceID)
		if err := s.mqtt.PublishRetained(topic, payload); err != nil {
			s.logger.Warn("connection event fan-out failed", "topic", topic, "error", err)
		}
	}
}

// sendBufferSize returns the configured per-session send buffer size.
func (s *Server) sendBufferSize() int {
	if s.wsCfg.SendBufferSize > 0 {
		return s.wsCfg.SendBufferSize
	}
	return 64
}
