package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mirv-rover/relay-core/internal/fleet"
)

// ConnSource resolves a device id to its transport connection.
// Satisfied by *fleet.Registry.
type ConnSource interface {
	Conn(deviceID string, deviceType fleet.DeviceType) (fleet.Sender, bool)
}

// Logger is the minimal logging interface the gateway needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Gateway bridges synchronous callers onto the async device transport.
//
// Call tags each outbound request with a fresh correlation id and parks the
// caller on a reply channel; the transport layer feeds device replies back
// through Resolve. A call ends exactly one way: reply, timeout, or caller
// cancellation. The pending slot is removed on every exit path, so a late
// reply finds nothing and is dropped.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Gateway struct {
	conns   ConnSource
	timeout time.Duration
	logger  Logger

	mu      sync.Mutex
	pending map[string]chan json.RawMessage
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(logger Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGateway creates a gateway. timeout is the default call deadline used
// when Call receives a zero timeout.
func NewGateway(conns ConnSource, timeout time.Duration, opts ...Option) *Gateway {
	g := &Gateway{
		conns:   conns,
		timeout: timeout,
		logger:  noopLogger{},
		pending: make(map[string]chan json.RawMessage),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Call sends an event to a connected device and waits for the correlated
// reply. A zero timeout uses the gateway default.
//
// Returns ErrDeviceNotConnected if no connection exists for the device id,
// ErrCallTimeout if the deadline passes first, or the context error if the
// caller gives up.
func (g *Gateway) Call(ctx context.Context, deviceID string, deviceType fleet.DeviceType, event string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	conn, ok := g.conns.Conn(deviceID, deviceType)
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrDeviceNotConnected, deviceType, deviceID)
	}

	if timeout <= 0 {
		timeout = g.timeout
	}

	correlationID := uuid.NewString()

	// Buffered so Resolve never blocks on a caller that already left.
	reply := make(chan json.RawMessage, 1)

	g.mu.Lock()
	g.pending[correlationID] = reply
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.pending, correlationID)
		g.mu.Unlock()
	}()

	if err := conn.Send(event, payload, correlationID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	g.logger.Debug("relay call issued",
		"device_id", deviceID,
		"event", event,
		"correlation_id", correlationID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data := <-reply:
		return data, nil
	case <-timer.C:
		g.logger.Warn("relay call timed out",
			"device_id", deviceID,
			"event", event,
			"correlation_id", correlationID)
		return nil, fmt.Errorf("%w: %s %q after %s", ErrCallTimeout, event, deviceID, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolve delivers a device reply to the waiting caller.
//
// Returns false when no caller is waiting for the correlation id, which
// means the call already timed out or was cancelled; the reply is dropped.
func (g *Gateway) Resolve(correlationID string, data json.RawMessage) bool {
	g.mu.Lock()
	reply, ok := g.pending[correlationID]
	if ok {
		delete(g.pending, correlationID)
	}
	g.mu.Unlock()

	if !ok {
		g.logger.Debug("dropped uncorrelated reply", "correlation_id", correlationID)
		return false
	}

	reply <- data
	return true
}

// PendingCount returns the number of calls currently awaiting replies.
func (g *Gateway) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
