package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mirv-rover/relay-core/internal/fleet"
)

// capturingConn records frames sent to a fake device.
type capturingConn struct {
	mu     sync.Mutex
	frames []sentFrame
}

type sentFrame struct {
	event         string
	data          json.RawMessage
	correlationID string
}

func (c *capturingConn) SessionID() string { return "test-session" }

func (c *capturingConn) Send(event string, data json.RawMessage, correlationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, sentFrame{event, data, correlationID})
	return nil
}

func (c *capturingConn) Close() error { return nil }

func (c *capturingConn) lastFrame() (sentFrame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return sentFrame{}, false
	}
	return c.frames[len(c.frames)-1], true
}

// failingConn rejects every send.
type failingConn struct{}

func (failingConn) SessionID() string { return "fail" }
func (failingConn) Send(string, json.RawMessage, string) error {
	return fmt.Errorf("socket gone")
}
func (failingConn) Close() error { return nil }

// stubConns is a ConnSource over a fixed device table.
type stubConns struct {
	devices map[string]fleet.Sender
}

func (s *stubConns) Conn(deviceID string, _ fleet.DeviceType) (fleet.Sender, bool) {
	conn, ok := s.devices[deviceID]
	return conn, ok
}

func TestCallDeviceNotConnected(t *testing.T) {
	g := NewGateway(&stubConns{devices: map[string]fleet.Sender{}}, time.Second)

	_, err := g.Call(context.Background(), "rover_1", fleet.DeviceTypeRover, "connection_offer", nil, 0)
	if !errors.Is(err, ErrDeviceNotConnected) {
		t.Fatalf("Call error = %v, want ErrDeviceNotConnected", err)
	}
	if got := g.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d after failed call", got)
	}
}

func TestCallSendFailure(t *testing.T) {
	g := NewGateway(&stubConns{devices: map[string]fleet.Sender{"rover_1": failingConn{}}}, time.Second)

	_, err := g.Call(context.Background(), "rover_1", fleet.DeviceTypeRover, "connection_offer", nil, 0)
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("Call error = %v, want ErrSendFailed", err)
	}
	if got := g.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d after send failure", got)
	}
}

func TestCallTimeout(t *testing.T) {
	conn := &capturingConn{}
	g := NewGateway(&stubConns{devices: map[string]fleet.Sender{"rover_1": conn}}, time.Second)

	start := time.Now()
	_, err := g.Call(context.Background(), "rover_1", fleet.DeviceTypeRover, "connection_offer", nil, 20*time.Millisecond)
	if !errors.Is(err, ErrCallTimeout) {
		t.Fatalf("Call error = %v, want ErrCallTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("call returned after %v, before the deadline", elapsed)
	}
	if got := g.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d after timeout, want 0", got)
	}
}

func TestCallResolved(t *testing.T) {
	conn := &capturingConn{}
	g := NewGateway(&stubConns{devices: map[string]fleet.Sender{"rover_1": conn}}, time.Second)

	done := make(chan struct{})
	var reply json.RawMessage
	var callErr error

	go func() {
		defer close(done)
		reply, callErr = g.Call(context.Background(), "rover_1", fleet.DeviceTypeRover,
			"connection_offer", json.RawMessage(`{"offer":"sdp"}`), time.Second)
	}()

	// Wait for the request frame to reach the device, then answer it.
	var frame sentFrame
	deadline := time.After(time.Second)
	for {
		var ok bool
		if frame, ok = conn.lastFrame(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("request frame never sent")
		case <-time.After(time.Millisecond):
		}
	}

	if frame.event != "connection_offer" {
		t.Errorf("sent event = %q", frame.event)
	}
	if frame.correlationID == "" {
		t.Fatal("request frame has no correlation id")
	}

	if !g.Resolve(frame.correlationID, json.RawMessage(`{"answer":"sdp"}`)) {
		t.Error("Resolve returned false for a pending call")
	}

	<-done
	if callErr != nil {
		t.Fatalf("Call failed: %v", callErr)
	}
	if string(reply) != `{"answer":"sdp"}` {
		t.Errorf("reply = %s", reply)
	}
	if got := g.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d after resolve", got)
	}
}

func TestResolveLateReplyDropped(t *testing.T) {
	conn := &capturingConn{}
	g := NewGateway(&stubConns{devices: map[string]fleet.Sender{"rover_1": conn}}, time.Second)

	_, err := g.Call(context.Background(), "rover_1", fleet.DeviceTypeRover, "command", nil, 10*time.Millisecond)
	if !errors.Is(err, ErrCallTimeout) {
		t.Fatalf("Call error = %v, want ErrCallTimeout", err)
	}

	frame, ok := conn.lastFrame()
	if !ok {
		t.Fatal("request frame never sent")
	}

	if g.Resolve(frame.correlationID, json.RawMessage(`"too late"`)) {
		t.Error("Resolve returned true for a timed-out call")
	}
}

func TestResolveUnknownCorrelation(t *testing.T) {
	g := NewGateway(&stubConns{devices: map[string]fleet.Sender{}}, time.Second)

	if g.Resolve("no-such-id", nil) {
		t.Error("Resolve returned true for an unknown correlation id")
	}
}

func TestCallContextCancelled(t *testing.T) {
	conn := &capturingConn{}
	g := NewGateway(&stubConns{devices: map[string]fleet.Sender{"rover_1": conn}}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := g.Call(ctx, "rover_1", fleet.DeviceTypeRover, "command", nil, time.Minute)
		done <- err
	}()

	// Let the call register, then abandon it.
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Call error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled call did not return")
	}

	if got := g.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d after cancellation", got)
	}
}

func TestConcurrentCallsIndependent(t *testing.T) {
	conn := &capturingConn{}
	g := NewGateway(&stubConns{devices: map[string]fleet.Sender{"garage_1": conn}}, time.Second)

	const calls = 10
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			//nolint:errcheck // each call times out by design
			g.Call(context.Background(), "garage_1", fleet.DeviceTypeGarage, "command", nil, 30*time.Millisecond)
		}()
	}

	// All calls in flight get distinct correlation ids.
	time.Sleep(10 * time.Millisecond)
	conn.mu.Lock()
	seen := make(map[string]bool, len(conn.frames))
	for _, f := range conn.frames {
		if seen[f.correlationID] {
			t.Errorf("duplicate correlation id %q", f.correlationID)
		}
		seen[f.correlationID] = true
	}
	conn.mu.Unlock()

	wg.Wait()
	if got := g.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d after all calls ended", got)
	}
}
