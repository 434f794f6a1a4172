package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// fakeConn implements Sender for registry tests.
type fakeConn struct {
	sessionID string
	mu        sync.Mutex
	closed    bool
}

func (f *fakeConn) SessionID() string { return f.sessionID }

func (f *fakeConn) Send(string, json.RawMessage, string) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// allowAll accepts every credential.
type allowAll struct{}

func (allowAll) ValidateDeviceToken(context.Context, string) bool { return true }

// denyAll rejects every credential.
type denyAll struct{}

func (denyAll) ValidateDeviceToken(context.Context, string) bool { return false }

func admitRover(t *testing.T, r *Registry, deviceID, sessionID string) Identity {
	t.Helper()
	identity, err := r.Admit(context.Background(), AdmitRequest{
		SessionID:  sessionID,
		DeviceID:   deviceID,
		DeviceType: DeviceTypeRover,
		Credential: "token",
		Conn:       &fakeConn{sessionID: sessionID},
	})
	if err != nil {
		t.Fatalf("Admit(%s) failed: %v", deviceID, err)
	}
	return identity
}

func TestAdmitValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		validator CredentialValidator
		req       AdmitRequest
		wantErr   error
	}{
		{
			name:      "bad credential",
			validator: denyAll{},
			req: AdmitRequest{
				SessionID: "s1", DeviceID: "rover_1", DeviceType: DeviceTypeRover,
			},
			wantErr: ErrUnauthenticated,
		},
		{
			name:      "missing device id",
			validator: allowAll{},
			req: AdmitRequest{
				SessionID: "s1", DeviceType: DeviceTypeRover,
			},
			wantErr: ErrMissingID,
		},
		{
			name:      "unknown device type",
			validator: allowAll{},
			req: AdmitRequest{
				SessionID: "s1", DeviceID: "drone_1", DeviceType: DeviceType("drone"),
			},
			wantErr: ErrUnknownDeviceType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(tt.validator)
			_, err := r.Admit(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Admit() error = %v, want %v", err, tt.wantErr)
			}
			if got := r.Count(DeviceTypeRover); got != 0 {
				t.Errorf("failed admit left %d rovers registered", got)
			}
		})
	}
}

func TestAdmitDuplicateRejected(t *testing.T) {
	r := NewRegistry(allowAll{})
	admitRover(t, r, "rover_1", "s1")

	_, err := r.Admit(context.Background(), AdmitRequest{
		SessionID: "s2", DeviceID: "rover_1", DeviceType: DeviceTypeRover,
		Conn: &fakeConn{sessionID: "s2"},
	})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("Admit() error = %v, want ErrDuplicateID", err)
	}

	// Original session must be untouched.
	if _, ok := r.Lookup("rover_1", DeviceTypeRover); !ok {
		t.Error("original rover lost after rejected duplicate")
	}
	if got := r.Count(DeviceTypeRover); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestAdmitSameIDDifferentTypes(t *testing.T) {
	r := NewRegistry(allowAll{})
	admitRover(t, r, "unit_7", "s1")

	_, err := r.Admit(context.Background(), AdmitRequest{
		SessionID: "s2", DeviceID: "unit_7", DeviceType: DeviceTypeGarage,
		Conn: &fakeConn{sessionID: "s2"},
	})
	if err != nil {
		t.Fatalf("garage with same id as rover rejected: %v", err)
	}
}

func TestAdmitReplacePolicy(t *testing.T) {
	r := NewRegistry(allowAll{}, WithReplacePolicy())

	oldConn := &fakeConn{sessionID: "s1"}
	_, err := r.Admit(context.Background(), AdmitRequest{
		SessionID: "s1", DeviceID: "rover_1", DeviceType: DeviceTypeRover, Conn: oldConn,
	})
	if err != nil {
		t.Fatalf("first Admit failed: %v", err)
	}

	identity, err := r.Admit(context.Background(), AdmitRequest{
		SessionID: "s2", DeviceID: "rover_1", DeviceType: DeviceTypeRover,
		Conn: &fakeConn{sessionID: "s2"},
	})
	if err != nil {
		t.Fatalf("replacing Admit failed: %v", err)
	}
	if identity.SessionID != "s2" {
		t.Errorf("identity.SessionID = %q, want s2", identity.SessionID)
	}
	if !oldConn.isClosed() {
		t.Error("replaced connection was not closed")
	}
	if got := r.Count(DeviceTypeRover); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestConcurrentAdmitsSingleWinner(t *testing.T) {
	r := NewRegistry(allowAll{})

	const attempts = 50
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = r.Admit(context.Background(), AdmitRequest{
				SessionID:  fmt.Sprintf("s%d", n),
				DeviceID:   "rover_1",
				DeviceType: DeviceTypeRover,
				Conn:       &fakeConn{sessionID: fmt.Sprintf("s%d", n)},
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else if !errors.Is(err, ErrDuplicateID) {
			t.Errorf("unexpected admit error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("got %d winning admits, want exactly 1", winners)
	}
	if got := r.Count(DeviceTypeRover); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestEvictIdempotent(t *testing.T) {
	r := NewRegistry(allowAll{})
	admitRover(t, r, "rover_1", "s1")

	if !r.Evict("s1") {
		t.Error("Evict returned false for a registered session")
	}
	if r.Evict("s1") {
		t.Error("Evict returned true for an already evicted session")
	}
	if r.Evict("never-registered") {
		t.Error("Evict returned true for an unknown session")
	}

	if got := r.Count(DeviceTypeRover); got != 0 {
		t.Errorf("Count() = %d, want 0 after evict", got)
	}
	if _, ok := r.Lookup("rover_1", DeviceTypeRover); ok {
		t.Error("evicted rover still resolvable")
	}
}

func TestEvictAfterReplaceReportsNotRegistered(t *testing.T) {
	r := NewRegistry(allowAll{}, WithReplacePolicy())
	admitRover(t, r, "rover_1", "s1")

	if _, err := r.Admit(context.Background(), AdmitRequest{
		SessionID: "s2", DeviceID: "rover_1", DeviceType: DeviceTypeRover,
		Conn: &fakeConn{sessionID: "s2"},
	}); err != nil {
		t.Fatalf("replacing Admit failed: %v", err)
	}

	// The replaced session is already gone; its own eviction is a no-op.
	if r.Evict("s1") {
		t.Error("Evict returned true for a replaced session")
	}
	if got := r.Count(DeviceTypeRover); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestFreshAdmitDefaults(t *testing.T) {
	r := NewRegistry(allowAll{})
	admitRover(t, r, "rover_1", "s1")

	state, ok := r.RoverByID("rover_1")
	if !ok {
		t.Fatal("RoverByID returned not found")
	}
	if state.State != RoverStateIdleRoaming {
		t.Errorf("default state = %q, want %q", state.State, RoverStateIdleRoaming)
	}
	if state.Status != StatusAvailable {
		t.Errorf("default status = %q", state.Status)
	}
	if state.BatteryPercent != 100 {
		t.Errorf("default battery_percent = %d, want 100", state.BatteryPercent)
	}
	for _, component := range RoverHealthComponents() {
		if state.Health[component] != HealthHealthy {
			t.Errorf("health[%s] = %q, want healthy", component, state.Health[component])
		}
	}
}

func validRoverPayload(roverID string) map[string]any {
	return map[string]any{
		"rover_id":        roverID,
		"state":           "autonomous",
		"status":          "unavailable",
		"battery_percent": 72,
		"battery_voltage": 13.4,
		"health": map[string]any{
			"electronics": "healthy",
			"drivetrain":  "degraded",
			"intake":      "healthy",
			"sensors":     "healthy",
			"garage":      "unavailable",
			"power":       "healthy",
			"general":     "healthy",
		},
		"telemetry": map[string]any{
			"location": map[string]any{"lat": 40.5, "long": -105.0},
			"heading":  180.0,
			"speed":    1.5,
		},
	}
}

func TestUpdateStateFullReplace(t *testing.T) {
	r := NewRegistry(allowAll{})
	admitRover(t, r, "rover_1", "s1")

	payload, _ := json.Marshal(validRoverPayload("rover_1"))
	if err := r.UpdateState("s1", payload); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}

	state, _ := r.RoverByID("rover_1")
	if state.State != "autonomous" {
		t.Errorf("state = %q, want autonomous", state.State)
	}
	if state.BatteryPercent != 72 {
		t.Errorf("battery_percent = %d, want 72", state.BatteryPercent)
	}
	if state.Health["drivetrain"] != "degraded" {
		t.Errorf("health.drivetrain = %q, want degraded", state.Health["drivetrain"])
	}
}

func TestUpdateStateInvalidLeavesStateUntouched(t *testing.T) {
	r := NewRegistry(allowAll{})
	admitRover(t, r, "rover_1", "s1")

	bad := validRoverPayload("rover_1")
	bad["state"] = "warp_drive"
	delete(bad, "battery_voltage")
	payload, _ := json.Marshal(bad)

	err := r.UpdateState("s1", payload)
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("UpdateState error = %v, want ErrInvalidPayload", err)
	}

	state, _ := r.RoverByID("rover_1")
	if state.State != RoverStateIdleRoaming {
		t.Errorf("state changed to %q after rejected update", state.State)
	}
}

func TestUpdateStateIdentityMismatch(t *testing.T) {
	r := NewRegistry(allowAll{})
	admitRover(t, r, "rover_1", "s1")

	payload, _ := json.Marshal(validRoverPayload("rover_99"))
	if err := r.UpdateState("s1", payload); !errors.Is(err, ErrIdentityMismatch) {
		t.Fatalf("UpdateState error = %v, want ErrIdentityMismatch", err)
	}
}

func TestUpdateStateUnknownSession(t *testing.T) {
	r := NewRegistry(allowAll{})

	payload, _ := json.Marshal(validRoverPayload("rover_1"))
	if err := r.UpdateState("ghost", payload); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("UpdateState error = %v, want ErrSessionNotFound", err)
	}
}

func TestMergeStatePartial(t *testing.T) {
	r := NewRegistry(allowAll{})
	admitRover(t, r, "rover_1", "s1")

	err := r.MergeState("s1", map[string]any{
		"telemetry": map[string]any{"heading": 270.0},
	})
	if err != nil {
		t.Fatalf("MergeState failed: %v", err)
	}

	state, _ := r.RoverByID("rover_1")
	if state.Telemetry.Heading == nil || *state.Telemetry.Heading != 270 {
		t.Errorf("heading not merged, got %v", state.Telemetry.Heading)
	}
	// Everything else stays at defaults.
	if state.BatteryPercent != 100 {
		t.Errorf("battery_percent = %d, want untouched 100", state.BatteryPercent)
	}
	if state.Telemetry.Speed == nil || *state.Telemetry.Speed != 0 {
		t.Errorf("speed disturbed by partial merge: %v", state.Telemetry.Speed)
	}
}

func TestMergeStateSkipsBadTypesAndUnknownKeys(t *testing.T) {
	r := NewRegistry(allowAll{})
	admitRover(t, r, "rover_1", "s1")

	// Wrong-typed state, unknown top-level key, and unknown health component
	// are all skipped; battery_percent applies.
	err := r.MergeState("s1", map[string]any{
		"state":           42,
		"battery_percent": 55,
		"warp_factor":     9,
		"health":          map[string]any{"flux_capacitor": "bad"},
	})
	if err != nil {
		t.Fatalf("MergeState failed: %v", err)
	}

	state, _ := r.RoverByID("rover_1")
	if state.State != RoverStateIdleRoaming {
		t.Errorf("state = %q, want untouched default", state.State)
	}
	if state.BatteryPercent != 55 {
		t.Errorf("battery_percent = %d, want 55", state.BatteryPercent)
	}
	if _, ok := state.Health["flux_capacitor"]; ok {
		t.Error("unknown health component leaked into state")
	}
}

func TestMergeStateIdentityMismatch(t *testing.T) {
	r := NewRegistry(allowAll{})
	admitRover(t, r, "rover_1", "s1")

	err := r.MergeState("s1", map[string]any{"rover_id": "rover_99", "battery_percent": 10})
	if !errors.Is(err, ErrIdentityMismatch) {
		t.Fatalf("MergeState error = %v, want ErrIdentityMismatch", err)
	}
}

func TestListRoversInsertionOrder(t *testing.T) {
	r := NewRegistry(allowAll{})
	admitRover(t, r, "rover_c", "s1")
	admitRover(t, r, "rover_a", "s2")
	admitRover(t, r, "rover_b", "s3")

	rovers := r.ListRovers()
	want := []string{"rover_c", "rover_a", "rover_b"}
	if len(rovers) != len(want) {
		t.Fatalf("ListRovers() returned %d rovers, want %d", len(rovers), len(want))
	}
	for i, id := range want {
		if rovers[i].RoverID != id {
			t.Errorf("rovers[%d].RoverID = %q, want %q", i, rovers[i].RoverID, id)
		}
	}
}

func TestSnapshotsAreDeepCopies(t *testing.T) {
	r := NewRegistry(allowAll{})
	admitRover(t, r, "rover_1", "s1")

	snapshot, _ := r.RoverByID("rover_1")
	snapshot.Health["general"] = "unhealthy"
	*snapshot.Telemetry.Heading = 1

	fresh, _ := r.RoverByID("rover_1")
	if fresh.Health["general"] != HealthHealthy {
		t.Error("mutating a snapshot changed registry state")
	}
	if *fresh.Telemetry.Heading != 90 {
		t.Error("mutating snapshot telemetry changed registry state")
	}
}

func TestGarageLifecycle(t *testing.T) {
	r := NewRegistry(allowAll{})

	_, err := r.Admit(context.Background(), AdmitRequest{
		SessionID: "g1", DeviceID: "garage_1", DeviceType: DeviceTypeGarage,
		Conn: &fakeConn{sessionID: "g1"},
	})
	if err != nil {
		t.Fatalf("garage Admit failed: %v", err)
	}

	state, ok := r.GarageByID("garage_1")
	if !ok {
		t.Fatal("GarageByID returned not found")
	}
	if state.State != GarageStateRetracted {
		t.Errorf("default garage state = %q, want retracted", state.State)
	}

	payload, _ := json.Marshal(map[string]any{
		"garage_id": "garage_1",
		"state":     "deployed",
		"status":    "available",
		"health": map[string]any{
			"electronics": "healthy",
			"actuators":   "healthy",
			"lights":      "degraded",
			"power":       "healthy",
			"general":     "healthy",
		},
	})
	if err := r.UpdateState("g1", payload); err != nil {
		t.Fatalf("garage UpdateState failed: %v", err)
	}

	state, _ = r.GarageByID("garage_1")
	if state.State != GarageStateDeployed {
		t.Errorf("garage state = %q, want deployed", state.State)
	}
	if state.Health["lights"] != "degraded" {
		t.Errorf("garage health.lights = %q, want degraded", state.Health["lights"])
	}
}
