package fleet

import "testing"

func TestRoverMergeScalars(t *testing.T) {
	s := NewRoverState("rover_1")
	s.Merge(map[string]any{
		"state":           "e_stop",
		"status":          "unavailable",
		"battery_percent": 12.0,
		"battery_voltage": 11.1,
	})

	if s.State != RoverStateEStop {
		t.Errorf("state = %q", s.State)
	}
	if s.Status != StatusUnavailable {
		t.Errorf("status = %q", s.Status)
	}
	if s.BatteryPercent != 12 {
		t.Errorf("battery_percent = %d", s.BatteryPercent)
	}
	if s.BatteryVoltage != 11.1 {
		t.Errorf("battery_voltage = %v", s.BatteryVoltage)
	}
}

func TestRoverMergeIgnoresIDField(t *testing.T) {
	s := NewRoverState("rover_1")
	s.Merge(map[string]any{"rover_id": "rover_99"})

	if s.RoverID != "rover_1" {
		t.Errorf("rover_id changed by merge: %q", s.RoverID)
	}
}

func TestRoverMergeTelemetryNulls(t *testing.T) {
	s := NewRoverState("rover_1")

	// A rover losing GPS lock reports nulls; the fields must clear.
	s.Merge(map[string]any{
		"telemetry": map[string]any{
			"location": map[string]any{"lat": nil, "long": nil},
			"speed":    2.5,
		},
	})

	if s.Telemetry.Location.Lat != nil || s.Telemetry.Location.Long != nil {
		t.Error("null location did not clear coordinates")
	}
	if s.Telemetry.Speed == nil || *s.Telemetry.Speed != 2.5 {
		t.Errorf("speed = %v, want 2.5", s.Telemetry.Speed)
	}
	// Heading untouched.
	if s.Telemetry.Heading == nil || *s.Telemetry.Heading != 90 {
		t.Errorf("heading disturbed: %v", s.Telemetry.Heading)
	}
}

func TestRoverMergeFlatTelemetryKeys(t *testing.T) {
	s := NewRoverState("rover_1")

	// Telemetry entries can arrive as bare top-level keys.
	s.Merge(map[string]any{"heading": 45.0})
	if s.Telemetry.Heading == nil || *s.Telemetry.Heading != 45 {
		t.Errorf("heading = %v, want 45", s.Telemetry.Heading)
	}

	s.Merge(map[string]any{"speed": 1.2})
	if s.Telemetry.Speed == nil || *s.Telemetry.Speed != 1.2 {
		t.Errorf("speed = %v, want 1.2", s.Telemetry.Speed)
	}

	s.Merge(map[string]any{"location": map[string]any{"lat": 41.5, "long": nil}})
	if s.Telemetry.Location.Lat == nil || *s.Telemetry.Location.Lat != 41.5 {
		t.Errorf("lat = %v, want 41.5", s.Telemetry.Location.Lat)
	}
	if s.Telemetry.Location.Long != nil {
		t.Errorf("long = %v, want cleared", s.Telemetry.Location.Long)
	}

	s.Merge(map[string]any{"heading": nil})
	if s.Telemetry.Heading != nil {
		t.Errorf("heading = %v, want cleared by null", s.Telemetry.Heading)
	}
}

func TestRoverMergeFlatHealthComponent(t *testing.T) {
	s := NewRoverState("rover_1")
	s.Merge(map[string]any{"electronics": "degraded", "drivetrain": 7})

	if s.Health["electronics"] != HealthDegraded {
		t.Errorf("health.electronics = %q, want degraded", s.Health["electronics"])
	}
	// Wrong value type keeps the current condition.
	if s.Health["drivetrain"] != HealthHealthy {
		t.Errorf("health.drivetrain = %q, want untouched", s.Health["drivetrain"])
	}
	if len(s.Health) != len(RoverHealthComponents()) {
		t.Errorf("health component count changed: %d", len(s.Health))
	}
}

func TestGarageMergeFlatHealthComponent(t *testing.T) {
	s := NewGarageState("garage_1")
	s.Merge(map[string]any{"actuators": "unavailable", "made_up": "healthy"})

	if s.Health["actuators"] != HealthUnavailable {
		t.Errorf("health.actuators = %q, want unavailable", s.Health["actuators"])
	}
	if _, ok := s.Health["made_up"]; ok {
		t.Error("unknown flat key added a health component")
	}
}

func TestRoverMergeTypeMismatchKeepsCurrent(t *testing.T) {
	s := NewRoverState("rover_1")
	s.Merge(map[string]any{
		"battery_voltage": "thirteen",
		"telemetry":       map[string]any{"heading": "north"},
	})

	if s.BatteryVoltage != 14 {
		t.Errorf("battery_voltage = %v, want untouched 14", s.BatteryVoltage)
	}
	if s.Telemetry.Heading == nil || *s.Telemetry.Heading != 90 {
		t.Errorf("heading = %v, want untouched 90", s.Telemetry.Heading)
	}
}

func TestGarageMergeHealthComponent(t *testing.T) {
	s := NewGarageState("garage_1")
	s.Merge(map[string]any{
		"state":  "deployed",
		"health": map[string]any{"actuators": "unhealthy", "made_up": "healthy"},
	})

	if s.State != GarageStateDeployed {
		t.Errorf("state = %q", s.State)
	}
	if s.Health["actuators"] != HealthUnhealthy {
		t.Errorf("health.actuators = %q", s.Health["actuators"])
	}
	if _, ok := s.Health["made_up"]; ok {
		t.Error("unknown health component added by merge")
	}
	if len(s.Health) != len(GarageHealthComponents()) {
		t.Errorf("health component count changed: %d", len(s.Health))
	}
}
