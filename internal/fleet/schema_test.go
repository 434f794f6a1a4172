package fleet

import (
	"strings"
	"testing"
)

func TestValidateRoverPayloadValid(t *testing.T) {
	if violations := ValidateRoverPayload(validRoverPayload("rover_1")); violations != nil {
		t.Errorf("valid payload reported violations: %v", violations)
	}
}

func TestValidateRoverPayloadViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		want   string
	}{
		{
			name:   "missing battery_voltage",
			mutate: func(p map[string]any) { delete(p, "battery_voltage") },
			want:   "battery_voltage: required key missing",
		},
		{
			name:   "unknown state value",
			mutate: func(p map[string]any) { p["state"] = "warp_drive" },
			want:   "not a valid value",
		},
		{
			name:   "state wrong type",
			mutate: func(p map[string]any) { p["state"] = 3 },
			want:   "state: must be a string",
		},
		{
			name:   "battery over range",
			mutate: func(p map[string]any) { p["battery_percent"] = 101 },
			want:   "outside [0,100]",
		},
		{
			name:   "battery fractional",
			mutate: func(p map[string]any) { p["battery_percent"] = 50.5 },
			want:   "battery_percent: must be an integer",
		},
		{
			name: "missing health component",
			mutate: func(p map[string]any) {
				delete(p["health"].(map[string]any), "drivetrain")
			},
			want: "health.drivetrain: required key missing",
		},
		{
			name: "unknown health component",
			mutate: func(p map[string]any) {
				p["health"].(map[string]any)["flux_capacitor"] = "healthy"
			},
			want: "health.flux_capacitor: unknown component",
		},
		{
			name: "bad health condition",
			mutate: func(p map[string]any) {
				p["health"].(map[string]any)["power"] = "glowing"
			},
			want: "health.power",
		},
		{
			name: "heading not numeric",
			mutate: func(p map[string]any) {
				p["telemetry"].(map[string]any)["heading"] = "north"
			},
			want: "telemetry.heading: must be a number or null",
		},
		{
			name: "missing location lat",
			mutate: func(p map[string]any) {
				loc := p["telemetry"].(map[string]any)["location"].(map[string]any)
				delete(loc, "lat")
			},
			want: "telemetry.location.lat: required key missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := validRoverPayload("rover_1")
			tt.mutate(payload)

			violations := ValidateRoverPayload(payload)
			if len(violations) == 0 {
				t.Fatal("expected violations, got none")
			}
			if !containsSubstring(violations, tt.want) {
				t.Errorf("violations %v do not mention %q", violations, tt.want)
			}
		})
	}
}

func TestValidateRoverPayloadNullTelemetry(t *testing.T) {
	payload := validRoverPayload("rover_1")
	telemetry := payload["telemetry"].(map[string]any)
	telemetry["heading"] = nil
	telemetry["speed"] = nil
	telemetry["location"] = map[string]any{"lat": nil, "long": nil}

	if violations := ValidateRoverPayload(payload); violations != nil {
		t.Errorf("null telemetry values reported violations: %v", violations)
	}
}

func TestValidateRoverPayloadCollectsAll(t *testing.T) {
	payload := validRoverPayload("rover_1")
	payload["state"] = "warp_drive"
	payload["battery_percent"] = -5
	delete(payload, "telemetry")

	violations := ValidateRoverPayload(payload)
	if len(violations) < 3 {
		t.Errorf("expected all violations reported, got %v", violations)
	}
}

func TestValidateGaragePayload(t *testing.T) {
	valid := map[string]any{
		"garage_id": "garage_1",
		"state":     "locked",
		"status":    "available",
		"health": map[string]any{
			"electronics": "healthy",
			"actuators":   "healthy",
			"lights":      "healthy",
			"power":       "healthy",
			"general":     "healthy",
		},
	}
	if violations := ValidateGaragePayload(valid); violations != nil {
		t.Errorf("valid garage payload reported violations: %v", violations)
	}

	// Rover-only state values are invalid for garages.
	valid["state"] = "autonomous"
	violations := ValidateGaragePayload(valid)
	if !containsSubstring(violations, "not a valid value") {
		t.Errorf("rover state accepted for garage: %v", violations)
	}
}

func containsSubstring(violations []string, substr string) bool {
	for _, v := range violations {
		if strings.Contains(v, substr) {
			return true
		}
	}
	return false
}
