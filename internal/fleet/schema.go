package fleet

import (
	"fmt"
	"math"
)

// Schema validation for full state updates.
//
// A full update must carry the complete replacement object; the checks here
// mirror the device-side state contract: required keys, enum membership,
// the exact health component set, and numeric-or-null telemetry values.
// Partial updates (data_specific) deliberately bypass this validation.
//
// Validation is pure: it inspects a decoded JSON object and returns the list
// of violated constraints. A nil result means the payload is valid.

// requiredRoverKeys are the top-level keys a full rover update must carry.
var requiredRoverKeys = []string{
	"rover_id", "state", "status", "battery_percent", "battery_voltage", "health", "telemetry",
}

// requiredGarageKeys are the top-level keys a full garage update must carry.
var requiredGarageKeys = []string{
	"garage_id", "state", "status", "health",
}

// ValidateRoverPayload checks a decoded full rover update against the state
// contract. It returns all violations found, or nil if the payload is valid.
func ValidateRoverPayload(payload map[string]any) []string {
	if payload == nil {
		return []string{"payload is empty"}
	}

	var violations []string
	violations = append(violations, checkRequiredKeys(payload, requiredRoverKeys)...)

	if v, ok := payload["state"]; ok {
		violations = append(violations, checkEnum("state", v, RoverStates())...)
	}
	if v, ok := payload["status"]; ok {
		violations = append(violations, checkEnum("status", v, Statuses())...)
	}
	if v, ok := payload["battery_percent"]; ok {
		violations = append(violations, checkBatteryPercent(v)...)
	}
	if v, ok := payload["battery_voltage"]; ok {
		if _, isNum := asFloat(v); !isNum {
			violations = append(violations, "battery_voltage: must be a number")
		}
	}
	if v, ok := payload["health"]; ok {
		violations = append(violations, checkHealth(v, RoverHealthComponents())...)
	}
	if v, ok := payload["telemetry"]; ok {
		violations = append(violations, checkTelemetry(v)...)
	}

	return violations
}

// ValidateGaragePayload checks a decoded full garage update.
// Same contract discipline as rovers, minus battery and telemetry.
func ValidateGaragePayload(payload map[string]any) []string {
	if payload == nil {
		return []string{"payload is empty"}
	}

	var violations []string
	violations = append(violations, checkRequiredKeys(payload, requiredGarageKeys)...)

	if v, ok := payload["state"]; ok {
		violations = append(violations, checkEnum("state", v, GarageStates())...)
	}
	if v, ok := payload["status"]; ok {
		violations = append(violations, checkEnum("status", v, Statuses())...)
	}
	if v, ok := payload["health"]; ok {
		violations = append(violations, checkHealth(v, GarageHealthComponents())...)
	}

	return violations
}

// checkRequiredKeys reports each missing required top-level key.
func checkRequiredKeys(payload map[string]any, required []string) []string {
	var violations []string
	for _, key := range required {
		if _, ok := payload[key]; !ok {
			violations = append(violations, fmt.Sprintf("%s: required key missing", key))
		}
	}
	return violations
}

// checkEnum reports a value outside the allowed set.
func checkEnum(field string, value any, allowed []string) []string {
	s, ok := value.(string)
	if !ok {
		return []string{fmt.Sprintf("%s: must be a string", field)}
	}
	for _, a := range allowed {
		if s == a {
			return nil
		}
	}
	return []string{fmt.Sprintf("%s: %q is not a valid value", field, s)}
}

// checkBatteryPercent enforces an integral value in [0,100].
func checkBatteryPercent(value any) []string {
	f, ok := asFloat(value)
	if !ok {
		return []string{"battery_percent: must be an integer"}
	}
	if f != math.Trunc(f) {
		return []string{"battery_percent: must be an integer"}
	}
	if f < 0 || f > 100 {
		return []string{fmt.Sprintf("battery_percent: %v is outside [0,100]", f)}
	}
	return nil
}

// checkHealth enforces the exact component set and the health enum.
// Unknown components are violations: the health map never gains keys.
func checkHealth(value any, components []string) []string {
	m, ok := value.(map[string]any)
	if !ok {
		return []string{"health: must be an object"}
	}

	var violations []string
	for _, component := range components {
		v, present := m[component]
		if !present {
			violations = append(violations, fmt.Sprintf("health.%s: required key missing", component))
			continue
		}
		for _, violation := range checkEnum("health."+component, v, HealthConditions()) {
			violations = append(violations, violation)
		}
	}

	known := make(map[string]struct{}, len(components))
	for _, component := range components {
		known[component] = struct{}{}
	}
	for key := range m {
		if _, ok := known[key]; !ok {
			violations = append(violations, fmt.Sprintf("health.%s: unknown component", key))
		}
	}

	return violations
}

// checkTelemetry enforces the telemetry sub-object shape.
func checkTelemetry(value any) []string {
	m, ok := value.(map[string]any)
	if !ok {
		return []string{"telemetry: must be an object"}
	}

	var violations []string

	for _, field := range []string{"heading", "speed"} {
		v, present := m[field]
		if !present {
			violations = append(violations, fmt.Sprintf("telemetry.%s: required key missing", field))
			continue
		}
		violations = append(violations, checkNullableNumber("telemetry."+field, v)...)
	}

	loc, present := m["location"]
	if !present {
		violations = append(violations, "telemetry.location: required key missing")
		return violations
	}
	locMap, ok := loc.(map[string]any)
	if !ok {
		violations = append(violations, "telemetry.location: must be an object")
		return violations
	}
	for _, field := range []string{"lat", "long"} {
		v, present := locMap[field]
		if !present {
			violations = append(violations, fmt.Sprintf("telemetry.location.%s: required key missing", field))
			continue
		}
		violations = append(violations, checkNullableNumber("telemetry.location."+field, v)...)
	}

	return violations
}

// checkNullableNumber accepts a JSON number or null.
func checkNullableNumber(field string, value any) []string {
	if value == nil {
		return nil
	}
	if _, ok := asFloat(value); !ok {
		return []string{fmt.Sprintf("%s: must be a number or null", field)}
	}
	return nil
}

// asFloat extracts a numeric value from a decoded JSON value.
func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
