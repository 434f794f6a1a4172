package fleet

// Partial update merging.
//
// A partial update carries an arbitrary subset of the state object and is not
// schema validated. Merging is field by field: recognised keys with the right
// value type overwrite, everything else is silently skipped. The id field is
// never merged; identity is fixed at admit time.

// roverFieldSetters maps top-level rover keys to typed setters.
// A setter returns false when the incoming value has the wrong type.
var roverFieldSetters = map[string]func(*RoverState, any) bool{
	"state": func(s *RoverState, v any) bool {
		val, ok := v.(string)
		if ok {
			s.State = val
		}
		return ok
	},
	"status": func(s *RoverState, v any) bool {
		val, ok := v.(string)
		if ok {
			s.Status = val
		}
		return ok
	},
	"battery_percent": func(s *RoverState, v any) bool {
		val, ok := asFloat(v)
		if ok {
			s.BatteryPercent = int(val)
		}
		return ok
	},
	"battery_voltage": func(s *RoverState, v any) bool {
		val, ok := asFloat(v)
		if ok {
			s.BatteryVoltage = val
		}
		return ok
	},
}

// garageFieldSetters maps top-level garage keys to typed setters.
var garageFieldSetters = map[string]func(*GarageState, any) bool{
	"state": func(s *GarageState, v any) bool {
		val, ok := v.(string)
		if ok {
			s.State = val
		}
		return ok
	},
	"status": func(s *GarageState, v any) bool {
		val, ok := v.(string)
		if ok {
			s.Status = val
		}
		return ok
	},
}

// Merge applies a partial update to the rover state in place.
//
// Recognised keys: the scalar fields, health components within the fixed
// component set, and the telemetry entries. Health and telemetry values
// may arrive either nested under their sub-object or as bare top-level
// keys; {"heading": 45} and {"electronics": "degraded"} both resolve.
// Unknown keys and type mismatches are skipped without error.
func (s *RoverState) Merge(partial map[string]any) {
	for key, value := range partial {
		if setter, ok := roverFieldSetters[key]; ok {
			setter(s, value)
			continue
		}

		switch key {
		case "health":
			if health, ok := value.(map[string]any); ok {
				mergeHealth(s.Health, health)
			}
		case "telemetry":
			if telemetry, ok := value.(map[string]any); ok {
				s.Telemetry.merge(telemetry)
			}
		default:
			s.mergeFlat(key, value)
		}
	}
}

// mergeFlat resolves a bare key against the health component set and the
// telemetry entry names.
func (s *RoverState) mergeFlat(key string, value any) {
	if _, known := s.Health[key]; known {
		if condition, ok := value.(string); ok {
			s.Health[key] = condition
		}
		return
	}

	switch key {
	case "heading":
		s.Telemetry.Heading = mergeNullableNumber(s.Telemetry.Heading, value)
	case "speed":
		s.Telemetry.Speed = mergeNullableNumber(s.Telemetry.Speed, value)
	case "location":
		if loc, ok := value.(map[string]any); ok {
			s.Telemetry.mergeLocation(loc)
		}
	}
}

// Merge applies a partial update to the garage state in place.
// Health components resolve both nested and as bare top-level keys.
func (s *GarageState) Merge(partial map[string]any) {
	for key, value := range partial {
		if setter, ok := garageFieldSetters[key]; ok {
			setter(s, value)
			continue
		}

		if key == "health" {
			if health, ok := value.(map[string]any); ok {
				mergeHealth(s.Health, health)
			}
			continue
		}

		if _, known := s.Health[key]; known {
			if condition, ok := value.(string); ok {
				s.Health[key] = condition
			}
		}
	}
}

// mergeHealth overwrites existing components only. The component set is
// fixed; a partial update can never add a key to the health map.
func mergeHealth(dst map[string]string, src map[string]any) {
	for component, value := range src {
		if _, known := dst[component]; !known {
			continue
		}
		if condition, ok := value.(string); ok {
			dst[component] = condition
		}
	}
}

// merge applies a partial telemetry object.
func (t *Telemetry) merge(src map[string]any) {
	if loc, ok := src["location"].(map[string]any); ok {
		t.mergeLocation(loc)
	}
	if v, present := src["heading"]; present {
		t.Heading = mergeNullableNumber(t.Heading, v)
	}
	if v, present := src["speed"]; present {
		t.Speed = mergeNullableNumber(t.Speed, v)
	}
}

// mergeLocation applies a partial location object.
func (t *Telemetry) mergeLocation(loc map[string]any) {
	if v, present := loc["lat"]; present {
		t.Location.Lat = mergeNullableNumber(t.Location.Lat, v)
	}
	if v, present := loc["long"]; present {
		t.Location.Long = mergeNullableNumber(t.Location.Long, v)
	}
}

// mergeNullableNumber returns the new value for a nullable numeric field.
// null clears the field, a number replaces it, anything else keeps current.
func mergeNullableNumber(current *float64, value any) *float64 {
	if value == nil {
		return nil
	}
	if f, ok := asFloat(value); ok {
		return ptrFloat(f)
	}
	return current
}
