package fleet

// DeviceType identifies the kind of fleet device behind a connection.
type DeviceType string

// DeviceType constants.
const (
	DeviceTypeRover  DeviceType = "rover"
	DeviceTypeGarage DeviceType = "garage"
)

// Identity describes one admitted device connection.
//
// DeviceID is unique within its DeviceType while connected; SessionID is the
// transport session handle and is unique globally. Identities exist only for
// the lifetime of the connection and are never persisted.
type Identity struct {
	DeviceID   string     `json:"device_id"`
	DeviceType DeviceType `json:"device_type"`
	SessionID  string     `json:"session_id"`
}

// Rover operational states.
const (
	RoverStateDisconnected      = "disconnected"
	RoverStateDisconnectedFault = "disconnected_fault"
	RoverStateEStop             = "e_stop"
	RoverStateConnectedDisabled = "connected_disabled"
	RoverStateIdleRoaming       = "connected_idle_roaming"
	RoverStateIdleDocked        = "connected_idle_docked"
	RoverStateConnectedFault    = "connected_fault"
	RoverStateAutonomous        = "autonomous"
	RoverStateRemoteOperation   = "remote_operation"
)

// Garage operational states.
const (
	GarageStateRetracted   = "retracted"
	GarageStateDeployed    = "deployed"
	GarageStateDisabled    = "disabled"
	GarageStateUnavailable = "unavailable"
	GarageStateLocked      = "locked"
)

// Device availability statuses.
const (
	StatusAvailable   = "available"
	StatusUnavailable = "unavailable"
)

// Health component conditions.
const (
	HealthUnhealthy   = "unhealthy"
	HealthDegraded    = "degraded"
	HealthHealthy     = "healthy"
	HealthUnavailable = "unavailable"
)

// RoverStates returns all valid rover state values.
func RoverStates() []string {
	return []string{
		RoverStateDisconnected, RoverStateDisconnectedFault, RoverStateEStop,
		RoverStateConnectedDisabled, RoverStateIdleRoaming, RoverStateIdleDocked,
		RoverStateConnectedFault, RoverStateAutonomous, RoverStateRemoteOperation,
	}
}

// GarageStates returns all valid garage state values.
func GarageStates() []string {
	return []string{
		GarageStateRetracted, GarageStateDeployed, GarageStateDisabled,
		GarageStateUnavailable, GarageStateLocked,
	}
}

// Statuses returns all valid status values.
func Statuses() []string {
	return []string{StatusAvailable, StatusUnavailable}
}

// HealthConditions returns all valid health condition values.
func HealthConditions() []string {
	return []string{HealthUnhealthy, HealthDegraded, HealthHealthy, HealthUnavailable}
}

// RoverHealthComponents is the fixed component set of a rover health map.
// Updates may only overwrite these keys, never add or remove any.
func RoverHealthComponents() []string {
	return []string{"electronics", "drivetrain", "intake", "sensors", "garage", "power", "general"}
}

// GarageHealthComponents is the fixed component set of a garage health map.
func GarageHealthComponents() []string {
	return []string{"electronics", "actuators", "lights", "power", "general"}
}

// Location is a telemetry position fix. Coordinates are nullable: a rover
// without GPS lock reports null rather than a fabricated position.
type Location struct {
	Lat  *float64 `json:"lat"`
	Long *float64 `json:"long"`
}

// Telemetry carries a rover's motion data.
type Telemetry struct {
	Location Location `json:"location"`
	Heading  *float64 `json:"heading"`
	Speed    *float64 `json:"speed"`
}

// RoverState is the reported status of one connected rover.
//
// Field names match the device wire contract. Instances are owned by the
// registry entry for the rover; external readers only ever see deep copies.
type RoverState struct {
	RoverID        string            `json:"rover_id"`
	State          string            `json:"state"`
	Status         string            `json:"status"`
	BatteryPercent int               `json:"battery_percent"`
	BatteryVoltage float64           `json:"battery_voltage"`
	Health         map[string]string `json:"health"`
	Telemetry      Telemetry         `json:"telemetry"`
}

// GarageState is the reported status of one connected garage.
// Garages have no battery or telemetry but follow the same shape discipline.
type GarageState struct {
	GarageID string            `json:"garage_id"`
	State    string            `json:"state"`
	Status   string            `json:"status"`
	Health   map[string]string `json:"health"`
}

// Default position reported until the first telemetry update arrives.
var defaultLocation = Location{
	Lat:  ptrFloat(40.474083),
	Long: ptrFloat(-104.969523),
}

// NewRoverState returns the idle default state for a freshly admitted rover.
func NewRoverState(roverID string) *RoverState {
	health := make(map[string]string, len(RoverHealthComponents()))
	for _, component := range RoverHealthComponents() {
		health[component] = HealthHealthy
	}
	return &RoverState{
		RoverID:        roverID,
		State:          RoverStateIdleRoaming,
		Status:         StatusAvailable,
		BatteryPercent: 100,
		BatteryVoltage: 14,
		Health:         health,
		Telemetry: Telemetry{
			Location: defaultLocation,
			Heading:  ptrFloat(90),
			Speed:    ptrFloat(0),
		},
	}
}

// NewGarageState returns the default state for a freshly admitted garage.
func NewGarageState(garageID string) *GarageState {
	health := make(map[string]string, len(GarageHealthComponents()))
	for _, component := range GarageHealthComponents() {
		health[component] = HealthHealthy
	}
	return &GarageState{
		GarageID: garageID,
		State:    GarageStateRetracted,
		Status:   StatusAvailable,
		Health:   health,
	}
}

// DeepCopy creates a complete independent copy of the RoverState.
// Map and pointer fields are cloned so modifications to the copy do not
// affect the registry-owned original.
func (s *RoverState) DeepCopy() *RoverState {
	if s == nil {
		return nil
	}

	cpy := *s

	if s.Health != nil {
		cpy.Health = make(map[string]string, len(s.Health))
		for k, v := range s.Health {
			cpy.Health[k] = v
		}
	}

	cpy.Telemetry.Location.Lat = copyFloat(s.Telemetry.Location.Lat)
	cpy.Telemetry.Location.Long = copyFloat(s.Telemetry.Location.Long)
	cpy.Telemetry.Heading = copyFloat(s.Telemetry.Heading)
	cpy.Telemetry.Speed = copyFloat(s.Telemetry.Speed)

	return &cpy
}

// DeepCopy creates a complete independent copy of the GarageState.
func (s *GarageState) DeepCopy() *GarageState {
	if s == nil {
		return nil
	}

	cpy := *s

	if s.Health != nil {
		cpy.Health = make(map[string]string, len(s.Health))
		for k, v := range s.Health {
			cpy.Health[k] = v
		}
	}

	return &cpy
}

func ptrFloat(v float64) *float64 {
	return &v
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	cpy := *v
	return &cpy
}
