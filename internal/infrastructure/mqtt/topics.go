package mqtt

import "fmt"

// Topic prefixes for the relay's MQTT namespace.
const (
	// TopicPrefix is the base for all relay topics.
	TopicPrefix = "mirv"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "mirv/system"
)

// Topics provides builders for relay MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// DeviceState returns the state fan-out topic for a device.
//
// Example: mirv/state/rover/rover_6
func (Topics) DeviceState(deviceType, deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, deviceType, deviceID)
}

// DeviceConnection returns the connection-event topic for a device.
//
// Example: mirv/connection/garage/garage_1
func (Topics) DeviceConnection(deviceType, deviceID string) string {
	return fmt.Sprintf("%s/connection/%s/%s", TopicPrefix, deviceType, deviceID)
}

// SystemStatus returns the relay status topic.
//
// Example: mirv/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}
