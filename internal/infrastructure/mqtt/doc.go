// Package mqtt publishes fleet state to an MQTT broker.
//
// Fan-out is optional and best effort: publish failures are logged, never
// surfaced to devices, and never block an update from being accepted.
package mqtt
