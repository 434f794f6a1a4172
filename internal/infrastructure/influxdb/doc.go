// Package influxdb records rover telemetry history in InfluxDB v2.
//
// The relay's in-memory fleet state only covers connected devices; this
// package gives operators a time-series record of battery and motion data
// that survives disconnects. Integration is optional and writes are
// batched, non-blocking, and best effort.
package influxdb
