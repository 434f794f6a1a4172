// Package audit keeps a durable record of device connection events.
package audit
