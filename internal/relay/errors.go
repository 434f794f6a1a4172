package relay

import "errors"

var (
	// ErrDeviceNotConnected is returned when a call targets a device id
	// with no registered connection.
	ErrDeviceNotConnected = errors.New("relay: device not connected")

	// ErrCallTimeout is returned when a device does not reply within the
	// call deadline.
	ErrCallTimeout = errors.New("relay: call timed out")

	// ErrSendFailed is returned when the request frame could not be
	// written to the device connection.
	ErrSendFailed = errors.New("relay: failed to send request to device")
)
