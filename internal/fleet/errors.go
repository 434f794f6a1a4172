package fleet

import "errors"

// Domain errors for the fleet package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, fleet.ErrDuplicateID) {
//	    // handle duplicate registration
//	}
var (
	// ErrUnauthenticated is returned when a device credential fails validation.
	ErrUnauthenticated = errors.New("fleet: unauthenticated")

	// ErrDuplicateID is returned when a device id of the same type is already
	// registered and the duplicate policy is "reject".
	ErrDuplicateID = errors.New("fleet: device id already registered")

	// ErrMissingID is returned when a connection declares no device id.
	ErrMissingID = errors.New("fleet: device id is required")

	// ErrUnknownDeviceType is returned when the declared device type is not
	// rover or garage.
	ErrUnknownDeviceType = errors.New("fleet: unknown device type")

	// ErrSessionNotFound is returned when an update arrives for a session id
	// that is not registered.
	ErrSessionNotFound = errors.New("fleet: session not found")

	// ErrIdentityMismatch is returned when an update payload declares a
	// device id other than the one the session registered with.
	ErrIdentityMismatch = errors.New("fleet: payload device id does not match session identity")

	// ErrInvalidPayload is returned when a full update fails schema validation.
	ErrInvalidPayload = errors.New("fleet: invalid state payload")
)
