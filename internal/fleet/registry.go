package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Sender is the transport half of a registered connection.
//
// The registry never touches sockets directly; it talks to whatever the
// transport layer registered. Send must be safe for concurrent use.
type Sender interface {
	// SessionID returns the transport session handle.
	SessionID() string

	// Send delivers an event frame to the device.
	Send(event string, data json.RawMessage, correlationID string) error

	// Close terminates the underlying connection.
	Close() error
}

// CredentialValidator checks device credentials at admit time.
type CredentialValidator interface {
	ValidateDeviceToken(ctx context.Context, token string) bool
}

// Logger is the minimal logging interface the registry needs.
// Satisfied by *logging.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is configured.
type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Debug(string, ...any) {}

// entry is one registered connection with its owned state.
type entry struct {
	identity Identity
	conn     Sender
	rover    *RoverState
	garage   *GarageState
}

// AdmitRequest carries everything needed to register a connection.
type AdmitRequest struct {
	SessionID  string
	DeviceID   string
	DeviceType DeviceType
	Credential string
	Conn       Sender
}

// Registry tracks admitted device connections and their reported state.
//
// Device ids are unique per device type while connected; the check and the
// insert happen under one lock so concurrent admits of the same id resolve
// to exactly one winner. All state handed out is deep copied.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	ids      map[DeviceType]map[string]*entry
	order    map[DeviceType][]string

	validator CredentialValidator
	replace   bool
	logger    Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithReplacePolicy makes a duplicate admit evict the existing connection
// instead of being rejected.
func WithReplacePolicy() RegistryOption {
	return func(r *Registry) {
		r.replace = true
	}
}

// NewRegistry creates an empty registry. The validator gates every admit.
func NewRegistry(validator CredentialValidator, opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions: make(map[string]*entry),
		ids: map[DeviceType]map[string]*entry{
			DeviceTypeRover:  make(map[string]*entry),
			DeviceTypeGarage: make(map[string]*entry),
		},
		order: map[DeviceType][]string{
			DeviceTypeRover:  nil,
			DeviceTypeGarage: nil,
		},
		validator: validator,
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Admit validates and registers a connection.
//
// Validation order: credential, device id presence, device type, duplicate
// id. Under the default reject policy a duplicate admit fails with
// ErrDuplicateID; under replace the old connection is closed and the new
// one takes its device id with fresh default state.
func (r *Registry) Admit(ctx context.Context, req AdmitRequest) (Identity, error) {
	if r.validator != nil && !r.validator.ValidateDeviceToken(ctx, req.Credential) {
		return Identity{}, ErrUnauthenticated
	}
	if req.DeviceID == "" {
		return Identity{}, ErrMissingID
	}
	if req.DeviceType != DeviceTypeRover && req.DeviceType != DeviceTypeGarage {
		return Identity{}, fmt.Errorf("%w: %q", ErrUnknownDeviceType, req.DeviceType)
	}

	identity := Identity{
		DeviceID:   req.DeviceID,
		DeviceType: req.DeviceType,
		SessionID:  req.SessionID,
	}

	var evicted Sender

	r.mu.Lock()
	if existing, ok := r.ids[req.DeviceType][req.DeviceID]; ok {
		if !r.replace {
			r.mu.Unlock()
			return Identity{}, ErrDuplicateID
		}
		evicted = existing.conn
		r.removeLocked(existing)
	}

	e := &entry{identity: identity, conn: req.Conn}
	switch req.DeviceType {
	case DeviceTypeRover:
		e.rover = NewRoverState(req.DeviceID)
	case DeviceTypeGarage:
		e.garage = NewGarageState(req.DeviceID)
	}

	r.sessions[req.SessionID] = e
	r.ids[req.DeviceType][req.DeviceID] = e
	r.order[req.DeviceType] = append(r.order[req.DeviceType], req.DeviceID)
	r.mu.Unlock()

	if evicted != nil {
		// Old connection closed outside the lock; its close handler will
		// find the session already gone and evict becomes a no-op.
		_ = evicted.Close()
		r.logger.Warn("replaced existing device connection",
			"device_id", req.DeviceID,
			"device_type", string(req.DeviceType))
	}

	r.logger.Info("device admitted",
		"device_id", req.DeviceID,
		"device_type", string(req.DeviceType),
		"session_id", req.SessionID)

	return identity, nil
}

// Evict removes a session and reports whether it was registered. Safe to
// call for sessions that were never admitted or have already been removed;
// those calls are no-ops returning false. A false return for a previously
// admitted session means a replacing admit already took its device id.
func (r *Registry) Evict(sessionID string) bool {
	r.mu.Lock()
	e, ok := r.sessions[sessionID]
	if ok {
		r.removeLocked(e)
	}
	r.mu.Unlock()

	if ok {
		r.logger.Info("device evicted",
			"device_id", e.identity.DeviceID,
			"device_type", string(e.identity.DeviceType),
			"session_id", sessionID)
	}
	return ok
}

// removeLocked drops an entry from all indexes. Caller holds the write lock.
func (r *Registry) removeLocked(e *entry) {
	delete(r.sessions, e.identity.SessionID)
	delete(r.ids[e.identity.DeviceType], e.identity.DeviceID)

	ordered := r.order[e.identity.DeviceType]
	for i, id := range ordered {
		if id == e.identity.DeviceID {
			r.order[e.identity.DeviceType] = append(ordered[:i], ordered[i+1:]...)
			break
		}
	}
}

// Lookup returns the identity registered for a connected device id.
func (r *Registry) Lookup(deviceID string, deviceType DeviceType) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.ids[deviceType][deviceID]
	if !ok {
		return Identity{}, false
	}
	return e.identity, true
}

// Conn returns the transport sender for a connected device id.
func (r *Registry) Conn(deviceID string, deviceType DeviceType) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.ids[deviceType][deviceID]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// UpdateState replaces a device's state from a full update payload.
//
// The payload is schema validated; a failing payload leaves the stored
// state untouched and returns ErrInvalidPayload wrapped with the list of
// violations. The payload's id field must match the session identity.
func (r *Registry) UpdateState(sessionID string, payload json.RawMessage) error {
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	switch e.identity.DeviceType {
	case DeviceTypeRover:
		if violations := ValidateRoverPayload(decoded); len(violations) > 0 {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, violations)
		}
		if id, _ := decoded["rover_id"].(string); id != e.identity.DeviceID {
			return ErrIdentityMismatch
		}
		next := &RoverState{}
		if err := json.Unmarshal(payload, next); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		e.rover = next
	case DeviceTypeGarage:
		if violations := ValidateGaragePayload(decoded); len(violations) > 0 {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, violations)
		}
		if id, _ := decoded["garage_id"].(string); id != e.identity.DeviceID {
			return ErrIdentityMismatch
		}
		next := &GarageState{}
		if err := json.Unmarshal(payload, next); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		e.garage = next
	}

	return nil
}

// MergeState applies a partial update to a device's stored state.
//
// No schema validation; recognised fields with the right types overwrite,
// everything else is skipped. An id field in the partial, if present, must
// match the session identity.
func (r *Registry) MergeState(sessionID string, partial map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	switch e.identity.DeviceType {
	case DeviceTypeRover:
		if id, present := partial["rover_id"]; present {
			if s, _ := id.(string); s != e.identity.DeviceID {
				return ErrIdentityMismatch
			}
		}
		e.rover.Merge(partial)
	case DeviceTypeGarage:
		if id, present := partial["garage_id"]; present {
			if s, _ := id.(string); s != e.identity.DeviceID {
				return ErrIdentityMismatch
			}
		}
		e.garage.Merge(partial)
	}

	return nil
}

// ListRovers returns deep copies of all rover states in admit order.
func (r *Registry) ListRovers() []*RoverState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make([]*RoverState, 0, len(r.order[DeviceTypeRover]))
	for _, id := range r.order[DeviceTypeRover] {
		states = append(states, r.ids[DeviceTypeRover][id].rover.DeepCopy())
	}
	return states
}

// ListGarages returns deep copies of all garage states in admit order.
func (r *Registry) ListGarages() []*GarageState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make([]*GarageState, 0, len(r.order[DeviceTypeGarage]))
	for _, id := range r.order[DeviceTypeGarage] {
		states = append(states, r.ids[DeviceTypeGarage][id].garage.DeepCopy())
	}
	return states
}

// RoverByID returns a deep copy of one rover's state.
func (r *Registry) RoverByID(roverID string) (*RoverState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.ids[DeviceTypeRover][roverID]
	if !ok {
		return nil, false
	}
	return e.rover.DeepCopy(), true
}

// GarageByID returns a deep copy of one garage's state.
func (r *Registry) GarageByID(garageID string) (*GarageState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.ids[DeviceTypeGarage][garageID]
	if !ok {
		return nil, false
	}
	return e.garage.DeepCopy(), true
}

// Count returns the number of connected devices of a type.
func (r *Registry) Count(deviceType DeviceType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids[deviceType])
}
