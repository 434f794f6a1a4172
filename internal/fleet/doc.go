// Package fleet tracks connected rover and garage devices and their state.
//
// The registry is the authoritative in-memory record of which devices are
// connected right now. Each admitted connection gets an identity (device id,
// device type, session id) and a state object seeded with defaults. Devices
// push full replacements, which are schema validated, or partial merges,
// which overwrite recognised fields and skip everything else.
//
// State never outlives the connection: eviction removes the device and its
// state entirely, and a reconnecting device starts from defaults again.
package fleet
