package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mirv-rover/relay-core/internal/fleet"
	"github.com/mirv-rover/relay-core/internal/relay"
)

// connectRequest is the request body for POST /rovers/connect.
//
// The offer is an opaque WebRTC session description; the relay forwards it
// verbatim and returns whatever the rover answers.
type connectRequest struct {
	ConnectionID string          `json:"connection_id"`
	RoverID      string          `json:"rover_id"`
	Offer        json.RawMessage `json:"offer"`
}

// handleListRovers returns all connected rovers.
func (s *Server) handleListRovers(w http.ResponseWriter, _ *http.Request) {
	rovers := s.registry.ListRovers()
	writeJSON(w, http.StatusOK, map[string]any{
		"rovers": rovers,
		"count":  len(rovers),
	})
}

// handleGetRover returns one rover's state.
func (s *Server) handleGetRover(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	state, ok := s.registry.RoverByID(id)
	if !ok {
		writeNotFound(w, "rover not connected: "+id)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleRoverConnect relays a WebRTC connection offer to a rover and waits
// for the answer.
func (s *Server) handleRoverConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RoverID == "" {
		writeBadRequest(w, "rover_id is required")
		return
	}

	payload, err := json.Marshal(req)
	if err != nil {
		writeInternalError(w, "failed to encode request")
		return
	}

	reply, err := s.gateway.Call(r.Context(), req.RoverID, fleet.DeviceTypeRover, "connection_offer", payload, 0)
	if err != nil {
		s.writeRelayError(w, err, req.RoverID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"connection_id": req.ConnectionID,
		"rover_id":      req.RoverID,
		"answer":        reply,
	})
}

// writeRelayError maps relay errors to HTTP responses.
func (s *Server) writeRelayError(w http.ResponseWriter, err error, deviceID string) {
	switch {
	case errors.Is(err, relay.ErrDeviceNotConnected):
		writeNotFound(w, "device not connected: "+deviceID)
	case errors.Is(err, relay.ErrSendFailed):
		// The device dropped between lookup and send.
		writeNotFound(w, "device unreachable: "+deviceID)
	case errors.Is(err, relay.ErrCallTimeout):
		writeTimeout(w, "device did not answer in time: "+deviceID)
	default:
		s.logger.Error("relay call failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "relay call failed")
	}
}
