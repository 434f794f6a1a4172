package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mirv-rover/relay-core/internal/fleet"
)

// garagePingTimeout bounds each probe in the fleet-wide ping sweep.
const garagePingTimeout = 5 * time.Second

// commandRequest is the request body for POST /garages/cmd.
type commandRequest struct {
	ConnectionID string          `json:"connection_id"`
	GarageID     string          `json:"garage_id"`
	Cmd          json.RawMessage `json:"cmd"`
}

// handleListGarages returns all connected garages.
func (s *Server) handleListGarages(w http.ResponseWriter, _ *http.Request) {
	garages := s.registry.ListGarages()
	writeJSON(w, http.StatusOK, map[string]any{
		"garages": garages,
		"count":   len(garages),
	})
}

// handleGetGarage returns one garage's state.
func (s *Server) handleGetGarage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	state, ok := s.registry.GarageByID(id)
	if !ok {
		writeNotFound(w, "garage not connected: "+id)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleGarageCommand relays a command to a garage and waits for the result.
func (s *Server) handleGarageCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.GarageID == "" {
		writeBadRequest(w, "garage_id is required")
		return
	}

	payload, err := json.Marshal(req)
	if err != nil {
		writeInternalError(w, "failed to encode request")
		return
	}

	reply, err := s.gateway.Call(r.Context(), req.GarageID, fleet.DeviceTypeGarage, "command", payload, 0)
	if err != nil {
		s.writeRelayError(w, err, req.GarageID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"connection_id": req.ConnectionID,
		"garage_id":     req.GarageID,
		"result":        reply,
	})
}

// handleGaragePing probes every connected garage and reports per-garage
// outcomes. Probes run sequentially; the sweep is an operator diagnostic,
// not a hot path.
func (s *Server) handleGaragePing(w http.ResponseWriter, r *http.Request) {
	garages := s.registry.ListGarages()

	results := make(map[string]string, len(garages))
	for _, g := range garages {
		_, err := s.gateway.Call(r.Context(), g.GarageID, fleet.DeviceTypeGarage, "command",
			json.RawMessage(`{"cmd":"ping"}`), garagePingTimeout)
		if err != nil {
			results[g.GarageID] = "unreachable"
			continue
		}
		results[g.GarageID] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"garages": results,
		"count":   len(results),
	})
}
