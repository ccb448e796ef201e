// Package api exposes the read-only HTTP surface: health, stats and the
// list of active rooms. Rooms are created and destroyed only by the relay
// protocol, so there are no mutation endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"huddle/internal/room"
)

// API serves the HTTP endpoints backed by the in-memory registry.
type API struct {
	registry *room.Registry
	log      *zap.Logger
}

// New creates the API for the given registry.
func New(registry *room.Registry, log *zap.Logger) *API {
	return &API{
		registry: registry,
		log:      log,
	}
}

func (a *API) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.log.Warn("encoding response", zap.Error(err))
	}
}

func (a *API) errorResponse(w http.ResponseWriter, status int, message string) {
	a.jsonResponse(w, status, map[string]string{"error": message})
}

// HealthHandler reports liveness.
func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	a.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// StatsHandler reports active room and client counts.
func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, clients := a.registry.Stats()
	a.jsonResponse(w, http.StatusOK, map[string]any{
		"active_rooms":   rooms,
		"active_clients": clients,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// RoomResponse is one active room in the rooms listing.
type RoomResponse struct {
	Code    string `json:"code"`
	Clients int    `json:"clients"`
}

// RoomsHandler lists the active rooms and their member counts.
func (a *API) RoomsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	active := a.registry.ActiveRooms()
	response := make([]RoomResponse, 0, len(active))
	for code, clients := range active {
		response = append(response, RoomResponse{Code: code, Clients: clients})
	}
	sort.Slice(response, func(i, j int) bool { return response[i].Code < response[j].Code })

	a.jsonResponse(w, http.StatusOK, map[string]any{"rooms": response})
}
