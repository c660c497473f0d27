package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"roundup/internal/domain/connection"
	"roundup/internal/shared/middleware"
)

type ConnectionHandler struct {
	connectionService *connection.Service
}

func NewConnectionHandler(connectionService *connection.Service) *ConnectionHandler {
	return &ConnectionHandler{connectionService: connectionService}
}

type LinkConnectionRequest struct {
	Provider    string `json:"provider"`
	PublicToken string `json:"publicToken"`
}

const maxBodySize = 1 << 20 // 1 MiB

// HandleLink exchanges a provider public token and stores the connection.
func (h *ConnectionHandler) HandleLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req LinkConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Provider == "" || req.PublicToken == "" {
		http.Error(w, "provider and publicToken are required", http.StatusBadRequest)
		return
	}

	conn, err := h.connectionService.Link(r.Context(), userID, req.Provider, req.PublicToken)
	if err != nil {
		log.Printf("Error linking connection for user %d: %v", userID, err)
		http.Error(w, "Failed to link bank connection", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(conn)
}

// HandleListConnections returns the caller's bank connections.
func (h *ConnectionHandler) HandleListConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	connections, err := h.connectionService.List(r.Context(), userID)
	if err != nil {
		log.Printf("Error listing connections for user %d: %v", userID, err)
		http.Error(w, "Failed to list connections", http.StatusInternalServerError)
		return
	}
	if connections == nil {
		connections = []*connection.Connection{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(connections)
}

// HandleRepair moves an errored connection back to active after the user
// fixed their bank credentials.
func (h *ConnectionHandler) HandleRepair(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	connectionID := r.PathValue("id")
	if connectionID == "" {
		http.Error(w, "Connection ID is required", http.StatusBadRequest)
		return
	}

	conn, err := h.connectionService.Get(r.Context(), connectionID)
	if err != nil {
		log.Printf("Error getting connection %s: %v", connectionID, err)
		http.Error(w, "Failed to get connection", http.StatusInternalServerError)
		return
	}
	if conn == nil {
		http.Error(w, "Connection not found", http.StatusNotFound)
		return
	}
	if conn.UserID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	repaired, err := h.connectionService.Repair(r.Context(), connectionID)
	if err != nil {
		if errors.Is(err, connection.ErrInvalidTransition) {
			http.Error(w, "Connection cannot be repaired from its current state", http.StatusConflict)
			return
		}
		log.Printf("Error repairing connection %s: %v", connectionID, err)
		http.Error(w, "Failed to repair connection", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(repaired)
}
