package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"roundup/internal/domain/charity"
	"roundup/internal/domain/donation"
	"roundup/internal/domain/roundup"
	"roundup/internal/shared/middleware"
)

type RoundUpHandler struct {
	roundupService *roundup.Service
	guard          *charity.Guard
	orchestrator   *donation.Orchestrator
}

func NewRoundUpHandler(roundupService *roundup.Service, guard *charity.Guard, orchestrator *donation.Orchestrator) *RoundUpHandler {
	return &RoundUpHandler{
		roundupService: roundupService,
		guard:          guard,
		orchestrator:   orchestrator,
	}
}

type CreateConfigRequest struct {
	ConnectionID     string   `json:"connectionId"`
	OrganizationID   string   `json:"organizationId"`
	CauseID          string   `json:"causeId"`
	PaymentMethodID  string   `json:"paymentMethodId"`
	MonthlyThreshold *float64 `json:"monthlyThreshold,omitempty"`
	CoverFees        bool     `json:"coverFees"`
}

type SwitchCharityRequest struct {
	OrganizationID string `json:"organizationId"`
	CauseID        string `json:"causeId"`
}

// HandleCreateConfig enables round-ups on a bank connection.
func (h *RoundUpHandler) HandleCreateConfig(w http.ResponseWriter, r *http.Request) {
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
	var req CreateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.ConnectionID == "" || req.OrganizationID == "" || req.CauseID == "" || req.PaymentMethodID == "" {
		http.Error(w, "connectionId, organizationId, causeId, and paymentMethodId are required", http.StatusBadRequest)
		return
	}

	cfg, err := h.roundupService.CreateConfig(r.Context(), roundup.CreateConfigParams{
		UserID:           userID,
		ConnectionID:     req.ConnectionID,
		OrganizationID:   req.OrganizationID,
		CauseID:          req.CauseID,
		PaymentMethodID:  req.PaymentMethodID,
		MonthlyThreshold: req.MonthlyThreshold,
		CoverFees:        req.CoverFees,
	})
	if err != nil {
		switch {
		case errors.Is(err, roundup.ErrThresholdTooLow):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, roundup.ErrConnectionInactive):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, roundup.ErrConfigExists):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, charity.ErrCauseNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, charity.ErrCauseUnavailable), errors.Is(err, charity.ErrPayoutsDisabled):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			log.Printf("Error creating round-up config for user %d: %v", userID, err)
			http.Error(w, "Failed to create round-up config", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(cfg)
}

// HandleGetConfig returns a round-up config with its accumulation counters.
func (h *RoundUpHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg, ok := h.ownedConfig(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cfg)
}

// HandleSwitchCharity redirects future donations to a new cause, subject to
// the switch cooldown.
func (h *RoundUpHandler) HandleSwitchCharity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg, ok := h.ownedConfig(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req SwitchCharityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.OrganizationID == "" || req.CauseID == "" {
		http.Error(w, "organizationId and causeId are required", http.StatusBadRequest)
		return
	}

	err := h.guard.Switch(r.Context(), cfg.ID, cfg.LastCharitySwitch, req.OrganizationID, req.CauseID)
	if err != nil {
		var cooldown *charity.CooldownError
		switch {
		case errors.As(err, &cooldown):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]any{
				"error":         "charity switch is on cooldown",
				"daysRemaining": cooldown.DaysRemaining,
			})
		case errors.Is(err, charity.ErrCauseNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, charity.ErrCauseUnavailable), errors.Is(err, charity.ErrPayoutsDisabled):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			log.Printf("Error switching charity for config %s: %v", cfg.ID, err)
			http.Error(w, "Failed to switch charity", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// HandleSettleNow triggers an immediate settlement attempt for a config.
func (h *RoundUpHandler) HandleSettleNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg, ok := h.ownedConfig(w, r)
	if !ok {
		return
	}

	d, err := h.orchestrator.Settle(r.Context(), cfg.ID)
	if err != nil {
		switch {
		case errors.Is(err, donation.ErrNothingToSettle):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, donation.ErrConfigDisabled):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, charity.ErrCauseNotFound),
			errors.Is(err, charity.ErrCauseUnavailable),
			errors.Is(err, charity.ErrPayoutsDisabled):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			log.Printf("Error settling config %s: %v", cfg.ID, err)
			http.Error(w, "Failed to settle round-ups", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(d)
}

// ownedConfig loads the config from the path id and verifies ownership.
// Writes the error response and returns ok=false on any failure.
func (h *RoundUpHandler) ownedConfig(w http.ResponseWriter, r *http.Request) (*roundup.Config, bool) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	configID := r.PathValue("id")
	if configID == "" {
		http.Error(w, "Config ID is required", http.StatusBadRequest)
		return nil, false
	}

	cfg, err := h.roundupService.GetConfig(r.Context(), configID)
	if err != nil {
		if errors.Is(err, roundup.ErrConfigNotFound) {
			http.Error(w, "Round-up config not found", http.StatusNotFound)
			return nil, false
		}
		log.Printf("Error getting round-up config %s: %v", configID, err)
		http.Error(w, "Failed to get round-up config", http.StatusInternalServerError)
		return nil, false
	}
	if cfg.UserID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return nil, false
	}

	return cfg, true
}
