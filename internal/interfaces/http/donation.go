package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"roundup/internal/domain/donation"
	"roundup/internal/shared/middleware"
)

type DonationHandler struct {
	orchestrator *donation.Orchestrator
}

func NewDonationHandler(orchestrator *donation.Orchestrator) *DonationHandler {
	return &DonationHandler{orchestrator: orchestrator}
}

// HandleListDonations returns the caller's donation history, newest first.
func (h *DonationHandler) HandleListDonations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	donations, err := h.orchestrator.History(r.Context(), userID, limit)
	if err != nil {
		log.Printf("Error listing donations for user %d: %v", userID, err)
		http.Error(w, "Failed to list donations", http.StatusInternalServerError)
		return
	}
	if donations == nil {
		donations = []*donation.Donation{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(donations)
}

// HandleGetDonation returns a single donation.
func (h *DonationHandler) HandleGetDonation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	donationID := r.PathValue("id")
	if donationID == "" {
		http.Error(w, "Donation ID is required", http.StatusBadRequest)
		return
	}

	d, err := h.orchestrator.Get(r.Context(), donationID)
	if err != nil {
		if errors.Is(err, donation.ErrNotFound) {
			http.Error(w, "Donation not found", http.StatusNotFound)
			return
		}
		log.Printf("Error getting donation %s: %v", donationID, err)
		http.Error(w, "Failed to get donation", http.StatusInternalServerError)
		return
	}
	if d.UserID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(d)
}
