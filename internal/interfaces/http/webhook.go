package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"roundup/internal/domain/connection"
	"roundup/internal/domain/donation"
	"roundup/internal/domain/ingest"
	"roundup/internal/infrastructure/bankdata"
	"roundup/internal/interfaces/scheduler"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Webhook-Signature"

type WebhookHandler struct {
	connections    *connection.Service
	orchestrator   *donation.Orchestrator
	ingestService  *ingest.Service
	pool           *scheduler.WorkerPool
	bankSecret     string
	paymentsSecret string
}

func NewWebhookHandler(
	connections *connection.Service,
	orchestrator *donation.Orchestrator,
	ingestService *ingest.Service,
	pool *scheduler.WorkerPool,
	bankSecret, paymentsSecret string,
) *WebhookHandler {
	return &WebhookHandler{
		connections:    connections,
		orchestrator:   orchestrator,
		ingestService:  ingestService,
		pool:           pool,
		bankSecret:     bankSecret,
		paymentsSecret: paymentsSecret,
	}
}

type chargeWebhook struct {
	Type string `json:"type"`
	Data struct {
		ID            string `json:"id"`
		FailureReason string `json:"failure_reason"`
	} `json:"data"`
}

// HandleBankWebhook processes provider events for bank connections.
// Unknown and malformed payloads are acknowledged with 200 so the provider
// stops redelivering them.
func (h *WebhookHandler) HandleBankWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	provider := r.PathValue("provider")
	if provider == "" {
		http.Error(w, "Provider is required", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	if !verifySignature(h.bankSecret, body, r.Header.Get(SignatureHeader)) {
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := bankdata.ParseWebhookEvent(provider, body)
	if err != nil {
		log.Printf("Malformed bank webhook from %s: %v", provider, err)
		w.WriteHeader(http.StatusOK)
		return
	}
	if event.Type == "" {
		// Event this service does not act on.
		w.WriteHeader(http.StatusOK)
		return
	}

	if event.Type == bankdata.EventTransactionsUpdated {
		if err := h.pool.Submit(scheduler.NewItemBackfillJob(event.Provider, event.ItemID, h.ingestService)); err != nil {
			log.Printf("Failed to enqueue backfill for item %s/%s: %v", event.Provider, event.ItemID, err)
			http.Error(w, "Backfill queue full", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	err = h.connections.HandleEvent(r.Context(), connection.Event{
		Type:          connection.EventType(event.Type),
		Provider:      event.Provider,
		ItemID:        event.ItemID,
		AccountID:     event.AccountID,
		AccountStatus: event.AccountStatus,
		ErrorCode:     event.ErrorCode,
	})
	if err != nil {
		log.Printf("Error handling bank webhook %s for item %s/%s: %v", event.Type, event.Provider, event.ItemID, err)
		http.Error(w, "Failed to process webhook", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HandlePaymentsWebhook reconciles asynchronous charge outcomes from the
// payment processor.
func (h *WebhookHandler) HandlePaymentsWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	if !verifySignature(h.paymentsSecret, body, r.Header.Get(SignatureHeader)) {
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event chargeWebhook
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("Malformed payments webhook: %v", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	var succeeded bool
	switch event.Type {
	case "charge.succeeded":
		succeeded = true
	case "charge.failed":
		succeeded = false
	default:
		log.Printf("Ignoring payments webhook type %q", event.Type)
		w.WriteHeader(http.StatusOK)
		return
	}

	if event.Data.ID == "" {
		log.Printf("Payments webhook %s without charge id ignored", event.Type)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.orchestrator.HandleChargeResult(r.Context(), event.Data.ID, succeeded, event.Data.FailureReason); err != nil {
		log.Printf("Error reconciling charge %s: %v", event.Data.ID, err)
		http.Error(w, "Failed to process webhook", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// verifySignature checks the hex HMAC-SHA256 of body against the header
// value. An empty secret disables verification (local development).
func verifySignature(secret string, body []byte, signature string) bool {
	if secret == "" {
		return true
	}
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
