package main

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"roundup/internal/shared/config"
	"roundup/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", handleHealth)

	// Provider webhooks (HMAC-verified, no user identity)
	mux.HandleFunc("/webhooks/bank/{provider}", deps.WebhookHandler.HandleBankWebhook)
	mux.HandleFunc("/webhooks/payments", deps.WebhookHandler.HandlePaymentsWebhook)

	// User-facing routes, behind the gateway identity header
	identity := middleware.Identity

	mux.Handle("/api/connections/link", identity(http.HandlerFunc(deps.ConnectionHandler.HandleLink)))
	mux.Handle("/api/connections/", identity(http.HandlerFunc(deps.ConnectionHandler.HandleListConnections)))
	mux.Handle("/api/connections/{id}/repair", identity(http.HandlerFunc(deps.ConnectionHandler.HandleRepair)))

	mux.Handle("/api/roundups", identity(http.HandlerFunc(deps.RoundUpHandler.HandleCreateConfig)))
	mux.Handle("/api/roundups/{id}", identity(http.HandlerFunc(deps.RoundUpHandler.HandleGetConfig)))
	mux.Handle("/api/roundups/{id}/settle", identity(http.HandlerFunc(deps.RoundUpHandler.HandleSettleNow)))
	mux.Handle("/api/roundups/{id}/charity", identity(http.HandlerFunc(deps.RoundUpHandler.HandleSwitchCharity)))

	mux.Handle("/api/donations", identity(http.HandlerFunc(deps.DonationHandler.HandleListDonations)))
	mux.Handle("/api/donations/{id}", identity(http.HandlerFunc(deps.DonationHandler.HandleGetDonation)))

	mux.Handle("/api/notifications/register-device/", identity(http.HandlerFunc(deps.NotificationHandler.HandleRegisterDevice)))
	mux.Handle("/api/notifications/preferences/", identity(http.HandlerFunc(deps.NotificationHandler.HandlePreferences)))
	mux.Handle("/api/notifications/open/", identity(http.HandlerFunc(deps.NotificationHandler.HandleOpen)))
	mux.Handle("/api/notifications/", identity(http.HandlerFunc(deps.NotificationHandler.HandleNotifications)))

	// Prometheus metrics (scraped internally)
	mux.Handle("/metrics", promhttp.Handler())

	// Apply global middleware
	handler := middleware.Logging(middleware.CORS(cfg.Server.AllowedHosts)(mux))
	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(middleware.Tracing(handler))
	}

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(middleware.SecureCookies(handler))
		log.Println("TLS security middleware enabled (HSTS + SecureCookies)")
	}

	return handler
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
