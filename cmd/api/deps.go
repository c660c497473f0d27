package main

import (
	"context"
	"log"

	"roundup/internal/domain/charity"
	"roundup/internal/domain/connection"
	"roundup/internal/domain/donation"
	"roundup/internal/domain/ingest"
	"roundup/internal/domain/notification"
	"roundup/internal/domain/roundup"
	"roundup/internal/infrastructure/bankdata"
	"roundup/internal/infrastructure/crypto"
	"roundup/internal/infrastructure/directory"
	"roundup/internal/infrastructure/firebase"
	"roundup/internal/infrastructure/payments"
	"roundup/internal/infrastructure/postgres"
	httphandlers "roundup/internal/interfaces/http"
	"roundup/internal/interfaces/scheduler"
	"roundup/internal/shared/config"
	"roundup/internal/shared/messages"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	// Handlers
	ConnectionHandler   *httphandlers.ConnectionHandler
	RoundUpHandler      *httphandlers.RoundUpHandler
	DonationHandler     *httphandlers.DonationHandler
	NotificationHandler *httphandlers.NotificationHandler
	WebhookHandler      *httphandlers.WebhookHandler

	// Background work
	Pool *scheduler.WorkerPool

	// Services and repositories for the scheduler job provider
	Orchestrator   *donation.Orchestrator
	Reconciler     *donation.Reconciler
	RoundUpService *roundup.Service
	IngestService  *ingest.Service
	ConfigRepo     *postgres.ConfigRepository
}

// connectionChecker defers to the connection service. The round-up service
// is constructed before the connection service, so the binding happens after
// both exist.
type connectionChecker struct {
	svc *connection.Service
}

func (c *connectionChecker) IsActive(ctx context.Context, connectionID string) (bool, error) {
	return c.svc.IsActive(ctx, connectionID)
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	// Connect to database
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")

	// Initialize encryptor for bank access tokens
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		return nil, err
	}

	// Initialize repositories
	connectionRepo := postgres.NewConnectionRepository(db)
	configRepo := postgres.NewConfigRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	donationRepo := postgres.NewDonationRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)

	// Initialize external clients
	bankClient := bankdata.NewClient(cfg.BankData.BaseURL, cfg.BankData.ClientID, cfg.BankData.Secret)
	paymentsClient := payments.NewClient(cfg.Payments.BaseURL, cfg.Payments.APIKey)
	directoryClient := directory.NewClient(cfg.Directory.BaseURL, cfg.Directory.APIKey)

	// Initialize notification service. FCM is optional: without credentials,
	// notifications are stored but not pushed.
	var messenger notification.Messenger
	if cfg.Firebase.CredentialsFile != "" {
		fcmClient, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile, notificationRepo.DeactivateToken)
		if err != nil {
			log.Printf("Warning: failed to initialize FCM client, push disabled: %v", err)
		} else {
			messenger = fcmClient
		}
	} else {
		log.Println("FCM credentials not configured, push disabled")
	}

	texts, err := messages.Load(cfg.Messages.Path)
	if err != nil {
		log.Printf("Warning: failed to load notification messages, using defaults: %v", err)
		texts = messages.Default()
	}
	notificationService := notification.NewService(notificationRepo, messenger, texts)

	// Initialize domain services. The round-up service checks connection
	// state through an adapter bound after the connection service exists,
	// since each service sits on one side of the config teardown path.
	guard := charity.NewGuard(directoryClient, configRepo)
	checker := &connectionChecker{}
	roundupService := roundup.NewService(configRepo, transactionRepo, checker, guard, cfg.RoundUp.MinimumThreshold)
	connectionService := connection.NewService(connectionRepo, bankClient, encryptor, roundupService, notificationService)
	checker.svc = connectionService

	orchestrator := donation.NewOrchestrator(donationRepo, configRepo, transactionRepo, guard, paymentsClient, notificationService, cfg.Payments.Currency)
	reconciler := donation.NewReconciler(donationRepo, orchestrator, cfg.RoundUp.OrphanTimeout)
	ingestService := ingest.NewService(connectionService, configRepo, roundupService, bankClient, orchestrator)

	// Worker pool for webhook-driven backfills and scheduled sweeps
	pool := scheduler.NewWorkerPool(cfg.Scheduler.WorkerCount, cfg.Scheduler.JobDelay, cfg.Scheduler.QueueSize)

	// Initialize handlers
	connectionHandler := httphandlers.NewConnectionHandler(connectionService)
	roundupHandler := httphandlers.NewRoundUpHandler(roundupService, guard, orchestrator)
	donationHandler := httphandlers.NewDonationHandler(orchestrator)
	notificationHandler := httphandlers.NewNotificationHandler(notificationService)
	webhookHandler := httphandlers.NewWebhookHandler(
		connectionService,
		orchestrator,
		ingestService,
		pool,
		cfg.BankData.WebhookSecret,
		cfg.Payments.WebhookSecret,
	)

	return &Dependencies{
		DB:                  db,
		ConnectionHandler:   connectionHandler,
		RoundUpHandler:      roundupHandler,
		DonationHandler:     donationHandler,
		NotificationHandler: notificationHandler,
		WebhookHandler:      webhookHandler,
		Pool:                pool,
		Orchestrator:        orchestrator,
		Reconciler:          reconciler,
		RoundUpService:      roundupService,
		IngestService:       ingestService,
		ConfigRepo:          configRepo,
	}, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
