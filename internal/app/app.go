package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/nzoschke/dreamsaver/internal/config"
	"github.com/nzoschke/dreamsaver/internal/db"
	"github.com/nzoschke/dreamsaver/internal/middleware"
	"github.com/nzoschke/dreamsaver/internal/repository"
	"github.com/nzoschke/dreamsaver/internal/service"
	"github.com/nzoschke/dreamsaver/internal/service/payment"
	"github.com/nzoschke/dreamsaver/internal/storage"
)

type App struct {
	Cfg                 *config.Config
	DB                  *sqlx.DB
	TokenVerifier       *middleware.TokenVerifier
	CheckoutLimiter     *middleware.RateLimiter
	PaymentService      payment.Provider
	EmailService        *service.EmailService
	GoalService         *service.GoalService
	LedgerService       *service.LedgerService
	NotificationService *service.NotificationService
	CheckoutService     *service.CheckoutService
	ReconcileService    *service.ReconcileService
	ReceiptArchive      *storage.ReceiptArchive
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Run database migrations
	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize payment provider based on config
	paymentProvider, err := payment.NewProvider(cfg)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize payment provider: %w", err)
	}

	// Receipt archive (optional)
	var archive *storage.ReceiptArchive
	if cfg.ReceiptArchiveEnabled() {
		store, err := storage.New(ctx, cfg)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		archive = storage.NewReceiptArchive(store)
	}

	return Assemble(cfg, database, paymentProvider, archive), nil
}

// Assemble wires repositories and services around an open, migrated database.
// A nil archive disables receipt archiving.
func Assemble(cfg *config.Config, database *sqlx.DB, paymentProvider payment.Provider, archive *storage.ReceiptArchive) *App {
	// Repositories
	goalRepository := repository.NewGoalRepository(database)
	depositRepository := repository.NewDepositRepository(database)
	notificationRepository := repository.NewNotificationRepository(database)
	transactor := repository.NewTransactor(database)

	// Services
	emailService := service.NewEmailService(
		cfg.ResendAPIKey,
		cfg.EmailFrom,
		cfg.AppURL,
		cfg.AppName,
		cfg.IsDevelopment(),
	)
	goalService := service.NewGoalService(goalRepository, service.NewPlanCapabilities(), cfg.Currency)
	ledgerService := service.NewLedgerService(depositRepository, goalRepository)
	notificationService := service.NewNotificationService(notificationRepository, emailService, cfg.Currency)
	checkoutService := service.NewCheckoutService(goalRepository, paymentProvider, cfg.Currency, cfg.AppName)

	var archiver service.ReceiptArchiver
	if archive != nil {
		archiver = archive
	}
	reconcileService := service.NewReconcileService(
		transactor,
		goalService,
		ledgerService,
		notificationService,
		archiver,
		paymentProvider,
		service.ReconcileOptions{
			Namespace:          cfg.AppNamespace,
			TrustClientAmount:  cfg.ConfirmTrustClientAmount,
			WebhookTimeout:     cfg.WebhookTimeout,
			WebhookConcurrency: cfg.WebhookConcurrency,
		},
	)

	return &App{
		Cfg:                 cfg,
		DB:                  database,
		TokenVerifier:       middleware.NewTokenVerifier(cfg.AuthJWTSecret, cfg.AuthJWTIssuer),
		CheckoutLimiter:     middleware.NewRateLimiter(cfg.CheckoutRateLimit, cfg.CheckoutRateWindow),
		PaymentService:      paymentProvider,
		EmailService:        emailService,
		GoalService:         goalService,
		LedgerService:       ledgerService,
		NotificationService: notificationService,
		CheckoutService:     checkoutService,
		ReconcileService:    reconcileService,
		ReceiptArchive:      archive,
	}
}

// Run starts the background chores and blocks until ctx is done.
func (a *App) Run(ctx context.Context) {
	if a.Cfg.CheckoutRateWindow > 0 {
		go a.CheckoutLimiter.Run(ctx.Done(), a.Cfg.CheckoutRateWindow*5)
	}

	if a.Cfg.AuditInterval > 0 {
		a.LedgerService.RunAudit(ctx, a.Cfg.AuditInterval)
		return
	}
	<-ctx.Done()
}

func (a *App) Close() error {
	return db.Close(a.DB)
}
