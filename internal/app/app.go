// Package app wires configuration into the running service.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dolabb/dolabb-sub001/internal/aws"
	"github.com/dolabb/dolabb-sub001/internal/config"
	"github.com/dolabb/dolabb-sub001/internal/gateway"
	"github.com/dolabb/dolabb-sub001/internal/handlers"
	"github.com/dolabb/dolabb-sub001/internal/idempotency"
	"github.com/dolabb/dolabb-sub001/internal/kv"
	"github.com/dolabb/dolabb-sub001/internal/ledger"
	"github.com/dolabb/dolabb-sub001/internal/pending"
	"github.com/dolabb/dolabb-sub001/internal/reconcile"
	"github.com/dolabb/dolabb-sub001/internal/retry"
	"github.com/dolabb/dolabb-sub001/internal/verification"
	"github.com/dolabb/dolabb-sub001/internal/webhook"
)

// App holds the constructed components.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Gateway  *gateway.Client
	Pending  *pending.Store
	Ledger   *ledger.Mirror
	Markers  webhook.Marker
	Notifier *webhook.Notifier
	Engine   *reconcile.Engine
}

// Build constructs every component. AWS clients are only created when a
// configured feature needs them.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	var clients *aws.AWSClients
	if cfg.Store.Backend == config.BackendDynamoDB || cfg.Metrics.Enabled || cfg.Webhook.RetryQueueURL != "" {
		c, err := aws.NewAWSClients(ctx)
		if err != nil {
			return nil, fmt.Errorf("init aws clients: %w", err)
		}
		clients = c
	}

	var (
		store   kv.Store
		markers webhook.Marker
	)
	switch cfg.Store.Backend {
	case config.BackendMemory:
		store = kv.NewMemory()
		markers = idempotency.NewMemoryStore(cfg.Store.MarkerTTL)
	default:
		store = kv.NewDynamo(clients.DynamoDB, cfg.Store.KVTable)
		markers = idempotency.NewStore(clients.DynamoDB, cfg.Store.IdempotencyTable, cfg.Store.MarkerTTL)
	}

	var provider gateway.Provider
	switch cfg.Gateway.Provider {
	case config.ProviderStripe:
		provider = gateway.NewStripeProvider(cfg.Gateway.SecretKey, nil)
	default:
		provider = gateway.NewHTTPProvider(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey)
	}
	gw := gateway.NewClient(provider, cfg.Gateway.Currency, logger)

	var verifier reconcile.Verifier = reconcile.VerifierFunc(gw.FetchPayment)
	if cfg.Verify.BaseURL != "" {
		verifier = verification.New(cfg.Verify.BaseURL)
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Gateway:  gw,
		Pending:  pending.NewStore(store, cfg.Store.PendingTTL),
		Ledger:   ledger.NewMirror(store, cfg.Store.LedgerTTL),
		Markers:  markers,
		Notifier: webhook.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Token, markers, logger),
	}

	deps := reconcile.Deps{
		Pending:  a.Pending,
		Verifier: verifier,
		Ledger:   a.Ledger,
		Notifier: a.Notifier,
	}
	if cfg.Webhook.RetryQueueURL != "" {
		deps.Retries = webhook.NewRetryQueue(aws.NewPublisher(clients.SQS, cfg.Webhook.RetryQueueURL))
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = aws.NewMetrics(clients.CloudWatch, cfg.Metrics.Namespace)
	}
	policy := retry.Policy{Attempts: cfg.Verify.Attempts, Delay: cfg.Verify.Delay}
	a.Engine = reconcile.NewEngine(deps, policy, cfg.Gateway.Currency, logger)
	return a, nil
}

// Router builds the gin engine serving the payment routes.
func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(a.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterPaymentRoutes(r, handlers.HandlerConfig{
		Gateway:     a.Gateway,
		Pending:     a.Pending,
		Ledger:      a.Ledger,
		Engine:      a.Engine,
		Idempotency: a.Markers,
		Destinations: reconcile.Destinations{
			Success: a.Config.Redirect.SuccessURL,
			Error:   a.Config.Redirect.ErrorURL,
		},
		CallbackURL: a.Config.Gateway.CallbackURL,
		Currency:    a.Config.Gateway.Currency,
		Session: handlers.SessionConfig{
			Cookie: a.Config.Session.Cookie,
			MaxAge: a.Config.Session.MaxAge,
			Secure: a.Config.Session.Secure,
		},
		Logger: a.Logger,
	})
	return r
}
