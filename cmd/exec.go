package cmd

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ticket-shop/config"
	"ticket-shop/internal/gateway"
	"ticket-shop/internal/handlers"
	"ticket-shop/internal/ledger"
	"ticket-shop/internal/payment"
	"ticket-shop/internal/services"
	"ticket-shop/internal/webhook"
	_ "ticket-shop/migrations"
	"ticket-shop/security"
	"ticket-shop/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	// Initialize PubNub
	var pn *pubnub.PubNub
	if cfg.PubNubPublishKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey

		pn = pubnub.NewPubNub(pnConfig)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the payment gateway
	gw := gateway.NewStripe(&gateway.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
	})

	// Initialize services
	ticketLedger := ledger.New(app)
	store := payment.NewStore(app)
	sweeper := services.NewSweeper(redisClient, cfg.SweepInterval)
	availability := services.NewAvailabilityCache(redisClient, ticketLedger, cfg.AvailabilityCacheTTL)
	notifier := services.NewBuyerNotifier(app, pn)

	orchestrator := payment.NewOrchestrator(app, ticketLedger, store, gw, payment.Options{
		Availability:   availability,
		Notifier:       notifier,
		Deadlines:      sweeper,
		Currency:       cfg.Currency,
		PaymentTimeout: cfg.PaymentTimeout,
	})
	sweeper.SetSettler(orchestrator)

	reconciler := webhook.NewReconciler(gw, orchestrator)

	// Initialize handlers
	paymentHandler := handlers.NewPaymentHandler(orchestrator, store, reconciler)
	eventHandler := handlers.NewEventHandler(ticketLedger, availability, store)

	rateLimiter := security.NewRateLimiter(redisClient, cfg.CheckoutRateLimit)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	// Start background tasks
	go sweeper.Run(ctx)

	if cfg.EnableMetrics {
		go serveMetrics(cfg.MetricsPort)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Checkout endpoints
		e.Router.POST("/api/v1/payments/intent", paymentHandler.CreatePaymentIntent).
			Bind(apis.RequireAuth()).
			BindFunc(rateLimiter.Limit("checkout"))
		e.Router.POST("/api/v1/payments/confirm", paymentHandler.ConfirmPayment).
			Bind(apis.RequireAuth()).
			BindFunc(rateLimiter.Limit("checkout"))

		// Gateway notifications (authenticated by signature, not by session)
		e.Router.POST("/api/v1/payments/webhook", paymentHandler.HandleWebhook).
			BindFunc(rateLimiter.Limit("webhook"))

		// Payment history
		e.Router.GET("/api/v1/payments", paymentHandler.ListPayments).
			Bind(apis.RequireAuth())
		e.Router.GET("/api/v1/payments/{paymentId}", paymentHandler.GetPayment).
			Bind(apis.RequireAuth())

		// Event endpoints
		e.Router.GET("/api/v1/events/{eventId}/availability", eventHandler.GetAvailability)
		e.Router.GET("/api/v1/admin/events/{eventId}/stats", eventHandler.GetEventStats).
			Bind(apis.RequireSuperuserAuth())

		// Test endpoint for payment simulation
		if cfg.Environment == "development" {
			e.Router.POST("/api/v1/test/simulate-payment", paymentHandler.SimulatePayment)
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// serveMetrics exposes prometheus metrics on a separate port, kept off the
// public API surface.
func serveMetrics(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Printf("Metrics server listening on :%s", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Printf("Metrics server stopped: %v", err)
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
