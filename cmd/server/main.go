package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DukeRupert/ngolink/internal"
	"github.com/DukeRupert/ngolink/internal/app"
	"github.com/DukeRupert/ngolink/internal/billing"
	"github.com/DukeRupert/ngolink/internal/settings"
	"golang.org/x/sync/errgroup"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize store
	store, err := internal.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Error("store close failed", "error", err)
		}
	}()

	gateway, err := newGateway(cfg)
	if err != nil {
		return err
	}
	if gateway == nil {
		logger.Warn("billing is disabled", "provider", cfg.PaymentProvider)
	} else {
		logger.Info("billing enabled", "provider", gateway.Name())
	}
	catalog := billing.NewCatalog(cfg.PaymentCurrency, cfg.VolunteerPlusPrice, cfg.NGOPlusPrice)

	settingsCache := settings.NewCache(store, cfg.SettingsCacheTTL, logger)

	application := app.New(app.Options{
		IsSecure:               cfg.IsSecure(),
		SessionDuration:        cfg.SessionDuration,
		AdminEmails:            cfg.AdminEmails,
		AuthRateLimitPerMinute: cfg.AuthRateLimitPerMinute,
		MetricsUsername:        cfg.MetricsUsername,
		MetricsPassword:        cfg.MetricsPassword,
	}, store, settingsCache, gateway, catalog, logger)
	defer application.Close()

	if cfg.MetricsUsername == "" && cfg.MetricsPassword == "" {
		logger.Warn("metrics endpoint is unprotected")
	}

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           application.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, initiating graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// newGateway returns the configured payment gateway, or nil when billing
// is turned off.
func newGateway(cfg *internal.Config) (billing.Gateway, error) {
	switch cfg.PaymentProvider {
	case internal.PaymentRazorpay:
		return billing.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret), nil
	case internal.PaymentStripe:
		return billing.NewStripe(cfg.StripeSecretKey, cfg.StripePublishableKey, cfg.StripeWebhookSecret), nil
	case internal.PaymentMock:
		return billing.NewMock(cmp.Or(cfg.RazorpayKeySecret, "mock_secret"), nil), nil
	case internal.PaymentNone:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown payment provider %q", cfg.PaymentProvider)
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
