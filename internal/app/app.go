package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"identity-service/internal/config"
	"identity-service/internal/event"
	"identity-service/internal/handler"
	"identity-service/internal/identity"
	"identity-service/internal/logger"
	"identity-service/internal/metrics"
	"identity-service/internal/middleware"
	"identity-service/internal/otpstore"
	"identity-service/internal/router"
	"identity-service/internal/service"
)

type App struct {
	server       *http.Server
	service      *service.AuthService
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	slog.SetDefault(slog.New(logger.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)))

	ctx := context.Background()

	accounts, closeAccounts, err := OpenAccountStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	otps, closeOTPs, err := OpenOTPStore(ctx, cfg)
	if err != nil {
		closeAccounts()
		return nil, err
	}

	application, err := Build(cfg, accounts, otps)
	if err != nil {
		closeOTPs()
		closeAccounts()
		return nil, err
	}

	application.cleanupFuncs = append(application.cleanupFuncs, closeOTPs, closeAccounts)
	return application, nil
}

// Build wires the services, handlers and router over already opened stores.
func Build(cfg *config.Config, accounts service.AccountStore, otps otpstore.Store) (*App, error) {
	tokens, err := service.NewTokenCodec(cfg.SecretKey, cfg.Algorithm, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}
	hasher := service.NewPasswordHasher(cfg.BcryptCost)

	bus := event.NewBus()
	registry := metrics.New()

	authService := service.NewAuthService(accounts, otps, hasher, tokens, bus, service.AuthOptions{
		RegisterTTL:      cfg.TokenTTL,
		OTPTTL:           cfg.OTPTTL,
		ResetRequiresOTP: cfg.ResetRequiresOTP,
		MaxOTPAttempts:   cfg.OTPMaxAttempts,
	})
	authService.SetTokenObserver(registry)

	subscriberCtx, stopSubscribers := context.WithCancel(context.Background())
	metricsEvents, unsubscribeMetrics := bus.Subscribe()
	go registry.Consume(subscriberCtx, metricsEvents)
	logEvents, unsubscribeLog := bus.Subscribe()
	go event.Log(subscriberCtx, slog.Default(), logEvents)

	var provider handler.IdentityProvider
	if cfg.GoogleEnabled() {
		provider = identity.NewGoogleProvider(identity.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURI:  cfg.GoogleRedirectURI,
			JWKSURL:      cfg.GoogleJWKSURL,
			Issuers:      cfg.GoogleIssuers,
		}, nil)
		slog.Info("google login enabled")
	} else {
		slog.Info("google login disabled, GOOGLE_CLIENT_ID not set")
	}

	cookies := handler.Cookies{Secure: cfg.CookieSecure}

	appRouter := router.New(
		cfg,
		middleware.NewSessionMiddleware(authService),
		registry,
		handler.NewAuthHandler(authService, cookies),
		handler.NewUserHandler(authService, cookies),
		handler.NewOTPHandler(authService, cfg.OTPExposeInResponse),
		handler.NewFederatedHandler(authService, provider, cookies, cfg.FrontendURL),
		handler.NewHealthHandler(authService),
	)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server:  server,
		service: authService,
		cleanupFuncs: []func(){
			func() {
				stopSubscribers()
				unsubscribeMetrics()
				unsubscribeLog()
			},
		},
	}, nil
}

// Handler exposes the fully wired router.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Service() *service.AuthService {
	return a.service
}

// Close runs the cleanup functions in registration order.
func (a *App) Close() {
	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}
	a.cleanupFuncs = nil
}

func (a *App) Run() error {
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		a.Close()
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		slog.Info("shutdown requested", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	a.Close()
	slog.Info("server stopped")
	return nil
}
