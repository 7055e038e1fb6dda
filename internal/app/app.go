// Package app wires the trust core together: configuration, logging,
// metrics, the encrypted store, the server time oracle, the session and
// license managers, and the local HTTP server the frontend talks to.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"invodesk/internal/config"
	"invodesk/internal/infrastructure"
	"invodesk/internal/license"
	"invodesk/internal/middleware"
	"invodesk/internal/security"
	"invodesk/internal/services"
	"invodesk/internal/session"
	"invodesk/internal/store"
	"invodesk/internal/timesource"
	handlers "invodesk/internal/transport/http"
)

// Version is set at build time via -ldflags
var Version = "dev"

// Application is the composed trust core
type Application struct {
	Config *config.Config
	Logger *slog.Logger
	Server *http.Server

	Store          store.Store
	Oracle         *timesource.Oracle
	SessionManager *session.Manager
	LicenseManager *license.Manager
	Guard          *middleware.SessionGuard
	Metrics        *infrastructure.MetricsProvider
}

// New loads configuration and builds the full dependency graph
func New() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("application starting",
		slog.String("version", Version),
		slog.Int("port", cfg.Server.Port),
	)

	paths, err := config.ResolvePaths(cfg.Paths)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	metrics, err := infrastructure.InitializeMetrics("invodesk", Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	meter := metrics.MeterProvider.Meter("invodesk")

	fileStore, err := store.NewFileStore(paths.DataDir, []byte(cfg.License.EncryptionKey), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	oracle := timesource.New(cfg.Trust.TimeEndpoint, logger,
		timesource.WithHTTPClient(&http.Client{Timeout: cfg.Trust.TimeTimeout}),
		timesource.WithCacheTTL(cfg.Trust.TimeCacheTTL),
	)

	validator := session.NewHTTPValidator(cfg.Trust.ValidateEndpoint, cfg.Trust.ValidateTimeout, nil, logger)
	sessionManager, err := session.NewManager(session.ManagerConfig{
		Store:           fileStore,
		Secret:          []byte(cfg.Trust.SessionSecret),
		Clock:           oracle,
		Validator:       validator,
		SessionDuration: cfg.Trust.SessionDuration,
		RefreshWindow:   cfg.Trust.RefreshWindow,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}
	if sessionMetrics, err := session.NewMetrics(meter); err == nil {
		sessionManager.SetMetrics(sessionMetrics)
	} else {
		logger.Warn("session metrics disabled", slog.String("error", err.Error()))
	}

	fingerprints := security.NewFingerprintProvider(paths.SeedFile, logger)
	authority, err := buildAuthority(cfg.License, logger)
	if err != nil {
		return nil, err
	}
	licenseManager, err := license.NewManager(license.ManagerConfig{
		Store:              fileStore,
		Authority:          authority,
		Fingerprinter:      fingerprints,
		StoreTimeout:       cfg.License.StoreTimeout,
		FingerprintTimeout: cfg.License.FingerprintTimeout,
		AuthorityTimeout:   cfg.License.AuthorityTimeout,
		Limiter:            license.NewActivationLimiter(cfg.License.ActivationRPS, cfg.License.ActivationBurst, logger),
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create license manager: %w", err)
	}
	if licenseMetrics, err := license.NewMetrics(meter); err == nil {
		licenseManager.SetMetrics(licenseMetrics)
	} else {
		logger.Warn("license metrics disabled", slog.String("error", err.Error()))
	}

	guard := middleware.NewSessionGuard(sessionManager, logger)
	router := handlers.NewRouter(handlers.RouterConfig{
		SessionService: services.NewSessionService(sessionManager, guard, logger),
		LicenseService: services.NewLicenseService(licenseManager, logger),
		Guard:          guard,
		Oracle:         oracle,
		Metrics:        metrics,
		Logger:         logger,
		Version:        Version,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Application{
		Config:         cfg,
		Logger:         logger,
		Server:         server,
		Store:          fileStore,
		Oracle:         oracle,
		SessionManager: sessionManager,
		LicenseManager: licenseManager,
		Guard:          guard,
		Metrics:        metrics,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled or a
// termination signal arrives, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Launch check runs before the server accepts requests so the log
	// records the trust state of this start
	launch := a.LicenseManager.CheckOnLaunch(ctx)
	a.Logger.Info("license state at launch",
		slog.Bool("valid", launch.Valid),
		slog.Bool("requires_activation", launch.RequiresActivation),
		slog.Bool("offline", launch.Offline),
	)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	infrastructure.CloseLogFile()
	return nil
}

// buildAuthority creates the configured license authority. Without a sheet
// ID every authority call reports unavailability, which keeps development
// installs running on stored licenses.
func buildAuthority(cfg config.LicenseConfig, logger *slog.Logger) (license.Authority, error) {
	if cfg.SheetID == "" {
		logger.Warn("no license sheet configured, activation requires INVODESK_LICENSE_SHEET_ID")
		return unavailableAuthority{}, nil
	}

	credentials, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read authority credentials: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	authority, err := license.NewSheetsAuthority(ctx, cfg.SheetID, cfg.SheetName, credentials, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create license authority: %w", err)
	}
	return authority, nil
}

type unavailableAuthority struct{}

func (unavailableAuthority) Lookup(ctx context.Context, licenseKey, deviceFingerprint string) (*license.Record, error) {
	return nil, license.ErrAuthorityUnavailable
}
