// Package server boots the verification service: configuration, ledger
// store, keyring, cache, audit trail, routes, and the HTTP (plus optional
// gRPC health) listeners, with graceful shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/shashiranjanraj/veritas/app/models"
	"github.com/shashiranjanraj/veritas/app/routes"
	"github.com/shashiranjanraj/veritas/app/services"
	"github.com/shashiranjanraj/veritas/config"
	"github.com/shashiranjanraj/veritas/internal/ledger"
	"github.com/shashiranjanraj/veritas/internal/provenance"
	"github.com/shashiranjanraj/veritas/pkg/cache"
	"github.com/shashiranjanraj/veritas/pkg/crypt"
	"github.com/shashiranjanraj/veritas/pkg/database"
	grpcserver "github.com/shashiranjanraj/veritas/pkg/grpc"
	"github.com/shashiranjanraj/veritas/pkg/logger"
	"github.com/shashiranjanraj/veritas/pkg/metrics"
	"github.com/shashiranjanraj/veritas/pkg/queue"
	"github.com/shashiranjanraj/veritas/pkg/router"
	"github.com/shashiranjanraj/veritas/pkg/schedule"
	"github.com/shashiranjanraj/veritas/pkg/storage"
)

const shutdownGrace = 15 * time.Second

// Start boots every subsystem and blocks until a shutdown signal.
func Start() error {
	if err := config.Load(); err != nil {
		return fmt.Errorf("server: load config: %w", err)
	}

	if err := database.Connect(); err != nil {
		return err
	}
	cache.Connect()
	storage.Connect()

	if err := database.DB.AutoMigrate(&models.User{}); err != nil {
		return fmt.Errorf("server: migrate accounts: %w", err)
	}

	store, err := ledger.New(database.DB)
	if err != nil {
		return err
	}
	// Metrics outside retry so observed latency includes backoff.
	var gateway provenance.Ledger = ledger.WithMetrics(ledger.WithRetry(store, 3, 100*time.Millisecond))

	keyring, err := loadKeyring()
	if err != nil {
		return err
	}

	audit := connectAudit()
	if audit != nil {
		defer audit.Close()
	}

	r := router.New()
	routes.RegisterAPI(r, routes.Deps{
		Ledger:  gateway,
		Keyring: keyring,
		Feed:    services.NewFeedService(),
	})

	httpSrv := &http.Server{
		Addr:              ":" + config.AppPort(),
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcSrv := startGRPC()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	queue.UseDB(database.DB)
	if cache.RDB != nil {
		queue.SetDriver(queue.NewRedisDriver(cache.RDB))
	}
	queue.StartWorkers(bgCtx, 4)

	registerScheduledTasks(gateway)
	schedule.Start(bgCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server: http: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	grpcserver.Stop(grpcSrv)
	if err := httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// loadKeyring opens the encrypted keyring file, or starts an empty keyring
// on first boot.
func loadKeyring() (*provenance.Keyring, error) {
	kr := provenance.NewKeyring()

	path := config.KeyringPath()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return kr, nil
	}
	if err != nil {
		return nil, fmt.Errorf("server: read keyring: %w", err)
	}

	plain, err := crypt.DecryptBytes(string(data))
	if err != nil {
		return nil, fmt.Errorf("server: decrypt keyring: %w", err)
	}
	if err := kr.Import(plain); err != nil {
		return nil, fmt.Errorf("server: import keyring: %w", err)
	}

	logger.Info("keyring loaded", "addresses", len(kr.Addresses()))
	return kr, nil
}

// SaveKeyring encrypts and writes the keyring to its configured path.
// Exposed for the CLI key commands.
func SaveKeyring(kr *provenance.Keyring) error {
	plain, err := kr.Export()
	if err != nil {
		return fmt.Errorf("server: export keyring: %w", err)
	}
	enc, err := crypt.EncryptBytes(plain)
	if err != nil {
		return fmt.Errorf("server: encrypt keyring: %w", err)
	}
	if err := os.WriteFile(config.KeyringPath(), []byte(enc), 0o600); err != nil {
		return fmt.Errorf("server: write keyring: %w", err)
	}
	return nil
}

// connectAudit attaches the Mongo audit trail when configured. Verdicts
// still flow to stdout when Mongo is absent.
func connectAudit() *logger.AuditHandler {
	uri := config.AuditMongoURI()
	if uri == "" {
		return nil
	}

	audit, err := logger.NewAuditHandler(uri, config.AuditMongoDB(), config.AuditCollection())
	if err != nil {
		logger.Warn("audit trail disabled", "error", err)
		return nil
	}

	logger.L = slog.New(logger.NewMultiHandler(logger.L.Handler(), audit))
	slog.SetDefault(logger.L)
	logger.Info("audit trail enabled", "db", config.AuditMongoDB())
	return audit
}

// registerScheduledTasks sets up the recurring background jobs.
func registerScheduledTasks(gateway provenance.Ledger) {
	schedule.EveryMinute().Name("ledger-product-gauge").WithoutOverlapping().Run(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		n, err := gateway.ProductCount(ctx)
		if err != nil {
			logger.Warn("schedule: refresh product gauge", "error", err)
			return
		}
		metrics.SetLedgerProducts(n)
	})
}

func startGRPC() *grpc.Server {
	port := config.GRPCPort()
	if port == "" {
		return nil
	}
	srv, _, err := grpcserver.Start(port)
	if err != nil {
		logger.Warn("grpc disabled", "error", err)
		return nil
	}
	return srv
}
