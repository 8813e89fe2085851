// Package server wires configuration, storage, crypto services and the gRPC
// endpoint into a runnable application, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/cabinetsync/internal/logging"
	"github.com/dmitrijs2005/cabinetsync/internal/metrics"
	"github.com/dmitrijs2005/cabinetsync/internal/server/audit"
	"github.com/dmitrijs2005/cabinetsync/internal/server/blobstore"
	"github.com/dmitrijs2005/cabinetsync/internal/server/config"
	"github.com/dmitrijs2005/cabinetsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cabinetsync/internal/server/services"

	gs "github.com/dmitrijs2005/cabinetsync/internal/server/grpc"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	metrics     metrics.Reporter
	syncService *services.SyncService
	keys        keyRotator
	members     memberProvisioner
}

var openPostgres = repomanager.OpenPostgres

func newReporter(c *config.Config) (metrics.Reporter, error) {
	if c.StatsdAddr == "" {
		return metrics.Noop{}, nil
	}
	return metrics.NewDataDog(c.StatsdAddr, map[string]string{"service": "cabinetsync"})
}

func newBlobStore(ctx context.Context, c *config.Config) (blobstore.Store, error) {
	switch c.BlobBackend {
	case config.BlobBackendMemory:
		return blobstore.NewMemory(), nil
	default:
		return blobstore.NewS3Store(ctx, blobstore.S3Config{
			Region:       c.S3Region,
			Endpoint:     c.S3BaseEndpoint,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Bucket:       c.S3Bucket,
			UsePathStyle: true,
		})
	}
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(os.Stdout, c.LogFormat, slog.LevelInfo)

	masterKey, err := c.VaultKey()
	if err != nil {
		return nil, err
	}

	m, err := newReporter(c)
	if err != nil {
		return nil, fmt.Errorf("metrics init error: %w", err)
	}

	db, err := openPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	blobs, err := newBlobStore(ctx, c)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	vault := services.NewKeyVault(db, rm, masterKey, logger)
	auditLog := audit.NewLogger(rm.Audit(db), logger, m)
	ss := services.NewSyncService(db, rm, blobs, vault, auditLog, logger, m, c)

	return &App{config: c, logger: logger, db: db, metrics: m, syncService: ss, keys: vault, members: rm.Members(db)}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.syncService, app.config.SecretKey)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) close(ctx context.Context) {
	if err := app.metrics.Close(); err != nil {
		app.logger.Warn(ctx, "metrics close failed", "error", err.Error())
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(ctx, "db close failed", "error", err.Error())
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.close(context.WithoutCancel(ctx))
	app.logger.Info(ctx, "Stopped")
}
