/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the billing engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Build the zap logger
  3. Open the store: PostgreSQL when DATABASE_URL is set, else SQLite
  4. Wire ledger, settlement engine, reconciliation tracker
  5. Optionally attach the Kafka settlement publisher
  6. Start the overdue monitor and the HTTP server

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: billing.db)
           Use ":memory:" for an in-memory database

ENVIRONMENT:
  DATABASE_URL   PostgreSQL connection string; overrides -db
  KAFKA_BROKERS  Comma-separated broker list; enables settlement events
  LOG_LEVEL      zap level (debug, info, warn, error; default info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the overdue monitor, close the publisher and the store
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/billing.db"

  # Run against PostgreSQL with events
  DATABASE_URL="postgres://billing@localhost/billing?sslmode=disable" \
  KAFKA_BROKERS="localhost:9092" ./server

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go, store/postgres/postgres.go: Persistence
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/events/kafka"
	"github.com/warp/billing-engine/invoice"
	"github.com/warp/billing-engine/ledger"
	"github.com/warp/billing-engine/reconcile"
	"github.com/warp/billing-engine/settle"
	"github.com/warp/billing-engine/store/postgres"
	"github.com/warp/billing-engine/store/sqlite"
)

// billingStore is what the wiring needs from either database backend.
type billingStore interface {
	ledger.Store
	ledger.AccountStore
	invoice.Store
	reconcile.Store
	io.Closer
}

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "billing.db", "SQLite database path")
	flag.Parse()

	logger := newLogger(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	store, err := openStore(*dbPath, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Domain wiring
	l := ledger.NewLedger(store)
	engine := settle.NewEngine(l, store, store).WithLogger(logger)
	tracker := reconcile.NewTracker(store)

	var publisher *kafka.Publisher
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		publisher = kafka.NewPublisher(strings.Split(brokers, ","))
		engine = engine.WithEvents(publisher)
		defer publisher.Close()
		logger.Info("settlement events enabled", zap.String("brokers", brokers))
	}

	handler := api.NewHandler(l, store, store, engine, tracker, logger)
	router := api.NewRouter(handler)

	monitor := api.NewOverdueMonitor(store, logger)
	monitor.Start()
	defer monitor.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.Int("port", *port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// openStore prefers PostgreSQL when DATABASE_URL is set and falls back to
// the embedded SQLite database.
func openStore(dbPath string, logger *zap.Logger) (billingStore, error) {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		logger.Info("using postgres store")
		return postgres.New(url)
	}
	logger.Info("using sqlite store", zap.String("path", dbPath))
	return sqlite.New(dbPath)
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil && level != "" {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
