package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcclellann/lifeledger/internal/config"
	"github.com/mcclellann/lifeledger/internal/httpapi"
	"github.com/mcclellann/lifeledger/internal/logging"
	"github.com/mcclellann/lifeledger/pkg/ledger"
	"github.com/mcclellann/lifeledger/pkg/notify"
	"github.com/mcclellann/lifeledger/pkg/reminder"
	"github.com/mcclellann/lifeledger/pkg/store"
	"github.com/mcclellann/lifeledger/pkg/study"
	"go.uber.org/zap"
)

// app wires storage, services and the HTTP handler together.
type app struct {
	storage  store.Storage
	ledger   *ledger.Ledger
	study    *study.Service
	reminder *reminder.Reminder
	handler  http.Handler
}

func openStorage(conf config.DatabaseConfig, logger *zap.Logger) (store.Storage, error) {
	switch conf.Driver {
	case config.DriverSQLite:
		return store.NewSQLiteStore(conf.Path, logger)
	case config.DriverPostgres:
		return store.NewGormStore(conf.DSN, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", conf.Driver)
	}
}

func newNotifier(conf config.SMTPConfig, logger *zap.Logger) (notify.Notifier, error) {
	if !conf.Enabled() {
		logger.Info("smtp not configured, notifications disabled")
		return notify.Nop{}, nil
	}
	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     conf.Host,
		Port:     conf.Port,
		Username: conf.Username,
		Password: conf.Password,
		From:     conf.From,
		To:       conf.To,
	}, logger)
}

func newApp(conf *config.Configuration, logger *zap.Logger) (*app, error) {
	storage, err := openStorage(conf.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s store: %w", conf.Database.Driver, err)
	}

	notifier, err := newNotifier(conf.SMTP, logger)
	if err != nil {
		storage.Close()
		return nil, err
	}

	l := ledger.NewLedger(storage, ledger.WithNotifier(notifier), ledger.WithLogger(logger))
	st := study.NewService(storage, logger)
	server := httpapi.NewServer(l, st, httpapi.WithLogger(logger), httpapi.WithJWTSecret(conf.Auth.JWTSecret))

	return &app{
		storage:  storage,
		ledger:   l,
		study:    st,
		reminder: reminder.New(l, st, notifier, reminder.WithLogger(logger), reminder.WithLeadDays(conf.Reminders.LeadDays)),
		handler:  server.Router(),
	}, nil
}

func main() {
	configPath := flag.String("config", config.DefaultConfigFile, "path to the YAML configuration file")
	logLevel := flag.String("log-level", "", "overrides logging.level (debug, info, warn, error)")
	flag.Parse()

	conf, err := config.LoadConfiguration(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(conf.Logging, *logLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	a, err := newApp(conf, logger)
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	defer a.storage.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if conf.Reminders.Enabled {
		go a.reminder.Run(ctx, conf.Reminders.Interval)
	}

	srv := &http.Server{Addr: conf.Server.Address, Handler: a.handler}
	go func() {
		logger.Info("server starting", zap.String("address", conf.Server.Address),
			zap.String("driver", conf.Database.Driver), zap.Bool("auth", conf.Auth.Enabled()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
