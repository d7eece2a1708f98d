package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	credentials "github.com/goliatone/go-credentials"
	"github.com/goliatone/go-credentials/activitymap"
	"github.com/goliatone/go-credentials/adapters/phuslulog"
	"github.com/goliatone/go-credentials/config"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	root := phuslulog.New(os.Stderr, cfg.LogLevel, !cfg.IsProduction())
	logs := phuslulog.NewProvider(root)
	logger := logs.GetLogger("app")

	ctx := context.Background()

	db, err := openDB(cfg.DatabaseDSN)
	if err != nil {
		logger.Error("failed to open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	srv, app, err := newServer(ctx, cfg, db, logs)
	if err != nil {
		logger.Error("failed to initialize server: %v", err)
		os.Exit(1)
	}

	go func() {
		logger.Info("starting HTTP server on %s", cfg.Address())
		if err := srv.Serve(cfg.Address()); err != nil {
			logger.Error("HTTP server failed: %v", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("HTTP server shutdown failed: %v", err)
	}

	logger.Info("server stopped")
}

func openDB(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

func newServer(ctx context.Context, cfg *config.Config, db *bun.DB, logs *phuslulog.Provider) (router.Server[*fiber.App], *fiber.App, error) {
	store := credentials.NewBunStore(db, credentials.WithStoreLogger(logs.GetLogger("store")))
	if err := store.Migrate(ctx); err != nil {
		return nil, nil, err
	}

	hasher := credentials.NewHasher(credentials.WithHashWorkers(cfg.HashWorkers))
	tokens := credentials.NewTokenServiceFromConfig(cfg, credentials.WithTokenLogger(logs.GetLogger("tokens")))

	activityLogger := logs.GetLogger("activity")
	activity := credentials.ActivitySinkFunc(func(_ context.Context, event credentials.ActivityEvent) error {
		record := activitymap.Normalize(event)
		activityLogger.Info("%s %s", record.Verb, print.MaybePrettyJSON(record))
		return nil
	})

	sessions := credentials.NewSessionManager(store).
		WithLogger(logs.GetLogger("sessions")).
		WithActivitySink(activity)

	opts := []credentials.VerificationOption{
		credentials.WithHasher(hasher),
		credentials.WithSessionManager(sessions),
		credentials.WithNotifier(credentials.LogNotifier{Logger: logs.GetLogger("notifier")}),
		credentials.WithVerificationActivitySink(activity),
		credentials.WithVerificationLogger(logs.GetLogger("verification")),
	}
	for _, op := range []credentials.OperationKind{
		credentials.OpEmailVerification,
		credentials.OpPasswordReset,
		credentials.OpTwoFactorOTP,
		credentials.OpLoginOTP,
	} {
		opts = append(opts, credentials.WithSecretTTL(op, cfg.GetSecretTTL(op)))
	}
	machine := credentials.NewVerificationMachine(store, tokens, opts...)

	broker := credentials.NewAuthorizationBroker(store, tokens,
		credentials.WithBrokerHasher(hasher),
		credentials.WithBrokerActivitySink(activity),
		credentials.WithBrokerLogger(logs.GetLogger("broker")),
		credentials.WithCodeTTL(cfg.GetAuthorizationCodeTTL()),
	)

	if err := seedClients(ctx, broker, cfg.Clients, logs.GetLogger("seed")); err != nil {
		return nil, nil, err
	}

	provider := credentials.NewPrincipalProvider(store, hasher).WithLoggerProvider(logs)
	auther := credentials.NewAuthenticator(provider, tokens, sessions).
		WithLogger(logs.GetLogger("auth")).
		WithActivitySink(activity)

	routeAuth := credentials.NewHTTPAuthenticator(tokens, cfg).WithLogger(logs.GetLogger("http"))

	controller := credentials.NewController(cfg, credentials.ControllerOptions{
		Auth:   routeAuth,
		Auther: auther,
		Broker: broker,
		Register: credentials.NewRegisterPrincipalHandler(store, hasher, machine, cfg.GetAdminRegistrationKey()).
			WithActivitySink(activity).
			WithLogger(logs.GetLogger("register")),
		Request:   credentials.NewRequestSecretHandler(machine).WithLogger(logs.GetLogger("request")),
		Confirm:   credentials.NewConfirmSecretHandler(machine).WithLogger(logs.GetLogger("confirm")),
		TwoFactor: credentials.NewToggleTwoFactorHandler(machine),
		Profile: credentials.NewProfileHandler(store).
			WithActivitySink(activity).
			WithLogger(logs.GetLogger("profile")),
		Sessions: sessions,
		Logger:   logs.GetLogger("controller"),
	})
	controller.Debug = !cfg.IsProduction()

	var app *fiber.App
	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		app = router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:      "go-credentials",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			ErrorHandler: routeAuth.FiberErrorHandler,
		}))
		return app
	})

	credentials.RegisterCredentialRoutes(srv.Router(), controller)

	return srv, app, nil
}

func seedClients(ctx context.Context, broker *credentials.AuthorizationBroker, clients []config.Client, logger credentials.Logger) error {
	for _, c := range clients {
		_, err := broker.RegisterClient(ctx, &credentials.Client{
			ClientID:     c.ID,
			Name:         c.Name,
			Description:  c.Description,
			LogoURL:      c.LogoURL,
			RedirectURIs: c.RedirectURIs,
			Active:       true,
		}, c.Secret)
		if err != nil {
			if credentials.IsKind(err, credentials.TextCodeConflict) {
				logger.Debug("client %s already registered", c.ID)
				continue
			}
			return err
		}
		logger.Info("registered client %s", c.ID)
	}
	return nil
}
