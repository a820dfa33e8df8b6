package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/br7tech/billdesk/cmd/billdesk/cli"
	"github.com/br7tech/billdesk/internal/app"
	"github.com/br7tech/billdesk/internal/auth"
	"github.com/br7tech/billdesk/internal/billing"
	"github.com/br7tech/billdesk/internal/catalog"
	"github.com/br7tech/billdesk/internal/clients"
	"github.com/br7tech/billdesk/internal/inventory"
	"github.com/br7tech/billdesk/internal/invoice"
	"github.com/br7tech/billdesk/internal/observability"
	"github.com/br7tech/billdesk/internal/payments"
	"github.com/br7tech/billdesk/internal/platform/cache"
	"github.com/br7tech/billdesk/internal/platform/db"
	"github.com/br7tech/billdesk/internal/shared"
	"github.com/br7tech/billdesk/jobs"
	"github.com/br7tech/billdesk/report"
)

const usage = `usage: billdesk <command> [flags]

commands:
  serve                      run the HTTP server (default)
  migrate                    apply database migrations
  create-user -username -password
                             add a login account
  jobs trigger <task>        enqueue a maintenance task now
  jobs stats                 print queue depth
  jobs scheduled             list scheduled tasks
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		err = serve(ctx, stop, cfg, logger)
	case "migrate":
		err = db.Migrate(cfg.PGDSN)
		if err == nil {
			logger.Info("migrations applied")
		}
	case "create-user":
		err = createUser(ctx, cfg, logger, args)
	case "jobs":
		err = runJobs(ctx, cfg, args)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error(cmd, slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.PGDSN); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	shopLoc, err := cfg.ShopLocation()
	if err != nil {
		return err
	}

	sessionManager := shared.NewSessionManager(redisClient, "billdesk_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	authService := newAuthService(dbpool, cfg, logger)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	adjuster := inventory.NewAdjuster(inventory.NewRepository(dbpool), auditLogger, logger)
	inventoryHandler := inventory.NewHandler(logger, adjuster)

	catalogService := catalog.NewCatalog(catalog.NewRepository(dbpool), adjuster, logger)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	clientsHandler := clients.NewHandler(logger, clients.NewService(clients.NewRepository(dbpool)))

	billingService := billing.NewService(billing.NewRepository(dbpool), adjuster, idempotencyStore, auditLogger, metrics, logger)
	billingHandler := billing.NewHandler(logger, billingService, shopLoc)

	pdfClient := report.NewClient(cfg.GotenbergURL)
	renderer, err := invoice.NewRenderer(pdfClient)
	if err != nil {
		return fmt.Errorf("init invoice renderer: %w", err)
	}
	shop := invoice.Shop{
		Name:     cfg.ShopName,
		Address:  cfg.ShopAddress,
		Phone:    cfg.ShopPhone,
		Currency: cfg.CurrencySymbol,
		Location: shopLoc,
	}
	invoiceHandler := invoice.NewHandler(logger, billingService, renderer, shop)

	paymentsService := payments.NewService(payments.NewRepository(dbpool), auditLogger, logger)
	paymentsHandler := payments.NewHandler(logger, paymentsService, shopLoc)

	inspector := asynq.NewInspector(cfg.QueueRedis())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthService:      authService,
		AuthHandler:      authHandler,
		CatalogHandler:   catalogHandler,
		ClientsHandler:   clientsHandler,
		InventoryHandler: inventoryHandler,
		BillingHandler:   billingHandler,
		InvoiceHandler:   invoiceHandler,
		PaymentsHandler:  paymentsHandler,
		JobHandler:       jobHandler,
		PDF:              pdfClient,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}

func newAuthService(pool *pgxpool.Pool, cfg *app.Config, logger *slog.Logger) *auth.Service {
	return auth.NewService(auth.NewRepository(pool), auth.Options{
		TTL:         cfg.SessionTTL,
		IdleTimeout: cfg.SessionIdleTimeout,
	}, logger)
}

func createUser(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	username := fs.String("username", "", "login name")
	password := fs.String("password", "", "initial password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *password == "" {
		return errors.New("create-user: -username and -password are required")
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	user, err := newAuthService(pool, cfg, logger).CreateUser(ctx, *username, *password)
	if err != nil {
		return err
	}
	logger.Info("user created", slog.Int64("id", user.ID), slog.String("username", user.Username))
	return nil
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("jobs: expected trigger, stats or scheduled")
	}
	jobsCLI := cli.NewJobsCLI(cfg.QueueRedis())
	defer jobsCLI.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return fmt.Errorf("jobs trigger: task name required (%s, %s)", jobs.TaskSessionSweep, jobs.TaskIdempotencyCleanup)
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "enqueued %s as %s\n", info.Type, info.ID)
		return nil
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		return cli.WriteStats(os.Stdout, stats)
	case "scheduled":
		tasks, err := jobsCLI.ListScheduled(ctx, 20)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			fmt.Fprintf(os.Stdout, "%s\t%s\t%s\n", task.ID, task.Type, task.NextProcessAt.Format(time.RFC3339))
		}
		return nil
	default:
		return fmt.Errorf("jobs: unknown subcommand %s", args[0])
	}
}
