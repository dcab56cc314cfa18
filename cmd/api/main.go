package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/helpdesk-kit/ticket-service/internal/api/http"
	"github.com/helpdesk-kit/ticket-service/internal/api/http/handlers"
	"github.com/helpdesk-kit/ticket-service/internal/config"
	"github.com/helpdesk-kit/ticket-service/internal/events"
	"github.com/helpdesk-kit/ticket-service/internal/inbox"
	"github.com/helpdesk-kit/ticket-service/internal/mailer"
	"github.com/helpdesk-kit/ticket-service/internal/observability"
	"github.com/helpdesk-kit/ticket-service/internal/persistence"
	"github.com/helpdesk-kit/ticket-service/internal/queue"
	"github.com/helpdesk-kit/ticket-service/internal/repository"
	"github.com/helpdesk-kit/ticket-service/internal/service"
	"github.com/helpdesk-kit/ticket-service/internal/worker"
)

type stores struct {
	users     repository.UserRepository
	operators repository.OperatorRepository
	tickets   repository.TicketRepository
	history   repository.TicketHistoryRepository
}

func main() {
	envFile := pflag.String("env-file", "", "dotenv file to load before reading the environment")
	migrate := pflag.Bool("migrate", true, "apply SQL migrations on startup")
	runInbox := pflag.Bool("inbox", false, "poll the IMAP inbox for new tickets")
	pflag.Parse()

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if pflag.CommandLine.Changed("migrate") {
		cfg.Postgres.RunMigrations = *migrate
	}
	if pflag.CommandLine.Changed("inbox") {
		cfg.Inbox.Enabled = *runInbox
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var checks []handlers.Pinger
	for _, backend := range persistence.Configured(redis, pg) {
		checks = append(checks, backend)
	}

	var repos stores
	if pool := pg.PoolHandle(); pool != nil {
		repos = stores{
			users:     repository.NewUserRepository(pool),
			operators: repository.NewOperatorRepository(pool),
			tickets:   repository.NewTicketRepository(pool),
			history:   repository.NewTicketHistoryRepository(pool),
		}
	} else {
		logger.Warn("using in-memory store; data is lost on restart")
		mem := repository.NewMemoryStore()
		repos = stores{users: mem.Users(), operators: mem.Operators(), tickets: mem.Tickets(), history: mem.History()}
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger.Named("events"))
	jobs := queue.NewRedisQueue(redis.Client, cfg.Queue, logger.Named("queue"))

	notifications := service.NewNotificationService(dispatcher, jobs, repos.users, logger.Named("notifications"))
	notifications.RegisterHandlers()

	ticketService := service.NewTicketService(service.TicketDependencies{
		UserRepo:            repos.users,
		OperatorRepo:        repos.operators,
		TicketRepo:          repos.tickets,
		HistoryRepo:         repos.history,
		Dispatcher:          dispatcher,
		Logger:              logger.Named("tickets"),
		PlaceholderUserName: cfg.Inbox.PlaceholderUserName,
	})
	directoryService := service.NewDirectoryService(repos.users, repos.operators, logger.Named("directory"))

	var background sync.WaitGroup
	start := func(run func(context.Context)) {
		background.Add(1)
		go func() {
			defer background.Done()
			run(ctx)
		}()
	}

	start(jobs.Run)
	notificationWorker := worker.NewNotificationWorker(
		jobs,
		mailer.NewSMTPSender(cfg.SMTP, logger.Named("mailer")),
		cfg.Queue.Workers,
		"notifier-"+uuid.NewString()[:8],
		logger.Named("worker"),
		metrics,
	)
	start(notificationWorker.Run)

	if cfg.Inbox.Enabled {
		allow, err := inbox.ParseAllowList(cfg.Inbox.AllowedSenders)
		if err != nil {
			logger.Fatal("invalid INBOX_ALLOWED_SENDERS", zap.Error(err))
		}
		if allow.Len() == 0 {
			logger.Warn("inbox allow-list is empty; every message will be rejected")
		}
		poller := inbox.NewPoller(
			inbox.NewIMAPDialer(cfg.IMAP, logger.Named("imap")),
			ticketService,
			allow,
			cfg.Inbox.PollInterval(),
			logger.Named("inbox"),
			metrics,
		)
		start(poller.Run)
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		RequestTimeout: cfg.App.RequestTimeout(),
		AllowedOrigins: cfg.App.AllowedOrigins,
	})
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:    handlers.NewHealthHandler(cfg.App.Name, cfg.App.Description, cfg.App.Version, metrics, checks...),
		Tickets:   handlers.NewTicketsHandler(ticketService),
		Directory: handlers.NewDirectoryHandler(directoryService),
		Email:     handlers.NewEmailHandler(notifications),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.Shutdown(); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	background.Wait()
	logger.Info("shutdown complete")
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
