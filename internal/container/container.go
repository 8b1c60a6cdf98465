// Package container provides dependency injection.
package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ioms/backend/internal/archive"
	"github.com/ioms/backend/internal/auth"
	"github.com/ioms/backend/internal/config"
	"github.com/ioms/backend/internal/crypto"
	"github.com/ioms/backend/internal/handler"
	"github.com/ioms/backend/internal/jobs"
	"github.com/ioms/backend/internal/notification"
	"github.com/ioms/backend/internal/outage"
	"github.com/ioms/backend/internal/realtime"
	"github.com/ioms/backend/internal/report"
	"github.com/ioms/backend/internal/repository"
)

// Repositories groups the data access layer.
type Repositories struct {
	Tx            repository.TxRunner
	Outages       repository.OutageRepository
	History       repository.HistoryRepository
	Applications  repository.ApplicationRepository
	Users         repository.UserRepository
	Companies     repository.CompanyRepository
	Notifications repository.NotificationRepository
	Chat          repository.ChatRepository
}

// NewPostgresRepositories builds every repository on db.
func NewPostgresRepositories(db *sqlx.DB) Repositories {
	return Repositories{
		Tx:            repository.NewTxManager(db),
		Outages:       repository.NewPostgresOutageRepository(db),
		History:       repository.NewPostgresHistoryRepository(db),
		Applications:  repository.NewPostgresApplicationRepository(db),
		Users:         repository.NewPostgresUserRepository(db),
		Companies:     repository.NewPostgresCompanyRepository(db),
		Notifications: repository.NewPostgresNotificationRepository(db),
		Chat:          repository.NewPostgresChatRepository(db),
	}
}

// Container holds all application dependencies.
type Container struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sqlx.DB
	repos  Repositories

	bus         *realtime.Bus
	redis       *redis.Client
	relay       *realtime.Relay
	kafka       *notification.KafkaPublisher
	dispatcher  *notification.Dispatcher
	outages     *outage.Service
	scheduler   *jobs.Scheduler
	rateLimiter *handler.RateLimiter
	router      http.Handler
}

// Open connects to the database and wires the container on top of it.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	db, err := repository.Open(ctx, cfg.Database.DSN(), repository.PoolConfig{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxLifetime:  cfg.Database.MaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("database connected", "host", cfg.Database.Host, "database", cfg.Database.Name)

	c, err := New(ctx, cfg, logger, NewPostgresRepositories(db))
	if err != nil {
		db.Close()
		return nil, err
	}
	c.db = db
	return c, nil
}

// New wires every component on repos. Optional integrations are enabled by
// their configuration.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, repos Repositories) (*Container, error) {
	c := &Container{
		cfg:    cfg,
		logger: logger,
		repos:  repos,
		bus:    realtime.NewBus(cfg.Notification.RealtimeBuffer, logger),
	}
	ok := false
	defer func() {
		if !ok {
			c.closeClients()
		}
	}()

	var broadcaster realtime.Broadcaster = realtime.Local{Bus: c.bus}
	if cfg.Redis.URL != "" {
		client, err := realtime.ConnectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("realtime relay: %w", err)
		}
		c.redis = client
		c.relay = realtime.NewRelay(c.bus, client, cfg.Redis.Channel, logger)
		broadcaster = c.relay
		logger.Info("realtime relay enabled", "channel", cfg.Redis.Channel)
	}

	var events notification.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := notification.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		c.kafka = kp
		events = kp
		logger.Info("kafka event log enabled", "topic", cfg.Kafka.Topic, "brokers", len(cfg.Kafka.Brokers))
	}

	var telegram notification.TelegramSender
	if cfg.Telegram.BotToken != "" {
		tg, err := notification.NewTelegram(cfg.Telegram.BotToken, logger)
		if err != nil {
			return nil, err
		}
		telegram = tg
		logger.Info("telegram channel enabled")
	}

	channels := notification.NewService(notification.Config{
		SlackWebhookURL: cfg.Notification.SlackWebhookURL,
		EmailSMTPHost:   cfg.Notification.EmailSMTPHost,
		EmailSMTPPort:   cfg.Notification.EmailSMTPPort,
		EmailFrom:       cfg.Notification.EmailFrom,
		EmailPassword:   cfg.Notification.EmailPassword,
		EmailRecipients: cfg.Notification.EmailRecipients,
		WebhookURLs:     cfg.Notification.WebhookURLs,
	}, telegram, logger)

	box, err := crypto.NewBox(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	c.dispatcher = notification.NewDispatcher(notification.DispatcherDeps{
		Store:     repos.Notifications,
		Companies: repos.Companies,
		Channels:  channels,
		Events:    events,
		Realtime:  broadcaster,
		Secrets:   box,
		Timeout:   cfg.Notification.DeliveryTimeout,
		Logger:    logger,
	})

	c.outages = outage.NewService(outage.Deps{
		Tx:           repos.Tx,
		Outages:      repos.Outages,
		History:      repos.History,
		Applications: repos.Applications,
		Companies:    repos.Companies,
		Sink:         c.dispatcher,
		Policy:       cfg.ConflictPolicy(),
		Logger:       logger,
	})

	jwtMgr, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT manager: %w", err)
	}

	reports := report.NewGenerator(repos.Outages, repos.Applications)
	c.rateLimiter = handler.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	c.router = handler.NewRouter(handler.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		RateLimiter:    c.rateLimiter,
		Health:         c.Health,
	}, handler.Handlers{
		JWT:           jwtMgr,
		Auth:          auth.NewHandler(jwtMgr, repos.Tx, repos.Users, repos.Companies, c.bus, logger),
		Outages:       handler.NewOutageHandler(c.outages),
		Applications:  handler.NewApplicationHandler(repos.Tx, repos.Applications, repos.Users, logger),
		Notifications: handler.NewNotificationHandler(repos.Notifications),
		Chat:          handler.NewChatHandler(repos.Chat, repos.Users, repos.Outages, broadcaster, logger),
		Reports:       handler.NewReportHandler(reports),
		Settings:      handler.NewSettingsHandler(repos.Companies, box, logger),
		WS:            handler.NewWSHandler(c.bus, cfg.Server.AllowedOrigins, logger),
	})

	if cfg.Jobs.Enabled {
		if err := c.initJobs(ctx, reports); err != nil {
			return nil, err
		}
	}

	ok = true
	return c, nil
}

func (c *Container) initJobs(ctx context.Context, reports *report.Generator) error {
	var store jobs.ReportStore
	if c.cfg.Archive.Bucket != "" {
		a, err := archive.NewS3(ctx, archive.Config{
			Region:          c.cfg.Archive.Region,
			Bucket:          c.cfg.Archive.Bucket,
			Prefix:          c.cfg.Archive.Prefix,
			Endpoint:        c.cfg.Archive.Endpoint,
			AccessKeyID:     c.cfg.Archive.AccessKeyID,
			SecretAccessKey: c.cfg.Archive.SecretAccessKey,
		}, c.logger)
		if err != nil {
			return fmt.Errorf("report archive: %w", err)
		}
		store = a
	} else {
		reports = nil
	}

	c.scheduler = jobs.NewScheduler(c.logger, c.cfg.Jobs.Timeout)
	outageJobs := jobs.NewOutageJobs(jobs.OutageJobsDeps{
		Outages:        c.outages,
		Companies:      c.repos.Companies,
		Reports:        reports,
		Archive:        store,
		ReminderLead:   c.cfg.Outage.ReminderLead,
		ArchiveHorizon: c.cfg.Jobs.ArchiveHorizon,
		Logger:         c.logger,
	})
	return outageJobs.Register(c.scheduler, jobs.Schedules{
		StatusAdvance: c.cfg.Jobs.StatusAdvanceSchedule,
		Reminders:     c.cfg.Jobs.RemindersSchedule,
		ReportArchive: c.cfg.Jobs.ReportArchiveSchedule,
	})
}

// Run starts the scheduler and blocks on the background loops until ctx is done.
func (c *Container) Run(ctx context.Context) error {
	if c.scheduler != nil {
		c.scheduler.Start()
	}
	g, ctx := errgroup.WithContext(ctx)
	if c.relay != nil {
		g.Go(func() error { return c.relay.Run(ctx) })
	}
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := c.rateLimiter.Sweep(); n > 0 {
					c.logger.Debug("rate limiter swept", "clients", n)
				}
			}
		}
	})
	return g.Wait()
}

// Stop drains in-flight work and releases every client. The HTTP server must
// already be shut down.
func (c *Container) Stop(ctx context.Context) error {
	c.logger.Info("stopping container components")

	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	var errs []error
	if err := c.dispatcher.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("notification drain: %w", err))
	}
	c.bus.Shutdown()
	errs = append(errs, c.closeClients())
	if c.db != nil {
		errs = append(errs, c.db.Close())
	}
	return errors.Join(errs...)
}

func (c *Container) closeClients() error {
	var errs []error
	if c.kafka != nil {
		errs = append(errs, c.kafka.Close())
	}
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	return errors.Join(errs...)
}

// Health pings the database.
func (c *Container) Health(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	return c.db.PingContext(ctx)
}

// Accessors

func (c *Container) Config() *config.Config         { return c.cfg }
func (c *Container) Logger() *slog.Logger           { return c.logger }
func (c *Container) DB() *sqlx.DB                   { return c.db }
func (c *Container) Router() http.Handler           { return c.router }
func (c *Container) Repositories() Repositories     { return c.repos }
func (c *Container) OutageService() *outage.Service { return c.outages }
func (c *Container) Scheduler() *jobs.Scheduler     { return c.scheduler }
func (c *Container) Bus() *realtime.Bus             { return c.bus }
