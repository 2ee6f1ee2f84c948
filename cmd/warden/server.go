package main

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

	"github.com/guildwarden/warden/automod/admin"
	"github.com/guildwarden/warden/automod/auditlog"
	"github.com/guildwarden/warden/automod/cachestore"
	"github.com/guildwarden/warden/automod/countstore"
	"github.com/guildwarden/warden/automod/detect"
	"github.com/guildwarden/warden/automod/discord"
	"github.com/guildwarden/warden/automod/engine"
	"github.com/guildwarden/warden/automod/flagstore"
	"github.com/guildwarden/warden/automod/ingress"
	"github.com/guildwarden/warden/automod/registry"
	"github.com/guildwarden/warden/automod/settings"
	"github.com/guildwarden/warden/util"

	"github.com/bwmarrin/discordgo"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
)

type Server struct {
	logger   *slog.Logger
	engine   *engine.Engine
	registry *registry.CachedRegistry
	session  *discordgo.Session
	rdb      *redis.Client
	echo     *echo.Echo
	httpd    *http.Server
	sem      *semaphore.Weighted
	maxProcs int64
}

type Config struct {
	Logger            *slog.Logger
	DiscordToken      string
	RedisURL          string
	SlackWebhookURL   string
	AdminPassword     string
	ClassifierTimeout time.Duration
	MaxConcurrency    int
	LogAllVerdicts    bool
	FakeAccountAge    time.Duration
}

// Backoff for hydrating the registry at startup
var (
	hydrateInitialDelay = 5 * time.Second
	hydrateMaxDelay     = 5 * time.Minute
)

func NewServer(db *gorm.DB, cls detect.Classifier, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	settingsStore, err := settings.NewGormStore(db)
	if err != nil {
		return nil, fmt.Errorf("initializing settings store: %w", err)
	}
	auditStore, err := auditlog.NewGormStore(db)
	if err != nil {
		return nil, fmt.Errorf("initializing audit log store: %w", err)
	}
	reg := registry.NewCachedRegistry(settingsStore, logger)

	var counters countstore.CountStore
	var cache cachestore.CacheStore
	var flags flagstore.FlagStore
	var rdb *redis.Client
	if config.RedisURL != "" {
		opt, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %w", err)
		}
		rdb = redis.NewClient(opt)
		// check redis connection
		if _, err := rdb.Ping(context.TODO()).Result(); err != nil {
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		counters = countstore.NewRedisCountStore(rdb)
		cache = cachestore.NewRedisCacheStore(rdb, engine.AuditChannelTTL)
		flags = flagstore.NewRedisFlagStore(rdb)
	} else {
		counters = countstore.NewMemCountStore()
		cache = cachestore.NewMemCacheStore(5_000, engine.AuditChannelTTL)
		flags = flagstore.NewMemFlagStore()
	}

	session, err := discordgo.New("Bot " + config.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	var notifier engine.Notifier
	if config.SlackWebhookURL != "" {
		notifier = &engine.SlackNotifier{
			SlackWebhookURL: config.SlackWebhookURL,
			Client:          util.RobustHTTPClient(logger),
		}
	}

	eng := &engine.Engine{
		Logger: logger,
		Filter: &ingress.Filter{
			Registry:        reg,
			WarningPrefixes: engine.WarningPrefixes(),
		},
		Detector: &detect.Detector{
			Classifier: cls,
			Timeout:    config.ClassifierTimeout,
			Logger:     logger,
		},
		Audit:          auditStore,
		Counters:       counters,
		Cache:          cache,
		Flags:          flags,
		Platform:       discord.NewPlatform(session),
		Notifier:       notifier,
		FakeAccountAge: config.FakeAccountAge,
		LogAllVerdicts: config.LogAllVerdicts,
	}

	svc := &admin.Service{
		Store:    settingsStore,
		Registry: reg,
		Audit:    auditStore,
		Cache:    cache,
		Counters: counters,
		Flags:    flags,
		Logger:   logger,
	}

	maxProcs := int64(config.MaxConcurrency)
	if maxProcs <= 0 {
		maxProcs = 64
	}

	e := newRouter(svc, config.AdminPassword, logger)
	e.Use(echoprometheus.NewMiddleware("warden_admin"))

	srv := &Server{
		logger:   logger,
		engine:   eng,
		registry: reg,
		session:  session,
		rdb:      rdb,
		echo:     e,
		sem:      semaphore.NewWeighted(maxProcs),
		maxProcs: maxProcs,
	}
	return srv, nil
}

// Connects to the gateway, serves the admin API on bind, and blocks until an exit signal.
func (s *Server) Run(ctx context.Context, bind string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.hydrateRegistry(ctx)

	if err := s.session.Open(); err != nil {
		return fmt.Errorf("connecting to discord gateway: %w", err)
	}
	if s.session.State.User == nil {
		s.session.Close()
		return fmt.Errorf("discord gateway did not report bot user")
	}
	botID := s.session.State.User.ID
	s.engine.BotID = botID
	s.engine.Filter.BotID = botID
	s.logger.Info("connected to discord gateway", "botID", botID)
	removeHandler := s.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		s.handleMessage(ctx, m.Message)
	})

	s.httpd = &http.Server{
		Handler:        s.echo,
		Addr:           bind,
		WriteTimeout:   time.Minute,
		ReadTimeout:    time.Minute,
		MaxHeaderBytes: 1024 * 1024,
	}
	s.logger.Info("starting admin server", "bind", bind)
	go func() {
		if err := s.httpd.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("HTTP server shutting down unexpectedly", "err", err)
			}
		}
	}()

	// Wait for a signal to exit.
	exitSignals := make(chan os.Signal, 1)
	signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exitSignals
	s.logger.Info("received OS exit signal", "signal", sig)

	removeHandler()
	// unblocks handlers waiting for a processing slot
	cancel()
	s.Shutdown()
	s.logger.Info("graceful shutdown complete")
	return nil
}

// Retries LoadAll with exponential backoff until it succeeds. Until then every workspace is unmonitored.
func (s *Server) hydrateRegistry(ctx context.Context) {
	delay := hydrateInitialDelay
	for {
		err := s.registry.LoadAll(ctx)
		if err == nil {
			s.logger.Info("monitor registry loaded", "workspaces", s.registry.Size())
			return
		}
		s.logger.Error("failed to load monitor settings, will retry", "err", err, "delay", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, hydrateMaxDelay)
	}
}

func (s *Server) Shutdown() {
	s.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpd != nil {
		if err := s.httpd.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", "err", err)
		}
	}

	// in-flight messages run to completion
	if err := s.sem.Acquire(ctx, s.maxProcs); err != nil {
		s.logger.Warn("timed out waiting for in-flight messages", "err", err)
	}

	if err := s.session.Close(); err != nil {
		s.logger.Error("discord session close error", "err", err)
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			s.logger.Error("redis close error", "err", err)
		}
	}
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}
