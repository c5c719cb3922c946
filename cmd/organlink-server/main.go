package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/organlink/organlink/internal/config"
	"github.com/organlink/organlink/internal/domain/account"
	"github.com/organlink/organlink/internal/domain/chat"
	"github.com/organlink/organlink/internal/domain/chatbot"
	"github.com/organlink/organlink/internal/domain/directory"
	"github.com/organlink/organlink/internal/domain/documents"
	"github.com/organlink/organlink/internal/domain/hospital"
	"github.com/organlink/organlink/internal/domain/matching"
	"github.com/organlink/organlink/internal/platform/auth"
	"github.com/organlink/organlink/internal/platform/blobstore"
	"github.com/organlink/organlink/internal/platform/db"
	"github.com/organlink/organlink/internal/platform/events"
	"github.com/organlink/organlink/internal/platform/middleware"
	"github.com/organlink/organlink/internal/platform/mongostore"
	"github.com/organlink/organlink/internal/platform/notification"
	"github.com/organlink/organlink/internal/platform/sandbox"
	"github.com/organlink/organlink/internal/platform/telemetry"
	"github.com/organlink/organlink/internal/platform/webhook"
	"github.com/organlink/organlink/internal/platform/websocket"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "organlink-server",
		Short:         "OrganLink donor/recipient matching API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file loaded before reading configuration")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(matchCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the OrganLink API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger writes to out. One-shot commands log to stderr so their stdout
// stays machine readable.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// backends holds the storage selected by MATCH_STORE. Postgres is always
// opened since accounts, hospitals, documents and chat live there.
type backends struct {
	pool    *pgxpool.Pool
	mongo   *mongostore.Store
	users   directory.Repository
	matches matching.Store
}

func openBackends(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backends, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("connected to database")

	b := &backends{pool: pool}
	if !cfg.UseMongo() {
		b.users = directory.NewUserRepoPG(pool)
		b.matches = matching.NewMatchStorePG(pool)
		return b, nil
	}

	store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = store.Close(ctx)
		pool.Close()
		return nil, fmt.Errorf("ensure mongo indexes: %w", err)
	}
	logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to mongo")

	b.mongo = store
	b.users = directory.NewUserRepoMongo(store.Users())
	b.matches = matching.NewMatchStoreMongo(store.Matches())
	return b, nil
}

func (b *backends) Close(ctx context.Context) {
	if b.mongo != nil {
		_ = b.mongo.Close(ctx)
	}
	b.pool.Close()
}

// pingers lists the non-Postgres backends reported by /health.
func (b *backends) pingers() map[string]db.Pinger {
	if b.mongo == nil {
		return nil
	}
	return map[string]db.Pinger{"mongo": b.mongo}
}

// routeGroups returns the unversioned root group and /api/v1. Both share one
// rate limiter so a client has a single budget across them. /health is
// registered on e directly and stays unlimited.
func routeGroups(e *echo.Echo, cfg *config.Config) (root, apiV1 *echo.Group) {
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	limit := middleware.RateLimit(rateLimitCfg)
	return e.Group("", limit), e.Group("/api/v1", limit)
}

// changeFeed returns the publisher every service writes to: the websocket hub
// when one is given, any extra sinks, plus Kafka when brokers are configured.
// The returned closer releases the Kafka writer.
func changeFeed(cfg *config.Config, logger zerolog.Logger, hub *websocket.Hub, extra ...events.Publisher) (events.Publisher, func()) {
	var sinks []events.Publisher
	if hub != nil {
		sinks = append(sinks, hub)
	}
	sinks = append(sinks, extra...)
	closer := func() {}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		sinks = append(sinks, kp)
		closer = func() {
			if err := kp.Close(); err != nil {
				logger.Warn().Err(err).Msg("closing kafka publisher")
			}
		}
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing change feed to kafka")
	}
	if len(sinks) == 0 {
		return events.Nop, closer
	}
	return events.NewFanout(logger, sinks...), closer
}

// notifier delivers through RabbitMQ when AMQP_URL is set and falls back to
// the log otherwise.
func notifier(cfg *config.Config, logger zerolog.Logger) (*notification.Dispatcher, func()) {
	var n notification.Notifier = notification.NewLogNotifier(logger)
	closer := func() {}
	if cfg.AMQPURL != "" {
		amqpNotifier, err := notification.DialAMQP(cfg.AMQPURL, cfg.NotifyQueue)
		if err != nil {
			logger.Warn().Err(err).Msg("amqp unavailable, notifications will be logged only")
		} else {
			n = amqpNotifier
			closer = func() { _ = amqpNotifier.Close() }
			logger.Info().Str("queue", cfg.NotifyQueue).Msg("sending notifications over amqp")
		}
	}
	return notification.NewDispatcher(notification.NewTemplateEngine(), n), closer
}

func newMatchingService(cfg *config.Config, store matching.Store, dir matching.Directory, pub events.Publisher, notify *notification.Dispatcher, logger zerolog.Logger) (*matching.Service, error) {
	policy, err := matching.ParsePolicy(cfg.MatchMultiplicity, cfg.MatchScoring, cfg.MatchOrganRule)
	if err != nil {
		return nil, err
	}
	return matching.NewService(store, dir, policy, pub, notify, logger), nil
}

func signingKey(cfg *config.Config, logger zerolog.Logger) ([]byte, error) {
	if cfg.AuthSigningKey != "" {
		return []byte(cfg.AuthSigningKey), nil
	}
	// Validate only lets an empty key through in development.
	buf := make([]byte, 32)
	if _, err := crypto_rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	logger.Warn().Msg("AUTH_SIGNING_KEY not set, using an ephemeral key; tokens will not survive a restart")
	return []byte(hex.EncodeToString(buf)), nil
}

func runServer(cfg *config.Config) error {
	logger := newLogger(cfg, os.Stdout)

	ctx := context.Background()
	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer b.Close(context.Background())

	runCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	metrics := telemetry.NewProvider()
	hub := websocket.NewHub(logger, "matches", "users", "documents")
	webhooks := webhook.NewManager(webhook.NewStorePG(b.pool), logger)
	go webhooks.Run(runCtx)

	credentials := account.NewCredentialRepo(b.pool)
	pub, closeFeed := changeFeed(cfg, logger, hub, metrics, webhooks, account.NewCredentialSync(credentials, logger))
	defer closeFeed()
	directorySvc := directory.NewService(b.users, pub, logger)

	metrics.RegisterGauge("websocket_clients", "Connected websocket clients.", func() int64 { return int64(hub.ClientCount()) })
	metrics.RegisterGauge("db_pool_acquired_conns", "Postgres connections in use.", func() int64 {
		return int64(db.GetPoolStats(b.pool).AcquiredConns)
	})
	metrics.RegisterGauge("db_pool_total_conns", "Postgres connections open.", func() int64 {
		return int64(db.GetPoolStats(b.pool).TotalConns)
	})
	metrics.RegisterGauge("webhook_events_dropped", "Change-feed events dropped by a full webhook queue.", webhooks.Dropped)
	notify, closeNotify := notifier(cfg, logger)
	defer closeNotify()

	key, err := signingKey(cfg, logger)
	if err != nil {
		return err
	}
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		SigningKey: key,
		Skipper:    auth.NewSkipper(),
		Roles:      directorySvc.RolesFor,
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}
	e.Use(middleware.Audit(logger))

	root, apiV1 := routeGroups(e, cfg)

	e.GET("/health", db.HealthHandler(b.pool, b.pingers()))
	root.GET("/metrics", metrics.Handler(), auth.RequireRole(auth.RoleAdmin))

	// -- Directory --
	directory.NewHandler(directorySvc).RegisterRoutes(root, apiV1)

	// -- Matching --
	matchingSvc, err := newMatchingService(cfg, b.matches, directorySvc, pub, notify, logger)
	if err != nil {
		return err
	}
	matching.NewHandler(matchingSvc).RegisterRoutes(root, apiV1)
	logger.Info().Interface("policy", matchingSvc.Policy()).Msg("match generator configured")

	// -- Hospitals --
	hospitalSvc := hospital.NewService(hospital.NewHospitalRepo(b.pool), hospital.NewDepartmentRepo(b.pool))
	hospital.NewHandler(hospitalSvc).RegisterRoutes(apiV1)

	// -- Accounts --
	issuer := auth.NewIssuer(key, cfg.AuthIssuer, cfg.AuthTokenTTL)
	accountSvc := account.NewService(credentials, directorySvc, issuer, notify, logger)
	account.NewHandler(accountSvc).RegisterRoutes(apiV1)

	// -- Documents --
	blobs, err := blobstore.NewDiskStore(cfg.BlobDir)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	documentSvc := documents.NewService(documents.NewDocumentRepo(b.pool), blobs, directorySvc, pub, notify, logger)
	documents.NewHandler(documentSvc).RegisterRoutes(apiV1)

	// -- Chat --
	chatSvc := chat.NewService(chat.NewConversationRepo(b.pool), chat.NewMessageRepo(b.pool), matchingSvc, pub, logger)
	chat.NewHandler(chatSvc).RegisterRoutes(apiV1)

	// -- FAQ chatbot --
	bot, err := chatbot.New(chatbot.DefaultFAQ)
	if err != nil {
		return fmt.Errorf("build faq bot: %w", err)
	}
	chatbot.NewHandler(bot).RegisterRoutes(apiV1)

	// -- Change feed --
	authorize := func(ctx context.Context, topic string) bool {
		if chat.IsChatTopic(topic) {
			return chatSvc.CanSubscribe(ctx, chat.CallerFromContext(ctx), topic)
		}
		return auth.HasRole(ctx, auth.RoleDoctor)
	}
	websocket.NewHandler(hub, authorize, cfg.CORSOrigins).RegisterRoutes(apiV1)

	// -- Webhooks --
	webhook.NewHandler(webhooks).RegisterRoutes(apiV1.Group("", auth.RequireRole(auth.RoleAdmin)))

	// -- Synthetic data (development only) --
	if cfg.IsDev() {
		devGroup := apiV1.Group("/dev", auth.RequireRole(auth.RoleAdmin))
		sandbox.NewSeedHandler(directorySvc, hospitalSvc).RegisterRoutes(devGroup)
		logger.Warn().Msg("development seed endpoints enabled under /api/v1/dev")
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Str("store", cfg.MatchStore).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopWorkers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
