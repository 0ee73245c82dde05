package bootstrap

import (
	"context"
	"strings"
	"time"

	"inbox_server/adapter/out/messaging"
	"inbox_server/adapter/out/mongodb"
	"inbox_server/adapter/out/persistence"
	"inbox_server/adapter/out/provider"
	"inbox_server/adapter/out/realtime"
	"inbox_server/config"
	"inbox_server/core/llm"
	"inbox_server/core/port/out"
	"inbox_server/core/service/account"
	"inbox_server/core/service/auth"
	"inbox_server/core/service/category"
	"inbox_server/core/service/classify"
	"inbox_server/core/service/mail"
	"inbox_server/infra/database"
	"inbox_server/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
)

type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Repositories
	AccountRepo  out.AccountRepository
	CategoryRepo out.CategoryRepository
	EmailRepo    out.EmailRepository
	SettingsRepo out.SettingsRepository
	BodyRepo     out.EmailBodyRepository

	// Provider
	GmailProvider *provider.GmailAdapter

	// Messaging
	MessageProducer out.MessageProducer

	// Realtime
	RealtimeAdapter *realtime.SSEAdapter
	SSEHub          *realtime.SSEHub

	// LLM
	LLMClient  *llm.Client
	Classifier *llm.BatchClassifier

	// Services
	OAuthService    *auth.OAuthService
	ClassifyService *classify.Service
	SyncService     *mail.SyncService
	EmailService    *mail.EmailService
	AccountService  *account.Service
	WatchService    *account.WatchService
	SettingsService *account.SettingsService
	CategoryService *category.Service
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	// Database (pgxpool)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	// Database (sqlx for repository adapters). Simple protocol avoids
	// prepared statement conflicts behind PgBouncer.
	sqlxURL := cfg.DatabaseURL
	if strings.Contains(sqlxURL, "?") {
		sqlxURL += "&default_query_exec_mode=simple_protocol"
	} else {
		sqlxURL += "?default_query_exec_mode=simple_protocol"
	}
	sqlDB, err := sqlx.Connect("pgx", sqlxURL)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	// Redis
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Warn("Redis connection failed: %v", err)
	} else {
		deps.Redis = redisClient
		cleanups = append(cleanups, func() { redisClient.Close() })
		deps.MessageProducer = messaging.NewRedisProducer(redisClient)
	}

	// MongoDB (email bodies)
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(cfg.MongoDBURL, cfg.MongoDBName)
		if err != nil {
			logger.Warn("MongoDB connection failed: %v", err)
		} else {
			deps.MongoDB = mongoClient
			cleanups = append(cleanups, func() {
				mongoClient.Disconnect(context.Background())
			})

			bodyAdapter := mongodb.NewMailBodyAdapter(mongoClient.Database(cfg.MongoDBName))
			if err := bodyAdapter.EnsureIndexes(context.Background()); err != nil {
				logger.Warn("Failed to ensure MongoDB indexes: %v", err)
			}
			deps.BodyRepo = bodyAdapter
		}
	}

	// Repositories
	deps.AccountRepo = persistence.NewAccountAdapter(sqlDB)
	deps.CategoryRepo = persistence.NewCategoryAdapter(sqlDB)
	deps.EmailRepo = persistence.NewEmailAdapter(sqlDB)
	deps.SettingsRepo = persistence.NewSettingsAdapter(sqlDB)

	// Realtime (SSE)
	zlog := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	deps.RealtimeAdapter = realtime.NewSSEAdapter(zlog)
	deps.SSEHub = realtime.NewSSEHub(deps.RealtimeAdapter, zlog)

	// Gmail provider. The port must stay a true nil interface when the
	// adapter is absent so services can guard on it.
	var mailProvider out.MailProviderPort
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		deps.GmailProvider = provider.NewGmailAdapter(&provider.GmailConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
		mailProvider = deps.GmailProvider
	} else {
		logger.Warn("Google OAuth credentials not configured, mail sync disabled")
	}

	// LLM classifier
	if cfg.OpenAIAPIKey != "" {
		deps.LLMClient = llm.NewClientWithConfig(llm.ClientConfig{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
		})
		deps.Classifier = llm.NewBatchClassifier(deps.LLMClient)
	} else {
		logger.Warn("OpenAI API key not configured, emails will stay uncategorized")
	}

	// Services
	deps.OAuthService = auth.NewOAuthService(deps.AccountRepo, mailProvider)

	var classifierPort out.ClassifierPort
	if deps.Classifier != nil {
		classifierPort = deps.Classifier
	}
	deps.ClassifyService = classify.NewService(classifierPort, cfg.ClassifyBatchSize)

	deps.SyncService = mail.NewSyncService(
		deps.AccountRepo,
		deps.CategoryRepo,
		deps.EmailRepo,
		deps.BodyRepo,
		deps.SettingsRepo,
		mailProvider,
		deps.ClassifyService,
		deps.OAuthService,
		deps.MessageProducer,
		deps.RealtimeAdapter,
		int64(cfg.SyncMaxResults),
	)

	deps.EmailService = mail.NewEmailService(
		deps.AccountRepo,
		deps.CategoryRepo,
		deps.EmailRepo,
		deps.BodyRepo,
		mailProvider,
		deps.OAuthService,
	)

	deps.AccountService = account.NewService(
		deps.AccountRepo,
		deps.EmailRepo,
		deps.BodyRepo,
		mailProvider,
		deps.OAuthService,
	)

	deps.WatchService = account.NewWatchService(
		deps.AccountRepo,
		mailProvider,
		deps.OAuthService,
		deps.MessageProducer,
		cfg.PubSubTopic,
	)

	deps.SettingsService = account.NewSettingsService(deps.SettingsRepo)
	deps.CategoryService = category.NewService(deps.CategoryRepo)

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	return deps, cleanup, nil
}

func (d *Dependencies) HealthCheck(ctx context.Context) error {
	if err := d.DB.Ping(ctx); err != nil {
		return err
	}
	if d.Redis != nil {
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}
