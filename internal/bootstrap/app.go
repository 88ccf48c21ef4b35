package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"contracts-rag/internal/ai"
	appsvc "contracts-rag/internal/app"
	"contracts-rag/internal/cache"
	"contracts-rag/internal/config"
	"contracts-rag/internal/insight"
	"contracts-rag/internal/pkg/vectorcodec"
	"contracts-rag/internal/platform/database"
	rabbitmqClient "contracts-rag/internal/platform/rabbitmq"
	redisClient "contracts-rag/internal/platform/redis"
	"contracts-rag/internal/ranking"
	"contracts-rag/internal/repository"
	"contracts-rag/internal/worker"
)

// Services are the application services the transport layer serves.
type Services struct {
	Auth      *appsvc.AuthService
	Contracts *appsvc.ContractService
	Retrieval *appsvc.RetrievalService
	Events    *repository.IngestEventRepository
}

type App struct {
	Config      *config.Config
	DB          *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	EventWorker *worker.IngestEventWorker
	Services    Services

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig connects every configured dependency and wires the services. Redis
// and RabbitMQ are optional.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg, StartedAt: time.Now()}

	var err error
	app.DB, err = database.New(ctx, cfg.Database.Driver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(app.DB); err != nil {
		_ = app.Close()
		return nil, err
	}

	if cfg.Redis.Addr != "" {
		app.Redis, err = redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
	}

	if cfg.RabbitMQ.URL != "" {
		app.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
	}

	if err := app.wire(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config
	userRepo := repository.NewUserRepository(a.DB)
	docRepo := repository.NewDocumentRepository(a.DB)
	chunkRepo := repository.NewChunkRepository(a.DB)
	eventRepo := repository.NewIngestEventRepository(a.DB)

	llmClient := ai.NewOpenAICompatibleClient()
	embedder, modelName, err := newEmbedder(cfg, llmClient)
	if err != nil {
		return err
	}
	if a.Redis != nil {
		ttl := time.Duration(cfg.Redis.EmbeddingTTLSeconds) * time.Second
		embedder = cache.NewEmbeddingCache(embedder, a.Redis, modelName, ttl)
	}

	var events appsvc.EventPublisher = worker.NewInlineRecorder(eventRepo)
	if a.MQConn != nil {
		a.EventWorker = worker.NewIngestEventWorker(a.MQConn, eventRepo, cfg.RabbitMQ.IngestEventQueue)
		if err := a.EventWorker.Start(ctx); err != nil {
			return fmt.Errorf("start ingest event worker failed: %w", err)
		}
		events = rabbitmqClient.NewEventPublisher(a.MQConn, cfg.RabbitMQ.IngestEventQueue)
	}

	var completer appsvc.Completer
	if cfg.Retrieval.AnswerMode == appsvc.AnswerModeLLM {
		completer = ai.NewChatModel(llmClient, ai.ChatConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
		})
	}

	codec := vectorcodec.New(cfg.Embedding.Dimension)
	a.Services = Services{
		Auth: appsvc.NewAuthService(
			userRepo,
			cfg.Auth.JWTSecret,
			time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
		),
		Contracts: appsvc.NewContractService(docRepo, chunkRepo, embedder, codec, insight.Default(), events, appsvc.ContractOptions{
			ChunkSize:          cfg.Retrieval.ChunkSize,
			ChunkOverlap:       cfg.Retrieval.ChunkOverlap,
			EmbeddingBatchSize: cfg.Embedding.BatchSize,
			MaxUploadBytes:     cfg.Upload.MaxBytes,
			DefaultValidity:    time.Duration(cfg.Upload.DefaultExpiryDays) * 24 * time.Hour,
		}),
		Retrieval: appsvc.NewRetrievalService(
			chunkRepo,
			embedder,
			ranking.NewRanker(codec, ranking.WithFallbackScore(cfg.Retrieval.FallbackScore)),
			completer,
			appsvc.RetrievalOptions{TopK: cfg.Retrieval.TopK, AnswerMode: cfg.Retrieval.AnswerMode},
		),
		Events: eventRepo,
	}
	return nil
}

// newEmbedder returns the configured embedder and the model name used for cache keys.
func newEmbedder(cfg *config.Config, client *ai.OpenAICompatibleClient) (appsvc.Embedder, string, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		e := ai.NewEmbedder(client, ai.EmbeddingConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			APIKey:     cfg.Embedding.APIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimension,
		})
		return e, e.Model(), nil
	case "hash":
		e, err := ai.NewHashEmbedder(cfg.Embedding.Dimension)
		if err != nil {
			return nil, "", err
		}
		log.Printf("using local hash embedder (dim=%d)", cfg.Embedding.Dimension)
		return e, e.Model(), nil
	}
	return nil, "", fmt.Errorf("unsupported embedding provider %q", cfg.Embedding.Provider)
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.EventWorker != nil {
		a.EventWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			closeErr = err
		}
	}
	return closeErr
}
