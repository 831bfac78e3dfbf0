package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	appsvc "dermascan-gateway/internal/app"
	"dermascan-gateway/internal/artifact"
	"dermascan-gateway/internal/cache"
	"dermascan-gateway/internal/config"
	"dermascan-gateway/internal/inference"
	mysqlClient "dermascan-gateway/internal/platform/mysql"
	rabbitmqClient "dermascan-gateway/internal/platform/rabbitmq"
	redisClient "dermascan-gateway/internal/platform/redis"
	"dermascan-gateway/internal/repository"
	"dermascan-gateway/internal/worker"
)

// App holds every process-wide handle. It is read-only once New returns.
type App struct {
	Config     *config.Config
	Artifact   *artifact.Model
	Provider   inference.Provider
	Detector   *appsvc.DetectionService
	MySQL      *gorm.DB
	Redis      *redis.Client
	MQConn     *amqp.Connection
	Detections *repository.DetectionRepository
	Worker     *worker.DetectionPersistWorker

	StartedAt time.Time
}

// Option adjusts an App before its services are wired.
type Option func(*App)

// WithProvider replaces the hosted inference client.
func WithProvider(p inference.Provider) Option {
	return func(a *App) {
		a.Provider = p
	}
}

func New(ctx context.Context, opts ...Option) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(ctx, cfg, opts...)
}

// NewWithConfig validates cfg, loads the model artifact and connects enabled
// infrastructure. Any failure is fatal for startup.
func NewWithConfig(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg}
	for _, opt := range opts {
		opt(a)
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Artifact, err = artifact.Load(cfg.Artifact.Path, cfg.Artifact.Format, cfg.Artifact.ONNXSharedLibPath)
	if err != nil {
		return nil, fmt.Errorf("load model artifact failed: %w", err)
	}
	log.Printf("model artifact loaded: %s (%s, %d bytes)", a.Artifact.Path, a.Artifact.Format, a.Artifact.Size)

	if a.Provider == nil {
		a.Provider = inference.NewHostedClient(inference.ClientConfig{
			BaseURL:       cfg.Provider.BaseURL,
			APIKey:        cfg.Provider.APIKey,
			Timeout:       time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
			MaxRetries:    cfg.Provider.MaxRetries,
			RetryInterval: time.Duration(cfg.Provider.RetryIntervalMS) * time.Millisecond,
		})
	}

	var predictionCache appsvc.PredictionCache
	if cfg.Cache.Enabled {
		a.Redis, err = redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		predictionCache = cache.NewPredictionCache(a.Redis, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	}

	if cfg.MySQL.Enabled {
		a.MySQL, err = mysqlClient.New(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, err
		}
		a.Detections = repository.NewDetectionRepository(a.MySQL)
	}

	var publisher appsvc.DetectionPublisher
	if cfg.RabbitMQ.Enabled {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.DetectionQueue)
		if err != nil {
			return nil, err
		}
		publisher = rabbitmqClient.NewDetectionPublisher(a.MQConn, cfg.RabbitMQ.DetectionQueue)

		if a.Detections != nil {
			a.Worker = worker.NewDetectionPersistWorker(a.MQConn, a.Detections, cfg.RabbitMQ.DetectionQueue)
			if err = a.Worker.Start(ctx); err != nil {
				return nil, fmt.Errorf("start detection worker failed: %w", err)
			}
		} else {
			log.Printf("rabbitmq enabled without mysql: detections are queued but not persisted here")
		}
	}

	a.Detector = appsvc.NewDetectionService(a.Provider, predictionCache, publisher, appsvc.DetectionOptions{
		ModelID:      cfg.Provider.ModelID,
		Confidence:   cfg.Provider.Confidence,
		MaxImageSide: cfg.Provider.MaxImageSide,
	})
	a.StartedAt = time.Now()
	return a, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Worker != nil {
		a.Worker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	if a.Artifact != nil {
		if err := a.Artifact.Close(); err != nil {
			closeErr = err
		}
	}
	return closeErr
}
