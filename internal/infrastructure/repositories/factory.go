package repositories

import (
	"context"

	"github.com/austinromano/creator.v3/internal/core/ports"
	"github.com/austinromano/creator.v3/internal/infrastructure/repositories/memory"
	redisrepo "github.com/austinromano/creator.v3/internal/infrastructure/repositories/redis"
	"github.com/austinromano/creator.v3/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory selects between Redis and memory implementations, with
// a fallback to memory when Redis is unreachable. The session registry is
// always in-memory: it holds live connection handles, which do not survive
// a process boundary anyway.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory directory",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis stream directory")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory stream directory")
	}

	return factory, nil
}

func (f *RepositoryFactory) CreateSessionRegistry() ports.SessionRegistry {
	return memory.NewSessionRegistry()
}

func (f *RepositoryFactory) CreateStreamDirectory() ports.StreamDirectory {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewStreamDirectory(f.redisClient)
	}
	return memory.NewStreamDirectory()
}

// HealthCheck verifies backing dependencies are reachable.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}

func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return f.redisClient.Close()
	}
	return nil
}
