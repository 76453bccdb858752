package app

import (
	"time"

	"github.com/neoalexandria/backend/internal/platform/envutil"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

type Config struct {
	Addr           string
	LogMode        string
	WorkerPoolSize int
	FetchTimeout   time.Duration
	RedisAddr      string
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Addr:           envutil.Str("LISTEN_ADDR", ":8000"),
		LogMode:        envutil.Str("LOG_MODE", "development"),
		WorkerPoolSize: envutil.Int("WORKER_POOL_SIZE", 0),
		FetchTimeout:   envutil.Duration("FETCH_TIMEOUT", 15*time.Second),
		RedisAddr:      envutil.Str("REDIS_ADDR", ""),
	}
	log.Info("configuration loaded",
		"addr", cfg.Addr,
		"worker_pool_size", cfg.WorkerPoolSize,
		"fetch_timeout", cfg.FetchTimeout,
		"redis", cfg.RedisAddr != "",
	)
	return cfg
}
