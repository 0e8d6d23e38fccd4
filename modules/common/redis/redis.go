package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"genstudio-server/modules/common/config"
)

// Connect - Redis 연결 생성 후 Ping으로 확인
func Connect(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	log.Info().Str("addr", cfg.GetRedisAddr()).Msg("connecting to redis")

	var tlsConfig *tls.Config
	if cfg.RedisUseTLS {
		tlsConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, // Render.com Redis용
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		TLSConfig:    tlsConfig,
		DB:           0,
		PoolSize:     PoolSize(cfg.WorkerConcurrency),
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.GetRedisAddr(), err)
	}

	log.Info().Msg("redis connected")
	return rdb, nil
}

// PoolSize - 워커 BRPOP 연결 1개 + 동시 작업별 상태 저장 + HTTP 요청 여유분
func PoolSize(workerConcurrency int) int {
	if workerConcurrency < 1 {
		workerConcurrency = 1
	}
	return 1 + workerConcurrency*2 + 10
}
