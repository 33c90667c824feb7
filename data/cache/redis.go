package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/KotFed0t/lemon_trader_bot/config"
	"github.com/KotFed0t/lemon_trader_bot/utils"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("cache miss")

const memeStocksKey = "meme_stocks"

type RedisCache struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisCache(redisClient *redis.Client, cfg *config.Config) *RedisCache {
	return &RedisCache{redis: redisClient, cfg: cfg}
}

func (r *RedisCache) SetMemeStocks(ctx context.Context, titles []string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("start SetMemeStocks", slog.String("rqID", rqID))

	titlesJson, err := json.Marshal(titles)
	if err != nil {
		slog.Error("can't marshall titles in SetMemeStocks", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return errors.New("can't marshall titles")
	}

	_, err = r.redis.Set(ctx, memeStocksKey, titlesJson, r.cfg.Cache.MemeStocksExpiration).Result()
	if err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	slog.Debug("SetMemeStocks completed", slog.String("rqID", rqID))

	return nil
}

func (r *RedisCache) GetMemeStocks(ctx context.Context) ([]string, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("GetMemeStocks start", slog.String("rqID", rqID))

	res, err := r.redis.Get(ctx, memeStocksKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		slog.Error("failed on redis.Get", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return nil, err
	}

	var titles []string
	err = json.Unmarshal([]byte(res), &titles)
	if err != nil {
		slog.Error(
			"can't unmarshall titles in GetMemeStocks",
			slog.String("rqID", rqID),
			slog.String("err", err.Error()),
			slog.String("resultFromRedis", res),
		)
		return nil, errors.New("can't unmarshall titles")
	}

	slog.Debug("GetMemeStocks finished", slog.String("rqID", rqID))

	return titles, nil
}
