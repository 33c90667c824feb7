package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel          string `env:"LOG_LEVEL"`
	Telegram          Telegram
	Redis             Redis
	API               API
	Cache             Cache
	Jobs              Jobs
	Order             Order
	SessionExpiration time.Duration `env:"SESSION_EXPIRATION"`
}

type Telegram struct {
	Token      string        `env:"TELEGRAM_TOKEN"`
	UpdTimeout time.Duration `env:"TELEGRAM_UPD_TIMEOUT"`
}

type Redis struct {
	Host     string `env:"REDIS_HOST"`
	Port     int    `env:"REDIS_PORT"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"`
}

type API struct {
	Debug    bool          `env:"API_DEBUG"`
	Timeout  time.Duration `env:"API_TIMEOUT"`
	LemonApi LemonApi
}

type LemonApi struct {
	TradingUrl string `env:"LEMON_TRADING_API_URL"`
	DataUrl    string `env:"LEMON_DATA_API_URL"`
	ApiKey     string `env:"LEMON_API_KEY"`
	VenueMic   string `env:"LEMON_VENUE_MIC"`
}

type Cache struct {
	MemeStocksExpiration time.Duration `env:"CACHE_MEME_STOCKS_EXPIRATION"`
}

type Jobs struct {
	FillMemeCacheInterval time.Duration `env:"FILL_MEME_CACHE_JOB_INTERVAL"`
}

type Order struct {
	Expiry             string        `env:"ORDER_EXPIRY"`
	PollInterval       time.Duration `env:"ORDER_POLL_INTERVAL"`
	QuickTradeDeadline time.Duration `env:"QUICKTRADE_DEADLINE"`
}

func MustLoad() *Config {
	_ = godotenv.Load(".env")

	cfg := &Config{}

	opts := env.Options{RequiredIfNoDef: true}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		log.Fatalf("parse config error: %s", err)
	}

	return cfg
}
