package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" env-default:":8080"`

	// DSN demo：
	// app:apppass@tcp(127.0.0.1:3306)/support_chat?charset=utf8mb4&parseTime=true&loc=Local
	// file:support_chat.db for a local sqlite file
	DBDSN     string `env:"DB_DSN" env-default:"app:apppass@tcp(127.0.0.1:3306)/support_chat?charset=utf8mb4&parseTime=true&loc=Local"`
	JWTSecret string `env:"JWT_SECRET" env-default:"dev-secret-change-me"`

	// redis backs the send rate limiter; empty address disables it
	RedisAddr     string `env:"REDIS_ADDR" env-default:""`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	SendRateLimit  int           `env:"CHAT_SEND_RATE_LIMIT" env-default:"20"`
	SendRateWindow time.Duration `env:"CHAT_SEND_RATE_WINDOW" env-default:"1m"`

	AdminListLimit int `env:"CHAT_ADMIN_LIST_LIMIT" env-default:"100"`

	// YAML keyword catalog for the auto-responder; empty means built-in defaults
	ResponderCatalogFile string `env:"RESPONDER_CATALOG_FILE" env-default:""`

	// rabbitMQ, empty url disables chat event publishing
	RabbitURL         string `env:"RABBIT_URL" env-default:""`
	RabbitQueue       string `env:"RABBIT_QUEUE" env-default:"chat_events"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY" env-default:"2"`
}

// Load reads an optional .env file (already exported variables win) and
// then the process environment.
func Load() Config {
	if envMap, err := godotenv.Read(); err == nil {
		for k, v := range envMap {
			if os.Getenv(k) == "" {
				_ = os.Setenv(k, v)
			}
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		desc, _ := cleanenv.GetDescription(&cfg, nil)
		log.Fatal(fmt.Errorf("%s; %s", err, desc))
	}

	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 2
	}
	if cfg.WorkerConcurrency > 50 {
		cfg.WorkerConcurrency = 50
	}
	if cfg.AdminListLimit <= 0 {
		cfg.AdminListLimit = 100
	}
	return cfg
}
