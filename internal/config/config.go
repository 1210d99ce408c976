package config

import (
	"fmt"
	"time"

	"taskboard/internal/utils"

	"github.com/ilyakaznacheev/cleanenv"
)

// durationSeconds parses env as time.Duration: "10s", "5m" or a bare number
// of seconds (e.g. "10" -> 10s).
type durationSeconds time.Duration

func (d *durationSeconds) UnmarshalEnvironment(data string) error {
	v, err := utils.ParseDurationEnv(data)
	if err != nil {
		return err
	}
	*d = durationSeconds(v)
	return nil
}

func (d durationSeconds) Duration() time.Duration { return time.Duration(d) }

type Config struct {
	App   AppConfig
	HTTP  HTTPConfig
	PG    PGConfig
	Redis RedisConfig
}

type AppConfig struct {
	Env     string `env:"APP_ENV" env-default:"dev"`
	Version string `env:"VERSION" env-default:"dev"`
}

type HTTPConfig struct {
	Port string `env:"HTTP_PORT" env-default:"8080"`

	ReadTimeout  durationSeconds `env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout durationSeconds `env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
	IdleTimeout  durationSeconds `env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

type PGConfig struct {
	DSN string `env:"PG_DSN" env-required:"true"`
}

type RedisConfig struct {
	// Addr is "host:port". Optional if URL is set.
	Addr     string `env:"REDIS_ADDR" env-default:""`
	Password string `env:"REDIS_PASSWORD" env-default:""`
	DB       int    `env:"REDIS_DB" env-default:"0"`
	// URL overrides Addr/Password/DB if set, e.g. redis://default:pw@host:6379
	URL string `env:"REDIS_URL" env-default:""`

	// DefaultTTL bounds how long board/category lists stay cached.
	DefaultTTL durationSeconds `env:"REDIS_DEFAULT_TTL" env-default:"60"`
}

func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	if cfg.Redis.URL != "" {
		addr, password, db, err := utils.ParseRedisURL(cfg.Redis.URL)
		if err != nil {
			return Config{}, fmt.Errorf("REDIS_URL: %w", err)
		}
		cfg.Redis.Addr = addr
		cfg.Redis.Password = password
		cfg.Redis.DB = db
	}
	if cfg.Redis.Addr == "" {
		return Config{}, fmt.Errorf("REDIS_ADDR or REDIS_URL is required")
	}
	return cfg, nil
}
