package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env         string `yaml:"env" env:"ENV" env-default:"local"`
	StoragePath string `yaml:"storage_path" env:"STORAGE_PATH" env-required:"true"`
	RedisAddr   string `yaml:"redis_addr" env:"REDIS_ADDR" env-default:"localhost:6379"`

	// AutoInitSchema creates the tables on start. MVP convenience,
	// keep off once migrations are managed externally.
	AutoInitSchema bool `yaml:"auto_init_schema" env:"AUTO_INIT_SCHEMA" env-default:"false"`

	Telegram   `yaml:"telegram"`
	Jobs       `yaml:"jobs"`
	HTTPServer `yaml:"http_server"`
}

type Telegram struct {
	Token   string        `yaml:"token" env:"TELEGRAM_TOKEN" env-required:"true"`
	APIBase string        `yaml:"api_base" env:"TELEGRAM_API_BASE" env-default:"https://api.telegram.org"`
	Timeout time.Duration `yaml:"timeout" env-default:"10s"`
}

type Jobs struct {
	GenerateEvery time.Duration `yaml:"generate_every" env-default:"24h"`
	PlanEvery     time.Duration `yaml:"plan_every" env-default:"30m"`
	DispatchSpec  string        `yaml:"dispatch_spec" env-default:"* * * * *"`

	HorizonDays   int           `yaml:"horizon_days" env-default:"60"`
	PlanAheadDays int           `yaml:"plan_ahead_days" env-default:"7"`
	DispatchBatch int           `yaml:"dispatch_batch" env-default:"50"`
	LockTTL       time.Duration `yaml:"lock_ttl" env-default:"5m"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" env-default:"localhost:8080"`
	Timeout         time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"15s"`
}

func MustLoad() *Config {
	var cfg Config

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("Config file does not exist: %s", configPath)
	}

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("Failed to read config file: %v", err)
	}

	return &cfg
}
