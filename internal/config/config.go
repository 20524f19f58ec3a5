package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Addr        string `yaml:"addr" env:"API_ADDR" env-default:":8080" validate:"required"`
	Env         string `yaml:"env" env:"APP_ENV" env-default:"dev" validate:"oneof=dev test prod"`
	StoreDriver string `yaml:"store_driver" env:"STORE_DRIVER" env-default:"postgres" validate:"oneof=postgres sqlite"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL" validate:"required_if=StoreDriver postgres"`
	SQLitePath  string `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"data/fieldops.db" validate:"required_if=StoreDriver sqlite"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"http://localhost:3000,http://127.0.0.1:3000"`
	RegionVisibility   []string `yaml:"region_visibility" env:"REGION_VISIBILITY"`

	APIMaxBodyMB          int `yaml:"api_max_body_mb" env:"API_MAX_BODY_MB" env-default:"2" validate:"min=1"`
	ImportMaxFileMB       int `yaml:"import_max_file_mb" env:"IMPORT_MAX_FILE_MB" env-default:"25" validate:"min=1"`
	ImportMaxRows         int `yaml:"import_max_rows" env:"IMPORT_MAX_ROWS" env-default:"50000" validate:"min=1"`
	RateLimitMaxIPs       int `yaml:"rate_limit_max_ips" env:"RATE_LIMIT_MAX_IPS" env-default:"10000" validate:"min=1"`
	ImportRateLimitPerMin int `yaml:"import_rate_limit_per_min" env:"IMPORT_RATE_LIMIT_PER_MIN" env-default:"30" validate:"min=1"`

	InboxDir      string `yaml:"inbox_dir" env:"INBOX_DIR"`
	InboxSchedule string `yaml:"inbox_schedule" env:"INBOX_SCHEDULE" env-default:"@every 5m"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"API_READ_HEADER_TIMEOUT" env-default:"5s"`
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"API_READ_TIMEOUT" env-default:"30s"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"API_WRITE_TIMEOUT" env-default:"60s"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env:"API_IDLE_TIMEOUT" env-default:"60s"`
}

// Load reads .env, then an optional YAML file named by CONFIG_FILE, then the
// environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	var err error
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg.CORSAllowedOrigins = compact(cfg.CORSAllowedOrigins)
	cfg.RegionVisibility = compact(cfg.RegionVisibility)

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) APIMaxBodyBytes() int64 {
	return int64(c.APIMaxBodyMB) * 1024 * 1024
}

func (c Config) ImportMaxFileBytes() int64 {
	return int64(c.ImportMaxFileMB) * 1024 * 1024
}

func (c Config) IsProd() bool {
	return c.Env == "prod"
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
