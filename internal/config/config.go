package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

type Config struct {
	Port          string `envconfig:"APP_PORT" default:"8080"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	SessionSecret string `envconfig:"SESSION_SECRET" default:"dev_fallback_secret"`
	Database
	Upload
}

type Database struct {
	Driver string `envconfig:"DB_DRIVER" default:"postgres"`
	DSN    string `envconfig:"DB_DSN"`
}

type Upload struct {
	Dir     string `envconfig:"UPLOAD_DIR" default:"./uploads"`
	MaxSize int64  `envconfig:"MAX_UPLOAD_SIZE" default:"5242880"`
}

// Load reads the given .env files and then the environment. Variables that are
// already set are never overwritten by a .env file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		// грузим .env из нескольких мест: текущая папка, родительская, корень репо
		envFiles = []string{".env", "../.env", "../../.env"}
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}
	if cfg.Database.DSN == "" {
		return nil, errors.New("DB_DSN is empty (check your .env)")
	}
	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return nil, errors.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}
	return &cfg, nil
}
