package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/coupon"
)

type Config struct {
	App      AppConfig      `envconfig:"APP"`
	Log      LogConfig      `envconfig:"LOG"`
	Postgres PostgresConfig `envconfig:"DB"`
	Storage  StorageConfig  `envconfig:"STORAGE"`
	Ordering OrderingConfig `envconfig:"ORDERING"`
}

type AppConfig struct {
	Port            string        `split_words:"true" default:"8080"`
	ShutdownTimeout time.Duration `split_words:"true" default:"5s"`
}

type LogConfig struct {
	Level  string `split_words:"true" default:"info"`
	Format string `split_words:"true" default:"json"`
}

// PostgresConfig is optional. Without DB_HOST the service runs without a
// remote order store.
type PostgresConfig struct {
	Host            string        `split_words:"true"`
	Port            int           `split_words:"true" default:"5432"`
	User            string        `split_words:"true" default:"postgres"`
	Password        string        `split_words:"true"`
	Name            string        `split_words:"true" default:"qrmenu"`
	SSLMode         string        `split_words:"true" default:"disable"`
	MaxConns        int32         `split_words:"true" default:"10"`
	MinConns        int32         `split_words:"true" default:"1"`
	MaxConnLifetime time.Duration `split_words:"true" default:"30m"`
}

func (c PostgresConfig) Enabled() bool {
	return c.Host != ""
}

// URL renders the connection as a postgres:// URL.
func (c PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

type StorageConfig struct {
	Path string `split_words:"true" default:"qrmenu.db"`
}

type OrderingConfig struct {
	ForceRealMode      bool          `split_words:"true" default:"false"`
	CatalogPath        string        `split_words:"true"`
	PreflightTimeout   time.Duration `split_words:"true" default:"2500ms"`
	WriteTimeout       time.Duration `split_words:"true" default:"15s"`
	LeadTime           time.Duration `split_words:"true" default:"20m"`
	PollInterval       time.Duration `split_words:"true" default:"1500ms"`
	DismissDelay       time.Duration `split_words:"true" default:"5s"`
	HistoryLimit       int           `split_words:"true" default:"50"`
	HistoryCookieTTL   time.Duration `split_words:"true" default:"720h"`
	HistoryCacheTTL    time.Duration `split_words:"true" default:"24h"`
	HistoryCacheSize   int           `split_words:"true" default:"256"`
	NotificationBuffer int           `split_words:"true" default:"20"`
	SessionCacheSize   int           `split_words:"true" default:"1024"`
	SessionTTL         time.Duration `split_words:"true" default:"30m"`
}

// Catalog loads the configured coupon catalog, or the built-in one.
func (c OrderingConfig) Catalog() (*coupon.Catalog, error) {
	if c.CatalogPath == "" {
		return coupon.DefaultCatalog(), nil
	}
	return coupon.LoadCatalog(c.CatalogPath)
}

// Load reads an optional .env file, then the environment.
func Load(envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: failed to load %s: %w", envPath, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to process env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.App.Port == "" {
		return errors.New("config: APP_PORT must not be empty")
	}
	if c.Ordering.HistoryLimit < 1 {
		return fmt.Errorf("config: ORDERING_HISTORY_LIMIT must be positive, got %d", c.Ordering.HistoryLimit)
	}
	if c.Ordering.PollInterval <= 0 || c.Ordering.DismissDelay <= 0 {
		return errors.New("config: ORDERING_POLL_INTERVAL and ORDERING_DISMISS_DELAY must be positive")
	}
	if c.Ordering.NotificationBuffer < 1 {
		return fmt.Errorf("config: ORDERING_NOTIFICATION_BUFFER must be positive, got %d", c.Ordering.NotificationBuffer)
	}
	if c.Ordering.SessionCacheSize < 1 || c.Ordering.SessionTTL <= 0 {
		return errors.New("config: ORDERING_SESSION_CACHE_SIZE and ORDERING_SESSION_TTL must be positive")
	}
	return nil
}
