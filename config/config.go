package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix: переменные окружения вида CHAT_HTTP_ADDR перекрывают YAML.
const EnvPrefix = "CHAT"

const defaultPath = "./config/config.yaml"

type HTTP struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"readTimeout" split_words:"true"`
	WriteTimeout   time.Duration `yaml:"writeTimeout" split_words:"true"`
	IdleTimeout    time.Duration `yaml:"idleTimeout" split_words:"true"`
	RequestTimeout time.Duration `yaml:"requestTimeout" split_words:"true"`
}

// GRPC: пустой addr выключает gRPC-сервер.
type GRPC struct {
	Addr string `yaml:"addr"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // chat-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	Level     string `yaml:"level"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource" split_words:"true"`
	Debug     bool   `yaml:"debug"`
}

type Storage struct {
	Driver string `yaml:"driver"` // postgres|badger
}

type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"maxConns" split_words:"true"`
	MinConns        int32         `yaml:"minConns" split_words:"true"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime" split_words:"true"`
	MaxConnIdleTime time.Duration `yaml:"maxConnIdleTime" split_words:"true"`
	Migrate         bool          `yaml:"migrate"`
}

type Badger struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"inMemory" split_words:"true"`
}

type Directory struct {
	SeedFile  string        `yaml:"seedFile" split_words:"true"`
	CacheTTL  time.Duration `yaml:"cacheTTL" envconfig:"CACHE_TTL"`
	CacheSize int64         `yaml:"cacheSize" split_words:"true"`
}

type Auth struct {
	Mode      string        `yaml:"mode"` // trusted|jwt
	JWTSecret string        `yaml:"jwtSecret" envconfig:"JWT_SECRET"`
	Issuer    string        `yaml:"issuer"`
	Audience  string        `yaml:"audience"`
	ClockSkew time.Duration `yaml:"clockSkew" split_words:"true"`
}

type WS struct {
	PingInterval   time.Duration `yaml:"pingInterval" split_words:"true"`
	WriteTimeout   time.Duration `yaml:"writeTimeout" split_words:"true"`
	SendBuffer     int           `yaml:"sendBuffer" split_words:"true"`
	InboxBuffer    int           `yaml:"inboxBuffer" split_words:"true"`
	ReadLimit      int64         `yaml:"readLimit" split_words:"true"`
	AllowedOrigins []string      `yaml:"allowedOrigins" split_words:"true"`
}

type Chat struct {
	MaxContentLength int `yaml:"maxContentLength" split_words:"true"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins" split_words:"true"`
}

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	GRPC      GRPC      `yaml:"grpc"`
	Logging   Logging   `yaml:"logging"`
	Storage   Storage   `yaml:"storage"`
	Postgres  Postgres  `yaml:"postgres"`
	Badger    Badger    `yaml:"badger"`
	Directory Directory `yaml:"directory"`
	Auth      Auth      `yaml:"auth"`
	WS        WS        `yaml:"ws"`
	Chat      Chat      `yaml:"chat"`
	CORS      CORS      `yaml:"cors"`
}

// LoadConfig: .env → YAML из CONFIG_PATH → CHAT_* из окружения → дефолты → Validate.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	explicit := path != ""
	if !explicit {
		path = defaultPath
	}
	return Load(path, !explicit)
}

// Load читает конкретный файл. optional разрешает его отсутствие.
func Load(path string, optional bool) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	c.HTTP.ReadTimeout = durationOr(c.HTTP.ReadTimeout, 15*time.Second)
	c.HTTP.WriteTimeout = durationOr(c.HTTP.WriteTimeout, 30*time.Second)
	c.HTTP.IdleTimeout = durationOr(c.HTTP.IdleTimeout, 60*time.Second)
	c.HTTP.RequestTimeout = durationOr(c.HTTP.RequestTimeout, 60*time.Second)

	if c.Logging.Service == "" {
		c.Logging.Service = "chat-service"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "badger"
	}
	if c.Badger.Path == "" {
		c.Badger.Path = "./data/chat"
	}

	c.Directory.CacheTTL = durationOr(c.Directory.CacheTTL, 5*time.Minute)
	if c.Directory.CacheSize <= 0 {
		c.Directory.CacheSize = 10_000
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "trusted"
	}
	c.Auth.ClockSkew = durationOr(c.Auth.ClockSkew, 30*time.Second)

	c.WS.PingInterval = durationOr(c.WS.PingInterval, 15*time.Second)
	c.WS.WriteTimeout = durationOr(c.WS.WriteTimeout, 5*time.Second)
	if c.WS.SendBuffer <= 0 {
		c.WS.SendBuffer = 64
	}
	if c.WS.InboxBuffer <= 0 {
		c.WS.InboxBuffer = 16
	}
	if c.WS.ReadLimit <= 0 {
		c.WS.ReadLimit = 1 << 20
	}

	if c.Chat.MaxContentLength <= 0 {
		c.Chat.MaxContentLength = 4000
	}
}

func (c *Config) Validate() error {
	return errors.Join(
		c.Logging.Validate(),
		c.Storage.Validate(),
		c.Postgres.Validate(c.Storage.Driver),
		c.Badger.Validate(c.Storage.Driver),
		c.Auth.Validate(),
	)
}

func (l Logging) Validate() error {
	switch l.Backend {
	case "std", "zap":
	default:
		return fmt.Errorf("logging.backend: unknown %q", l.Backend)
	}
	switch l.Env {
	case "", "dev", "stage", "prod":
		return nil
	default:
		return fmt.Errorf("logging.env: unknown %q", l.Env)
	}
}

func (s Storage) Validate() error {
	switch s.Driver {
	case "postgres", "badger":
		return nil
	default:
		return fmt.Errorf("storage.driver: expected postgres or badger, got %q", s.Driver)
	}
}

func (p Postgres) Validate(driver string) error {
	if driver != "postgres" {
		return nil
	}
	if p.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if p.MinConns > 0 && p.MaxConns > 0 && p.MinConns > p.MaxConns {
		return errors.New("postgres.minConns must not exceed maxConns")
	}
	return nil
}

func (b Badger) Validate(driver string) error {
	if driver == "badger" && !b.InMemory && b.Path == "" {
		return errors.New("badger.path is required unless inMemory")
	}
	return nil
}

func (a Auth) Validate() error {
	switch a.Mode {
	case "trusted":
		return nil
	case "jwt":
		if a.JWTSecret == "" {
			return errors.New("auth.jwtSecret is required in jwt mode")
		}
		return nil
	default:
		return fmt.Errorf("auth.mode: expected trusted or jwt, got %q", a.Mode)
	}
}

// helper для timeout-ов
func durationOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
