package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ttnews/ttclient/internal/apiclient"
	"github.com/ttnews/ttclient/internal/session"
)

// EnvPrefix prefixes every environment variable read into the config.
// A double underscore separates nested keys: TTCLIENT_AUTH__STORAGE sets auth.storage.
const EnvPrefix = "TTCLIENT_"

// DefaultBaseURL is the headline-news API origin.
const DefaultBaseURL = "http://ttapi.research.itcast.cn/"

// TokenStorageType selects where the session credential is persisted.
type TokenStorageType string

const (
	TokenStorageTypeKeyring TokenStorageType = "keyring"
	TokenStorageTypeFile    TokenStorageType = "file"
	// TokenStorageTypeEnv reads the credential from auth.token/auth.refresh_token. Read-only.
	TokenStorageTypeEnv    TokenStorageType = "env"
	TokenStorageTypeMemory TokenStorageType = "memory"
)

// Config is the complete ttclient configuration.
type Config struct {
	BaseURL  string             `koanf:"base_url" validate:"required,url"`
	Timeout  time.Duration      `koanf:"timeout" validate:"gt=0"`
	Locale   string             `koanf:"locale" validate:"oneof=en zh"`
	Auth     AuthConfig         `koanf:"auth"`
	Messages apiclient.Messages `koanf:"messages"`
	Log      LogConfig          `koanf:"log"`
}

// AuthConfig configures credential storage.
type AuthConfig struct {
	Storage      TokenStorageType `koanf:"storage" validate:"oneof=keyring file env memory"`
	File         string           `koanf:"file" validate:"required_if=Storage file"`
	Token        string           `koanf:"token"`
	RefreshToken string           `koanf:"refresh_token"`
}

// LogConfig configures the logging pipeline.
type LogConfig struct {
	Level    string `koanf:"level" validate:"oneof=debug info warn error"`
	Format   string `koanf:"format" validate:"oneof=text json"`
	Exporter string `koanf:"exporter" validate:"oneof=none stdout otlp-grpc otlp-http"`
}

// SlogLevel parses the configured level.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	return level, nil
}

// NotificationMessages returns the locale defaults with configured overrides applied.
func (c *Config) NotificationMessages() apiclient.Messages {
	m := apiclient.DefaultMessages(c.Locale)
	if c.Messages.BadRequest != "" {
		m.BadRequest = c.Messages.BadRequest
	}
	if c.Messages.Unauthorized != "" {
		m.Unauthorized = c.Messages.Unauthorized
	}
	if c.Messages.Forbidden != "" {
		m.Forbidden = c.Messages.Forbidden
	}
	if c.Messages.ServerError != "" {
		m.ServerError = c.Messages.ServerError
	}
	return m
}

// NewTokenStore creates the credential store selected by Storage.
// The keyring entry is keyed by baseURL so several backends can be used side by side.
func (a AuthConfig) NewTokenStore(baseURL string) (session.Store, error) {
	switch a.Storage {
	case TokenStorageTypeKeyring:
		return session.NewKeyringStore(baseURL), nil
	case TokenStorageTypeFile:
		return session.NewFileStore(expandHome(a.File)), nil
	case TokenStorageTypeEnv:
		return session.NewStaticStore(a.Token, a.RefreshToken), nil
	case TokenStorageTypeMemory:
		return session.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported token storage %q", a.Storage)
	}
}

// defaults returns the built-in configuration values.
func defaults() map[string]any {
	credentials := "credentials.json"
	if dir, err := os.UserConfigDir(); err == nil {
		credentials = filepath.Join(dir, "ttclient", "credentials.json")
	}
	return map[string]any{
		"base_url":     DefaultBaseURL,
		"timeout":      "30s",
		"locale":       "en",
		"auth.storage": string(TokenStorageTypeKeyring),
		"auth.file":    credentials,
		"log.level":    "info",
		"log.format":   "text",
		"log.exporter": "none",
	}
}

// LoadConfig merges, in increasing precedence: defaults, the TOML file at path
// (skipped when path is empty), environment variables from environ, and overrides
// (typically CLI flags, keyed like "log.level"). The result is validated.
func LoadConfig(path string, overrides map[string]any, environ func() []string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(expandHome(path)), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
			return strings.ReplaceAll(key, "__", "."), value
		},
		EnvironFunc: environ,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("loading overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for missing or invalid values.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
