package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/analysis/tokens"
)

// Config aggregates every configuration section of the service.
type Config struct {
	Server ServerConfig
	Tutor  TutorConfig
	AI     AIConfig
	Store  StoreConfig
	Auth   AuthConfig
	Log    LogConfig
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	tutor, err := loadTutorConfig(ai)
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		Tutor:  tutor,
		AI:     ai,
		Store:  store,
		Auth:   auth,
		Log:    LogConfig{Level: strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info"))},
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// ":8080" and "127.0.0.1:8080" are used verbatim.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// Tutor backends.
const (
	TutorBackendHTTP = "http"
	TutorBackendArk  = "ark"
)

// TutorConfig selects and configures the tutor client.
type TutorConfig struct {
	Backend   string
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	MaxTokens int
}

func loadTutorConfig(ai AIConfig) (TutorConfig, error) {
	timeout, err := parseDurationEnv("TUTOR_TIMEOUT", 60*time.Second)
	if err != nil {
		return TutorConfig{}, err
	}

	maxTokens := tokens.DefaultMaxTokens
	if override, err := parseOptionalIntEnv("CONTEXT_MAX_TOKENS"); err != nil {
		return TutorConfig{}, err
	} else if override != nil {
		maxTokens = *override
	}

	baseURL := strings.TrimSpace(os.Getenv("TUTOR_API_URL"))

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("TUTOR_BACKEND")))
	if backend == "" {
		// Prefer the remote tutor API when one is configured.
		if baseURL == "" && ai.Enabled() {
			backend = TutorBackendArk
		} else {
			backend = TutorBackendHTTP
		}
	}

	switch backend {
	case TutorBackendHTTP:
		if baseURL == "" {
			return TutorConfig{}, fmt.Errorf("TUTOR_API_URL is required for the %s tutor backend", backend)
		}
	case TutorBackendArk:
		if !ai.Enabled() {
			return TutorConfig{}, fmt.Errorf("Ark credentials or model missing: provide ARK_API_KEY + Model or an AK/SK pair")
		}
	default:
		return TutorConfig{}, fmt.Errorf("invalid TUTOR_BACKEND value: %q", backend)
	}

	return TutorConfig{
		Backend:   backend,
		BaseURL:   baseURL,
		APIKey:    strings.TrimSpace(os.Getenv("TUTOR_API_KEY")),
		Timeout:   timeout,
		MaxTokens: maxTokens,
	}, nil
}

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// StoreConfig selects the row store holding chats and profiles.
type StoreConfig struct {
	Driver      string
	DSN         string
	SQLitePath  string
	AutoMigrate bool
}

func loadStoreConfig() (StoreConfig, error) {
	autoMigrate, err := parseBoolEnv("STORE_AUTO_MIGRATE", true)
	if err != nil {
		return StoreConfig{}, err
	}

	cfg := StoreConfig{
		Driver:      strings.ToLower(getEnvOrDefault("STORE_DRIVER", StoreMemory)),
		DSN:         strings.TrimSpace(os.Getenv("DB_URL")),
		SQLitePath:  getEnvOrDefault("SQLITE_PATH", "dhyan.db"),
		AutoMigrate: autoMigrate,
	}

	switch cfg.Driver {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if cfg.DSN == "" {
			return StoreConfig{}, fmt.Errorf("DB_URL is required for the postgres store")
		}
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value: %q", cfg.Driver)
	}
	return cfg, nil
}

// Auth drivers.
const (
	AuthMemory = "memory"
	AuthRedis  = "redis"
)

// AuthConfig selects the session provider.
type AuthConfig struct {
	Driver     string
	RedisURL   string
	SessionTTL time.Duration
}

func loadAuthConfig() (AuthConfig, error) {
	ttl, err := parseDurationEnv("SESSION_TTL", 7*24*time.Hour)
	if err != nil {
		return AuthConfig{}, err
	}

	cfg := AuthConfig{
		Driver:     strings.ToLower(getEnvOrDefault("AUTH_DRIVER", AuthMemory)),
		RedisURL:   strings.TrimSpace(os.Getenv("REDIS_URL")),
		SessionTTL: ttl,
	}

	switch cfg.Driver {
	case AuthMemory:
	case AuthRedis:
		if cfg.RedisURL == "" {
			return AuthConfig{}, fmt.Errorf("REDIS_URL is required for the redis auth driver")
		}
	default:
		return AuthConfig{}, fmt.Errorf("invalid AUTH_DRIVER value: %q", cfg.Driver)
	}
	return cfg, nil
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string
}

// AIConfig describes the Ark chat model used by the ark tutor backend.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled reports whether a model and credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates a chat model instance from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark credentials or model missing: provide ARK_API_KEY + Model or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}
