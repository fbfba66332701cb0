package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Chatwoot  ChatwootConfig  `mapstructure:"chatwoot"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Documents DocumentsConfig `mapstructure:"documents"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug bool `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	PublicURL       string        `mapstructure:"public_url"` // how clients reach this server
	BodyLimit       string        `mapstructure:"body_limit"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the host:port the server binds to.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s ServerConfig) Normalize() ServerConfig {
	s.Host = strings.TrimSpace(s.Host)
	s.PublicURL = strings.TrimRight(strings.TrimSpace(s.PublicURL), "/")
	if s.PublicURL == "" && s.Port > 0 {
		s.PublicURL = fmt.Sprintf("http://localhost:%d", s.Port)
	}
	if s.ShutdownTimeout <= 0 {
		s.ShutdownTimeout = 5 * time.Second
	}
	return s
}

func (s ServerConfig) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", s.Port)
	}
	return nil
}

// LLMConfig contains the language model provider configuration
type LLMConfig struct {
	Type         string        `mapstructure:"type"` // openai or gemini
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	Temperature  float64       `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

const geminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

// Normalize applies provider defaults. At most one retry is ever allowed.
func (c LLMConfig) Normalize() LLMConfig {
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	if c.Type == "" {
		c.Type = "gemini"
	}
	if strings.TrimSpace(c.BaseURL) == "" && c.Type == "gemini" {
		c.BaseURL = geminiOpenAIBaseURL
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxRetries > 1 {
		c.MaxRetries = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	return c
}

func (c LLMConfig) Validate() error {
	switch c.Type {
	case "openai", "gemini":
	default:
		return fmt.Errorf("llm.type %q is not supported (openai, gemini)", c.Type)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("llm.model required")
	}
	return nil
}

// RetrievalConfig controls chunking and how much context reaches the model
type RetrievalConfig struct {
	ChunkSize          int    `mapstructure:"chunk_size"`
	ChunkOverlap       int    `mapstructure:"chunk_overlap"`
	TopK               int    `mapstructure:"top_k"`
	NoKnowledgeMessage string `mapstructure:"no_knowledge_message"`
	HistoryTurns       int    `mapstructure:"history_turns"` // earlier turns replayed per conversation
}

func (c RetrievalConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("retrieval.chunk_size must be > 0")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap must be >= 0 and smaller than chunk_size")
	}
	if c.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be > 0")
	}
	if c.HistoryTurns < 0 {
		return fmt.Errorf("retrieval.history_turns must be >= 0")
	}
	if strings.TrimSpace(c.NoKnowledgeMessage) == "" {
		return fmt.Errorf("retrieval.no_knowledge_message required")
	}
	return nil
}

// ChatwootConfig contains credentials for outbound Chatwoot REST calls
type ChatwootConfig struct {
	URL           string        `mapstructure:"url"`
	APIToken      string        `mapstructure:"api_token"`
	BotToken      string        `mapstructure:"bot_token"`
	AccountID     string        `mapstructure:"account_id"`
	WebhookURL    string        `mapstructure:"webhook_url"` // informational only
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

// Enabled reports whether replies can be posted back to Chatwoot.
func (c ChatwootConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != "" && (c.APIToken != "" || c.BotToken != "")
}

func (c ChatwootConfig) Normalize() ChatwootConfig {
	c.URL = strings.TrimRight(strings.TrimSpace(c.URL), "/")
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 5
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

// DedupConfig controls webhook message de-duplication
type DedupConfig struct {
	Backend string        `mapstructure:"backend"` // memory or redis
	TTL     time.Duration `mapstructure:"ttl"`
}

const (
	DedupMemory = "memory"
	DedupRedis  = "redis"
)

func (c DedupConfig) Validate() error {
	switch c.Backend {
	case DedupMemory, DedupRedis:
	default:
		return fmt.Errorf("dedup.backend %q is not supported (memory, redis)", c.Backend)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("dedup.ttl must be > 0")
	}
	return nil
}

// StorageConfig contains connection settings for optional backing services
type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, r.Port)
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// DocumentsConfig configures the optional watched documents directory
type DocumentsConfig struct {
	WatchDir string        `mapstructure:"watch_dir"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// Validate runs every section validator.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Retrieval.Validate(); err != nil {
		return err
	}
	if err := c.Dedup.Validate(); err != nil {
		return err
	}
	if c.Dedup.Backend == DedupRedis {
		if err := c.Storage.Redis.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// legacyEnv maps config keys to the environment variable names operators
// already use for this deployment. The PDFBOT_ prefixed form works too.
var legacyEnv = map[string]string{
	"chatwoot.url":         "CHATWOOT_URL",
	"chatwoot.api_token":   "CHATWOOT_API_TOKEN",
	"chatwoot.bot_token":   "CHATWOOT_BOT_TOKEN",
	"chatwoot.account_id":  "CHATWOOT_ACCOUNT_ID",
	"chatwoot.webhook_url": "WEBHOOK_URL",
	"server.host":          "FASTAPI_HOST",
	"server.port":          "FASTAPI_PORT",
	"server.public_url":    "FASTAPI_SERVER_URL",
	"llm.api_key":          "YOUR_API_KEY",
}

const envPrefix = "PDFBOT"

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.body_limit", "32M")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("llm.type", "gemini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "gemini-1.5-flash")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.max_retries", 1)
	v.SetDefault("llm.retry_backoff", 500*time.Millisecond)

	v.SetDefault("retrieval.chunk_size", 1000)
	v.SetDefault("retrieval.chunk_overlap", 200)
	v.SetDefault("retrieval.top_k", 4)
	v.SetDefault("retrieval.history_turns", 3)
	v.SetDefault("retrieval.no_knowledge_message", "No documents have been uploaded yet. Please upload a PDF and ask again.")

	v.SetDefault("chatwoot.url", "https://app.chatwoot.com")
	v.SetDefault("chatwoot.api_token", "")
	v.SetDefault("chatwoot.bot_token", "")
	v.SetDefault("chatwoot.account_id", "")
	v.SetDefault("chatwoot.webhook_url", "")
	v.SetDefault("chatwoot.timeout", 15*time.Second)
	v.SetDefault("chatwoot.rate_per_second", 5.0)
	v.SetDefault("chatwoot.burst", 1)

	v.SetDefault("dedup.backend", DedupMemory)
	v.SetDefault("dedup.ttl", 10*time.Minute)

	v.SetDefault("storage.redis.host", "")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.timeout", 3*time.Second)

	v.SetDefault("documents.watch_dir", "")
	v.SetDefault("documents.debounce", 750*time.Millisecond)
}

// LoadDotEnv reads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// Load reads configuration from an optional JSON file and the environment.
// An empty path searches ./config and the working directory for config.json;
// not finding one there is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Dir(exe))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, env, prefixed); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Server = cfg.Server.Normalize()
	cfg.LLM = cfg.LLM.Normalize()
	cfg.Chatwoot = cfg.Chatwoot.Normalize()
	cfg.Dedup.Backend = strings.ToLower(strings.TrimSpace(cfg.Dedup.Backend))
	if cfg.Documents.Debounce <= 0 {
		cfg.Documents.Debounce = 750 * time.Millisecond
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig loads config and panics on failure; intended for main.
func LoadConfig(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	return cfg
}
