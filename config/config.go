// Package config loads secmesh configuration from a .env file, the
// environment and an optional YAML file.
//
// Precedence, highest first: bound CLI flags, environment variables (the
// .env file only fills variables that are not already set), the YAML file,
// defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/secmesh/model"
	"github.com/hupe1980/secmesh/tool"
)

// Config is the effective configuration.
type Config struct {
	Neo4j     Neo4jConfig     `mapstructure:"neo4j" yaml:"neo4j"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Tool      ToolConfig      `mapstructure:"tool" yaml:"tool"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Enrich    EnrichConfig    `mapstructure:"enrich" yaml:"enrich"`
}

// Neo4jConfig locates the graph store. An empty URI runs without a store.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri" yaml:"uri"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
}

// LLMConfig selects and configures the completion service.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Model       string        `mapstructure:"model" yaml:"model"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	Breaker     BreakerConfig `mapstructure:"breaker" yaml:"breaker"`
}

// BreakerConfig toggles and tunes the circuit breaker around the model.
type BreakerConfig struct {
	Enabled             bool `mapstructure:"enabled" yaml:"enabled"`
	model.BreakerConfig `mapstructure:",squash" yaml:",inline"`
}

// AgentConfig holds run limits.
type AgentConfig struct {
	MaxSteps         int    `mapstructure:"max_steps" yaml:"max_steps"`
	PipelineMaxSteps int    `mapstructure:"pipeline_max_steps" yaml:"pipeline_max_steps"`
	UserID           string `mapstructure:"user_id" yaml:"user_id"`
	MaxConcurrent    int    `mapstructure:"max_concurrent" yaml:"max_concurrent"`
}

// ToolConfig holds the tool call policy.
type ToolConfig struct {
	Policy string `mapstructure:"policy" yaml:"policy"`
}

// CacheConfig enables the Redis query cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr        string   `mapstructure:"addr" yaml:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
	// RateLimit is the per-client request rate per second; zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// TelemetryConfig selects the span exporter.
type TelemetryConfig struct {
	Exporter string `mapstructure:"exporter" yaml:"exporter"`
}

// EnrichConfig configures graph enrichment.
type EnrichConfig struct {
	Limit int `mapstructure:"limit" yaml:"limit"`
}

var defaults = map[string]any{
	"neo4j.uri":                "",
	"neo4j.user":               "neo4j",
	"neo4j.password":           "",
	"neo4j.database":           "",
	"llm.provider":             "openai",
	"llm.base_url":             "",
	"llm.api_key":              "",
	"llm.model":                "gpt-4o",
	"llm.temperature":          0.0,
	"llm.breaker.enabled":      true,
	"llm.breaker.max_failures": 5,
	"llm.breaker.timeout":      30 * time.Second,
	"llm.breaker.interval":     60 * time.Second,
	"agent.max_steps":          50,
	"agent.pipeline_max_steps": 100,
	"agent.user_id":            "anonymous",
	"agent.max_concurrent":     0,
	"tool.policy":              tool.DefaultPolicy,
	"cache.redis_addr":         "",
	"cache.ttl":                5 * time.Minute,
	"server.addr":              ":5000",
	"server.cors_origins":      []string{"http://localhost:3000"},
	"server.rate_limit":        5.0,
	"server.rate_burst":        10,
	"log.level":                "info",
	"log.format":               "json",
	"telemetry.exporter":       "none",
	"enrich.limit":             5,
}

// envNames lists variables whose names do not follow the key mapping
// (dots replaced by underscores, upper-cased, SECMESH_ prefix).
var envNames = map[string][]string{
	"neo4j.uri":        {"NEO4J_URI"},
	"neo4j.user":       {"NEO4J_USER"},
	"neo4j.password":   {"NEO4J_PASSWORD"},
	"neo4j.database":   {"NEO4J_DATABASE"},
	"llm.provider":     {"LLM_PROVIDER"},
	"llm.base_url":     {"LITELLM_BASE_URL"},
	"llm.api_key":      {"LITELLM_API_KEY", "OPENAI_API_KEY"},
	"llm.model":        {"LLM_MODEL"},
	"cache.redis_addr": {"REDIS_ADDR"},
	"log.level":        {"LOG_LEVEL"},
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix("SECMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range envNames {
		_ = v.BindEnv(append([]string{key, "SECMESH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)...)
	}

	return v
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored; existing variables are not overridden.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}

	return nil
}

// Load reads the optional YAML file at path into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// origins may arrive comma separated from the environment
	var origins []string
	for _, o := range cfg.Server.CORSOrigins {
		origins = append(origins, splitList(o)...)
	}
	cfg.Server.CORSOrigins = origins

	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var (
	providers = []string{"openai", "anthropic", "mock"}
	exporters = []string{"", "none", "stdout"}
	levels    = []string{"debug", "info", "warn", "warning", "error"}
)

// Validate rejects unusable configurations. All problems are reported at once.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(providers, c.LLM.Provider) {
		errs = append(errs, fmt.Errorf("llm.provider: unknown provider %q (want one of %s)", c.LLM.Provider, strings.Join(providers, ", ")))
	}
	if c.Agent.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("agent.max_steps: must be positive, got %d", c.Agent.MaxSteps))
	}
	if c.Agent.PipelineMaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("agent.pipeline_max_steps: must be positive, got %d", c.Agent.PipelineMaxSteps))
	}
	if c.Agent.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("agent.max_concurrent: must not be negative"))
	}
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		errs = append(errs, fmt.Errorf("server.addr: %w", err))
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		errs = append(errs, errors.New("server.rate_limit and server.rate_burst must not be negative"))
	}
	if c.Cache.RedisAddr != "" && c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl: must be positive when the cache is enabled"))
	}
	if !slices.Contains(exporters, c.Telemetry.Exporter) {
		errs = append(errs, fmt.Errorf("telemetry.exporter: unknown exporter %q", c.Telemetry.Exporter))
	}
	if !slices.Contains(levels, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format: want json or text, got %q", c.Log.Format))
	}
	if c.Tool.Policy != "" {
		if _, err := tool.NewPolicy(c.Tool.Policy); err != nil {
			errs = append(errs, fmt.Errorf("tool.policy: %w", err))
		}
	}
	if c.Enrich.Limit <= 0 {
		errs = append(errs, fmt.Errorf("enrich.limit: must be positive, got %d", c.Enrich.Limit))
	}

	return errors.Join(errs...)
}

const redacted = "********"

// Redacted returns a copy with secrets masked.
func (c Config) Redacted() Config {
	if c.Neo4j.Password != "" {
		c.Neo4j.Password = redacted
	}
	if c.LLM.APIKey != "" {
		c.LLM.APIKey = redacted
	}
	c.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	return c
}

// YAML renders the redacted configuration.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}
