package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Provider names accepted by AI_PROVIDER.
const (
	ProviderAuto     = "auto"
	ProviderArk      = "ark"
	ProviderGemini   = "gemini"
	ProviderOpenAI   = "openai"
	ProviderScripted = "scripted"
)

// Config aggregates every service setting.
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Log    LogConfig
	Turn   TurnConfig
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Addr string
}

// LogConfig controls the root zerolog logger.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

// TurnConfig tunes the turn controller.
type TurnConfig struct {
	Apology string `env:"TURN_APOLOGY"`
}

// AIConfig describes the generation providers.
type AIConfig struct {
	Provider string `env:"AI_PROVIDER" envDefault:"auto"`

	Temperature  float64 `env:"AI_TEMPERATURE" envDefault:"0.7"`
	TopK         int     `env:"AI_TOP_K" envDefault:"40"`
	TopP         float64 `env:"AI_TOP_P"`
	MaxTokens    int     `env:"AI_MAX_TOKENS"`
	HistoryLimit int     `env:"AI_HISTORY_LIMIT" envDefault:"20"`

	Ark      ArkConfig
	Gemini   GeminiConfig
	OpenAI   OpenAIConfig
	Scripted ScriptedConfig
}

// ArkConfig holds the Volcengine Ark credentials used through eino.
type ArkConfig struct {
	APIKey    string `env:"ARK_API_KEY"`
	AccessKey string `env:"ARK_ACCESS_KEY"`
	SecretKey string `env:"ARK_SECRET_KEY"`
	Model     string `env:"ARK_MODEL"`
	BaseURL   string `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region    string `env:"ARK_REGION" envDefault:"cn-beijing"`
}

// GeminiConfig holds the Google generative language settings.
type GeminiConfig struct {
	APIKey   string `env:"GEMINI_API_KEY"`
	Model    string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	Endpoint string `env:"GEMINI_ENDPOINT"`
}

// OpenAIConfig targets any OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	APIKey  string `env:"OPENAI_API_KEY"`
	BaseURL string `env:"OPENAI_BASE_URL"`
	Model   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
}

// ScriptedConfig controls the offline provider.
type ScriptedConfig struct {
	FragmentDelay time.Duration `env:"SCRIPTED_FRAGMENT_DELAY" envDefault:"60ms"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses configuration from the given variables instead of the
// process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	addr, err := listenAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	cfg.AI.Provider = strings.ToLower(strings.TrimSpace(cfg.AI.Provider))
	switch cfg.AI.Provider {
	case ProviderAuto, ProviderArk, ProviderGemini, ProviderOpenAI, ProviderScripted:
	default:
		return nil, fmt.Errorf("invalid AI_PROVIDER value: %q", cfg.AI.Provider)
	}
	if cfg.AI.HistoryLimit < 1 {
		cfg.AI.HistoryLimit = 1
	}

	return &cfg, nil
}

// listenAddr normalises PORT into a listen address.
func listenAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as-is.
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// Enabled reports whether a model and credentials are configured.
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// Enabled reports whether a Gemini key is configured.
func (c GeminiConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// Enabled reports whether an OpenAI-compatible endpoint is usable.
func (c OpenAIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || c.BaseURL != "")
}

// ResolveProvider turns "auto" into the first provider with credentials,
// falling back to the scripted one.
func (c AIConfig) ResolveProvider() string {
	if c.Provider != ProviderAuto && c.Provider != "" {
		return c.Provider
	}
	switch {
	case c.Ark.Enabled():
		return ProviderArk
	case c.Gemini.Enabled():
		return ProviderGemini
	case c.OpenAI.Enabled():
		return ProviderOpenAI
	default:
		return ProviderScripted
	}
}
