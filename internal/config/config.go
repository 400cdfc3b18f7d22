package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all tenx configuration
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Language-model provider
	Model ModelConfig `json:"model"`

	// Local limiter in front of the provider
	RateLimit RateLimitConfig `json:"rateLimit"`

	// Backoff on provider rate-limit errors
	Retry RetryConfig `json:"retry"`

	// Tool loop and turn settings
	Loop LoopConfig `json:"loop"`

	Tools    ToolsConfig    `json:"tools"`
	Agents   AgentsConfig   `json:"agents"`
	Executor ExecutorConfig `json:"executor"`
	Store    StoreConfig    `json:"store"`
	API      APIConfig      `json:"api"`
	Snapshot SnapshotConfig `json:"snapshot"`
	Prompt   PromptConfig   `json:"prompt"`
}

type ServerConfig struct {
	Port      int    `json:"port"`
	DataDir   string `json:"dataDir"`
	LogLevel  string `json:"logLevel"`
	LogFormat string `json:"logFormat"` // "text" or "json"
}

type ModelConfig struct {
	Provider       string `json:"provider"`
	BaseURL        string `json:"baseUrl,omitempty"`
	APIKey         string `json:"apiKey,omitempty"`
	Model          string `json:"model"`
	MaxTokens      int    `json:"maxTokens"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `json:"requestsPerMinute"`
	WindowSeconds     int `json:"windowSeconds"`
}

// RetryConfig lists backoff delays in milliseconds. The delay after failed
// attempt k is entry k of standard followed by extended; the attempt limit is
// the total number of entries.
type RetryConfig struct {
	StandardDelaysMs []int `json:"standardDelaysMs"`
	ExtendedDelaysMs []int `json:"extendedDelaysMs"`
	StandardJitterMs int   `json:"standardJitterMs"`
	ExtendedJitterMs int   `json:"extendedJitterMs"`
}

type LoopConfig struct {
	FallbackMaxIterations int `json:"fallbackMaxIterations"`
	HistoryTokenBudget    int `json:"historyTokenBudget"`
	// Pacing between rounds, by round number: round 1 is never paced.
	PacingEarlyMs   int `json:"pacingEarlyMs"`   // rounds 2-5
	PacingMiddleMs  int `json:"pacingMiddleMs"`  // rounds 6-15
	PacingLateMs    int `json:"pacingLateMs"`    // later rounds
	RepeatThreshold int `json:"repeatThreshold"` // warn once a call is seen more than this many times
	// Zero disables the per-turn deadline.
	TurnTimeoutSeconds int  `json:"turnTimeoutSeconds"`
	MultiAgent         bool `json:"multiAgent"`
	DuplicateWindow    int  `json:"duplicateWindow"`
}

type ToolsConfig struct {
	CatalogPath string `json:"catalogPath,omitempty"` // empty uses the built-in catalog
}

type AgentsConfig struct {
	ProfilesPath string `json:"profilesPath,omitempty"` // empty uses the built-in profiles
}

type ExecutorConfig struct {
	Kind           string     `json:"kind"` // "http", "mqtt" or "dryrun"
	URL            string     `json:"url,omitempty"`
	TimeoutSeconds int        `json:"timeoutSeconds"`
	MQTT           MQTTConfig `json:"mqtt"`
}

type MQTTConfig struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"clientId"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	TopicPrefix string `json:"topicPrefix"`
}

type StoreConfig struct {
	TurnLogPath string `json:"turnLogPath,omitempty"` // empty: <dataDir>/turns.db
	SessionsDir string `json:"sessionsDir,omitempty"` // empty: <dataDir>/sessions
}

type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	JWTSecret      string   `json:"jwtSecret,omitempty"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
}

type SnapshotConfig struct {
	Path string `json:"path,omitempty"`
}

type PromptConfig struct {
	Persona  string          `json:"persona,omitempty"` // empty uses the built-in persona
	Sections []PromptSection `json:"sections,omitempty"`
}

// PromptSection is a user-supplied block appended to the system prompt.
type PromptSection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      8420,
			DataDir:   "./data",
			LogLevel:  "info",
			LogFormat: "text",
		},
		Model: ModelConfig{
			Provider:       "anthropic",
			Model:          "claude-sonnet-4-20250514",
			MaxTokens:      4096,
			TimeoutSeconds: 120,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 18, // provider quota is 20/min
			WindowSeconds:     60,
		},
		Retry: RetryConfig{
			StandardDelaysMs: []int{3000, 5000, 10000, 15000, 20000},
			ExtendedDelaysMs: []int{30000, 45000, 60000, 90000, 120000},
			StandardJitterMs: 1000,
			ExtendedJitterMs: 2000,
		},
		Loop: LoopConfig{
			FallbackMaxIterations: 25,
			HistoryTokenBudget:    6000,
			PacingEarlyMs:         4000,
			PacingMiddleMs:        6000,
			PacingLateMs:          8000,
			RepeatThreshold:       3,
			MultiAgent:            true,
			DuplicateWindow:       3,
		},
		API: APIConfig{
			Enabled: true,
		},
		Executor: ExecutorConfig{
			Kind:           "dryrun",
			TimeoutSeconds: 30,
			MQTT: MQTTConfig{
				Broker:      "tcp://localhost:1883",
				ClientID:    "tenx",
				TopicPrefix: "tenx/tools",
			},
		},
	}
}

// Load reads config from a JSON file, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.Server.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overlays environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("TENX_ANTHROPIC_API_KEY"); v != "" {
		c.Model.APIKey = v
	} else if v := getenv("ANTHROPIC_API_KEY"); v != "" && c.Model.APIKey == "" {
		c.Model.APIKey = v
	}
	if v := getenv("TENX_API_JWT_SECRET"); v != "" {
		c.API.JWTSecret = v
	}
	if v := getenv("TENX_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := getenv("TENX_DATA_DIR"); v != "" {
		c.Server.DataDir = v
	}
	if v := getenv("TENX_EXECUTOR_URL"); v != "" {
		c.Executor.URL = v
	}
}

// Validate checks values that would otherwise fail deep inside a turn.
func (c *Config) Validate() error {
	var problems []string
	if c.Model.Provider != "anthropic" {
		problems = append(problems, fmt.Sprintf("model.provider %q is not supported", c.Model.Provider))
	}
	if c.Model.Model == "" {
		problems = append(problems, "model.model is required")
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		problems = append(problems, "rateLimit.requestsPerMinute must be positive")
	}
	if c.Loop.FallbackMaxIterations <= 0 {
		problems = append(problems, "loop.fallbackMaxIterations must be positive")
	}
	if c.Loop.HistoryTokenBudget <= 0 {
		problems = append(problems, "loop.historyTokenBudget must be positive")
	}
	switch c.Executor.Kind {
	case "dryrun":
	case "http":
		if c.Executor.URL == "" {
			problems = append(problems, "executor.url is required for the http executor")
		}
	case "mqtt":
		if c.Executor.MQTT.Broker == "" {
			problems = append(problems, "executor.mqtt.broker is required for the mqtt executor")
		}
	default:
		problems = append(problems, fmt.Sprintf("executor.kind %q is not supported", c.Executor.Kind))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Save writes config to a JSON file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0640)
}

// TurnLogPath resolves the sqlite turn log location.
func (c *Config) TurnLogPath() string {
	if c.Store.TurnLogPath != "" {
		return c.Store.TurnLogPath
	}
	return filepath.Join(c.Server.DataDir, "turns.db")
}

// SessionsDir resolves the session directory.
func (c *Config) SessionsDir() string {
	if c.Store.SessionsDir != "" {
		return c.Store.SessionsDir
	}
	return filepath.Join(c.Server.DataDir, "sessions")
}

// Durations converts millisecond lists.
func Durations(ms []int) []time.Duration {
	out := make([]time.Duration, len(ms))
	for i, v := range ms {
		out[i] = time.Duration(v) * time.Millisecond
	}
	return out
}

// Millis converts a millisecond count.
func Millis(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// Seconds converts a second count.
func Seconds(s int) time.Duration { return time.Duration(s) * time.Second }
