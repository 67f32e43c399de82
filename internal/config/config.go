// Package config assembles the gateway's runtime configuration from
// environment variables, with an optional YAML file overlay for the
// settings that don't have a natural env-var shape (agent timeouts,
// delivery scan interval, memory weights).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the gateway process.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	DataDir   string          `yaml:"data_dir"`
	Memory    MemoryConfig    `yaml:"memory"`
	Agent     AgentConfig     `yaml:"agent"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
}

// LLMConfig configures the LLM adapter the Supervisor Agent drives.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

// EmbeddingConfig configures the Embedder used by the long-term memory tier.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
}

// GatewayConfig configures the WebSocket JSON-RPC gateway.
type GatewayConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	AuthToken      string `yaml:"auth_token"`
	MaxConnections int    `yaml:"max_connections"`
}

// MemoryConfig configures the three-tier memory system.
type MemoryConfig struct {
	MaxWorkingTokens int               `yaml:"max_working_tokens"`
	RIFWeights       RIFWeightsConfig  `yaml:"rif_weights"`
	FusionWeights    FusionWeights     `yaml:"fusion_weights"`
	ConsolidateEvery time.Duration     `yaml:"consolidate_every"`
	Dimension        int               `yaml:"dimension"`
}

// RIFWeightsConfig weights recency/importance/frequency in the RIF score.
type RIFWeightsConfig struct {
	Recency    float64 `yaml:"recency"`
	Importance float64 `yaml:"importance"`
	Frequency  float64 `yaml:"frequency"`
}

// FusionWeights weights vector/keyword/RIF contributions to the final
// long-term-memory retrieval score.
type FusionWeights struct {
	Vector  float64 `yaml:"vector"`
	Keyword float64 `yaml:"keyword"`
	RIF     float64 `yaml:"rif"`
}

// AgentConfig configures the Supervisor Agent loop.
type AgentConfig struct {
	MaxSteps        int           `yaml:"max_steps"`
	LLMTimeout      time.Duration `yaml:"llm_timeout"`
	ToolTimeout     time.Duration `yaml:"tool_timeout"`
	ConfirmationTTL time.Duration `yaml:"confirmation_ttl"`
}

// DeliveryConfig configures the Delivery Queue worker.
type DeliveryConfig struct {
	ScanInterval time.Duration `yaml:"scan_interval"`
	MaxRetries   int           `yaml:"max_retries"`
}

// DefaultConfig returns the documented defaults from spec.md before any
// environment or file overlay is applied.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Gateway: GatewayConfig{
			Host:           "0.0.0.0",
			Port:           8787,
			MaxConnections: 1000,
		},
		Memory: MemoryConfig{
			MaxWorkingTokens: 8000,
			Dimension:        1536,
			RIFWeights:       RIFWeightsConfig{Recency: 1, Importance: 1, Frequency: 1},
			FusionWeights:    FusionWeights{Vector: 0.5, Keyword: 0.2, RIF: 0.3},
			ConsolidateEvery: time.Hour,
		},
		Agent: AgentConfig{
			MaxSteps:        10,
			LLMTimeout:      60 * time.Second,
			ToolTimeout:     30 * time.Second,
			ConfirmationTTL: 5 * time.Minute,
		},
		Delivery: DeliveryConfig{
			ScanInterval: 5 * time.Second,
			MaxRetries:   5,
		},
	}
}

// LoadFile overlays a YAML config file onto base. Env vars in the file's
// bytes are expanded (e.g. "${LLM_API_KEY}") before parsing.
func LoadFile(path string, base *Config) (*Config, error) {
	if base == nil {
		base = DefaultConfig()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), base); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return base, nil
}

// LoadEnv overlays the environment variables documented in spec.md §6
// onto base, returning a new Config. Env vars win over any prior file
// overlay, so call LoadEnv after LoadFile.
func LoadEnv(base *Config) *Config {
	if base == nil {
		base = DefaultConfig()
	}
	cfg := *base

	setStr(&cfg.LLM.Provider, "LLM_PROVIDER")
	setStr(&cfg.LLM.Model, "LLM_MODEL")
	setStr(&cfg.LLM.APIKey, "LLM_API_KEY")
	setStr(&cfg.LLM.BaseURL, "LLM_BASE_URL")

	setStr(&cfg.Embedding.Provider, "EMBEDDING_PROVIDER")
	setStr(&cfg.Embedding.Model, "EMBEDDING_MODEL")
	setStr(&cfg.Embedding.BaseURL, "EMBEDDING_BASE_URL")

	setStr(&cfg.Gateway.Host, "GATEWAY_HOST")
	setInt(&cfg.Gateway.Port, "GATEWAY_PORT")
	setStr(&cfg.Gateway.AuthToken, "GATEWAY_AUTH_TOKEN")
	setInt(&cfg.Gateway.MaxConnections, "GATEWAY_MAX_CONNECTIONS")

	setStr(&cfg.DataDir, "DATA_DIR")

	return &cfg
}

// Load is the standard bootstrap sequence: defaults, then an optional
// YAML file (if configPath is non-empty and exists), then environment
// variables, which always take precedence.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(configPath) != "" {
		if _, err := os.Stat(configPath); err == nil {
			cfg, err = LoadFile(configPath, cfg)
			if err != nil {
				return nil, err
			}
		}
	}
	return LoadEnv(cfg), nil
}

func setStr(dst *string, envVar string) {
	if v, ok := os.LookupEnv(envVar); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, envVar string) {
	if v, ok := os.LookupEnv(envVar); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
