// Package config defines the session-level configuration surface: the
// recognized options a host can set for tree search, tier promotion,
// conflict resolution, token budgeting, and the ambient logging/generator
// stack.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"sovereign-research-orchestrator/internal/logging"

	"gopkg.in/yaml.v3"
)

// PromotionConfig tunes C8 tier-promotion thresholds.
type PromotionConfig struct {
	MinSourcesSilver    int     `yaml:"min_sources_silver"`
	MinSourcesGold      int     `yaml:"min_sources_gold"`
	ConfidenceSilver    float64 `yaml:"confidence_silver"`
	ConfidenceGold      float64 `yaml:"confidence_gold"`
}

// AxiomJudgeConfig tunes C7.
type AxiomJudgeConfig struct {
	PassThreshold float64 `yaml:"pass_threshold"`
	Quality       string  `yaml:"quality"` // fast | balanced | quality
}

// TokenBudgetConfig tunes C13.
type TokenBudgetConfig struct {
	Total       int `yaml:"total"`
	DefaultNode int `yaml:"default_node"`
	MinNode     int `yaml:"min_node"`
	MaxNode     int `yaml:"max_node"`
}

// Config is the session-level configuration object recognized by the core.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Tree search (C10, C14, C15)
	MaxTreeNodes        int     `yaml:"max_tree_nodes"`
	MaxContextTokens    int     `yaml:"max_context_tokens"`
	ExplorationConstant float64 `yaml:"exploration_constant"`
	BranchingFactor     int     `yaml:"branching_factor"`
	MaxDepth            int     `yaml:"max_depth"`
	SimulationStrategy  string  `yaml:"simulation_strategy"` // axiom | llm | random

	// Coverage (C12)
	CoverageWeight   float64 `yaml:"coverage_weight"`
	CoverageAdaptive bool    `yaml:"coverage_adaptive"`

	// XoT prior (C11)
	XoTWeight        float64       `yaml:"xot_weight"`
	XoTFallbackScore float64       `yaml:"xot_fallback_score"`
	XoTDepth         int           `yaml:"xot_depth"`
	XoTTimeout       string        `yaml:"xot_timeout"`

	// Fact quality (C9)
	FactQualityWeight float64 `yaml:"fact_quality_weight"`

	// Token budget (C13)
	TokenBudget TokenBudgetConfig `yaml:"token_budget"`

	// Tier promotion (C8)
	Promotion PromotionConfig `yaml:"promotion"`

	// Conflict resolution (C6)
	ConflictThreshold float64 `yaml:"conflict_threshold"`

	// Axiom judge (C7)
	AxiomJudge AxiomJudgeConfig `yaml:"axiom_judge"`

	// Ambient stack
	GenAI   GenAIConfig           `yaml:"genai"`
	Logging logging.SessionConfig `yaml:"logging"`
	Limits  ResourceLimits        `yaml:"limits"`

	// AxiomsPath is the directory the axiom library (C2) watches for
	// hot-reloadable JSON axiom files.
	AxiomsPath string `yaml:"axioms_path"`

	// DatabasePath is where the embedded SPO fact store is persisted.
	DatabasePath string `yaml:"database_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "sovereign-research-orchestrator",
		Version: "0.1.0",

		MaxTreeNodes:        5000,
		MaxContextTokens:    32000,
		ExplorationConstant: math.Sqrt2,
		BranchingFactor:     4,
		MaxDepth:            8,
		SimulationStrategy:  "axiom",

		CoverageWeight:   0.5,
		CoverageAdaptive: true,

		XoTWeight:        0.3,
		XoTFallbackScore: 0.5,
		XoTDepth:         2,
		XoTTimeout:       "3s",

		FactQualityWeight: 0.4,

		TokenBudget: TokenBudgetConfig{
			Total:       500000,
			DefaultNode: 2000,
			MinNode:     500,
			MaxNode:     8000,
		},

		Promotion: PromotionConfig{
			MinSourcesSilver: 2,
			MinSourcesGold:   3,
			ConfidenceSilver: 0.7,
			ConfidenceGold:   0.85,
		},

		ConflictThreshold: 0.6,

		AxiomJudge: AxiomJudgeConfig{
			PassThreshold: 0.6,
			Quality:       "balanced",
		},

		GenAI: GenAIConfig{
			Provider: "genai",
			Model:    "gemini-2.5-flash",
			Timeout:  "120s",
			Gemini:   DefaultGeminiProviderConfig(),
		},

		Logging: logging.SessionConfig{
			Level:     "info",
			DebugMode: false,
		},

		Limits: ResourceLimits{
			MaxTreeNodes:          5000,
			MaxSessionDurationMin: 120,
			MaxConcurrentAPICalls: 4,
		},

		AxiomsPath:   "data/axioms",
		DatabasePath: "data/sro.db",
	}
}

// Load loads configuration from a YAML file, falling back to defaults if the
// file doesn't exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Get(logging.CategoryBoot).Info("config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	logging.Get(logging.CategoryBoot).Info("config loaded: provider=%s model=%s", cfg.GenAI.Provider, cfg.GenAI.Model)
	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnvOverrides applies environment variable overrides, following the
// "shortest path to a working session" philosophy: a key in the environment
// always wins over what's on disk.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.GenAI.APIKey = key
		if c.GenAI.Provider == "" {
			c.GenAI.Provider = "genai"
		}
	}
	if path := os.Getenv("SRO_DB_PATH"); path != "" {
		c.DatabasePath = path
	}
	if path := os.Getenv("SRO_AXIOMS_PATH"); path != "" {
		c.AxiomsPath = path
	}
	if v := os.Getenv("SRO_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
	}
}

// GetGenAITimeout returns the generator call timeout as a duration.
func (c *Config) GetGenAITimeout() time.Duration {
	d, err := time.ParseDuration(c.GenAI.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetXoTTimeout returns the XoT simulation timeout as a duration.
func (c *Config) GetXoTTimeout() time.Duration {
	d, err := time.ParseDuration(c.XoTTimeout)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.GenAI.APIKey == "" {
		return fmt.Errorf("generator API key not configured (set GEMINI_API_KEY)")
	}
	if c.MaxTreeNodes < 1 {
		return fmt.Errorf("max_tree_nodes must be >= 1")
	}
	if c.ExplorationConstant <= 0 {
		return fmt.Errorf("exploration_constant must be > 0")
	}
	if c.Promotion.MinSourcesSilver < 1 || c.Promotion.MinSourcesGold < c.Promotion.MinSourcesSilver {
		return fmt.Errorf("promotion source thresholds must be monotonic: silver <= gold")
	}
	if c.Promotion.ConfidenceSilver <= 0 || c.Promotion.ConfidenceSilver > 1 {
		return fmt.Errorf("promotion.confidence_silver must be in (0,1]")
	}
	if c.Promotion.ConfidenceGold < c.Promotion.ConfidenceSilver {
		return fmt.Errorf("promotion.confidence_gold must be >= confidence_silver")
	}
	if c.TokenBudget.MinNode > c.TokenBudget.MaxNode {
		return fmt.Errorf("token_budget.min_node must be <= max_node")
	}
	switch c.SimulationStrategy {
	case "axiom", "llm", "random":
	default:
		return fmt.Errorf("invalid simulation_strategy: %s", c.SimulationStrategy)
	}
	return c.ValidateResourceLimits()
}
