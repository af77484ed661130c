// Package config loads PRISM's layered YAML configuration: a global file
// under the user's home directory, an optional per-project override, and
// environment-variable overrides for secrets. See spec.md §6 and SPEC_FULL.md
// §5.1.
package config

import (
	"os"
	"path/filepath"

	"github.com/antigravity-dev/prism/internal/prismerr"
	"gopkg.in/yaml.v3"
)

// Config is PRISM's global configuration, loaded from
// ~/.prism/prism.config.yaml.
type Config struct {
	// Memory controls the Skill Store and Memory Sync.
	Memory MemoryConfig `yaml:"memory"`

	// Embedding is the default embedding engine configuration; a project may
	// leave this unset to inherit it, or the CLI may override it per-invocation.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Ranker holds the default scoring weights (spec.md §4.2).
	Ranker RankerConfig `yaml:"ranker"`

	// Injector holds token-budget defaults (spec.md §4.3, Open Question:
	// these are config, never constants baked into the Injector).
	Injector InjectorConfig `yaml:"injector"`

	// Board is the default external Kanban adapter configuration.
	Board BoardConfig `yaml:"board"`

	// Router configures the webhook listener and file watcher.
	Router RouterConfig `yaml:"router"`

	// Logging controls both the categorized file logger and the CLI zap logger.
	Logging LoggingConfig `yaml:"logging"`

	// AgentRoles maps a role name (e.g. "coder", "reviewer") to a free-form
	// tool/model alias, per spec.md §6's "default agent-role assignments".
	AgentRoles map[string]string `yaml:"agent_roles,omitempty"`
}

// MemoryConfig controls where and how the Skill Store persists.
type MemoryConfig struct {
	Root             string `yaml:"root"`              // defaults to ~/.prism/memory
	EmbeddingsEnabled bool   `yaml:"embeddings_enabled"`
	GitRemote        string `yaml:"git_remote,omitempty"`
	AutoCommit       bool   `yaml:"auto_commit"`
}

// EmbeddingConfig mirrors internal/embedding.Config's shape in YAML form;
// the API key is never read from or written to YAML — see ResolveSecrets.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"`
	OllamaEndpoint string `yaml:"ollama_endpoint,omitempty"`
	OllamaModel    string `yaml:"ollama_model,omitempty"`
	GenAIModel     string `yaml:"genai_model,omitempty"`
	GenAIAPIKey    string `yaml:"-"` // populated from PRISM_LLM_API_KEY or --llm-api-key
}

// RankerConfig holds the default component weights from spec.md §4.2.
type RankerConfig struct {
	WeightLex     float64 `yaml:"weight_lex"`
	WeightSem     float64 `yaml:"weight_sem"`
	WeightTag     float64 `yaml:"weight_tag"`
	WeightReuse   float64 `yaml:"weight_reuse"`
	WeightRecency float64 `yaml:"weight_recency"`
}

// InjectorConfig holds token budget defaults (spec.md §9 Open Question:
// tunable configuration, never hardcoded).
type InjectorConfig struct {
	DefaultBudgetTokens     int `yaml:"default_budget_tokens"`
	DefaultPerTaskBudget    int `yaml:"default_per_task_budget_tokens"`
	MaxCandidatesPerTask    int `yaml:"max_candidates_per_task"`
}

// BoardConfig is the default external board client configuration.
type BoardConfig struct {
	BaseURL       string `yaml:"base_url,omitempty"`
	Token         string `yaml:"-"` // populated from PRISM_BOARD_TOKEN or --board-token
	TimeoutSecond int    `yaml:"timeout_seconds"`
}

// RouterConfig controls the Event Router's webhook port and watcher debounce.
type RouterConfig struct {
	WebhookPort     int    `yaml:"webhook_port"`
	WebhookPath     string `yaml:"webhook_path"`
	SpecsDir        string `yaml:"specs_dir,omitempty"`
	DebounceSeconds int    `yaml:"debounce_seconds"`
	QueueCapacity   int    `yaml:"queue_capacity"`
	Workers         int    `yaml:"workers"`
}

// LoggingConfig holds logging settings loaded from YAML (SPEC_FULL.md §5.2).
// No caller reads these fields; the CLI configures logging from --verbose.
type LoggingConfig struct {
	Verbose    bool     `yaml:"verbose"`
	JSON       bool     `yaml:"json"`
	Categories []string `yaml:"categories,omitempty"` // empty = all categories
}

// DefaultConfig returns PRISM's built-in defaults. Every field a caller
// might need is populated here rather than scattered across call sites
// (spec.md §9 "AppContext" guidance; SPEC_FULL.md §5.1).
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	memoryRoot := filepath.Join(home, ".prism", "memory")

	return Config{
		Memory: MemoryConfig{
			Root:              memoryRoot,
			EmbeddingsEnabled: false,
			AutoCommit:        false,
		},
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
		},
		Ranker: RankerConfig{
			WeightLex:     1.0,
			WeightSem:     1.0,
			WeightTag:     3.0,
			WeightReuse:   2.0,
			WeightRecency: 1.5,
		},
		Injector: InjectorConfig{
			DefaultBudgetTokens:  4000,
			DefaultPerTaskBudget: 500,
			MaxCandidatesPerTask: 5,
		},
		Board: BoardConfig{
			TimeoutSecond: 30,
		},
		Router: RouterConfig{
			WebhookPort:     8765,
			WebhookPath:     "/webhook",
			DebounceSeconds: 2,
			QueueCapacity:   256,
			Workers:         4,
		},
		Logging: LoggingConfig{
			Verbose: false,
			JSON:    false,
		},
	}
}

// DefaultGlobalPath returns ~/.prism/prism.config.yaml.
func DefaultGlobalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".prism", "prism.config.yaml")
	}
	return filepath.Join(home, ".prism", "prism.config.yaml")
}

// Load reads the global config at path, falling back to DefaultConfig for
// any field the file doesn't set and for a missing file entirely. It then
// applies environment-variable overrides for secrets (ResolveSecrets).
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ResolveSecrets(&cfg)
			return cfg, nil
		}
		return cfg, prismerr.Wrap(prismerr.KindInvalidInput, err, "read config %s", path)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, prismerr.Wrap(prismerr.KindInvalidInput, err, "parse config %s", path)
	}

	ResolveSecrets(&cfg)
	return cfg, nil
}

// Save writes cfg to path, creating parent directories as needed. Secrets
// (GenAIAPIKey, Board.Token) are never serialized — they live in the
// environment only.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "create config directory")
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "marshal config")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "write config %s", path)
	}
	return nil
}

// ResolveSecrets applies environment-variable overrides. Env vars always
// win over whatever is on disk, matching the teacher's UserConfig pattern
// of an explicit, auditable override order (SPEC_FULL.md §5.1).
func ResolveSecrets(cfg *Config) {
	if v := os.Getenv("PRISM_LLM_API_KEY"); v != "" {
		cfg.Embedding.GenAIAPIKey = v
	}
	if v := os.Getenv("PRISM_BOARD_TOKEN"); v != "" {
		cfg.Board.Token = v
	}
}
