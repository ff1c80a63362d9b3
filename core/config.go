package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/oceanbase/engram/model"
)

// Config is the complete configuration for an Engram client.
//
// Example:
//
//	config := &core.Config{
//	    Storage: core.StorageConfig{
//	        Provider: "sqlite",
//	        Path:     "./engram.db",
//	    },
//	    Policy: core.DefaultPolicyConfig(),
//	}
type Config struct {
	// Storage selects and configures the backend the composer reads from and
	// writes through.
	Storage StorageConfig `json:"storage"`

	// Policy carries the §6.2 policy surface defaults new BuildRequests fall
	// back to when the caller supplies no explicit RecallPolicy.
	Policy PolicyConfig `json:"policy"`

	// Consolidation configures the offline insight-promotion producer
	// (optional; nil disables consolidation.Runner construction).
	Consolidation *ConsolidationConfig `json:"consolidation,omitempty"`
}

// StorageConfig selects a storage backend and carries its connection
// parameters. Only the fields relevant to Provider need be set.
//
// Supported providers: sqlite, postgres, mysql
type StorageConfig struct {
	// Provider is the backend name (sqlite, postgres, mysql).
	Provider string `json:"provider"`

	// Path is the SQLite database file path, or ":memory:" for an in-process
	// store. Ignored by postgres/mysql.
	Path string `json:"path,omitempty"`

	// Host, Port, User, Password, DBName configure postgres/mysql.
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	DBName   string `json:"db_name,omitempty"`

	// SSLMode configures postgres's sslmode connection parameter.
	SSLMode string `json:"ssl_mode,omitempty"`
}

// PolicyConfig mirrors the §6.2 policy surface table. It is converted to a
// model.RecallPolicy via ToRecallPolicy for use as a BuildRequest default.
type PolicyConfig struct {
	MaxFacts                 int     `json:"max_facts"`
	MaxEpisodes              int     `json:"max_episodes"`
	MaxProceduresPerTaskType int     `json:"max_procedures_per_task_type"`
	MaxInsights              int     `json:"max_insights"`
	MaxTotalCandidates       int     `json:"max_total_candidates"`
	EpisodeTimeWindowDays    int     `json:"episode_time_window_days"`
	RecencyTauDays           float64 `json:"recency_tau_days"`
	ConfidenceFloor          float64 `json:"confidence_floor"`
	ActiveFactsCeiling       int     `json:"active_facts_ceiling"`
	AllowInsightInResponder  bool    `json:"allow_insight_in_responder"`
	DeadlineMS               int     `json:"deadline_ms"`
}

// DefaultPolicyConfig mirrors model.DefaultPolicy's documented defaults.
func DefaultPolicyConfig() PolicyConfig {
	d := model.DefaultPolicy()
	return PolicyConfig{
		MaxFacts:                 d.MaxFacts,
		MaxEpisodes:              d.MaxEpisodes,
		MaxProceduresPerTaskType: d.MaxProceduresPerTaskType,
		MaxInsights:              d.MaxInsights,
		MaxTotalCandidates:       d.MaxTotalCandidates,
		EpisodeTimeWindowDays:    d.EpisodeTimeWindowDays,
		RecencyTauDays:           d.RecencyTauDays,
		ConfidenceFloor:          d.ConfidenceFloor,
		ActiveFactsCeiling:       d.ActiveFactsCeiling,
		AllowInsightInResponder:  d.AllowInsightInResponder,
		DeadlineMS:               d.DeadlineMS,
	}
}

// ToRecallPolicy converts a PolicyConfig into the model.RecallPolicy shape
// the composer consumes, filling PolicyID with "default".
func (p PolicyConfig) ToRecallPolicy() model.RecallPolicy {
	return model.RecallPolicy{
		MaxFacts:                 p.MaxFacts,
		MaxEpisodes:              p.MaxEpisodes,
		MaxProceduresPerTaskType: p.MaxProceduresPerTaskType,
		MaxInsights:              p.MaxInsights,
		MaxTotalCandidates:       p.MaxTotalCandidates,
		EpisodeTimeWindowDays:    p.EpisodeTimeWindowDays,
		RecencyTauDays:           p.RecencyTauDays,
		ConfidenceFloor:          p.ConfidenceFloor,
		ActiveFactsCeiling:       p.ActiveFactsCeiling,
		AllowInsightInResponder:  p.AllowInsightInResponder,
		DeadlineMS:               p.DeadlineMS,
		PolicyID:                 "default",
	}
}

// ConsolidationConfig selects the LLM provider the offline consolidation
// producer uses to classify validated insights (see consolidation.Runner).
//
// Supported providers: openai, qwen, anthropic, deepseek, ollama
type ConsolidationConfig struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	BaseURL  string `json:"base_url,omitempty"`
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - STORAGE_PROVIDER (sqlite, postgres, mysql)
//   - SQLITE_PATH
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, POSTGRES_DATABASE, POSTGRES_SSLMODE
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, MYSQL_DATABASE
//   - POLICY_MAX_FACTS, POLICY_MAX_EPISODES, POLICY_MAX_PROCEDURES_PER_TASK_TYPE,
//     POLICY_MAX_INSIGHTS, POLICY_MAX_TOTAL_CANDIDATES, POLICY_DEADLINE_MS
//   - CONSOLIDATION_LLM_PROVIDER, CONSOLIDATION_LLM_API_KEY, CONSOLIDATION_LLM_MODEL, CONSOLIDATION_LLM_BASE_URL
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("STORAGE_PROVIDER", "sqlite")

	storage := StorageConfig{Provider: provider}
	switch provider {
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		storage.Host = getEnvOrDefault("POSTGRES_HOST", "localhost")
		storage.Port = port
		storage.User = getEnvOrDefault("POSTGRES_USER", "postgres")
		storage.Password = os.Getenv("POSTGRES_PASSWORD")
		storage.DBName = getEnvOrDefault("POSTGRES_DATABASE", "engram")
		storage.SSLMode = getEnvOrDefault("POSTGRES_SSLMODE", "disable")
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		storage.Host = getEnvOrDefault("MYSQL_HOST", "127.0.0.1")
		storage.Port = port
		storage.User = getEnvOrDefault("MYSQL_USER", "root")
		storage.Password = os.Getenv("MYSQL_PASSWORD")
		storage.DBName = getEnvOrDefault("MYSQL_DATABASE", "engram")
	default: // sqlite
		storage.Path = getEnvOrDefault("SQLITE_PATH", "./engram.db")
	}

	policy := DefaultPolicyConfig()
	if v := os.Getenv("POLICY_MAX_FACTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			policy.MaxFacts = n
		}
	}
	if v := os.Getenv("POLICY_MAX_EPISODES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			policy.MaxEpisodes = n
		}
	}
	if v := os.Getenv("POLICY_MAX_PROCEDURES_PER_TASK_TYPE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			policy.MaxProceduresPerTaskType = n
		}
	}
	if v := os.Getenv("POLICY_MAX_INSIGHTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			policy.MaxInsights = n
		}
	}
	if v := os.Getenv("POLICY_MAX_TOTAL_CANDIDATES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			policy.MaxTotalCandidates = n
		}
	}
	if v := os.Getenv("POLICY_DEADLINE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			policy.DeadlineMS = n
		}
	}

	cfg := &Config{Storage: storage, Policy: policy}

	if consolidationProvider := os.Getenv("CONSOLIDATION_LLM_PROVIDER"); consolidationProvider != "" {
		cfg.Consolidation = &ConsolidationConfig{
			Provider: consolidationProvider,
			APIKey:   os.Getenv("CONSOLIDATION_LLM_API_KEY"),
			Model:    os.Getenv("CONSOLIDATION_LLM_MODEL"),
			BaseURL:  os.Getenv("CONSOLIDATION_LLM_BASE_URL"),
		}
	}

	return cfg, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEngramError("LoadConfigFromJSON", KindStorageQuery, err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewEngramError("LoadConfigFromJSON", KindPolicyInvalidBudget, err)
	}

	return &config, nil
}

// Validate rejects unknown backend providers and out-of-range policy values
// before any I/O — the Policy error family's entry point (spec §7).
func (c *Config) Validate() error {
	switch c.Storage.Provider {
	case "sqlite", "postgres", "mysql":
	default:
		return NewEngramError("Validate", KindPolicyUnknownOption,
			fmt.Errorf("%w: unknown storage provider %q", ErrInvalidConfig, c.Storage.Provider))
	}

	if c.Storage.Provider == "sqlite" && c.Storage.Path == "" {
		return NewEngramError("Validate", KindPolicyInvalidBudget,
			fmt.Errorf("%w: sqlite storage requires a path", ErrInvalidConfig))
	}
	if (c.Storage.Provider == "postgres" || c.Storage.Provider == "mysql") && c.Storage.Host == "" {
		return NewEngramError("Validate", KindPolicyInvalidBudget,
			fmt.Errorf("%w: %s storage requires a host", ErrInvalidConfig, c.Storage.Provider))
	}

	if c.Policy.MaxTotalCandidates <= 0 {
		return NewEngramError("Validate", KindPolicyInvalidBudget,
			fmt.Errorf("%w: max_total_candidates must be positive", ErrInvalidConfig))
	}
	if c.Policy.ConfidenceFloor < 0 || c.Policy.ConfidenceFloor > 1 {
		return NewEngramError("Validate", KindPolicyInvalidBudget,
			fmt.Errorf("%w: confidence_floor must be within [0,1]", ErrInvalidConfig))
	}
	if c.Policy.DeadlineMS < 0 {
		return NewEngramError("Validate", KindPolicyInvalidBudget,
			fmt.Errorf("%w: deadline_ms must be non-negative", ErrInvalidConfig))
	}

	if c.Consolidation != nil && c.Consolidation.Provider == "" {
		return NewEngramError("Validate", KindPolicyUnknownOption,
			fmt.Errorf("%w: consolidation requires a provider", ErrInvalidConfig))
	}

	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
