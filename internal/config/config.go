// Package config handles configuration loading and management for the coordinator.
// It supports XDG config paths, project-level overrides, .env files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// projectConfigName is the project-level override file searched upward from the cwd.
const projectConfigName = ".coordinator.yaml"

// Config holds all configuration for the coordinator.
// A loaded Config is treated as immutable; components receive copies of the
// sections they need at construction.
type Config struct {
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Data         DataConfig         `mapstructure:"data"`
	CAPA         CAPAConfig         `mapstructure:"capa"`
	Graph        GraphConfig        `mapstructure:"graph"`
	Vector       VectorConfig       `mapstructure:"vector"`
	Email        EmailConfig        `mapstructure:"email"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	State        StateConfig        `mapstructure:"state"`
	Signals      SignalsConfig      `mapstructure:"signals"`
}

// OrchestratorConfig holds workflow timing and capability settings.
type OrchestratorConfig struct {
	// AgentTimeout bounds every capability agent call.
	AgentTimeout time.Duration `mapstructure:"agent_timeout"`
	// ApprovalTimeout bounds how long a run waits at the approval gate.
	ApprovalTimeout time.Duration `mapstructure:"approval_timeout"`
	// Capabilities lists the capability slots in ordinal order.
	Capabilities []models.Capability `mapstructure:"capabilities"`
	// EventBuffer is the size of the controller's event channel.
	EventBuffer int `mapstructure:"event_buffer"`
}

// LLMConfig holds settings for the reasoning step.
type LLMConfig struct {
	// Provider is "anthropic", "openai" or "none".
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	UseBedrock  bool    `mapstructure:"use_bedrock"`
	AWSRegion   string  `mapstructure:"aws_region"`
	AWSProfile  string  `mapstructure:"aws_profile"`
	Temperature float64 `mapstructure:"temperature"`
	// RequestsPerMinute paces calls to the provider. Zero disables pacing.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	// Summarize enables the narrative executive summary after consolidation.
	Summarize bool `mapstructure:"summarize"`
}

// DataConfig locates the local data files used by the capability agents.
type DataConfig struct {
	Directory     string `mapstructure:"directory"`
	CAPAFile      string `mapstructure:"capa_file"`
	GraphFixture  string `mapstructure:"graph_fixture"`
	VectorFixture string `mapstructure:"vector_fixture"`
}

// CAPAConfig holds CAPA analysis settings.
type CAPAConfig struct {
	WindowDays int `mapstructure:"window_days"`
}

// GraphConfig holds graph store settings.
type GraphConfig struct {
	URI          string `mapstructure:"uri"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	DefaultBrand string `mapstructure:"default_brand"`
}

// VectorConfig holds document index settings.
type VectorConfig struct {
	Endpoint     string  `mapstructure:"endpoint"`
	Token        string  `mapstructure:"token"`
	TopK         int     `mapstructure:"top_k"`
	MinScore     float64 `mapstructure:"min_score"`
	SummaryScore float64 `mapstructure:"summary_score"`
}

// EmailConfig holds notifier settings.
type EmailConfig struct {
	SMTPServer       string `mapstructure:"smtp_server"`
	SMTPPort         int    `mapstructure:"smtp_port"`
	Username         string `mapstructure:"username"`
	Password         string `mapstructure:"password"`
	UseTLS           bool   `mapstructure:"use_tls"`
	MockMode         bool   `mapstructure:"mock_mode"`
	FallbackToMock   bool   `mapstructure:"fallback_to_mock"`
	DefaultRecipient string `mapstructure:"default_recipient"`
	Sender           string `mapstructure:"sender"`
	MockLog          string `mapstructure:"mock_log"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Directory string `mapstructure:"directory"`
	Console   bool   `mapstructure:"console"`
}

// StateConfig locates the run database.
type StateConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// SignalsConfig locates the directory watched for out-of-process signals.
type SignalsConfig struct {
	Dir string `mapstructure:"dir"`
}

// CAPAPath returns the resolved path of the CAPA data file.
func (d DataConfig) CAPAPath() string {
	return resolve(d.Directory, d.CAPAFile)
}

// GraphFixturePath returns the resolved path of the graph fixture file.
func (d DataConfig) GraphFixturePath() string {
	return resolve(d.Directory, d.GraphFixture)
}

// VectorFixturePath returns the resolved path of the vector fixture file.
func (d DataConfig) VectorFixturePath() string {
	return resolve(d.Directory, d.VectorFixture)
}

// MockLogPath returns the mock email log location inside the logs directory.
func (c *Config) MockLogPath() string {
	return resolve(c.Logging.Directory, c.Email.MockLog)
}

func resolve(dir, name string) string {
	if name == "" {
		return ""
	}
	if filepath.IsAbs(name) || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

// Load loads configuration from XDG paths, project overrides, .env files and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (including values loaded from .env files)
// 2. Project config (.coordinator.yaml in current directory or parent)
// 3. User config (~/.config/coordinator/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	if err := LoadDotEnv("."); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)

	return decode(v)
}

// LoadFromPath loads configuration from a specific file, still honouring environment overrides.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	bindEnv(v)

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.LLM.APIKey = expandEnv(cfg.LLM.APIKey)
	cfg.Graph.Password = expandEnv(cfg.Graph.Password)
	cfg.Vector.Token = expandEnv(cfg.Vector.Token)
	cfg.Email.Password = expandEnv(cfg.Email.Password)
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))

	return cfg, nil
}

// bindEnv maps COORDINATOR_* variables onto every key and binds the
// environment names used by existing deployments.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range legacyEnv {
		args := append([]string{key, envName(key)}, names...)
		_ = v.BindEnv(args...)
	}
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))
	for key, value := range Settings(cfg) {
		v.Set(key, value)
	}

	return v.WriteConfig()
}

// Settings flattens the configuration into dotted keys. Secrets are included
// as configured; callers that display settings should use Redacted.
func Settings(cfg *Config) map[string]any {
	caps := make([]string, len(cfg.Orchestrator.Capabilities))
	for i, c := range cfg.Orchestrator.Capabilities {
		caps[i] = string(c)
	}
	return map[string]any{
		"orchestrator.agent_timeout":    cfg.Orchestrator.AgentTimeout.String(),
		"orchestrator.approval_timeout": cfg.Orchestrator.ApprovalTimeout.String(),
		"orchestrator.capabilities":     caps,
		"orchestrator.event_buffer":     cfg.Orchestrator.EventBuffer,
		"llm.provider":                  cfg.LLM.Provider,
		"llm.model":                     cfg.LLM.Model,
		"llm.api_key":                   cfg.LLM.APIKey,
		"llm.base_url":                  cfg.LLM.BaseURL,
		"llm.use_bedrock":               cfg.LLM.UseBedrock,
		"llm.aws_region":                cfg.LLM.AWSRegion,
		"llm.aws_profile":               cfg.LLM.AWSProfile,
		"llm.temperature":               cfg.LLM.Temperature,
		"llm.requests_per_minute":       cfg.LLM.RequestsPerMinute,
		"llm.summarize":                 cfg.LLM.Summarize,
		"data.directory":                cfg.Data.Directory,
		"data.capa_file":                cfg.Data.CAPAFile,
		"data.graph_fixture":            cfg.Data.GraphFixture,
		"data.vector_fixture":           cfg.Data.VectorFixture,
		"capa.window_days":              cfg.CAPA.WindowDays,
		"graph.uri":                     cfg.Graph.URI,
		"graph.username":                cfg.Graph.Username,
		"graph.password":                cfg.Graph.Password,
		"graph.default_brand":           cfg.Graph.DefaultBrand,
		"vector.endpoint":               cfg.Vector.Endpoint,
		"vector.token":                  cfg.Vector.Token,
		"vector.top_k":                  cfg.Vector.TopK,
		"vector.min_score":              cfg.Vector.MinScore,
		"vector.summary_score":          cfg.Vector.SummaryScore,
		"email.smtp_server":             cfg.Email.SMTPServer,
		"email.smtp_port":               cfg.Email.SMTPPort,
		"email.username":                cfg.Email.Username,
		"email.password":                cfg.Email.Password,
		"email.use_tls":                 cfg.Email.UseTLS,
		"email.mock_mode":               cfg.Email.MockMode,
		"email.fallback_to_mock":        cfg.Email.FallbackToMock,
		"email.default_recipient":       cfg.Email.DefaultRecipient,
		"email.sender":                  cfg.Email.Sender,
		"email.mock_log":                cfg.Email.MockLog,
		"logging.level":                 cfg.Logging.Level,
		"logging.directory":             cfg.Logging.Directory,
		"logging.console":               cfg.Logging.Console,
		"state.db_path":                 cfg.State.DBPath,
		"signals.dir":                   cfg.Signals.Dir,
	}
}

// Redacted returns Settings with secret values masked.
func Redacted(cfg *Config) map[string]any {
	s := Settings(cfg)
	for _, key := range secretKeys {
		if v, ok := s[key].(string); ok && v != "" {
			s[key] = "********"
		}
	}
	return s
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()
	for key, value := range Settings(d) {
		v.SetDefault(key, value)
	}
}

// getUserConfigDir returns the XDG config directory for the coordinator.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, appName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", appName)
	}
	return filepath.Join(home, ".config", appName)
}

// dataDir returns the XDG data directory for the coordinator.
func dataDir() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", "."+appName)
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, appName)
}

// findProjectConfig searches for .coordinator.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, projectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	stateDir := dataDir()
	return &Config{
		Orchestrator: OrchestratorConfig{
			AgentTimeout:    30 * time.Second,
			ApprovalTimeout: 24 * time.Hour,
			Capabilities:    models.DefaultCapabilities(),
			EventBuffer:     100,
		},
		LLM: LLMConfig{
			Provider:          ProviderNone,
			Temperature:       0.1,
			RequestsPerMinute: 60,
		},
		Data: DataConfig{
			Directory:     "data",
			CAPAFile:      "capa_data.txt",
			GraphFixture:  "graph.yaml",
			VectorFixture: "vector_docs.yaml",
		},
		CAPA: CAPAConfig{
			WindowDays: 365,
		},
		Graph: GraphConfig{
			DefaultBrand: "Avino",
		},
		Vector: VectorConfig{
			TopK:         5,
			MinScore:     0.5,
			SummaryScore: 0.7,
		},
		Email: EmailConfig{
			SMTPServer:       "smtp.gmail.com",
			SMTPPort:         587,
			UseTLS:           true,
			MockMode:         true,
			FallbackToMock:   true,
			DefaultRecipient: "analyst@company.com",
			Sender:           "system@company.com",
			MockLog:          "mock_emails.log",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Directory: "logs",
		},
		State: StateConfig{
			DBPath: filepath.Join(stateDir, appName+".db"),
		},
		Signals: SignalsConfig{
			Dir: filepath.Join(stateDir, "signals"),
		},
	}
}
