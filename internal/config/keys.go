package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

const (
	appName = "coordinator"

	// EnvPrefix prefixes every generic environment override (COORDINATOR_LLM_MODEL, ...).
	EnvPrefix = "COORDINATOR"
)

// LLM providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderNone      = "none"
)

// legacyEnv binds config keys to the environment names used by existing deployments.
// The prefixed COORDINATOR_* name is checked first.
var legacyEnv = map[string][]string{
	"llm.api_key":             {"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"},
	"llm.base_url":            {"OPENAI_BASE_URL"},
	"graph.uri":               {"NEO4J_URI"},
	"graph.username":          {"NEO4J_USERNAME"},
	"graph.password":          {"NEO4J_PASSWORD"},
	"vector.token":            {"ASTRA_DB_TOKEN"},
	"vector.endpoint":         {"ASTRA_DB_ENDPOINT"},
	"email.smtp_server":       {"SMTP_SERVER"},
	"email.smtp_port":         {"SMTP_PORT"},
	"email.username":          {"SMTP_USERNAME"},
	"email.password":          {"SMTP_PASSWORD"},
	"email.use_tls":           {"SMTP_USE_TLS"},
	"email.mock_mode":         {"EMAIL_MOCK_MODE"},
	"email.default_recipient": {"DEFAULT_EMAIL_RECIPIENT"},
	"email.sender":            {"SENDER_EMAIL"},
	"logging.level":           {"LOG_LEVEL"},
	"logging.directory":       {"LOGS_DIRECTORY"},
	"data.directory":          {"DATA_DIRECTORY"},
}

// secretKeys are masked by Redacted.
var secretKeys = []string{"llm.api_key", "graph.password", "vector.token", "email.password"}

// envName returns the prefixed environment variable for a dotted key.
func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// LoadDotEnv loads .env, .env.<APP_ENV> and .env.local from dir into the process
// environment. Variables that are already set are never overwritten and missing
// files are skipped.
func LoadDotEnv(dir string) error {
	files := []string{".env"}
	if appEnv := os.Getenv("APP_ENV"); appEnv != "" {
		files = append(files, ".env."+appEnv)
	}
	files = append(files, ".env.local")

	for _, name := range files {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate checks the configuration. Problems that prevent a run are returned as
// an error; degraded but usable settings (mock services, missing keys) are
// returned as warnings.
func (c *Config) Validate() ([]string, error) {
	var problems []string
	var warnings []string

	if c.Orchestrator.AgentTimeout <= 0 {
		problems = append(problems, "orchestrator.agent_timeout must be positive")
	}
	if c.Orchestrator.ApprovalTimeout <= 0 {
		problems = append(problems, "orchestrator.approval_timeout must be positive")
	}
	if len(c.Orchestrator.Capabilities) == 0 {
		problems = append(problems, "orchestrator.capabilities must not be empty")
	}
	seen := make(map[models.Capability]bool)
	for _, capability := range c.Orchestrator.Capabilities {
		if !capability.Valid() {
			problems = append(problems, fmt.Sprintf("orchestrator.capabilities: unknown capability %q", capability))
		}
		if seen[capability] {
			problems = append(problems, fmt.Sprintf("orchestrator.capabilities: duplicate capability %q", capability))
		}
		seen[capability] = true
	}

	switch c.LLM.Provider {
	case ProviderNone, "":
		warnings = append(warnings, "llm.provider is none: queries use template decomposition")
	case ProviderAnthropic:
		if c.LLM.APIKey == "" && !c.LLM.UseBedrock {
			warnings = append(warnings, "llm.api_key is empty: decomposition will fall back to templates")
		}
	case ProviderOpenAI:
		if c.LLM.APIKey == "" {
			warnings = append(warnings, "llm.api_key is empty: decomposition will fall back to templates")
		}
	default:
		problems = append(problems, fmt.Sprintf("llm.provider: unknown provider %q", c.LLM.Provider))
	}

	if c.CAPA.WindowDays < 1 {
		problems = append(problems, "capa.window_days must be at least 1")
	}
	if c.Vector.TopK < 1 {
		problems = append(problems, "vector.top_k must be at least 1")
	}
	if c.Vector.MinScore < 0 || c.Vector.MinScore > 1 {
		problems = append(problems, "vector.min_score must be within [0,1]")
	}
	if c.Vector.SummaryScore < 0 || c.Vector.SummaryScore > 1 {
		problems = append(problems, "vector.summary_score must be within [0,1]")
	}

	if c.Graph.URI == "" {
		warnings = append(warnings, "graph.uri is empty: graph agent uses the built-in dataset")
	}
	if c.Vector.Endpoint == "" {
		warnings = append(warnings, "vector.endpoint is empty: vector agent uses the built-in index")
	}
	if c.Email.MockMode {
		warnings = append(warnings, "email.mock_mode is on: notifications are written to the mock log")
	} else {
		if c.Email.SMTPServer == "" || c.Email.Sender == "" {
			problems = append(problems, "email.smtp_server and email.sender are required when mock_mode is off")
		}
		if c.Email.Username == "" {
			warnings = append(warnings, "email.username is empty: SMTP will be used without authentication")
		}
	}
	if c.Email.DefaultRecipient == "" {
		problems = append(problems, "email.default_recipient must be set")
	}

	if len(problems) > 0 {
		return warnings, fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return warnings, nil
}
