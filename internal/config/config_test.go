package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 30*time.Second, cfg.Orchestrator.AgentTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Orchestrator.ApprovalTimeout)
	assert.Equal(t, models.DefaultCapabilities(), cfg.Orchestrator.Capabilities)
	assert.Equal(t, ProviderNone, cfg.LLM.Provider)
	assert.Equal(t, 365, cfg.CAPA.WindowDays)
	assert.Equal(t, "Avino", cfg.Graph.DefaultBrand)
	assert.Equal(t, 5, cfg.Vector.TopK)
	assert.InDelta(t, 0.5, cfg.Vector.MinScore, 1e-9)
	assert.InDelta(t, 0.7, cfg.Vector.SummaryScore, 1e-9)
	assert.Equal(t, "smtp.gmail.com", cfg.Email.SMTPServer)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.True(t, cfg.Email.MockMode)
	assert.Equal(t, "analyst@company.com", cfg.Email.DefaultRecipient)
	assert.Equal(t, "system@company.com", cfg.Email.Sender)
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
orchestrator:
  agent_timeout: 5s
  approval_timeout: 10m
  capabilities: [vector, capa]
llm:
  provider: Anthropic
  model: claude-sonnet-4-20250514
  api_key: ${TEST_COORDINATOR_KEY}
vector:
  top_k: 3
email:
  mock_mode: false
  smtp_server: mail.example.com
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))
	clearKeyEnv(t)
	t.Setenv("TEST_COORDINATOR_KEY", "sk-test")

	cfg, err := LoadFromPath(configPath)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Orchestrator.AgentTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Orchestrator.ApprovalTimeout)
	assert.Equal(t, []models.Capability{models.CapabilityVector, models.CapabilityCAPA}, cfg.Orchestrator.Capabilities)
	assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider, "provider is normalised to lower case")
	assert.Equal(t, "sk-test", cfg.LLM.APIKey, "api key references are expanded")
	assert.Equal(t, 3, cfg.Vector.TopK)
	assert.False(t, cfg.Email.MockMode)
	assert.Equal(t, "mail.example.com", cfg.Email.SMTPServer)

	// Untouched keys keep their defaults.
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.Equal(t, "Avino", cfg.Graph.DefaultBrand)
}

func TestLoadFromPath_LegacyEnvironment(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("llm:\n  provider: openai\n"), 0644))

	clearKeyEnv(t)
	t.Setenv("SMTP_SERVER", "smtp.internal")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("EMAIL_MOCK_MODE", "false")
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("NEO4J_URI", "file:///srv/graph.yaml")
	t.Setenv("COORDINATOR_VECTOR_TOP_K", "9")

	cfg, err := LoadFromPath(configPath)
	require.NoError(t, err)

	assert.Equal(t, "smtp.internal", cfg.Email.SMTPServer)
	assert.Equal(t, 2525, cfg.Email.SMTPPort)
	assert.False(t, cfg.Email.MockMode)
	assert.Equal(t, "gemini-key", cfg.LLM.APIKey)
	assert.Equal(t, "file:///srv/graph.yaml", cfg.Graph.URI)
	assert.Equal(t, 9, cfg.Vector.TopK)
}

func TestLoadFromPath_Missing(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "expanded-value")

	assert.Equal(t, "expanded-value", expandEnv("${TEST_VAR}"))
	assert.Equal(t, "prefix-expanded-value-suffix", expandEnv("prefix-${TEST_VAR}-suffix"))
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	assert.Equal(t, "/custom/config/coordinator", getUserConfigDir())
}

func TestDataPaths(t *testing.T) {
	d := DataConfig{Directory: "data", CAPAFile: "capa.txt", GraphFixture: "/abs/graph.yaml"}

	assert.Equal(t, filepath.Join("data", "capa.txt"), d.CAPAPath())
	assert.Equal(t, "/abs/graph.yaml", d.GraphFixturePath())
	assert.Equal(t, "", d.VectorFixturePath())
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "sk-secret"
	cfg.Email.Password = "hunter2"

	r := Redacted(cfg)
	assert.Equal(t, "********", r["llm.api_key"])
	assert.Equal(t, "********", r["email.password"])
	assert.Equal(t, "", r["vector.token"], "empty secrets stay empty")
	assert.Equal(t, "smtp.gmail.com", r["email.smtp_server"])
}

func TestSaveAndReload(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := Default()
	cfg.Orchestrator.AgentTimeout = 12 * time.Second
	cfg.Graph.DefaultBrand = "Zentra"
	require.NoError(t, Save(cfg))

	loaded, err := LoadFromPath(GetUserConfigPath())
	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, loaded.Orchestrator.AgentTimeout)
	assert.Equal(t, "Zentra", loaded.Graph.DefaultBrand)
}

// clearKeyEnv blanks API key variables that may be set on the host.
func clearKeyEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"COORDINATOR_LLM_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"} {
		t.Setenv(name, "")
	}
}
