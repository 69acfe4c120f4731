package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RunnerConfig configures the Playwright test runner subprocess.
type RunnerConfig struct {
	// Command is the executable used to launch the runner (default "npx").
	Command string `yaml:"command"`

	// Args precede the per-test arguments (default ["playwright", "test"]).
	Args []string `yaml:"args"`

	// ConfigPath is passed as --config.
	ConfigPath string `yaml:"config_path"`

	// Project is the Playwright project (browser) name passed as --project.
	Project string `yaml:"project"`

	// TestTimeout is the per-test timeout passed as --timeout.
	TestTimeout time.Duration `yaml:"test_timeout"`

	// Timeout is the hard wall-clock limit for one execution.
	Timeout time.Duration `yaml:"timeout"`

	// MaxOutputBytes caps captured stdout/stderr.
	MaxOutputBytes int `yaml:"max_output_bytes"`

	// WorkDir is the directory the runner is started in.
	WorkDir string `yaml:"work_dir"`

	// TestsDir holds one generated artifact per story.
	TestsDir string `yaml:"tests_dir"`

	// ResultsDir is where the runner writes videos, traces and reports.
	ResultsDir string `yaml:"results_dir"`

	// JSONReport enables Playwright's JSON reporter alongside the list reporter.
	JSONReport bool `yaml:"json_report"`
}

// HealingConfig configures the self-healing retry loop.
type HealingConfig struct {
	// MaxAttempts is the total number of executions, including the first one.
	MaxAttempts int `yaml:"max_attempts"`

	// InspectOnFailure captures a DOM snapshot of the target before regenerating.
	InspectOnFailure bool `yaml:"inspect_on_failure"`
}

// GeneratorConfig configures the external text-generation provider.
type GeneratorConfig struct {
	// Provider selects the backend: "claude" (CLI) or "gemini".
	Provider string `yaml:"provider"`

	// Model is the provider model name.
	Model string `yaml:"model"`

	// ClaudePath is the claude CLI binary (provider "claude").
	ClaudePath string `yaml:"claude_path"`

	// APIKey authenticates the gemini provider. GEMINI_API_KEY overrides it.
	APIKey string `yaml:"api_key"`

	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// JiraConfig configures the story-tracking client.
type JiraConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Email      string        `yaml:"email"`
	APIToken   string        `yaml:"api_token"`
	ProjectKey string        `yaml:"project_key"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Enabled reports whether enough is configured to talk to Jira.
func (j JiraConfig) Enabled() bool {
	return j.BaseURL != "" && j.APIToken != ""
}

// TestRailConfig configures the test-case tracking client.
type TestRailConfig struct {
	BaseURL   string        `yaml:"base_url"`
	User      string        `yaml:"user"`
	APIKey    string        `yaml:"api_key"`
	ProjectID int           `yaml:"project_id"`
	SuiteID   int           `yaml:"suite_id"`
	SectionID int           `yaml:"section_id"`
	Timeout   time.Duration `yaml:"timeout"`

	// Concurrency bounds parallel case upserts.
	Concurrency int `yaml:"concurrency"`
}

// Enabled reports whether enough is configured to talk to TestRail.
func (t TestRailConfig) Enabled() bool {
	return t.BaseURL != "" && t.APIKey != "" && t.ProjectID > 0
}

// TargetConfig configures target URL resolution.
type TargetConfig struct {
	// Placeholder is the meaningless default returned only as a last resort.
	Placeholder string `yaml:"placeholder"`

	// PrefixDomains maps story-id prefixes (e.g. "ED") to production URLs.
	PrefixDomains map[string]string `yaml:"prefix_domains"`

	// KeywordDomains maps brand keywords found in story text to URLs.
	KeywordDomains map[string]string `yaml:"keyword_domains"`

	// Username and Password are explicit credentials for the system under test.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InspectorConfig configures the DOM inspection helper.
type InspectorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Backend  string        `yaml:"backend"` // "playwright" or "chromedp"
	Headless bool          `yaml:"headless"`
	Timeout  time.Duration `yaml:"timeout"`

	// MaxElements caps interactive elements captured per page.
	MaxElements int `yaml:"max_elements"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StoreConfig configures the run history database.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// Config represents selfheal configuration options
type Config struct {
	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where JSON run logs are written (empty disables file logging)
	LogDir string `yaml:"log_dir"`

	Runner    RunnerConfig    `yaml:"runner"`
	Healing   HealingConfig   `yaml:"healing"`
	Generator GeneratorConfig `yaml:"generator"`
	Jira      JiraConfig      `yaml:"jira"`
	TestRail  TestRailConfig  `yaml:"testrail"`
	Target    TargetConfig    `yaml:"target"`
	Inspector InspectorConfig `yaml:"inspector"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		LogDir:   ".selfheal/logs",
		Runner: RunnerConfig{
			Command:        "npx",
			Args:           []string{"playwright", "test"},
			ConfigPath:     "playwright.config.ts",
			Project:        "chromium",
			TestTimeout:    60 * time.Second,
			Timeout:        180 * time.Second,
			MaxOutputBytes: 10 * 1024 * 1024,
			TestsDir:       "tests/generated",
			ResultsDir:     "test-results",
			JSONReport:     true,
		},
		Healing: HealingConfig{
			MaxAttempts:      3,
			InspectOnFailure: false,
		},
		Generator: GeneratorConfig{
			Provider:    "claude",
			Model:       "",
			ClaudePath:  "claude",
			MaxTokens:   4096,
			Temperature: 0.2,
			Timeout:     5 * time.Minute,
		},
		Jira: JiraConfig{
			Timeout: 30 * time.Second,
		},
		TestRail: TestRailConfig{
			Timeout:     30 * time.Second,
			Concurrency: 4,
		},
		Target: TargetConfig{
			Placeholder: "https://example.com",
			PrefixDomains: map[string]string{
				"ED": "https://www.edx.org",
			},
			KeywordDomains: map[string]string{
				"edx":        "https://www.edx.org",
				"playwright": "https://playwright.dev",
			},
		},
		Inspector: InspectorConfig{
			Enabled:     false,
			Backend:     "playwright",
			Headless:    true,
			Timeout:     30 * time.Second,
			MaxElements: 60,
		},
		Server: ServerConfig{
			Addr:         ":3001",
			WriteTimeout: 15 * time.Minute,
		},
		Store: StoreConfig{
			Enabled: true,
			DBPath:  ".selfheal/history.db",
		},
	}
}

// LoadConfig loads configuration from the specified file path.
// If the file doesn't exist, returns default configuration without error.
// If the file exists but is malformed, returns an error.
// Environment overrides are applied last in both cases.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.ApplyEnv()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Decoding over the defaults keeps every key the file leaves out.
	// Durations are written as strings ("3m", "180s").
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// LoadConfigFromDir loads configuration from .selfheal/config.yaml in the specified directory
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".selfheal", "config.yaml"))
}

// ApplyEnv overrides secrets and endpoints from the environment.
func (c *Config) ApplyEnv() {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}

	setString(&c.Jira.BaseURL, "JIRA_BASE_URL")
	setString(&c.Jira.Email, "JIRA_EMAIL")
	setString(&c.Jira.APIToken, "JIRA_API_TOKEN")
	setString(&c.Jira.ProjectKey, "JIRA_PROJECT_KEY")
	setString(&c.TestRail.BaseURL, "TESTRAIL_URL")
	setString(&c.TestRail.User, "TESTRAIL_USER")
	setString(&c.TestRail.APIKey, "TESTRAIL_API_KEY")
	setString(&c.Generator.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	setString(&c.Target.Username, "SUT_USERNAME")
	setString(&c.Target.Password, "SUT_PASSWORD")
}

// MergeWithFlags merges CLI flags into the configuration.
// Non-nil flag values override configuration values.
func (c *Config) MergeWithFlags(maxAttempts *int, timeout *time.Duration, logDir *string, logLevel *string, provider *string) {
	if maxAttempts != nil {
		c.Healing.MaxAttempts = *maxAttempts
	}
	if timeout != nil {
		c.Runner.Timeout = *timeout
	}
	if logDir != nil {
		c.LogDir = *logDir
	}
	if logLevel != nil {
		c.LogLevel = *logLevel
	}
	if provider != nil {
		c.Generator.Provider = *provider
	}
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.Healing.MaxAttempts < 1 {
		return fmt.Errorf("healing.max_attempts must be >= 1, got %d", c.Healing.MaxAttempts)
	}
	if c.Runner.Timeout <= 0 {
		return fmt.Errorf("runner.timeout must be > 0, got %v", c.Runner.Timeout)
	}
	if c.Runner.MaxOutputBytes <= 0 {
		return fmt.Errorf("runner.max_output_bytes must be > 0, got %d", c.Runner.MaxOutputBytes)
	}
	if c.Runner.TestsDir == "" {
		return fmt.Errorf("runner.tests_dir cannot be empty")
	}
	if c.Runner.Command == "" {
		return fmt.Errorf("runner.command cannot be empty")
	}

	switch c.Generator.Provider {
	case "claude":
	case "gemini":
		if c.Generator.APIKey == "" {
			return fmt.Errorf("generator.api_key (or GEMINI_API_KEY) is required for the gemini provider")
		}
	default:
		return fmt.Errorf("invalid generator.provider %q, must be one of: claude, gemini", c.Generator.Provider)
	}
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		return fmt.Errorf("generator.temperature must be within [0, 2], got %v", c.Generator.Temperature)
	}

	if c.Target.Placeholder == "" {
		return fmt.Errorf("target.placeholder cannot be empty")
	}

	if c.Inspector.Enabled {
		switch c.Inspector.Backend {
		case "playwright", "chromedp":
		default:
			return fmt.Errorf("invalid inspector.backend %q, must be one of: playwright, chromedp", c.Inspector.Backend)
		}
	}

	if c.TestRail.Concurrency < 1 {
		return fmt.Errorf("testrail.concurrency must be >= 1, got %d", c.TestRail.Concurrency)
	}

	if c.Store.Enabled && c.Store.DBPath == "" {
		return fmt.Errorf("store.db_path cannot be empty when the store is enabled")
	}

	return nil
}
