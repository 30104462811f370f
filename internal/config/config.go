package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// WorkspaceEnv overrides workspace.dir when set
const WorkspaceEnv = "REQ_STUDIO_WORKSPACE"

// Config represents the application configuration
type Config struct {
	Workspace WorkspaceConfig `yaml:"workspace"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Jira      JiraConfig      `yaml:"jira"`
	Export    ExportConfig    `yaml:"export"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// WorkspaceConfig represents the working directory holding all projects
type WorkspaceConfig struct {
	Dir                     string `yaml:"dir"`
	OperationTimeoutSeconds int    `yaml:"operation_timeout_seconds"`
}

// AnthropicConfig represents Anthropic API configuration
type AnthropicConfig struct {
	APIKey            string `yaml:"api_key"`
	BaseURL           string `yaml:"base_url"`
	Model             string `yaml:"model"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	MaxTokens         int    `yaml:"max_tokens"`
	RetryCount        int    `yaml:"retry_count"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
}

// JiraConfig represents JIRA API configuration
type JiraConfig struct {
	BaseURL    string `yaml:"base_url"`
	Username   string `yaml:"username"`
	APIToken   string `yaml:"api_token"`
	ProjectKey string `yaml:"project_key"`
	Timeout    int    `yaml:"timeout_seconds"`
}

// ExportConfig represents spreadsheet export configuration
type ExportConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// ServerConfig represents the HTTP bridge configuration
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig represents diagnostics logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// OperationTimeout returns the per-operation timeout for store calls
func (w WorkspaceConfig) OperationTimeout() time.Duration {
	return time.Duration(w.OperationTimeoutSeconds) * time.Second
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if dir := os.Getenv(WorkspaceEnv); dir != "" {
		config.Workspace.Dir = dir
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ApplyDefaults fills in zero-valued settings
func (c *Config) ApplyDefaults() {
	if c.Workspace.OperationTimeoutSeconds == 0 {
		c.Workspace.OperationTimeoutSeconds = 30
	}
	if c.Anthropic.BaseURL == "" {
		c.Anthropic.BaseURL = "https://api.anthropic.com"
	}
	if c.Anthropic.Model == "" {
		c.Anthropic.Model = "claude-sonnet-4-20250514"
	}
	if c.Anthropic.TimeoutSeconds == 0 {
		c.Anthropic.TimeoutSeconds = 120
	}
	if c.Anthropic.MaxTokens == 0 {
		c.Anthropic.MaxTokens = 4000
	}
	if c.Anthropic.RetryCount == 0 {
		c.Anthropic.RetryCount = 3
	}
	if c.Anthropic.RetryDelaySeconds == 0 {
		c.Anthropic.RetryDelaySeconds = 5
	}
	if c.Jira.Timeout == 0 {
		c.Jira.Timeout = 30
	}
	if c.Export.OutputDir == "" {
		c.Export.OutputDir = "./exports"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "warn"
	}
}

// Validate validates the settings every command needs
func (c *Config) Validate() error {
	if c.Workspace.Dir == "" {
		return fmt.Errorf("workspace directory is required")
	}

	if c.Workspace.OperationTimeoutSeconds < 0 {
		return fmt.Errorf("operation timeout must not be negative")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	return nil
}

// ValidateAnthropic validates the settings the LLM bridge needs
func (c *Config) ValidateAnthropic() error {
	if c.Anthropic.APIKey == "" {
		return fmt.Errorf("anthropic API key is required")
	}
	return nil
}

// ValidateJira validates the settings Jira sync needs
func (c *Config) ValidateJira() error {
	if c.Jira.BaseURL == "" {
		return fmt.Errorf("JIRA base URL is required")
	}

	if c.Jira.Username == "" {
		return fmt.Errorf("JIRA username is required")
	}

	if c.Jira.APIToken == "" {
		return fmt.Errorf("JIRA API token is required")
	}

	if c.Jira.ProjectKey == "" {
		return fmt.Errorf("JIRA project key is required")
	}

	return nil
}

// Sample returns a configuration with placeholder credentials
func Sample() *Config {
	config := &Config{}
	config.Workspace.Dir = "./workspace"
	config.Anthropic.APIKey = "your-anthropic-api-key-here"
	config.Jira.BaseURL = "https://your-domain.atlassian.net"
	config.Jira.Username = "your-email@example.com"
	config.Jira.APIToken = "your-jira-api-token"
	config.Jira.ProjectKey = "PROJ"
	config.ApplyDefaults()
	return config
}

// WriteSample writes a sample configuration file readable only by the owner
func WriteSample(configPath string) error {
	data, err := yaml.Marshal(Sample())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
