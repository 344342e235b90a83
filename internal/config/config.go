// Package config handles configuration loading for the agent host.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/agenthost/config.yaml, /etc/agenthost/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "agenthost", "config.yaml"))
	}

	paths = append(paths, "/etc/agenthost/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config is the root configuration document.
type Config struct {
	Persona         PersonaConfig             `yaml:"persona"`
	LLM             LLMConfig                 `yaml:"llm"`
	Channels        map[string]ChannelConfig  `yaml:"channels"`
	MCP             MCPConfig                 `yaml:"mcp"`
	Verification    VerificationConfig        `yaml:"verification"`
	Skills          SkillsConfig              `yaml:"skills"`
	History         HistoryConfig             `yaml:"history"`
	Health          HealthConfig              `yaml:"health"`
	Journal         JournalConfig             `yaml:"journal"`
	TaskPersistence TaskPersistenceConfig     `yaml:"taskPersistence"`
	Web             WebConfig                 `yaml:"web"`
	Tools           ToolsConfig               `yaml:"tools"`
	DataDir         string                    `yaml:"dataDir"`
	LogLevel        string                    `yaml:"logLevel"`
}

// ToolsConfig configures builtin tool-backed skills outside the MCP
// Client Manager's subprocess model.
type ToolsConfig struct {
	GitHub GitHubToolConfig `yaml:"github"`
}

// GitHubToolConfig configures the builtin skill__github tool.
type GitHubToolConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	Repo    string `yaml:"repo"` // "owner/name"
}

// PersonaConfig names the assistant and its base system prompt.
type PersonaConfig struct {
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// LLMProvider enumerates the supported LLM backend kinds.
type LLMProvider string

const (
	ProviderDirectAPI  LLMProvider = "direct-api"
	ProviderCopilot    LLMProvider = "copilot"
	ProviderClaudeCode LLMProvider = "claude-code"
)

// LLMConfig configures the primary LLM backend.
type LLMConfig struct {
	Provider    LLMProvider `yaml:"provider"`
	Model       string      `yaml:"model"`
	APIKey      string      `yaml:"apiKey"`
	BaseURL     string      `yaml:"baseUrl"`
	MaxTokens   int         `yaml:"maxTokens"`
	GithubToken string      `yaml:"githubToken"`
}

// ChannelType enumerates the supported transport adapters.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelWhatsApp ChannelType = "whatsapp"
	ChannelWeChat   ChannelType = "wechat"
	ChannelIMessage ChannelType = "imessage"
	ChannelWeb      ChannelType = "web"
	ChannelEmail    ChannelType = "email"
)

// ChannelConfig configures one channel instance.
type ChannelConfig struct {
	Type            ChannelType                 `yaml:"type"`
	Enabled         bool                        `yaml:"enabled"`
	Token           string                      `yaml:"token"`
	SessionDataPath string                      `yaml:"sessionDataPath"`
	PuppetProvider  string                      `yaml:"puppetProvider"`
	EnabledSkills   []string                    `yaml:"enabledSkills"`
	Verification    *VerificationConfig         `yaml:"verification"`
	Email           *EmailChannelSettings       `yaml:"email"`
}

// EmailChannelSettings carries IMAP/SMTP account settings for an
// email-type channel.
type EmailChannelSettings struct {
	Name        string `yaml:"name"`
	DefaultFrom string `yaml:"defaultFrom"`
	IMAP        struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		TLS      bool   `yaml:"tls"`
	} `yaml:"imap"`
	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		StartTLS bool   `yaml:"startTls"`
	} `yaml:"smtp"`
}

// MCPConfig configures the MCP Client Manager's server set.
type MCPConfig struct {
	Servers map[string]MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes one MCP server launched as a child process.
type MCPServerConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`
}

// VerificationConfig configures the verification loop.
type VerificationConfig struct {
	Enabled                bool              `yaml:"enabled"`
	MaxRetries             int               `yaml:"maxRetries"`
	ConfidenceThreshold    float64           `yaml:"confidenceThreshold"`
	SkipForShortResponses  bool              `yaml:"skipForShortResponses"`
	ShortResponseThreshold int               `yaml:"shortResponseThreshold"`
	LLMReview              LLMReviewConfig   `yaml:"llmReview"`
	Rules                  RulesConfig       `yaml:"rules"`
}

// LLMReviewConfig configures the LLM-backed verifier.
type LLMReviewConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// RulesConfig configures the rule-based verifier.
type RulesConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SkillsConfig configures the Skill Registry's content-skill search
// directories.
type SkillsConfig struct {
	Directories []string `yaml:"directories"`
}

// HistoryConfig configures the History Store.
type HistoryConfig struct {
	DataDir             string `yaml:"dataDir"`
	MaxMessages         int    `yaml:"maxMessages"`
	MaxSegmentSizeBytes int64  `yaml:"maxSegmentSizeBytes"`
	MaxSegments         int    `yaml:"maxSegments"`
}

// HealthConfig configures the heartbeat/channel-monitor/recovery
// subsystem.
type HealthConfig struct {
	HeartbeatIntervalSec  int           `yaml:"heartbeatIntervalSec"`
	HeartbeatPort         int           `yaml:"heartbeatPort"`
	HeartbeatFile         string        `yaml:"heartbeatFile"`
	CheckIntervalSec      int           `yaml:"checkIntervalSec"`
	MaxReconnectAttempts  int           `yaml:"maxReconnectAttempts"`
	RecoveryNotifyTargets []string      `yaml:"recoveryNotifyTargets"`
	MQTT                  MQTTConfig    `yaml:"mqtt"`
}

// MQTTConfig optionally mirrors the heartbeat payload to an MQTT topic.
type MQTTConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BrokerURL string `yaml:"brokerURL"`
	Topic     string `yaml:"topic"`
}

// JournalConfig configures the fire-and-forget event journal.
type JournalConfig struct {
	Enabled             bool  `yaml:"enabled"`
	MaxSegmentSizeBytes int64 `yaml:"maxSegmentSizeBytes"`
	MaxSegments         int   `yaml:"maxSegments"`
}

// TaskPersistenceConfig configures crash-safe task tracking.
type TaskPersistenceConfig struct {
	Enabled          bool `yaml:"enabled"`
	RecoverOnStartup bool `yaml:"recoverOnStartup"`
}

// WebConfig configures the browser chat/dashboard surface.
type WebConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads configuration from a YAML file, expanding ${NAME}
// environment variable references before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every documented default value
// set, before a config file is layered on top.
func Default() *Config {
	return &Config{
		Verification: VerificationConfig{
			Enabled:                true,
			MaxRetries:             3,
			ConfidenceThreshold:    0.7,
			SkipForShortResponses:  true,
			ShortResponseThreshold: 50,
			Rules:                  RulesConfig{Enabled: true},
		},
		History: HistoryConfig{
			MaxMessages:         100,
			MaxSegmentSizeBytes: 524288,
			MaxSegments:         20,
		},
		Journal: JournalConfig{
			Enabled:             true,
			MaxSegmentSizeBytes: 1048576,
			MaxSegments:         10,
		},
		TaskPersistence: TaskPersistenceConfig{
			Enabled:          true,
			RecoverOnStartup: true,
		},
		Web: WebConfig{
			Enabled: true,
			Port:    3000,
		},
		Health: HealthConfig{
			HeartbeatIntervalSec: 10,
			HeartbeatPort:        3001,
			CheckIntervalSec:     30,
			MaxReconnectAttempts: 10,
		},
	}
}

// applyDefaults fills zero-valued fields that YAML unmarshalling would
// otherwise leave at Go's zero value instead of the documented default,
// and validates required fields.
func (c *Config) applyDefaults() error {
	if c.Persona.Name == "" {
		return fmt.Errorf("config: persona.name is required")
	}
	switch c.LLM.Provider {
	case ProviderDirectAPI, ProviderCopilot, ProviderClaudeCode:
	case "":
		return fmt.Errorf("config: llm.provider is required")
	default:
		return fmt.Errorf("config: unknown llm.provider %q", c.LLM.Provider)
	}
	if c.History.MaxSegmentSizeBytes == 0 {
		c.History.MaxSegmentSizeBytes = 524288
	}
	if c.History.MaxSegments == 0 {
		c.History.MaxSegments = 20
	}
	if c.Journal.MaxSegmentSizeBytes == 0 {
		c.Journal.MaxSegmentSizeBytes = 1048576
	}
	if c.Journal.MaxSegments == 0 {
		c.Journal.MaxSegments = 10
	}
	if c.Web.Port == 0 {
		c.Web.Port = 3000
	}
	if c.Health.HeartbeatPort == 0 {
		c.Health.HeartbeatPort = 3001
	}
	if c.Health.CheckIntervalSec == 0 {
		c.Health.CheckIntervalSec = 30
	}
	if c.Health.MaxReconnectAttempts == 0 {
		c.Health.MaxReconnectAttempts = 10
	}
	for id, ch := range c.Channels {
		switch ch.Type {
		case ChannelTelegram, ChannelWhatsApp, ChannelWeChat, ChannelIMessage, ChannelWeb, ChannelEmail:
		default:
			return fmt.Errorf("config: channel %q has unknown type %q", id, ch.Type)
		}
	}
	return nil
}
