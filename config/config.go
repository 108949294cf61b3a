package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/aicli-sh/aicli/errors"
	"gopkg.in/yaml.v3"
)

// ModelType selects the wire protocol family and context window for a model.
type ModelType string

const (
	ModelClaude   ModelType = "claude"
	ModelGPT      ModelType = "gpt"
	ModelDeepSeek ModelType = "deepseek"
	ModelOther    ModelType = "other"
)

// MaxContext returns the context window size assumed for the family.
func (t ModelType) MaxContext() int {
	switch t {
	case ModelClaude:
		return 200000
	case ModelGPT:
		return 128000
	case ModelDeepSeek:
		return 64000
	default:
		return 32000
	}
}

func (t ModelType) String() string {
	switch t {
	case ModelClaude:
		return "Claude"
	case ModelGPT:
		return "GPT"
	case ModelDeepSeek:
		return "DeepSeek"
	default:
		return "Other"
	}
}

// ModelConfig describes one reachable model endpoint.
type ModelConfig struct {
	Name        string    `yaml:"name"`
	APIKey      string    `yaml:"api_key"`
	Endpoint    string    `yaml:"endpoint"`
	Deployment  string    `yaml:"deployment"`
	Type        ModelType `yaml:"type"`
	MaxTokens   int       `yaml:"max_tokens"`
	Temperature float64   `yaml:"temperature"`
}

type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

type Config struct {
	ActiveModel      string                 `yaml:"active_model"`
	Models           map[string]ModelConfig `yaml:"models"`
	Toolsets         []Toolset              `yaml:"toolsets"`
	MCPServers       []MCPServer            `yaml:"mcp_servers"`
	AllowedCommands  []string               `yaml:"allowed_commands"`
	FilesystemAccess FilesystemAccess       `yaml:"filesystem_access"`
}

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence. AICLI_API_KEY,
// AICLI_ENDPOINT and AICLI_DEPLOYMENT override everything and synthesize an
// active model when set together.
func LoadConfig() (*Config, error) {
	cfg := &Config{Models: map[string]ModelConfig{}}

	// The session/config directory is never exposed to tools.
	cfg.FilesystemAccess.Hidden = append(cfg.FilesystemAccess.Hidden, ".aicli", ".aicli/**")

	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, ".aicli", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ".aicli", "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites fields present in the YAML, so project-level config
	// replaces user-level on a per-field basis.
	return yaml.Unmarshal(data, cfg)
}

// applyEnv registers a model from environment variables and makes it active.
func (c *Config) applyEnv() {
	apiKey := os.Getenv("AICLI_API_KEY")
	endpoint := os.Getenv("AICLI_ENDPOINT")
	deployment := os.Getenv("AICLI_DEPLOYMENT")
	if apiKey == "" || endpoint == "" || deployment == "" {
		return
	}
	if c.Models == nil {
		c.Models = map[string]ModelConfig{}
	}
	c.Models[deployment] = ModelConfig{
		Name:        deployment,
		APIKey:      apiKey,
		Endpoint:    endpoint,
		Deployment:  deployment,
		Type:        DetectModelType(deployment),
		MaxTokens:   4096,
		Temperature: 0.7,
	}
	c.ActiveModel = deployment
}

// ActiveModelConfig resolves the active model. This is the only fatal startup
// condition in the program.
func (c *Config) ActiveModelConfig() (ModelConfig, error) {
	m, ok := c.Models[c.ActiveModel]
	if !ok {
		return ModelConfig{}, errors.New("no active model configured")
	}
	if m.Name == "" {
		m.Name = c.ActiveModel
	}
	if m.MaxTokens == 0 {
		m.MaxTokens = 4096
	}
	if m.Temperature == 0 {
		m.Temperature = 0.7
	}
	if m.Type == "" {
		m.Type = DetectModelType(m.Deployment)
	}
	return m, nil
}

// SetActiveModel switches the active model. Returns false when no such model
// is configured.
func (c *Config) SetActiveModel(name string) bool {
	if _, ok := c.Models[name]; !ok {
		return false
	}
	c.ActiveModel = name
	return true
}

// GetToolset finds a toolset by name, falling back to "default". A missing
// default toolset means every registered tool is active.
func (c *Config) GetToolset(name string) *Toolset {
	if name == "" {
		name = "default"
	}
	for i := range c.Toolsets {
		if c.Toolsets[i].Name == name {
			return &c.Toolsets[i]
		}
	}
	if name != "default" {
		return c.GetToolset("default")
	}
	return nil
}

// DetectModelType guesses the protocol family from a deployment name.
func DetectModelType(deployment string) ModelType {
	d := strings.ToLower(deployment)
	switch {
	case strings.Contains(d, "claude"):
		return ModelClaude
	case strings.Contains(d, "gpt"):
		return ModelGPT
	case strings.Contains(d, "deepseek"):
		return ModelDeepSeek
	default:
		return ModelOther
	}
}
