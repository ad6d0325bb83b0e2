// Package config loads agentdeck configuration. A user-level file under
// ~/.agentdeck/config.yaml supplies defaults; a per-project agentdeck.yaml
// in the project root overrides them field by field.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the per-project configuration file.
const FileName = "agentdeck.yaml"

// Runtime selects how the agent process is executed.
const (
	RuntimeLocal  = "local"
	RuntimeDocker = "docker"
)

// Config is the full agentdeck configuration.
type Config struct {
	Agent       AgentConfig       `yaml:"agent"`
	Checkpoints *CheckpointConfig `yaml:"checkpoints,omitempty"`
	Events      EventsConfig      `yaml:"events"`
	Log         LogConfig         `yaml:"log"`
}

// AgentConfig controls the agent process.
type AgentConfig struct {
	// Binary is the agent CLI executable.
	Binary string `yaml:"binary"`
	// Model is the default model selector passed to the agent.
	Model string `yaml:"model"`
	// Runtime is "local" or "docker".
	Runtime string `yaml:"runtime"`
	// Image is the container image for the docker runtime.
	Image string `yaml:"image"`
	// Args are extra arguments appended to every agent invocation.
	Args []string `yaml:"args"`
}

// CheckpointConfig controls automatic workspace checkpoints.
type CheckpointConfig struct {
	AutoEnabled bool   `yaml:"auto_enabled"`
	Strategy    string `yaml:"strategy"`
}

// EventsConfig configures the optional remote event source.
type EventsConfig struct {
	// WebSocketURL, when set, bridges events from a remote agent host.
	WebSocketURL string `yaml:"websocket_url"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Agent: AgentConfig{
			Binary:  "claude",
			Runtime: RuntimeLocal,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFile reads one YAML configuration file.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Load resolves the effective configuration for a project: built-in
// defaults, overlaid with the user file if present, overlaid with the
// project file if present. Missing files are not errors.
func Load(projectPath string) (Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, ".agentdeck", "config.yaml")
		if user, err := LoadFile(userPath); err == nil {
			cfg = merge(cfg, user)
		} else if !os.IsNotExist(err) {
			return Config{}, err
		}
	}

	projectFile := filepath.Join(projectPath, FileName)
	if project, err := LoadFile(projectFile); err == nil {
		cfg = merge(cfg, project)
	} else if !os.IsNotExist(err) {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func merge(base, over Config) Config {
	out := base
	if over.Agent.Binary != "" {
		out.Agent.Binary = over.Agent.Binary
	}
	if over.Agent.Model != "" {
		out.Agent.Model = over.Agent.Model
	}
	if over.Agent.Runtime != "" {
		out.Agent.Runtime = over.Agent.Runtime
	}
	if over.Agent.Image != "" {
		out.Agent.Image = over.Agent.Image
	}
	if len(over.Agent.Args) > 0 {
		out.Agent.Args = over.Agent.Args
	}
	if over.Checkpoints != nil {
		cp := *over.Checkpoints
		out.Checkpoints = &cp
	}
	if over.Events.WebSocketURL != "" {
		out.Events.WebSocketURL = over.Events.WebSocketURL
	}
	if over.Log.Level != "" {
		out.Log.Level = over.Log.Level
	}
	if over.Log.Format != "" {
		out.Log.Format = over.Log.Format
	}
	return out
}

// Validate checks field values against their allowed sets.
func (c Config) Validate() error {
	switch c.Agent.Runtime {
	case "", RuntimeLocal, RuntimeDocker:
	default:
		return fmt.Errorf("unknown runtime %q", c.Agent.Runtime)
	}
	if c.Agent.Runtime == RuntimeDocker && c.Agent.Image == "" {
		return fmt.Errorf("docker runtime requires an image")
	}
	if c.Checkpoints != nil {
		switch c.Checkpoints.Strategy {
		case "", "manual", "per_prompt", "per_tool_use", "smart":
		default:
			return fmt.Errorf("unknown checkpoint strategy %q", c.Checkpoints.Strategy)
		}
	}
	return nil
}
