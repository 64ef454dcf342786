package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"voicecmd/internal/domain"
)

type Config struct {
	WakeWords           []string        `yaml:"wake_words"`
	MatchThreshold      float64         `yaml:"match_threshold"`
	ConfidenceThreshold float64         `yaml:"confidence_threshold"`
	ExecutionTimeout    int             `yaml:"execution_timeout"`
	CommandDwell        string          `yaml:"command_dwell"`
	Source              SourceConfig    `yaml:"source"`
	Whisper             WhisperConfig   `yaml:"whisper"`
	Pushover            PushoverConfig  `yaml:"pushover"`
	Log                 LogConfig       `yaml:"log"`
	Commands            []CommandConfig `yaml:"commands"`
}

type SourceConfig struct {
	Type       string `yaml:"type"`
	HTTPAddr   string `yaml:"http_addr"`
	AuthToken  string `yaml:"auth_token"`
	FileDir    string `yaml:"file_dir"`
	SampleRate int    `yaml:"sample_rate"`
}

type WhisperConfig struct {
	ModelPath string `yaml:"model_path"`
	Language  string `yaml:"language"`
}

type PushoverConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type CommandConfig struct {
	Phrases     []string     `yaml:"phrases"`
	Action      ActionConfig `yaml:"action"`
	Description string       `yaml:"description"`
}

type ActionConfig struct {
	Type     string   `yaml:"type"`
	Command  string   `yaml:"command"`
	Commands []string `yaml:"commands"`
	Module   string   `yaml:"module"`
	Function string   `yaml:"function"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if len(c.WakeWords) == 0 {
		c.WakeWords = []string{"hey assistant"}
	}
	if c.MatchThreshold == 0 {
		c.MatchThreshold = 0.75
	}
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = 0.5
	}
	if c.ExecutionTimeout == 0 {
		c.ExecutionTimeout = 30
	}
	if c.CommandDwell == "" {
		c.CommandDwell = "15s"
	}
	if c.Source.Type == "" {
		c.Source.Type = "http"
	}
	if c.Source.HTTPAddr == "" {
		c.Source.HTTPAddr = ":8080"
	}
	if c.Source.FileDir == "" {
		c.Source.FileDir = "./audio"
	}
	if c.Source.SampleRate == 0 {
		c.Source.SampleRate = 16000
	}
	if c.Whisper.Language == "" {
		c.Whisper.Language = "en"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// Validate rejects semantically inconsistent configuration before the state
// machine starts. Rules: every command needs phrases and a resolvable action,
// thresholds stay in [0,1], and any placeholder referenced by an action must
// appear in at least one of that command's phrases.
func (c *Config) Validate() error {
	if c.MatchThreshold < 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("match_threshold %v out of range [0,1]", c.MatchThreshold)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold %v out of range [0,1]", c.ConfidenceThreshold)
	}
	if c.ExecutionTimeout < 0 {
		return fmt.Errorf("execution_timeout must be positive, got %d", c.ExecutionTimeout)
	}
	if _, err := time.ParseDuration(c.CommandDwell); err != nil {
		return fmt.Errorf("command_dwell: %w", err)
	}

	for i, cmd := range c.Commands {
		if len(cmd.Phrases) == 0 {
			return fmt.Errorf("command %d (%s): phrases must not be empty", i, cmd.Description)
		}
		if err := cmd.validateAction(); err != nil {
			return fmt.Errorf("command %d (%s): %w", i, cmd.Description, err)
		}
		if err := cmd.validatePlaceholders(); err != nil {
			return fmt.Errorf("command %d (%s): %w", i, cmd.Description, err)
		}
	}

	return nil
}

func (cmd *CommandConfig) validateAction() error {
	switch cmd.Action.Type {
	case "shell", "":
		if cmd.Action.Command == "" && len(cmd.Action.Commands) == 0 {
			return fmt.Errorf("shell action needs command or commands")
		}
	case "function", "python":
		if cmd.Action.Function == "" {
			return fmt.Errorf("function action needs a function name")
		}
	case "builtin":
		switch cmd.Action.Command {
		case "exit", "help":
		default:
			return fmt.Errorf("unknown builtin %q", cmd.Action.Command)
		}
	default:
		return fmt.Errorf("unknown action type %q", cmd.Action.Type)
	}
	return nil
}

func (cmd *CommandConfig) validatePlaceholders() error {
	declared := make(map[string]bool)
	for _, phrase := range cmd.Phrases {
		for _, m := range placeholderPattern.FindAllStringSubmatch(phrase, -1) {
			declared[m[1]] = true
		}
	}

	templates := cmd.Action.Commands
	if cmd.Action.Command != "" && cmd.Action.Type != "builtin" {
		templates = append([]string{cmd.Action.Command}, templates...)
	}
	for _, tpl := range templates {
		for _, m := range placeholderPattern.FindAllStringSubmatch(tpl, -1) {
			if !declared[m[1]] {
				return fmt.Errorf("action references placeholder {%s} not present in any phrase", m[1])
			}
		}
	}
	return nil
}

// Specs converts the validated command list into the immutable domain form
// shared across the pipeline.
func (c *Config) Specs() []domain.CommandSpec {
	specs := make([]domain.CommandSpec, 0, len(c.Commands))
	for _, cmd := range c.Commands {
		action := domain.Action{}
		switch cmd.Action.Type {
		case "builtin":
			action.Type = domain.ActionBuiltin
			action.Builtin = cmd.Action.Command
		case "function", "python":
			action.Type = domain.ActionFunction
			action.Module = cmd.Action.Module
			action.Function = cmd.Action.Function
		default:
			action.Type = domain.ActionShell
			if cmd.Action.Command != "" {
				action.Commands = []string{cmd.Action.Command}
			} else {
				action.Commands = cmd.Action.Commands
			}
		}

		specs = append(specs, domain.CommandSpec{
			Phrases:     cmd.Phrases,
			Action:      action,
			Description: cmd.Description,
		})
	}
	return specs
}

// Dwell returns the parsed command-mode dwell window. Validate has already
// checked the string parses.
func (c *Config) Dwell() time.Duration {
	d, _ := time.ParseDuration(c.CommandDwell)
	return d
}

// Timeout returns the execution timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.ExecutionTimeout) * time.Second
}
