// Package config loads todostore settings from yaml and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	BackendDirect = "direct"
	BackendScoped = "scoped"

	WatchNotify = "fsnotify"
	WatchPoll   = "poll"
)

// Config is the full todostore configuration.
type Config struct {
	// direct | scoped
	Backend string `yaml:"backend" mapstructure:"backend"`
	// Directory of the documents for the direct backend.
	Dir      string `yaml:"dir" mapstructure:"dir"`
	TodoFile string `yaml:"todo_file" mapstructure:"todo_file"`
	DoneFile string `yaml:"done_file" mapstructure:"done_file"`
	EOL      string `yaml:"eol" mapstructure:"eol"`
	// How long change notifications are ignored after a save.
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period"`

	Watch  WatchConfig  `yaml:"watch" mapstructure:"watch"`
	Scoped ScopedConfig `yaml:"scoped" mapstructure:"scoped"`
}

type WatchConfig struct {
	// fsnotify | poll
	Mode         string        `yaml:"mode" mapstructure:"mode"`
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

type ScopedConfig struct {
	Database string `yaml:"database" mapstructure:"database"`
	Root     string `yaml:"root" mapstructure:"root"`
}

func DefaultConfig() *Config {
	return &Config{
		Backend:     BackendDirect,
		Dir:         DefaultDir(),
		TodoFile:    "todo.txt",
		DoneFile:    "done.txt",
		EOL:         "\n",
		GracePeriod: time.Second,
		Watch: WatchConfig{
			Mode:         WatchNotify,
			PollInterval: 2 * time.Second,
		},
		Scoped: ScopedConfig{
			Database: filepath.Join(DefaultDir(), "documents.db"),
			Root:     "todo",
		},
	}
}

// DefaultDir is ~/.todostore, or the working directory when there is no
// home directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".todostore")
}

// DefaultPath is the config file read when none is given.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Load reads path over the defaults. A missing file yields the defaults.
// Every key can be overridden with TODOSTORE_<KEY>, e.g.
// TODOSTORE_WATCH_MODE=poll.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)
	v.SetEnvPrefix("TODOSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("dir", cfg.Dir)
	v.SetDefault("todo_file", cfg.TodoFile)
	v.SetDefault("done_file", cfg.DoneFile)
	v.SetDefault("eol", cfg.EOL)
	v.SetDefault("grace_period", cfg.GracePeriod)
	v.SetDefault("watch.mode", cfg.Watch.Mode)
	v.SetDefault("watch.poll_interval", cfg.Watch.PollInterval)
	v.SetDefault("scoped.database", cfg.Scoped.Database)
	v.SetDefault("scoped.root", cfg.Scoped.Root)
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendDirect, BackendScoped:
	default:
		return fmt.Errorf("invalid backend %q: must be %q or %q", c.Backend, BackendDirect, BackendScoped)
	}
	switch c.Watch.Mode {
	case WatchNotify, WatchPoll:
	default:
		return fmt.Errorf("invalid watch mode %q: must be %q or %q", c.Watch.Mode, WatchNotify, WatchPoll)
	}
	if c.GracePeriod <= 0 {
		return fmt.Errorf("grace_period must be positive, got %s", c.GracePeriod)
	}
	if c.EOL == "" {
		return fmt.Errorf("eol must not be empty")
	}
	return nil
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string) error {
	b, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	content := "# todostore configuration\n" + string(b)
	return os.WriteFile(path, []byte(content), 0o644)
}
