package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level process configuration for telebridge. It wires the
// process to its collaborators; per-signal trading settings live in the
// settings store, not here.
type Config struct {
	Server   Server   `yaml:"server"`
	Terminal Terminal `yaml:"terminal"`
	Chat     Chat     `yaml:"chat"`
	Storage  Storage  `yaml:"storage"`
	Trading  Trading  `yaml:"trading"`
	Notify   Notify   `yaml:"notify"`
	Logging  Logging  `yaml:"logging"`
}

// Server holds the operator API listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Terminal points at the broker terminal bridge.
type Terminal struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Chat points at the chat transport bridge.
type Chat struct {
	URL string `yaml:"url"` // websocket endpoint, e.g. ws://127.0.0.1:8484/stream
}

// Storage holds paths for the settings documents and the decision journal.
type Storage struct {
	ConfigDir   string `yaml:"config_dir"`   // settings.json, brokers.json, channels.json, leverage_maps/
	JournalPath string `yaml:"journal_path"` // sqlite database
	ExportDir   string `yaml:"export_dir"`   // parquet journal exports
}

// Trading holds constants attached to every order request.
type Trading struct {
	Deviation int    `yaml:"deviation"` // max price slippage in points
	Magic     int64  `yaml:"magic"`
	Comment   string `yaml:"comment"`
	Timezone  string `yaml:"timezone"` // calendar used for the daily balance reset
}

// Notify configures the audible success/error alerts. An empty player
// disables sounds.
type Notify struct {
	Player       string `yaml:"player"` // e.g. "aplay"
	SuccessSound string `yaml:"success_sound"`
	ErrorSound   string `yaml:"error_sound"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies defaults, and then applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Terminal.TimeoutSeconds == 0 {
		cfg.Terminal.TimeoutSeconds = 30
	}
	if cfg.Trading.Deviation == 0 {
		cfg.Trading.Deviation = 20
	}
	if cfg.Trading.Magic == 0 {
		cfg.Trading.Magic = 234000
	}
	if cfg.Trading.Comment == "" {
		cfg.Trading.Comment = "TeleBot"
	}
	if cfg.Storage.ConfigDir == "" {
		cfg.Storage.ConfigDir = "config"
	}
	if cfg.Storage.JournalPath == "" {
		cfg.Storage.JournalPath = "telebridge.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TERMINAL_URL"); v != "" {
		cfg.Terminal.BaseURL = v
	}
	if v := os.Getenv("CHAT_URL"); v != "" {
		cfg.Chat.URL = v
	}
	if v := os.Getenv("CONFIG_DIR"); v != "" {
		cfg.Storage.ConfigDir = v
	}
	if v := os.Getenv("JOURNAL_PATH"); v != "" {
		cfg.Storage.JournalPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
