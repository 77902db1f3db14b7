package config

import "time"

// Config represents the complete parishad configuration.
type Config struct {
	Runtime RuntimeConfig `yaml:"runtime"`
	Worker  WorkerConfig  `yaml:"worker"`
	Paths   PathsConfig   `yaml:"paths"`
	API     APIConfig     `yaml:"api,omitempty"`
}

// RuntimeConfig defines host-loop and supervision settings.
type RuntimeConfig struct {
	LogLevel       string        `yaml:"log_level"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	GracePeriod    time.Duration `yaml:"grace_period"`
}

// WorkerConfig defines how the inference worker process is launched.
type WorkerConfig struct {
	// Entrypoint is the worker command. Empty means re-exec the current
	// binary with "worker run".
	Entrypoint string   `yaml:"entrypoint,omitempty"`
	Args       []string `yaml:"args,omitempty"`
	Dir        string   `yaml:"dir,omitempty"`
	Env        []string `yaml:"env,omitempty"`

	// Engine is the command the worker runs to produce an answer.
	// Prompt arrives on stdin, answer is read from stdout.
	Engine     string   `yaml:"engine"`
	EngineArgs []string `yaml:"engine_args,omitempty"`
}

// PathsConfig defines filesystem locations owned by parishad.
type PathsConfig struct {
	HandshakeDir string `yaml:"handshake_dir"`
	JournalPath  string `yaml:"journal_path"`
}

// APIConfig defines the optional local status API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key,omitempty"`
}
