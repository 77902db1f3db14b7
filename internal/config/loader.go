package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Defaults returns the built-in configuration. Paths are rooted under the
// user's home directory so a bare `parishad chat` works without a file.
func Defaults() *Config {
	base := ".parishad"
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".parishad")
	}

	return &Config{
		Runtime: RuntimeConfig{
			LogLevel:       "INFO",
			PollInterval:   500 * time.Millisecond,
			DefaultTimeout: 120 * time.Second,
			GracePeriod:    5 * time.Second,
		},
		Worker: WorkerConfig{
			Engine: "",
		},
		Paths: PathsConfig{
			HandshakeDir: filepath.Join(base, "handshake"),
			JournalPath:  filepath.Join(base, "journal.db"),
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:7457",
		},
	}
}

// Load reads and parses configuration from a file, applying defaults for any
// field left unset. A missing path returns an error; use Defaults directly
// when no file is wanted.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", absPath, err)
	}

	expandEnvRefs(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks internal consistency. Zero values that Defaults would have
// filled are rejected so a hand-written config can't silently disable polling.
func (c *Config) Validate() error {
	if c.Runtime.PollInterval <= 0 {
		return fmt.Errorf("runtime.poll_interval must be positive")
	}
	if c.Runtime.DefaultTimeout <= 0 {
		return fmt.Errorf("runtime.default_timeout must be positive")
	}
	if c.Runtime.GracePeriod < 0 {
		return fmt.Errorf("runtime.grace_period must not be negative")
	}
	if c.Paths.HandshakeDir == "" {
		return fmt.Errorf("paths.handshake_dir is empty")
	}
	if c.Paths.JournalPath == "" {
		return fmt.Errorf("paths.journal_path is empty")
	}
	if c.API.Enabled {
		if c.API.Listen == "" {
			return fmt.Errorf("api.listen is empty but api is enabled")
		}
		if c.API.APIKey == "" {
			return fmt.Errorf("api.api_key is required when api is enabled")
		}
	}
	return nil
}

// expandEnvRefs substitutes ${VAR} references in string fields that commonly
// carry secrets or machine-local paths.
func expandEnvRefs(cfg *Config) {
	cfg.API.APIKey = expandEnv(cfg.API.APIKey)
	cfg.Worker.Entrypoint = expandEnv(cfg.Worker.Entrypoint)
	cfg.Worker.Engine = expandEnv(cfg.Worker.Engine)
	cfg.Paths.HandshakeDir = expandEnv(cfg.Paths.HandshakeDir)
	cfg.Paths.JournalPath = expandEnv(cfg.Paths.JournalPath)
}

func expandEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}
