// Package config loads the cortex YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cortexlab/cortex/internal/model"
)

// Config holds all cortex configuration.
type Config struct {
	Home       string           `yaml:"home"`
	PacksDir   string           `yaml:"packs_dir"`
	DBPath     string           `yaml:"db_path"`
	CatalogURL string           `yaml:"catalog_url"`
	CacheTTL   string           `yaml:"cache_ttl"` // e.g. 7d; "0" disables expiry
	Engine     EngineConfig     `yaml:"engine"`
	Generation GenerationConfig `yaml:"generation"`
	Policy     PolicyConfig     `yaml:"policy"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// EngineConfig configures the local generation engine.
type EngineConfig struct {
	Host      string `yaml:"host"` // empty uses OLLAMA_HOST / ollama default
	Model     string `yaml:"model"`
	KeepAlive string `yaml:"keep_alive"`
}

// GenerationConfig holds the mode-dependent sampling defaults.
type GenerationConfig struct {
	Standard model.GenerationParams `yaml:"standard"`
	// DetailMaxTokens applies when the query asks for depth or continuation.
	DetailMaxTokens int `yaml:"detail_max_tokens"`
	// GroundedMaxTemperature caps caller temperature while a pack is active.
	GroundedMaxTemperature float64 `yaml:"grounded_max_temperature"`
}

// PolicyConfig configures refusals and admission.
type PolicyConfig struct {
	StrictTools  []string `yaml:"strict_tools"`
	StrictGrades []string `yaml:"strict_grades"` // empty means any grade
	BusyPolicy   string   `yaml:"busy_policy"`   // reject | queue
}

// ServerConfig configures `cortex serve`.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Mode  string `yaml:"mode"` // dev | prod
	Level string `yaml:"level"`
}

// DefaultHome returns $CORTEX_HOME or ~/.cortex.
func DefaultHome() string {
	if env := os.Getenv("CORTEX_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cortex")
}

// DefaultConfig returns a configuration rooted at home.
func DefaultConfig(home string) *Config {
	if home == "" {
		home = DefaultHome()
	}
	return &Config{
		Home:       home,
		PacksDir:   filepath.Join(home, "knowledge-packs"),
		DBPath:     filepath.Join(home, "cortex.db"),
		CatalogURL: "",
		CacheTTL:   "7d",
		Engine: EngineConfig{
			Model:     "llama3.2:3b",
			KeepAlive: "5m",
		},
		Generation: GenerationConfig{
			Standard: model.GenerationParams{
				Temperature: 0.1,
				TopP:        0.9,
				TopK:        40,
				MaxTokens:   100,
			},
			DetailMaxTokens:        256,
			GroundedMaxTemperature: 0.3,
		},
		Policy: PolicyConfig{
			StrictTools: []string{"explain"},
			BusyPolicy:  "reject",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8787",
		},
		Logging: LoggingConfig{
			Mode:  "dev",
			Level: "info",
		},
	}
}

// Path returns the config file location inside home.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// Load reads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig(filepath.Dir(path))

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("CORTEX_PACKS_DIR"); dir != "" {
		c.PacksDir = dir
	}
	if path := os.Getenv("CORTEX_DB"); path != "" {
		c.DBPath = path
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" && c.Engine.Host == "" {
		c.Engine.Host = host
	}
	if m := os.Getenv("CORTEX_MODEL"); m != "" {
		c.Engine.Model = m
	}
	if mode := os.Getenv("CORTEX_LOG_MODE"); mode != "" {
		c.Logging.Mode = mode
	}
	if url := os.Getenv("CORTEX_CATALOG_URL"); url != "" {
		c.CatalogURL = url
	}
}

// KeepAlive returns the engine keep-alive as a duration.
func (c *Config) KeepAlive() time.Duration {
	d, err := time.ParseDuration(c.Engine.KeepAlive)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// Validate checks for settings the runtime cannot work with.
func (c *Config) Validate() error {
	if c.PacksDir == "" {
		return fmt.Errorf("packs_dir is required")
	}
	if c.Engine.Model == "" {
		return fmt.Errorf("engine.model is required")
	}
	switch strings.ToLower(c.Policy.BusyPolicy) {
	case "", "reject", "queue":
	default:
		return fmt.Errorf("invalid busy_policy %q (valid: reject, queue)", c.Policy.BusyPolicy)
	}
	g := c.Generation.Standard
	if g.Temperature < 0 || g.TopP < 0 || g.TopP > 1 || g.TopK < 0 || g.MaxTokens < 0 {
		return fmt.Errorf("generation defaults out of range")
	}
	if c.Generation.GroundedMaxTemperature < 0 {
		return fmt.Errorf("grounded_max_temperature must be >= 0")
	}
	return nil
}
