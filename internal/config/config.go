// Package config loads server configuration from file, environment, and
// flags via viper, and reads the optional user context file.
package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"memento/internal/errors"
)

// EngineConfig is one configured LLM backend.
type EngineConfig struct {
	Endpoint string            `mapstructure:"endpoint" json:"endpoint"`
	Model    string            `mapstructure:"model" json:"model"`
	APIKey   string            `mapstructure:"apiKey" json:"-"`
	Headers  map[string]string `mapstructure:"headers" json:"headers,omitempty"`
}

// Config is the full server configuration.
type Config struct {
	ListenAddr    string                  `mapstructure:"listenAddr" json:"listenAddr"`
	BaseDir       string                  `mapstructure:"baseDir" json:"baseDir"`
	MemoryDir     string                  `mapstructure:"memoryDir" json:"memoryDir"`
	PromptsDir    string                  `mapstructure:"promptsDir" json:"promptsDir"`
	InterestsDir  string                  `mapstructure:"interestsDir" json:"interestsDir"`
	ContextFile   string                  `mapstructure:"contextFile" json:"contextFile"`
	DefaultEngine string                  `mapstructure:"defaultEngine" json:"defaultEngine"`
	Engines       map[string]EngineConfig `mapstructure:"engines" json:"engines"`
	Pricing       PricingConfig           `mapstructure:"pricing" json:"pricing"`
	Debug         bool                    `mapstructure:"debug" json:"debug"`
}

// PricingConfig sets the per-million-token unit prices for cost accounting.
type PricingConfig struct {
	InputPerMTok  float64 `mapstructure:"inputPerMTok" json:"inputPerMTok"`
	OutputPerMTok float64 `mapstructure:"outputPerMTok" json:"outputPerMTok"`
}

// Default paths relative to the user home.
const (
	defaultStateDir = ".memento"
)

func defaults(home string) map[string]any {
	state := filepath.Join(home, defaultStateDir)
	return map[string]any{
		"listenAddr":            ":8220",
		"baseDir":               state,
		"memoryDir":             filepath.Join(state, "memory"),
		"promptsDir":            filepath.Join(state, "prompts"),
		"interestsDir":          "",
		"contextFile":           filepath.Join(state, "context.json"),
		"defaultEngine":         "mock",
		"pricing.inputPerMTok":  1.0,
		"pricing.outputPerMTok": 5.0,
		"debug":                 false,
	}
}

// Load reads configuration from an optional explicit file, then
// ~/.memento/config.yaml, then MEMENTO_* environment variables, with
// defaults underneath.
func Load(configFile string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v := viper.New()
	for key, value := range defaults(home) {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix("MEMENTO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.IOf(err, "read config %s", configFile)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(home, defaultStateDir))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !stderrors.As(err, &notFound) {
				return nil, errors.IOf(err, "read config")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.IOf(err, "decode config")
	}
	if cfg.Engines == nil {
		cfg.Engines = map[string]EngineConfig{}
	}
	return &cfg, nil
}

// SessionsDir is where session artifacts live under the base dir.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.BaseDir, "sessions")
}

// LearnedRulesPath is the preference store file.
func (c *Config) LearnedRulesPath() string {
	return filepath.Join(c.PromptsDir, "learned-rules.json")
}

// DomainRulesPath is the domain-rule store file.
func (c *Config) DomainRulesPath() string {
	return filepath.Join(c.MemoryDir, "domain-rules.json")
}
