// Package config loads client settings from an optional YAML file, an
// optional .env file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Backend    BackendConfig    `mapstructure:"backend"`
	Completion CompletionConfig `mapstructure:"completion"`
	Ollama     OllamaConfig     `mapstructure:"ollama"`
	OpenRouter OpenRouterConfig `mapstructure:"openrouter"`
	State      StateConfig      `mapstructure:"state"`
	Speech     SpeechConfig     `mapstructure:"speech"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Log        LogConfig        `mapstructure:"log"`
	DevServer  DevServerConfig  `mapstructure:"devserver"`
	Catalogue  CatalogueConfig  `mapstructure:"catalogue"`
}

type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CompletionConfig picks the provider that answers chat messages:
// backend, ollama, openrouter or demo.
type CompletionConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
}

type OllamaConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

type OpenRouterConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	SiteURL string `mapstructure:"site_url"`
	AppName string `mapstructure:"app_name"`
}

// StateConfig selects where the login and preferences live.
// driver is one of memory, sqlite, mysql or redis.
type StateConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	RedisURL string `mapstructure:"redis_url"`
	Profile  string `mapstructure:"profile"`
}

type SpeechConfig struct {
	SynthCmd     string  `mapstructure:"synth_cmd"`
	RecognizeCmd string  `mapstructure:"recognize_cmd"`
	Rate         float64 `mapstructure:"rate"`
}

type ChatConfig struct {
	Language  string `mapstructure:"language"`
	AutoSpeak bool   `mapstructure:"auto_speak"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DevServerConfig struct {
	Addr         string `mapstructure:"addr"`
	DBDriver     string `mapstructure:"db_driver"`
	DBDSN        string `mapstructure:"db_dsn"`
	JWTSecret    string `mapstructure:"jwt_secret"`
	DemoName     string `mapstructure:"demo_name"`
	DemoEmail    string `mapstructure:"demo_email"`
	DemoPassword string `mapstructure:"demo_password"`
}

type CatalogueConfig struct {
	File string `mapstructure:"file"`
}

func defaultStateDSN() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "uttarakhand-companion", "state.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "http://localhost:5000/api")
	v.SetDefault("backend.timeout", 30*time.Second)

	v.SetDefault("completion.provider", "backend")
	v.SetDefault("completion.model", "")

	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "llama3:latest")

	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter.api_key", "")
	v.SetDefault("openrouter.model", "openrouter/auto")
	v.SetDefault("openrouter.site_url", "")
	v.SetDefault("openrouter.app_name", "uttarakhand-companion")

	v.SetDefault("state.driver", "sqlite")
	v.SetDefault("state.dsn", defaultStateDSN())
	v.SetDefault("state.redis_url", "redis://localhost:6379/0")
	v.SetDefault("state.profile", "default")

	v.SetDefault("speech.synth_cmd", "espeak-ng")
	v.SetDefault("speech.recognize_cmd", "")
	v.SetDefault("speech.rate", 0.9)

	v.SetDefault("chat.language", "english")
	v.SetDefault("chat.auto_speak", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("devserver.addr", ":5000")
	v.SetDefault("devserver.db_driver", "sqlite")
	v.SetDefault("devserver.db_dsn", "file::memory:?cache=shared")
	v.SetDefault("devserver.jwt_secret", "dev-secret-change-me")
	v.SetDefault("devserver.demo_name", "Demo Traveller")
	v.SetDefault("devserver.demo_email", "demo@example.com")
	v.SetDefault("devserver.demo_password", "demo1234")

	v.SetDefault("catalogue.file", "")
}

// Load reads the config file at path (if any). Every key can be
// overridden from the environment, e.g. backend.base_url from
// BACKEND_BASE_URL. A .env file in the working directory is loaded first
// and never overrides variables that are already set.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Backend.BaseURL = strings.TrimRight(cfg.Backend.BaseURL, "/")
	return cfg, nil
}
