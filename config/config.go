package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the boardroom system
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig selects the planning provider and its backends.
// Provider is "auto" (prefer groq, then deepseek, then mock), or one of
// "groq", "deepseek", "mock". Model, when set, overrides every agent's
// default model.
type LLMConfig struct {
	Provider     string        `mapstructure:"provider"`
	Model        string        `mapstructure:"model"`
	Groq         BackendConfig `mapstructure:"groq"`
	DeepSeek     BackendConfig `mapstructure:"deepseek"`
	Timeout      time.Duration `mapstructure:"timeout"`
	LeaderPrompt string        `mapstructure:"leader_prompt"`
}

// BackendConfig holds one chat-completion backend's credentials.
type BackendConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a postgres connection string from the individual fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	host := p.Host
	if host == "" {
		host = "localhost"
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, host, port, p.DBName, ssl)
}

// NotifyConfig configures the board-activity broadcast channel.
type NotifyConfig struct {
	Enabled bool        `mapstructure:"enabled"`
	Stream  string      `mapstructure:"stream"`
	MaxLen  int64       `mapstructure:"max_len"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Addr() string {
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", host, port)
}

// WorkspaceConfig controls where generated app workspaces live.
type WorkspaceConfig struct {
	AppsRoot     string   `mapstructure:"apps_root"`
	Folders      []string `mapstructure:"folders"`
	CreateVSCode bool     `mapstructure:"create_vscode"`
}

// Normalize applies defaults for unset workspace values.
func (w WorkspaceConfig) Normalize() WorkspaceConfig {
	if strings.TrimSpace(w.AppsRoot) == "" {
		wd, err := os.Getwd()
		if err != nil {
			wd = "."
		}
		w.AppsRoot = filepath.Join(wd, "apps")
	}
	if len(w.Folders) == 0 {
		w.Folders = []string{"src", "tests"}
	}
	return w
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":10001")
	viper.SetDefault("llm.provider", "auto")
	viper.SetDefault("llm.timeout", "120s")
	viper.SetDefault("llm.groq.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("llm.deepseek.base_url", "https://api.deepseek.com/v1")
	viper.SetDefault("notify.enabled", false)
	viper.SetDefault("notify.stream", "board:activity")
	viper.SetDefault("workspace.create_vscode", true)
	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.cost_tracking", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("BOARDROOM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// API keys are conventionally provided as bare env vars.
	_ = viper.BindEnv("llm.groq.api_key", "BOARDROOM_LLM_GROQ_API_KEY", "GROQ_API_KEY")
	_ = viper.BindEnv("llm.deepseek.api_key", "BOARDROOM_LLM_DEEPSEEK_API_KEY", "DEEPSEEK_API_KEY")
	_ = viper.BindEnv("workspace.apps_root", "BOARDROOM_WORKSPACE_APPS_ROOT", "APPS_ROOT")

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	config.Workspace = config.Workspace.Normalize()
	return &config
}
