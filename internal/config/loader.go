package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/rpattn/parametric/internal/db"
)

// Server holds HTTP server settings.
type Server struct {
	Addr           string
	AllowedOrigins []string
}

// Optimizer holds settings for the external completion collaborator.
type Optimizer struct {
	Endpoint    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Sharing holds share-grant settings.
type Sharing struct {
	DefaultTTL time.Duration
}

// Config is the full service configuration.
type Config struct {
	Database  db.Config
	Server    Server
	Optimizer Optimizer
	Sharing   Sharing
}

// Load reads config.yaml from configPath with environment overrides
// (PARAMETRIC_DATABASE_HOST and friends). Missing file falls back to
// defaults plus env.
func Load(configPath string) (Config, error) {
	cfg := Config{
		Database: db.DefaultConfig(),
		Server: Server{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Optimizer: Optimizer{
			Endpoint:    "https://api.openai.com/v1/completions",
			Model:       "gpt-4",
			MaxTokens:   500,
			Temperature: 0.7,
			Timeout:     60 * time.Second,
		},
		Sharing: Sharing{
			DefaultTTL: 7 * 24 * time.Hour,
		},
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("PARAMETRIC")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")
	v.BindEnv("optimizer.endpoint")
	v.BindEnv("optimizer.api_key")
	v.BindEnv("optimizer.model")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found: defaults plus env are enough to run.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("optimizer.endpoint") {
		cfg.Optimizer.Endpoint = v.GetString("optimizer.endpoint")
	}
	if v.IsSet("optimizer.api_key") {
		cfg.Optimizer.APIKey = v.GetString("optimizer.api_key")
	}
	if v.IsSet("optimizer.model") {
		cfg.Optimizer.Model = v.GetString("optimizer.model")
	}
	if v.IsSet("optimizer.max_tokens") {
		cfg.Optimizer.MaxTokens = v.GetInt("optimizer.max_tokens")
	}
	if v.IsSet("optimizer.temperature") {
		cfg.Optimizer.Temperature = v.GetFloat64("optimizer.temperature")
	}
	if v.IsSet("optimizer.timeout") {
		cfg.Optimizer.Timeout = v.GetDuration("optimizer.timeout")
	}
	if v.IsSet("sharing.default_ttl") {
		cfg.Sharing.DefaultTTL = v.GetDuration("sharing.default_ttl")
	}

	return cfg, nil
}
