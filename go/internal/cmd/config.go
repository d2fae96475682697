package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/screentime/go/internal/dbconfig"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string        `yaml:"port"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		SessionCookie  string        `yaml:"session_cookie"`
		SecureCookies  bool          `yaml:"secure_cookies"`
		SessionTTL     time.Duration `yaml:"session_ttl"`
		JanitorEvery   time.Duration `yaml:"janitor_interval"`
		WasmDir        string        `yaml:"wasm_dir"`
	} `yaml:"server"`

	WebSocket struct {
		PingInterval   time.Duration `yaml:"ping_interval"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
		SendBufferSize int           `yaml:"send_buffer_size"`
	} `yaml:"websocket"`

	Database dbconfig.Config `yaml:"database"`

	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func defaultConfig() *Config {
	var c Config
	c.Server.Port = "8080"
	c.Server.AllowedOrigins = []string{"*"}
	c.Server.SessionCookie = "session"
	c.Server.SessionTTL = 7 * 24 * time.Hour
	c.Server.JanitorEvery = time.Hour
	c.WebSocket.PingInterval = 30 * time.Second
	c.WebSocket.WriteTimeout = 10 * time.Second
	c.WebSocket.ReadTimeout = 60 * time.Second
	c.WebSocket.SendBufferSize = 16
	c.Database = dbconfig.Default()
	c.NATS.SubjectPrefix = "usage"
	c.Log.Level = "info"
	return &c
}

// loadConfig reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(config)
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// validate rejects values that would only fail later, inside a running loop
func (c *Config) validate() error {
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"server.session_ttl", c.Server.SessionTTL},
		{"server.janitor_interval", c.Server.JanitorEvery},
		{"websocket.ping_interval", c.WebSocket.PingInterval},
		{"websocket.write_timeout", c.WebSocket.WriteTimeout},
		{"websocket.read_timeout", c.WebSocket.ReadTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("invalid config: %s must be positive, got %s", d.name, d.value)
		}
	}
	if c.WebSocket.SendBufferSize <= 0 {
		return fmt.Errorf("invalid config: websocket.send_buffer_size must be positive, got %d", c.WebSocket.SendBufferSize)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(c *Config) {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.SessionCookie = getEnv("SESSION_COOKIE", c.Server.SessionCookie)
	c.Server.SecureCookies = getEnvAsBool("SECURE_COOKIES", c.Server.SecureCookies)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}
	c.Database = c.Database.WithEnv()
	c.Server.WasmDir = getEnv("WASM_DIR", c.Server.WasmDir)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

func (c *Config) logLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil || c.Log.Level == "" {
		return zerolog.InfoLevel
	}
	return level
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
