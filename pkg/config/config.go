package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the process configuration for a grove installation.
type Config struct {
	Garden GardenConfig `yaml:"garden"`
	API    APIConfig    `yaml:"api"`
	Data   DataConfig   `yaml:"data"`
	Log    LogConfig    `yaml:"log"`
}

// GardenConfig identifies the local garden.
type GardenConfig struct {
	Name string `yaml:"name"`
}

// APIConfig configures the HTTP API listener. Host, Port, URLPrefix and
// SSL double as the platform's own connection settings, which is where
// the reconciler's safe connection defaults come from.
type APIConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	URLPrefix string `yaml:"url_prefix"`
	SSL       bool   `yaml:"ssl"`
	CACert    string `yaml:"ca_cert"`
	CAVerify  bool   `yaml:"ca_verify"`
	CertFile  string `yaml:"cert_file"`
	KeyFile   string `yaml:"key_file"`
}

// DataConfig configures persistent storage.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Garden: GardenConfig{Name: "default"},
		API: APIConfig{
			Host:      "localhost",
			Port:      2337,
			URLPrefix: "/",
		},
		Data: DataConfig{Dir: "./data"},
		Log:  LogConfig{Level: "info"},
	}
}

// Load reads configuration from the given YAML file, applying defaults
// for anything left unset. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if cfg.Garden.Name == "" {
		return nil, fmt.Errorf("garden.name must not be empty")
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Garden.Name == "" {
		c.Garden.Name = def.Garden.Name
	}
	if c.API.Host == "" {
		c.API.Host = def.API.Host
	}
	if c.API.Port == 0 {
		c.API.Port = def.API.Port
	}
	if c.API.URLPrefix == "" {
		c.API.URLPrefix = def.API.URLPrefix
	}
	if c.Data.Dir == "" {
		c.Data.Dir = def.Data.Dir
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// ConnectionDefaults builds the safe http connection parameter set the
// reconciler falls back to, derived from this installation's own
// settings. The result is always schema-valid.
func (c *Config) ConnectionDefaults() map[string]any {
	host := c.API.Host
	if host == "" {
		host = "localhost"
	}
	port := c.API.Port
	if port <= 0 || port >= 65535 {
		port = 2337
	}
	prefix := c.API.URLPrefix
	if prefix == "" {
		prefix = "/"
	}

	return map[string]any{
		"host":        host,
		"port":        port,
		"url_prefix":  prefix,
		"ca_cert":     c.API.CACert,
		"ca_verify":   c.API.CAVerify,
		"client_cert": "",
		"ssl":         c.API.SSL,
	}
}

// ListenAddr returns the host:port the API server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}
