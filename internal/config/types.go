package config

import "time"

// Config is the complete portwhine configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Storage StorageConfig `yaml:"storage"`
	Runner  RunnerConfig  `yaml:"runner"`
	API     APIConfig     `yaml:"api"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StorageConfig defines where the sqlite database lives.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// RunnerConfig defines container runner settings.
type RunnerConfig struct {
	// PollInterval is how often the task queue is drained.
	PollInterval time.Duration `yaml:"poll_interval"`
	// HealthInterval is how often running containers are swept.
	HealthInterval time.Duration `yaml:"health_interval"`
	// DockerNetwork, when set, attaches scan containers to the named
	// docker network so they can reach the callback endpoint.
	DockerNetwork string `yaml:"docker_network"`
}

// APIConfig defines HTTP server settings.
type APIConfig struct {
	Listen string `yaml:"listen"`
	// APIKey, when set, is required as a bearer token on every request.
	APIKey string `yaml:"api_key"`
}

// Defaults returns a Config with working defaults for a single-host setup.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "portwhine",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Storage: StorageConfig{
			Path: "./data/portwhine.db",
		},
		Runner: RunnerConfig{
			PollInterval:   time.Second,
			HealthInterval: 30 * time.Second,
		},
		API: APIConfig{
			Listen: ":8080",
		},
	}
}
