// Package config loads the engine's process-wide configuration via viper.
package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration struct, bound from environment
// variables (prefix AGENTEXEC_) and an optional config file.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Sandbox  SandboxConfig  `mapstructure:"sandbox"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Internal InternalConfig `mapstructure:"internal"`
	Docker   DockerConfig   `mapstructure:"docker"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the websocket gateway's bind address and the
// websocket origin allowlist.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// SandboxConfig controls sandbox policy inputs (spec.md §4.2 / SPEC_FULL.md §4).
type SandboxConfig struct {
	AllowHost     bool   `mapstructure:"allowHost"`
	ContainerImage string `mapstructure:"containerImage"`
}

// AgentConfig controls per-invocation defaults and directory layout.
type AgentConfig struct {
	ProjectsDir     string `mapstructure:"projectsDir"`
	BrowseRoot      string `mapstructure:"browseRoot"`
	DefaultModel    string `mapstructure:"defaultModel"`
	BinaryPath      string `mapstructure:"binaryPath"`
	SidechannelPath string `mapstructure:"sidechannelPath"`
}

// InternalConfig controls the Internal Coordination API (SPEC_FULL.md §4.5).
type InternalConfig struct {
	Host  string `mapstructure:"host"`
	Port  int    `mapstructure:"port"`
	Token string `mapstructure:"token"`
}

// DockerConfig controls the container runtime used for container-wrap mode.
type DockerConfig struct {
	Host       string `mapstructure:"host"`
	APIVersion string `mapstructure:"apiVersion"`
}

// LoggingConfig mirrors obslog.Config with mapstructure tags for viper binding.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// Load builds a Config from defaults, environment variables, and (if
// present) a config file named by path. An empty path skips file loading.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("agentexec")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:3000"})

	v.SetDefault("sandbox.allowHost", false)
	v.SetDefault("sandbox.containerImage", "agentexec-runner:latest")

	v.SetDefault("agent.projectsDir", "./projects")
	v.SetDefault("agent.browseRoot", "./projects")
	v.SetDefault("agent.defaultModel", "default")
	v.SetDefault("agent.binaryPath", "agent")
	v.SetDefault("agent.sidechannelPath", "agentexec-sidechannel")

	v.SetDefault("internal.host", "127.0.0.1")
	v.SetDefault("internal.port", 8801)
	v.SetDefault("internal.token", "")

	v.SetDefault("docker.host", "")
	v.SetDefault("docker.apiVersion", "1.41")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "")
	v.SetDefault("logging.outputPath", "stdout")
}
