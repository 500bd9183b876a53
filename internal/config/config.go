package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Server describes one managed game server. Immutable after Load.
type Server struct {
	Name       string `yaml:"name"`
	Password   string `yaml:"password"`
	Port       int    `yaml:"port"`
	LogHook    string `yaml:"loghook"`    // posts a new message per event
	StatusHook string `yaml:"statushook"` // edits a single message in place
	Broadcast  bool   `yaml:"-"`          // at most one server relays to spectators
}

// Global holds settings that apply to the whole process.
type Global struct {
	BinPath   string `yaml:"bin_path" env:"CHSERVER_BIN_PATH"`
	Host      string `yaml:"host" env:"BASTION_WS_HOST"`
	Port      int    `yaml:"port" env:"BASTION_WS_PORT"`
	CachePath string `yaml:"cache_path" env:"BASTION_CACHE_PATH"`
}

type Config struct {
	Global  Global   `yaml:"global"`
	Servers []Server `yaml:"servers"`
}

// Load reads configuration from an optional YAML file and overlays the
// environment. A .env file in the working directory is loaded first if
// present. Per-server settings come from the BASTION_SERVER_<i>_* sequence,
// scanned from 1 until the first missing NAME; when that sequence is present
// it replaces any server list from the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	// Defaults first, then the file, then the environment on top.
	cfg := &Config{Global: Global{
		Host:      "0.0.0.0",
		Port:      8080,
		CachePath: "cache.json",
	}}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg.Global); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if envServers := serversFromEnv(); len(envServers) > 0 {
		cfg.Servers = envServers
	}

	// Server-list validation (at least one, unique ports) belongs to the
	// session registry, which is built from this list.

	// Only the first configured server is broadcast-eligible.
	for i := range cfg.Servers {
		cfg.Servers[i].Broadcast = i == 0
	}

	return cfg, nil
}

func serversFromEnv() []Server {
	var servers []Server
	for i := 1; ; i++ {
		prefix := fmt.Sprintf("BASTION_SERVER_%d_", i)
		name := os.Getenv(prefix + "NAME")
		if name == "" {
			break
		}
		port, _ := strconv.Atoi(os.Getenv(prefix + "PORT"))
		servers = append(servers, Server{
			Name:       name,
			Password:   os.Getenv(prefix + "PASSWORD"),
			Port:       port,
			LogHook:    os.Getenv(prefix + "LOGHOOK"),
			StatusHook: os.Getenv(prefix + "STATUSHOOK"),
		})
	}
	return servers
}
