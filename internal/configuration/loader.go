package configuration

import (
	"errors"
	"fmt"
	"hyperraft/internal/configuration/properties"
	"hyperraft/internal/configuration/util"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	ConfigDirEnv     = "HYPERRAFT_CONFIG_DIR"
	defaultConfigDir = "internal/static"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Load reads application.yml and its profile overlay from HYPERRAFT_CONFIG_DIR,
// falling back to internal/static.
func Load() (*properties.Config, error) {
	dir := os.Getenv(ConfigDirEnv)
	if dir == "" {
		dir = defaultConfigDir
	}
	return LoadFrom(dir)
}

func LoadFrom(dir string) (*properties.Config, error) {
	cfg, err := loadBaseConfig(dir)
	if err != nil {
		return nil, err
	}

	if err := loadProfileConfig(dir, cfg); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadBaseConfig(dir string) (*properties.Config, error) {
	baseConfig, err := util.LoadAndExpandYaml(dir, "application")
	if err != nil {
		slog.Error("Error loading base config", "error", err)
		return nil, err
	}

	cfg := properties.Config{}
	if err := yaml.Unmarshal([]byte(baseConfig), &cfg); err != nil {
		slog.Error("Error parsing base config", "error", err)
		return nil, fmt.Errorf("parse application.yml: %w", err)
	}
	return &cfg, nil
}

func loadProfileConfig(dir string, cfg *properties.Config) error {
	if cfg.Application.Profile == "" {
		return fmt.Errorf("app.profile is not set: %w", ErrInvalidConfig)
	}

	name := "application-" + cfg.Application.Profile
	profileConfig, err := util.LoadAndExpandYaml(dir, name)
	if err != nil {
		slog.Error("Error loading profile config", "profile", cfg.Application.Profile, "error", err)
		return err
	}

	if err := yaml.Unmarshal([]byte(profileConfig), cfg); err != nil {
		slog.Error("Error parsing profile config", "profile", cfg.Application.Profile, "error", err)
		return fmt.Errorf("parse %s.yml: %w", name, err)
	}
	return nil
}

func validate(cfg *properties.Config) error {
	r := &cfg.Raft
	switch {
	case r.NodeID == 0:
		return fmt.Errorf("raft.node-id must be set: %w", ErrInvalidConfig)
	case len(r.Peers) > 0 && r.Peers[r.NodeID] == "":
		return fmt.Errorf("raft.peers has no address for node %d: %w", r.NodeID, ErrInvalidConfig)
	case r.StorageDir == "":
		return fmt.Errorf("raft.storage-dir must be set: %w", ErrInvalidConfig)
	case cfg.Transport.RaftPort == "" || cfg.Transport.ClientPort == "":
		return fmt.Errorf("transport.raft-port and transport.client-port must be set: %w", ErrInvalidConfig)
	}
	if cfg.Transport.Network == "" {
		cfg.Transport.Network = "tcp"
	}
	return nil
}
