package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/splax/livelog/pkg/client"
)

type cliConfig struct {
	ServerURL string `json:"server_url"`
	// Access maps session tokens to viewer tokens obtained by joining.
	Access map[string]string `json:"access,omitempty"`
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	if override := strings.TrimSpace(os.Getenv("LIVELOGCTL_CONFIG")); override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "livelog", "config.json"), nil
}

// newClient resolves the server from --server, LIVELOG_SERVER or the saved
// config, in that order.
func newClient(flags *globalFlags) (*client.Client, cliConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cliConfig{}, err
	}
	server := strings.TrimSpace(flags.server)
	if server == "" {
		server = strings.TrimSpace(os.Getenv("LIVELOG_SERVER"))
	}
	if server == "" {
		server = cfg.ServerURL
	}
	cli, err := client.New(server)
	if err != nil {
		return nil, cliConfig{}, err
	}
	return cli, cfg, nil
}
