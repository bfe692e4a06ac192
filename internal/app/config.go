package app

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// ConfigFilename is the name of the optional config file in the home
	// directory.
	ConfigFilename = "closedgroups.conf"

	defaultHomeDir      = ".closedgroups"
	defaultPollInterval = 4 * time.Second
	defaultDebugLevel   = "info"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Home         string        // config directory, e.g. $HOME/.closedgroups
	RelayURL     string        // relay base URL, e.g. http://127.0.0.1:8080
	PollInterval time.Duration // time between polls
	LogFile      string        // optional rotated log file
	DebugLevel   string        // "level" or "subsys=level,..."
	DBPath       string        // leveldb directory, defaults to <home>/db

	// DispatchConcurrency bounds parallel 1:1 sends per group operation.
	DispatchConcurrency int

	HTTP *http.Client // optional; defaults to http.DefaultClient
}

// fileConfig is the on-disk form of Config.
type fileConfig struct {
	Relay               string `toml:"relay"`
	PollInterval        string `toml:"pollinterval"`
	LogFile             string `toml:"logfile"`
	DebugLevel          string `toml:"debuglevel"`
	DBPath              string `toml:"dbpath"`
	DispatchConcurrency int    `toml:"dispatchconcurrency"`
}

// DefaultHome returns ~/.closedgroups.
func DefaultHome() (string, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultHomeDir), nil
}

// DefaultConfig returns the defaults for home.
func DefaultConfig(home string) Config {
	return Config{
		Home:         home,
		PollInterval: defaultPollInterval,
		DebugLevel:   defaultDebugLevel,
		DBPath:       filepath.Join(home, "db"),
	}
}

// LoadConfig returns the defaults for home overlaid with the values of the
// TOML file at path. A missing file is not an error. An empty path means
// <home>/closedgroups.conf.
func LoadConfig(home, path string) (Config, error) {
	cfg := DefaultConfig(home)
	if path == "" {
		path = filepath.Join(home, ConfigFilename)
	}

	var fc fileConfig
	_, err := toml.DecodeFile(path, &fc)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cfg, nil
	case err != nil:
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.Relay != "" {
		cfg.RelayURL = fc.Relay
	}
	if fc.PollInterval != "" {
		d, err := time.ParseDuration(fc.PollInterval)
		if err != nil {
			return cfg, fmt.Errorf("config %s: pollinterval: %w", path, err)
		}
		if d <= 0 {
			return cfg, fmt.Errorf("config %s: pollinterval must be positive", path)
		}
		cfg.PollInterval = d
	}
	if fc.LogFile != "" {
		cfg.LogFile = cleanPath(home, fc.LogFile)
	}
	if fc.DebugLevel != "" {
		cfg.DebugLevel = fc.DebugLevel
	}
	if fc.DBPath != "" {
		cfg.DBPath = cleanPath(home, fc.DBPath)
	}
	if fc.DispatchConcurrency > 0 {
		cfg.DispatchConcurrency = fc.DispatchConcurrency
	}
	return cfg, nil
}

// cleanPath resolves p relative to home unless it is absolute.
func cleanPath(home, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(home, p)
}
