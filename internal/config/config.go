// Package config loads the process-wide settings of nookfb.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/entro314-labs/nookfb/internal/listing"
)

const (
	DefaultADBPath        = "/usr/local/bin/adb"
	DefaultHomePath       = "/sdcard/NOOK/My Files"
	DefaultUploadPath     = "/sdcard/NOOK/My Files"
	DefaultStorageRootURL = "file:///sdcard"
	DefaultLogLevel       = "info"
)

// Config holds the settings fixed at start-up.
type Config struct {
	ADBPath         string `yaml:"adb_path"`
	HomePath        string `yaml:"home_path"`
	UploadPath      string `yaml:"upload_path"`
	StorageRootURL  string `yaml:"storage_root_url"`
	DownloadDir     string `yaml:"download_dir"`
	RecordSeparator string `yaml:"record_separator"`
	LogFile         string `yaml:"log_file"`
	LogLevel        string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ADBPath:         defaultADBPath(),
		HomePath:        DefaultHomePath,
		UploadPath:      DefaultUploadPath,
		StorageRootURL:  DefaultStorageRootURL,
		RecordSeparator: listing.DefaultSeparator,
		LogFile:         defaultLogFile(),
		LogLevel:        DefaultLogLevel,
	}
}

func defaultADBPath() string {
	if path, err := exec.LookPath("adb"); err == nil {
		return path
	}
	return DefaultADBPath
}

func defaultLogFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "nookfb", "nookfb.log")
}

// ResolvePath returns the config file to read: explicit if given, otherwise
// the first existing default location.
func ResolvePath(explicit string) (string, bool, error) {
	if explicit != "" {
		return explicit, true, nil
	}
	for _, candidate := range defaultPaths() {
		if fileExists(candidate) {
			return candidate, true, nil
		}
	}
	return "", false, nil
}

func defaultPaths() []string {
	paths := []string{}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "nookfb", "config.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "nookfb", "config.yaml"))
	}
	return paths
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// Load reads path on top of the defaults. Fields missing from the file keep
// their default value.
func Load(path string) (Config, error) {
	cfg := Default()
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

var (
	ErrNoADB            = errors.New("config: adb_path is empty")
	ErrRelativeRemote   = errors.New("config: remote paths must be absolute")
	ErrEmptySeparator   = errors.New("config: record_separator is empty")
	ErrUnknownLogLevel  = errors.New("config: unknown log_level")
	ErrEmptyStorageRoot = errors.New("config: storage_root_url is empty")
)

// Validate checks the configuration and trims trailing slashes from remote
// directories.
func (c Config) Validate() (Config, error) {
	if c.ADBPath == "" {
		return Config{}, ErrNoADB
	}
	if c.RecordSeparator == "" {
		return Config{}, ErrEmptySeparator
	}
	if c.StorageRootURL == "" {
		return Config{}, ErrEmptyStorageRoot
	}
	for _, remote := range []*string{&c.HomePath, &c.UploadPath} {
		if *remote != "" && !strings.HasPrefix(*remote, "/") {
			return Config{}, fmt.Errorf("%w: %q", ErrRelativeRemote, *remote)
		}
		*remote = strings.TrimRight(*remote, "/")
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownLogLevel, c.LogLevel)
	}
	return c, nil
}

// DownloadDirectory resolves where pulled files are stored: the configured
// directory, then XDG_DOWNLOAD_DIR, then ~/Downloads.
func (c Config) DownloadDirectory() (string, error) {
	if c.DownloadDir != "" {
		return c.DownloadDir, nil
	}
	if xdg := os.Getenv("XDG_DOWNLOAD_DIR"); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve downloads directory: %w", err)
	}
	return filepath.Join(home, "Downloads"), nil
}
