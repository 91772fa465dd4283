package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
adb_path: /opt/platform-tools/adb
home_path: /sdcard/Books/
record_separator: "\n"
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	cfg, err = cfg.Validate()
	if err != nil {
		t.Fatalf("Validate error = %v", err)
	}

	if cfg.ADBPath != "/opt/platform-tools/adb" {
		t.Errorf("ADBPath = %q", cfg.ADBPath)
	}
	if cfg.HomePath != "/sdcard/Books" {
		t.Errorf("HomePath = %q, want trailing slash trimmed", cfg.HomePath)
	}
	if cfg.RecordSeparator != "\n" {
		t.Errorf("RecordSeparator = %q", cfg.RecordSeparator)
	}
	if cfg.UploadPath != DefaultUploadPath {
		t.Errorf("UploadPath = %q, want default", cfg.UploadPath)
	}
	if cfg.StorageRootURL != DefaultStorageRootURL {
		t.Errorf("StorageRootURL = %q, want default", cfg.StorageRootURL)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
	if _, err := Load(writeConfig(t, "adb_path: [unterminated")); err == nil {
		t.Error("Load of invalid YAML succeeded")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "no adb", mutate: func(c *Config) { c.ADBPath = "" }, want: ErrNoADB},
		{name: "relative home", mutate: func(c *Config) { c.HomePath = "sdcard" }, want: ErrRelativeRemote},
		{name: "relative upload", mutate: func(c *Config) { c.UploadPath = "NOOK" }, want: ErrRelativeRemote},
		{name: "empty separator", mutate: func(c *Config) { c.RecordSeparator = "" }, want: ErrEmptySeparator},
		{name: "bad level", mutate: func(c *Config) { c.LogLevel = "chatty" }, want: ErrUnknownLogLevel},
		{name: "no storage root", mutate: func(c *Config) { c.StorageRootURL = "" }, want: ErrEmptyStorageRoot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			_, err := cfg.Validate()
			if tt.want == nil && err != nil {
				t.Fatalf("Validate error = %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("Validate error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("HOME", t.TempDir())

	if _, ok, _ := ResolvePath(""); ok {
		t.Fatal("ResolvePath found a config in empty directories")
	}

	want := filepath.Join(xdg, "nookfb", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(want), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(want, []byte("log_level: warn\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, ok, err := ResolvePath("")
	if err != nil || !ok || got != want {
		t.Errorf("ResolvePath = %q, %v, %v; want %q", got, ok, err, want)
	}

	explicit, ok, _ := ResolvePath("/etc/nookfb.yaml")
	if !ok || explicit != "/etc/nookfb.yaml" {
		t.Errorf("explicit ResolvePath = %q, %v", explicit, ok)
	}
}

func TestDownloadDirectory(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_DOWNLOAD_DIR", "")

	cfg := Default()
	got, err := cfg.DownloadDirectory()
	if err != nil || got != filepath.Join(home, "Downloads") {
		t.Errorf("DownloadDirectory = %q, %v", got, err)
	}

	t.Setenv("XDG_DOWNLOAD_DIR", "/data/dl")
	if got, _ := cfg.DownloadDirectory(); got != "/data/dl" {
		t.Errorf("DownloadDirectory with XDG = %q", got)
	}

	cfg.DownloadDir = "/mnt/books"
	if got, _ := cfg.DownloadDirectory(); got != "/mnt/books" {
		t.Errorf("DownloadDirectory with config = %q", got)
	}
}
