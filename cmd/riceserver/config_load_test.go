package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"riceserver/internal/cli"
	"riceserver/internal/logging"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RICE_CONFIG_DIR", "")
	t.Setenv("RICE_PORT", "")
	t.Setenv("RICE_HOST", "")
	t.Setenv("RICE_TOKEN", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func writeSettings(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "server.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()

	cfg, err := loadConfig([]string{"--config-dir", dir})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ConfigDir != dir {
		t.Fatalf("expected config dir %q, got %q", dir, cfg.ConfigDir)
	}
	if cfg.Settings.Server.Port != 5000 || cfg.Settings.Server.Host != "localhost" {
		t.Fatalf("unexpected server settings: %+v", cfg.Settings.Server)
	}
	if cfg.Settings.Watch.Debounce != 2*time.Second {
		t.Fatalf("expected 2s debounce, got %v", cfg.Settings.Watch.Debounce)
	}
	if cfg.LogLevel != logging.LevelInfo {
		t.Fatalf("expected info level, got %q", cfg.LogLevel)
	}
	if cfg.Sources["server.port"] != sourceDefault {
		t.Fatalf("expected default port source, got %q", cfg.Sources["server.port"])
	}
	if cfg.Sources["config-dir"] != sourceFlag {
		t.Fatalf("expected flag config-dir source, got %q", cfg.Sources["config-dir"])
	}
}

func TestLoadConfigDefaultDirFollowsXDG(t *testing.T) {
	clearConfigEnv(t)
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)

	cfg, err := loadConfig(nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ConfigDir != filepath.Join(base, "riceserver") {
		t.Fatalf("unexpected config dir %q", cfg.ConfigDir)
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	writeSettings(t, dir, `
[server]
host = "0.0.0.0"
port = 6000
token = "file-token"

[watch]
debounce = "500ms"
`)
	t.Setenv("RICE_CONFIG_DIR", dir)
	t.Setenv("RICE_PORT", "7000")
	t.Setenv("RICE_TOKEN", "env-token")

	cfg, err := loadConfig([]string{"--token", "flag-token"})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ConfigDir != dir || cfg.Sources["config-dir"] != sourceEnv {
		t.Fatalf("expected env config dir, got %q from %q", cfg.ConfigDir, cfg.Sources["config-dir"])
	}
	if cfg.Settings.Server.Host != "0.0.0.0" || cfg.Sources["server.host"] != sourceFile {
		t.Fatalf("expected file host, got %q from %q", cfg.Settings.Server.Host, cfg.Sources["server.host"])
	}
	if cfg.Settings.Server.Port != 7000 || cfg.Sources["server.port"] != sourceEnv {
		t.Fatalf("expected env port, got %d from %q", cfg.Settings.Server.Port, cfg.Sources["server.port"])
	}
	if cfg.Settings.Server.Token != "flag-token" || cfg.Sources["server.token"] != sourceFlag {
		t.Fatalf("expected flag token, got %q from %q", cfg.Settings.Server.Token, cfg.Sources["server.token"])
	}
	if cfg.Settings.Watch.Debounce != 500*time.Millisecond || cfg.Sources["watch.debounce"] != sourceFile {
		t.Fatalf("expected file debounce, got %v", cfg.Settings.Watch.Debounce)
	}
	if cfg.Settings.Apply.Timeout != 2*time.Minute || cfg.Sources["apply.timeout"] != sourceDefault {
		t.Fatalf("expected default apply timeout, got %v", cfg.Settings.Apply.Timeout)
	}

	cfg, err = loadConfig([]string{"--port", "8000", "--host", "127.0.0.1"})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Settings.Server.Port != 8000 || cfg.Settings.Server.Host != "127.0.0.1" {
		t.Fatalf("expected flags to win, got %+v", cfg.Settings.Server)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		env  string
		args []string
	}{
		{name: "env port", env: "abc"},
		{name: "flag port", args: []string{"--port", "70000"}},
		{name: "empty host", args: []string{"--host", " "}},
		{name: "empty config dir", args: []string{"--config-dir", ""}},
		{name: "stray argument", args: []string{"serve"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv("RICE_PORT", tc.env)
			if _, err := loadConfig(tc.args); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadConfigMalformedFile(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	writeSettings(t, dir, "[server\nport = ")

	if _, err := loadConfig([]string{"--config-dir", dir}); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestLoadConfigVerbosity(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()

	cfg, err := loadConfig([]string{"--config-dir", dir, "--verbose"})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.LogLevel != logging.LevelDebug || cfg.Sources["log.level"] != sourceFlag {
		t.Fatalf("expected debug from flag, got %q from %q", cfg.LogLevel, cfg.Sources["log.level"])
	}

	_, err = loadConfig([]string{"--config-dir", dir, "--verbose", "--quiet"})
	if !errors.Is(err, cli.ErrVerboseQuietConflict) {
		t.Fatalf("expected verbose/quiet conflict, got %v", err)
	}
}

func TestLoadConfigVersionSkipsSettings(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	writeSettings(t, dir, "not toml at all [")

	cfg, err := loadConfig([]string{"--config-dir", dir, "--version"})
	if err != nil {
		t.Fatalf("expected version to skip settings, got %v", err)
	}
	if !cfg.ShowVersion {
		t.Fatalf("expected ShowVersion")
	}
}

func TestParseFlagsUnknownFlag(t *testing.T) {
	if _, err := parseFlags([]string{"--nope"}); err == nil || errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected parse error, got %v", err)
	}
}
