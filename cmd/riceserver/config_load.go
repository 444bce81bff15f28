package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"riceserver"
	"riceserver/internal/cli"
	"riceserver/internal/config"
	"riceserver/internal/config/tomlkeys"
	"riceserver/internal/logging"
	"riceserver/internal/version"
)

type Config struct {
	ConfigDir   string
	Settings    config.Settings
	LogLevel    logging.Level
	ShowVersion bool
	Sources     map[string]configSource
}

type configSource string

const (
	sourceDefault configSource = "default"
	sourceFile    configSource = "file"
	sourceEnv     configSource = "env"
	sourceFlag    configSource = "flag"
)

type flagValues struct {
	ConfigDir string
	Port      int
	Host      string
	Token     string
	Verbosity *cli.VerbosityFlags
	Help      bool
	Version   bool
	Set       map[string]bool
}

type helpOption struct {
	Name string
	Desc string
}

// settingKeys are the server.toml keys whose source is reported at startup.
var settingKeys = []string{
	"server.host",
	"server.port",
	"server.token",
	"watch.debounce",
	"watch.sweep-interval",
	"apply.timeout",
	"apply.queue-size",
	"log.level",
	"log.buffer-size",
}

func loadConfig(args []string) (Config, error) {
	flags, err := parseFlags(args)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ShowVersion: flags.Version,
		Sources:     make(map[string]configSource),
	}

	configDir := defaultConfigDir()
	configDirSource := sourceDefault
	if rawDir := strings.TrimSpace(os.Getenv("RICE_CONFIG_DIR")); rawDir != "" {
		configDir = rawDir
		configDirSource = sourceEnv
	}
	if flags.Set["config-dir"] {
		trimmed := strings.TrimSpace(flags.ConfigDir)
		if trimmed == "" {
			return Config{}, fmt.Errorf("invalid --config-dir: value cannot be empty")
		}
		configDir = trimmed
		configDirSource = sourceFlag
	}
	cfg.ConfigDir = configDir
	cfg.Sources["config-dir"] = configDirSource

	if cfg.ShowVersion {
		return cfg, nil
	}

	settingsPath := filepath.Join(configDir, config.SettingsFileName)
	for _, key := range settingKeys {
		cfg.Sources[key] = sourceDefault
	}
	for key := range fileKeys(settingsPath) {
		if _, tracked := cfg.Sources[key]; tracked {
			cfg.Sources[key] = sourceFile
		}
	}

	overrides := map[string]any{}
	if rawPort := strings.TrimSpace(os.Getenv("RICE_PORT")); rawPort != "" {
		parsed, err := strconv.Atoi(rawPort)
		if err != nil || parsed <= 0 || parsed > 65535 {
			return Config{}, fmt.Errorf("invalid RICE_PORT %q", rawPort)
		}
		overrides["server.port"] = int64(parsed)
		cfg.Sources["server.port"] = sourceEnv
	}
	if rawHost := strings.TrimSpace(os.Getenv("RICE_HOST")); rawHost != "" {
		overrides["server.host"] = rawHost
		cfg.Sources["server.host"] = sourceEnv
	}
	if token := os.Getenv("RICE_TOKEN"); token != "" {
		overrides["server.token"] = token
		cfg.Sources["server.token"] = sourceEnv
	}

	if flags.Set["port"] {
		if flags.Port <= 0 || flags.Port > 65535 {
			return Config{}, fmt.Errorf("invalid --port: must be between 1 and 65535")
		}
		overrides["server.port"] = int64(flags.Port)
		cfg.Sources["server.port"] = sourceFlag
	}
	if flags.Set["host"] {
		trimmed := strings.TrimSpace(flags.Host)
		if trimmed == "" {
			return Config{}, fmt.Errorf("invalid --host: value cannot be empty")
		}
		overrides["server.host"] = trimmed
		cfg.Sources["server.host"] = sourceFlag
	}
	if flags.Set["token"] {
		overrides["server.token"] = flags.Token
		cfg.Sources["server.token"] = sourceFlag
	}

	defaults, err := riceserver.EmbeddedConfigFS.ReadFile(riceserver.DefaultSettingsPath)
	if err != nil {
		return Config{}, fmt.Errorf("read default settings: %w", err)
	}
	settings, err := config.LoadSettings(settingsPath, defaults, overrides)
	if err != nil {
		return Config{}, err
	}
	cfg.Settings = settings

	levelName, err := flags.Verbosity.Level(settings.Log.Level)
	if err != nil {
		return Config{}, err
	}
	if flags.Set["verbose"] || flags.Set["quiet"] {
		cfg.Sources["log.level"] = sourceFlag
	}
	level, ok := logging.ParseLevel(levelName)
	if !ok {
		return Config{}, fmt.Errorf("invalid log level %q", levelName)
	}
	cfg.LogLevel = level

	return cfg, nil
}

// defaultConfigDir follows the XDG base directory layout.
func defaultConfigDir() string {
	if base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); base != "" {
		return filepath.Join(base, "riceserver")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".config", "riceserver")
	}
	return filepath.Join(home, ".config", "riceserver")
}

// fileKeys lists the keys present in the settings file. Decode failures are
// reported later by config.LoadSettings.
func fileKeys(path string) map[string]struct{} {
	keys := map[string]struct{}{}
	payload, err := os.ReadFile(path)
	if err != nil {
		return keys
	}
	store, err := tomlkeys.Decode(payload)
	if err != nil {
		return keys
	}
	for key := range store.Flat() {
		keys[key] = struct{}{}
	}
	return keys
}

func parseFlags(args []string) (flagValues, error) {
	if args == nil {
		args = []string{}
	}
	fs := flag.NewFlagSet("riceserver", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configDir := fs.String("config-dir", "", "Configuration root")
	port := fs.Int("port", 0, "HTTP port")
	host := fs.String("host", "", "HTTP listen host")
	token := fs.String("token", "", "Auth token for REST/WS")
	verbosity := cli.AddVerbosityFlags(fs)
	helpVersion := cli.AddHelpVersionFlags(fs, "Show help", "Print version and exit")

	fs.Usage = func() {
		printHelp(fs.Output())
	}

	if err := fs.Parse(args); err != nil {
		return flagValues{}, err
	}
	if fs.NArg() > 0 {
		return flagValues{}, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}

	set := make(map[string]bool)
	fs.Visit(func(flag *flag.Flag) {
		set[flag.Name] = true
	})

	flags := flagValues{
		ConfigDir: *configDir,
		Port:      *port,
		Host:      *host,
		Token:     *token,
		Verbosity: verbosity,
		Help:      helpVersion.Help,
		Version:   helpVersion.Version,
		Set:       set,
	}

	if flags.Help {
		set["help"] = true
		fs.SetOutput(os.Stdout)
		fs.Usage()
		return flags, flag.ErrHelp
	}

	return flags, nil
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage: riceserver [options]")
	fmt.Fprintln(out, "       riceserver version")
	fmt.Fprintln(out, "       riceserver completion [bash|zsh]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Theme companion server: serves the theme engine over HTTP/WebSocket and")
	fmt.Fprintln(out, "re-applies themes when the configuration directory changes.")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")

	writeOptionGroup(out, "Server", []helpOption{
		{Name: "--config-dir DIR", Desc: "Configuration root (env: RICE_CONFIG_DIR, default: $XDG_CONFIG_HOME/riceserver)"},
		{Name: "--host HOST", Desc: "HTTP listen host (env: RICE_HOST, toml: server.host, default: localhost)"},
		{Name: "--port PORT", Desc: "HTTP port (env: RICE_PORT, toml: server.port, default: 5000)"},
		{Name: "--token TOKEN", Desc: "Auth token for REST/WS (env: RICE_TOKEN, toml: server.token)"},
	})
	writeOptionGroup(out, "Logging", []helpOption{
		{Name: "--verbose", Desc: "Log debug output"},
		{Name: "--quiet", Desc: "Only log warnings and errors"},
	})
	writeOptionGroup(out, "Other", []helpOption{
		{Name: "--help, -h", Desc: "Show help"},
		{Name: "--version, -v", Desc: "Print version and exit"},
	})
}

func writeOptionGroup(out io.Writer, title string, options []helpOption) {
	if len(options) == 0 {
		return
	}
	fmt.Fprintln(out, "")
	fmt.Fprintf(out, "%s:\n", title)
	for _, option := range options {
		fmt.Fprintf(out, "  %-20s %s\n", option.Name, option.Desc)
	}
}

func logStartupConfig(logger *logging.Logger, cfg Config) {
	if logger == nil {
		return
	}
	fields := map[string]string{
		"config_dir": cfg.ConfigDir,
		"address":    cfg.Settings.Server.Address(),
		"token":      formatToken(cfg.Settings.Server.Token),
	}
	for key, source := range cfg.Sources {
		if source != sourceDefault {
			fields["source."+key] = string(source)
		}
	}
	logger.Debug("startup config", fields)
}

func logVersionInfo(logger *logging.Logger) {
	if logger == nil {
		return
	}
	info := version.GetVersionInfo()
	logger.Info("riceserver starting", map[string]string{
		"version": info.String(),
	})
}

func formatToken(token string) string {
	if token == "" {
		return "unset"
	}
	return "set"
}
