package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"riceserver/internal/config/tomlkeys"
)

// SettingsFileName is the server settings file looked up in the config root.
const SettingsFileName = "server.toml"

type Settings struct {
	Server ServerSettings
	Watch  WatchSettings
	Apply  ApplySettings
	Log    LogSettings
}

type ServerSettings struct {
	Host  string
	Port  int64
	Token string
}

type WatchSettings struct {
	Debounce      time.Duration
	SweepInterval time.Duration
}

type ApplySettings struct {
	Timeout   time.Duration
	QueueSize int64
}

type LogSettings struct {
	Level      string
	BufferSize int64
}

// LoadSettings layers the file at path over the embedded defaults, then
// applies overrides. A missing file is not an error.
func LoadSettings(path string, defaultsPayload []byte, overrides map[string]any) (Settings, error) {
	defaultsStore, err := tomlkeys.Decode(defaultsPayload)
	if err != nil {
		return Settings{}, fmt.Errorf("decode default settings: %w", err)
	}
	defaults := defaultsStore.Flat()
	values := defaultsStore.Flat()

	if strings.TrimSpace(path) != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Settings{}, err
			}
		} else {
			store, err := tomlkeys.Decode(payload)
			if err != nil {
				return Settings{}, fmt.Errorf("decode %s: %w", path, err)
			}
			for key, value := range store.Flat() {
				values[key] = value
			}
		}
	}

	for key, value := range overrides {
		normalized := tomlkeys.NormalizeKey(key)
		if normalized == "" {
			continue
		}
		values[normalized] = value
	}

	settings := Settings{}

	settings.Server.Host = stringSetting(values, "server.host", "")
	settings.Server.Port = intSetting(values, "server.port", 0)
	settings.Server.Token = stringSetting(values, "server.token", "")
	settings.Watch.Debounce = durationSetting(values, "watch.debounce", 0)
	settings.Watch.SweepInterval = durationSetting(values, "watch.sweep-interval", 0)
	settings.Apply.Timeout = durationSetting(values, "apply.timeout", 0)
	settings.Apply.QueueSize = intSetting(values, "apply.queue-size", 0)
	settings.Log.Level = stringSetting(values, "log.level", "")
	settings.Log.BufferSize = intSetting(values, "log.buffer-size", 0)

	return normalizeSettings(settings, defaults), nil
}

func normalizeSettings(settings Settings, defaults map[string]any) Settings {
	if settings.Server.Host == "" {
		settings.Server.Host = stringSetting(defaults, "server.host", "localhost")
	}
	if settings.Server.Port <= 0 || settings.Server.Port > 65535 {
		settings.Server.Port = intSetting(defaults, "server.port", 5000)
	}
	if settings.Watch.Debounce <= 0 {
		settings.Watch.Debounce = durationSetting(defaults, "watch.debounce", 2*time.Second)
	}
	if settings.Watch.SweepInterval <= 0 {
		settings.Watch.SweepInterval = durationSetting(defaults, "watch.sweep-interval", 30*time.Second)
	}
	if settings.Apply.Timeout <= 0 {
		settings.Apply.Timeout = durationSetting(defaults, "apply.timeout", 2*time.Minute)
	}
	if settings.Apply.QueueSize <= 0 {
		settings.Apply.QueueSize = intSetting(defaults, "apply.queue-size", 16)
	}
	if settings.Log.Level == "" {
		settings.Log.Level = stringSetting(defaults, "log.level", "info")
	}
	if settings.Log.BufferSize <= 0 {
		settings.Log.BufferSize = intSetting(defaults, "log.buffer-size", 1000)
	}
	return settings
}

// Address joins host and port for net.Listen.
func (settings ServerSettings) Address() string {
	return settings.Host + ":" + strconv.FormatInt(settings.Port, 10)
}

func intSetting(values map[string]any, key string, fallback int64) int64 {
	value, ok := values[tomlkeys.NormalizeKey(key)]
	if !ok {
		return fallback
	}
	if parsed, ok := asInt64(value); ok {
		return parsed
	}
	if text, ok := value.(string); ok {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func stringSetting(values map[string]any, key string, fallback string) string {
	value, ok := values[tomlkeys.NormalizeKey(key)]
	if !ok {
		return fallback
	}
	if parsed, ok := value.(string); ok {
		return strings.TrimSpace(parsed)
	}
	return fallback
}

// durationSetting accepts Go duration strings or whole seconds.
func durationSetting(values map[string]any, key string, fallback time.Duration) time.Duration {
	value, ok := values[tomlkeys.NormalizeKey(key)]
	if !ok {
		return fallback
	}
	if parsed, ok := tomlkeys.ParseDuration(value); ok {
		return parsed
	}
	return fallback
}

func asInt64(value any) (int64, bool) {
	switch typed := value.(type) {
	case int64:
		return typed, true
	case int:
		return int64(typed), true
	case int32:
		return int64(typed), true
	case uint64:
		return int64(typed), true
	case uint:
		return int64(typed), true
	case uint32:
		return int64(typed), true
	case float64:
		if typed == float64(int64(typed)) {
			return int64(typed), true
		}
	}
	return 0, false
}
