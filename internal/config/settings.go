package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Auth type constants
const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "apikey"
)

// AuthSettings configuration for authentication
type AuthSettings struct {
	Type    string            `mapstructure:"type"` // AuthTypeNone, AuthTypeBasic, or AuthTypeAPIKey
	Basic   BasicAuthSettings `mapstructure:"basic"`
	APIKeys []string          `mapstructure:"api_keys"`
}

// BasicAuthSettings configuration for basic auth
type BasicAuthSettings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// ReapSettings configuration for one-shot harvesting
type ReapSettings struct {
	Out          string   `mapstructure:"out"`
	Prev         string   `mapstructure:"prev"`
	MaxFileBytes int64    `mapstructure:"max_file_bytes"`
	MaxFiles     int      `mapstructure:"max_files"`
	NoContent    bool     `mapstructure:"no_content"`
	OnlyExt      []string `mapstructure:"only_ext"`
	SkipExt      []string `mapstructure:"skip_ext"`
	SkipFiles    []string `mapstructure:"skip_files"`
	SkipFolders  []string `mapstructure:"skip_folders"`
}

// WatchSettings configuration for the change-detection watcher
type WatchSettings struct {
	Out        string        `mapstructure:"out"`
	Poll       time.Duration `mapstructure:"poll"`
	Debounce   time.Duration `mapstructure:"debounce"`
	IncludeExt []string      `mapstructure:"include_ext"`
	ExcludeExt []string      `mapstructure:"exclude_ext"`
}

// ServeSettings configuration for the HTTP API server
type ServeSettings struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// SearchSettings configuration for full-text search
type SearchSettings struct {
	MaxResults int `mapstructure:"max_results"`
}

// Settings application settings
type Settings struct {
	Reap   ReapSettings   `mapstructure:"reap"`
	Watch  WatchSettings  `mapstructure:"watch"`
	Serve  ServeSettings  `mapstructure:"serve"`
	Search SearchSettings `mapstructure:"search"`
	Auth   AuthSettings   `mapstructure:"auth"`
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// If flags is nil, only env vars and defaults are used. Flags that are
// not registered on the given set are simply not bound, so each
// subcommand binds only its own surface.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	// Default values
	v.SetDefault("reap.out", "")
	v.SetDefault("reap.prev", "")
	v.SetDefault("reap.max_file_bytes", int64(200_000))
	v.SetDefault("reap.max_files", 5000)
	v.SetDefault("reap.no_content", false)

	v.SetDefault("watch.out", "")
	v.SetDefault("watch.poll", 500*time.Millisecond)
	v.SetDefault("watch.debounce", 800*time.Millisecond)

	v.SetDefault("serve.host", "127.0.0.1")
	v.SetDefault("serve.port", 8787)

	v.SetDefault("search.max_results", 20)

	v.SetDefault("auth.type", AuthTypeNone)

	// Environment variables
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific env vars for nested config
	_ = v.BindEnv("reap.out", "HARVEST_REAP_OUT")
	_ = v.BindEnv("reap.prev", "HARVEST_REAP_PREV")
	_ = v.BindEnv("reap.max_file_bytes", "HARVEST_REAP_MAX_FILE_BYTES")
	_ = v.BindEnv("reap.max_files", "HARVEST_REAP_MAX_FILES")
	_ = v.BindEnv("reap.no_content", "HARVEST_REAP_NO_CONTENT")
	_ = v.BindEnv("reap.only_ext", "HARVEST_REAP_ONLY_EXT")
	_ = v.BindEnv("reap.skip_ext", "HARVEST_REAP_SKIP_EXT")
	_ = v.BindEnv("reap.skip_files", "HARVEST_REAP_SKIP_FILES")
	_ = v.BindEnv("reap.skip_folders", "HARVEST_REAP_SKIP_FOLDERS")

	_ = v.BindEnv("watch.out", "HARVEST_WATCH_OUT")
	_ = v.BindEnv("watch.poll", "HARVEST_WATCH_POLL")
	_ = v.BindEnv("watch.debounce", "HARVEST_WATCH_DEBOUNCE")
	_ = v.BindEnv("watch.include_ext", "HARVEST_WATCH_INCLUDE_EXT")
	_ = v.BindEnv("watch.exclude_ext", "HARVEST_WATCH_EXCLUDE_EXT")

	_ = v.BindEnv("serve.host", "HARVEST_SERVE_HOST")
	_ = v.BindEnv("serve.port", "HARVEST_SERVE_PORT")

	_ = v.BindEnv("search.max_results", "HARVEST_SEARCH_MAX_RESULTS")

	_ = v.BindEnv("auth.type", "HARVEST_AUTH_TYPE")
	_ = v.BindEnv("auth.basic.username", "HARVEST_AUTH_BASIC_USERNAME")
	_ = v.BindEnv("auth.basic.password", "HARVEST_AUTH_BASIC_PASSWORD")
	_ = v.BindEnv("auth.api_keys", "HARVEST_AUTH_API_KEYS")

	// Bind CLI flags if provided (highest priority)
	if flags != nil {
		bind := func(key, flag string) {
			if f := flags.Lookup(flag); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
		bind("reap.out", "out")
		bind("reap.prev", "prev")
		bind("reap.max_file_bytes", "max-bytes")
		bind("reap.max_files", "max-files")
		bind("reap.no_content", "no-content")
		bind("reap.only_ext", "only-ext")
		bind("reap.skip_ext", "skip-ext")
		bind("reap.skip_files", "skip-file")
		bind("reap.skip_folders", "skip-folder")

		bind("watch.out", "out")
		bind("watch.poll", "poll")
		bind("watch.debounce", "debounce")
		bind("watch.include_ext", "include-ext")
		bind("watch.exclude_ext", "exclude-ext")

		bind("serve.host", "host")
		bind("serve.port", "port")

		bind("search.max_results", "max-results")

		bind("auth.type", "auth-type")
		bind("auth.basic.username", "auth-basic-username")
		bind("auth.basic.password", "auth-basic-password")
		bind("auth.api_keys", "auth-api-keys")
	}

	// Helper to look for .env file
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	// Viper delivers comma-separated env values as a single element.
	settings.Auth.APIKeys = splitCommaList(settings.Auth.APIKeys)
	settings.Reap.OnlyExt = splitCommaList(settings.Reap.OnlyExt)
	settings.Reap.SkipExt = splitCommaList(settings.Reap.SkipExt)
	settings.Reap.SkipFiles = splitCommaList(settings.Reap.SkipFiles)
	settings.Reap.SkipFolders = splitCommaList(settings.Reap.SkipFolders)
	settings.Watch.IncludeExt = splitCommaList(settings.Watch.IncludeExt)
	settings.Watch.ExcludeExt = splitCommaList(settings.Watch.ExcludeExt)

	return &settings, nil
}

// splitCommaList expands single comma-joined elements, trims spaces, and
// drops empties.
func splitCommaList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// ValidateSettings checks for contradictory configurations before any
// filesystem access. A non-nil error here is fatal at startup.
func ValidateSettings(s *Settings) error {
	if s.Reap.MaxFileBytes <= 0 {
		return errors.New("max-bytes must be positive")
	}
	if s.Reap.MaxFiles <= 0 {
		return errors.New("max-files must be positive")
	}
	if err := validateExtensionSets(s.Reap.OnlyExt, s.Reap.SkipExt); err != nil {
		return err
	}

	if s.Watch.Poll <= 0 {
		return errors.New("poll interval must be positive")
	}
	if s.Watch.Debounce < 0 {
		return errors.New("debounce must not be negative")
	}

	if s.Serve.Port < 1 || s.Serve.Port > 65535 {
		return fmt.Errorf("port must be in [1, 65535], got: %d", s.Serve.Port)
	}

	if s.Search.MaxResults <= 0 {
		return errors.New("max-results must be positive")
	}

	return validateAuthSettings(&s.Auth)
}

// validateExtensionSets rejects an extension listed both in the allow
// list and in the skip list: such a file would be simultaneously required
// and forbidden.
func validateExtensionSets(only, skip []string) error {
	if len(only) == 0 || len(skip) == 0 {
		return nil
	}
	skipSet := make(map[string]bool, len(skip))
	for _, e := range skip {
		skipSet[normalizeExt(e)] = true
	}
	for _, e := range only {
		if skipSet[normalizeExt(e)] {
			return fmt.Errorf("extension %q appears in both only-ext and skip-ext", e)
		}
	}
	return nil
}

func normalizeExt(e string) string {
	e = strings.ToLower(strings.TrimSpace(e))
	if e != "" && !strings.HasPrefix(e, ".") {
		e = "." + e
	}
	return e
}

// validateAuthSettings checks for mutually exclusive or incomplete auth
// configuration.
func validateAuthSettings(a *AuthSettings) error {
	hasBasicCreds := a.Basic.Username != "" || a.Basic.Password != ""
	hasAPIKeys := len(a.APIKeys) > 0

	switch a.Type {
	case AuthTypeNone, "":
		if hasBasicCreds || hasAPIKeys {
			return errors.New("auth-type 'none' is incompatible with auth credentials")
		}
	case AuthTypeBasic:
		if hasAPIKeys {
			return errors.New("auth-type 'basic' is mutually exclusive with auth-api-keys")
		}
		if a.Basic.Username == "" || a.Basic.Password == "" {
			return errors.New("auth-type 'basic' requires both username and password")
		}
	case AuthTypeAPIKey:
		if hasBasicCreds {
			return errors.New("auth-type 'apikey' is mutually exclusive with basic auth credentials")
		}
		if !hasAPIKeys {
			return errors.New("auth-type 'apikey' requires at least one API key")
		}
	default:
		return errors.New("unknown auth-type: " + a.Type)
	}
	return nil
}
