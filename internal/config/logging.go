package config

import (
	"context"
	"log/slog"
)

// Log logs the resolved settings in a granular way, skipping irrelevant ones
func Log(s *Settings) {
	LogWithLogger(s, slog.Default())
}

// LogWithLogger logs the resolved settings using the provided logger
func LogWithLogger(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: reap.max_file_bytes", "value", s.Reap.MaxFileBytes)
	logger.InfoContext(ctx, "Config: reap.max_files", "value", s.Reap.MaxFiles)
	if s.Reap.NoContent {
		logger.InfoContext(ctx, "Config: reap.no_content", "value", true)
	}
	if len(s.Reap.OnlyExt) > 0 {
		logger.InfoContext(ctx, "Config: reap.only_ext", "value", s.Reap.OnlyExt)
	}

	logger.InfoContext(ctx, "Config: watch.poll", "value", s.Watch.Poll)
	logger.InfoContext(ctx, "Config: watch.debounce", "value", s.Watch.Debounce)

	logger.InfoContext(ctx, "Config: serve.host", "value", s.Serve.Host)
	logger.InfoContext(ctx, "Config: serve.port", "value", s.Serve.Port)
	logger.InfoContext(ctx, "Config: search.max_results", "value", s.Search.MaxResults)

	logger.InfoContext(ctx, "Config: auth.type", "value", s.Auth.Type)
	switch s.Auth.Type {
	case AuthTypeBasic:
		logger.InfoContext(ctx, "Config: auth.basic.username", "value", s.Auth.Basic.Username)
		logger.InfoContext(ctx, "Config: auth.basic.password", "value", "****")
	case AuthTypeAPIKey:
		logger.InfoContext(ctx, "Config: auth.api_keys", "count", len(s.Auth.APIKeys))
	}
}

// AuthSettingsLogValue returns a slog.Value for AuthSettings with masked data
func AuthSettingsLogValue(s AuthSettings) slog.Value {
	keys := make([]string, len(s.APIKeys))
	for i := range s.APIKeys {
		keys[i] = "****"
	}
	return slog.GroupValue(
		slog.String("type", s.Type),
		slog.Any("basic", BasicAuthSettingsLogValue(s.Basic)),
		slog.Any("api_keys", keys),
	)
}

// BasicAuthSettingsLogValue returns a slog.Value for BasicAuthSettings with masked data
func BasicAuthSettingsLogValue(s BasicAuthSettings) slog.Value {
	return slog.GroupValue(
		slog.String("username", s.Username),
		slog.String("password", "****"),
	)
}

// SettingsLogValue returns a slog.Value for Settings with masked data
func SettingsLogValue(s Settings) slog.Value {
	return slog.GroupValue(
		slog.String("serve.host", s.Serve.Host),
		slog.Int("serve.port", s.Serve.Port),
		slog.Any("auth", AuthSettingsLogValue(s.Auth)),
	)
}
