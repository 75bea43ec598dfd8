package config

import (
	"reflect"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TWITCH_CLIENT_ID", "TWITCH_CLIENT_SECRET", "TWITCH_BOT_USERNAME", "TWITCH_OAUTH_TOKEN",
		"TWITCH_BOT_CHANNELS", "NOTIFY_CHAT_CHANNEL", "BOT_MODS_ONLY", "CHECK_INTERVAL", "HTTP_TIMEOUT",
		"WATCHLIST_BACKEND", "DATA_DIR", "DB_DSN", "REDIS_URL", "USER_CACHE_TTL", "DISCORD_WEBHOOK_URL",
		"HTTP_ADDR", "ADMIN_USERNAME", "ADMIN_PASSWORD", "ADMIN_TOKEN", "RATE_LIMIT_ENABLED",
		"RATE_LIMIT_REQUESTS_PER_MINUTE", "RATE_LIMIT_BURST", "CORS_ALLOWED_ORIGINS", "LOG_LEVEL", "LOG_FORMAT",
		"DISCORD_TOKEN", "DISCORD_NOTIFICATION_CHANNEL_ID", "DISCORD_GUILD_ID", "TRUSTED_PROXIES", "OTEL_TRACES_SAMPLE_RATIO", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.CheckInterval != 5*time.Minute {
		t.Errorf("CheckInterval = %v, want 5m", cfg.CheckInterval)
	}
	if cfg.HTTPTimeout != 10*time.Second {
		t.Errorf("HTTPTimeout = %v", cfg.HTTPTimeout)
	}
	if cfg.WatchlistBackend != BackendFile || cfg.DataDir != "data" {
		t.Errorf("storage defaults = %q %q", cfg.WatchlistBackend, cfg.DataDir)
	}
	if got := cfg.WatchlistPath(); got != "data/streamers.json" {
		t.Errorf("WatchlistPath() = %q", got)
	}
	if cfg.UserCacheTTL != 24*time.Hour {
		t.Errorf("UserCacheTTL = %v", cfg.UserCacheTTL)
	}
	if cfg.HTTPAddr != ":8080" || !cfg.RateLimitEnabled {
		t.Errorf("http defaults = %q %v", cfg.HTTPAddr, cfg.RateLimitEnabled)
	}
	if cfg.DBDsn != "" {
		t.Errorf("DBDsn should stay empty for file backend, got %q", cfg.DBDsn)
	}
	if cfg.TraceSampleRatio != 1 || cfg.DiscordEnabled() || len(cfg.TrustedProxies) != 0 {
		t.Errorf("optional defaults = ratio %v discord %v proxies %v", cfg.TraceSampleRatio, cfg.DiscordEnabled(), cfg.TrustedProxies)
	}
}

func TestCheckInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 5 * time.Minute, false},
		{"1", time.Minute, false},
		{"15", 15 * time.Minute, false},
		{"90s", 90 * time.Second, false},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("CHECK_INTERVAL", tt.in)
			cfg, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if cfg.CheckInterval != tt.want {
				t.Errorf("CheckInterval = %v, want %v", cfg.CheckInterval, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cfg, _ := Load()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when client credentials are missing")
	}

	t.Setenv("TWITCH_CLIENT_ID", "id")
	t.Setenv("TWITCH_CLIENT_SECRET", "secret")
	cfg, _ = Load()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}

	t.Setenv("CHECK_INTERVAL", "0")
	cfg, _ = Load()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero interval")
	}
}

func TestInvalidBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("WATCHLIST_BACKEND", "sqlite")
	if _, err := Load(); err == nil {
		t.Error("expected error for unknown backend")
	}

	t.Setenv("WATCHLIST_BACKEND", "Postgres")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.WatchlistBackend != BackendPostgres || cfg.DBDsn == "" {
		t.Errorf("postgres backend = %q dsn %q", cfg.WatchlistBackend, cfg.DBDsn)
	}
}

func TestChatSettings(t *testing.T) {
	clearEnv(t)
	t.Setenv("TWITCH_BOT_USERNAME", "bot")
	t.Setenv("TWITCH_OAUTH_TOKEN", "oauth:token")
	cfg, _ := Load()
	if err := cfg.ValidateChatReady(); err == nil {
		t.Error("expected error without channels")
	}

	t.Setenv("TWITCH_BOT_CHANNELS", " #one, two ,,")
	t.Setenv("NOTIFY_CHAT_CHANNEL", "#one")
	cfg, _ = Load()
	if err := cfg.ValidateChatReady(); err != nil {
		t.Errorf("ValidateChatReady() error: %v", err)
	}
	if want := []string{"one", "two"}; !reflect.DeepEqual(cfg.BotChannels, want) {
		t.Errorf("BotChannels = %v, want %v", cfg.BotChannels, want)
	}
	if cfg.NotifyChatChannel != "one" {
		t.Errorf("NotifyChatChannel = %q", cfg.NotifyChatChannel)
	}
	if want := []string{"one", "two"}; !reflect.DeepEqual(cfg.ChatChannels(), want) {
		t.Errorf("ChatChannels() = %v, want %v", cfg.ChatChannels(), want)
	}
}

func TestChatReadyWithOnlyNotifyChannel(t *testing.T) {
	clearEnv(t)
	t.Setenv("TWITCH_BOT_USERNAME", "bot")
	t.Setenv("TWITCH_OAUTH_TOKEN", "oauth:token")
	t.Setenv("NOTIFY_CHAT_CHANNEL", "#alerts")
	cfg, _ := Load()
	if err := cfg.ValidateChatReady(); err != nil {
		t.Errorf("ValidateChatReady() error: %v", err)
	}
	if want := []string{"alerts"}; !reflect.DeepEqual(cfg.ChatChannels(), want) {
		t.Errorf("ChatChannels() = %v, want %v", cfg.ChatChannels(), want)
	}

	t.Setenv("TWITCH_OAUTH_TOKEN", "")
	cfg, _ = Load()
	if err := cfg.ValidateChatReady(); err == nil {
		t.Error("expected error without chat credentials")
	}
}

func TestTraceSampleRatio(t *testing.T) {
	clearEnv(t)
	t.Setenv("OTEL_TRACES_SAMPLE_RATIO", "0.25")
	cfg, err := Load()
	if err != nil || cfg.TraceSampleRatio != 0.25 {
		t.Fatalf("Load() = %v, %v; want ratio 0.25", cfg, err)
	}
	for _, bad := range []string{"abc", "1.5", "-0.1"} {
		t.Setenv("OTEL_TRACES_SAMPLE_RATIO", bad)
		if _, err := Load(); err == nil {
			t.Errorf("OTEL_TRACES_SAMPLE_RATIO=%q: expected error", bad)
		}
	}
}

func TestDiscordAndProxySettings(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_TOKEN", "bot-token")
	t.Setenv("DISCORD_NOTIFICATION_CHANNEL_ID", "123")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1, 10.0.0.0/8")
	cfg, _ := Load()
	if !cfg.DiscordEnabled() || cfg.DiscordChannelID != "123" {
		t.Errorf("discord = %v %q", cfg.DiscordEnabled(), cfg.DiscordChannelID)
	}
	if want := []string{"10.0.0.1", "10.0.0.0/8"}; !reflect.DeepEqual(cfg.TrustedProxies, want) {
		t.Errorf("TrustedProxies = %v, want %v", cfg.TrustedProxies, want)
	}
}
