// Command streamwatch polls Twitch for the live status of a shared watchlist and
// announces streamers when they go live.
// It:
//   - Loads configuration and initializes structured logging.
//   - Opens the watchlist store (JSON file or Postgres with versioned migrations).
//   - Resolves logins through a Redis or in-memory user cache and queries Helix
//     with an app access token.
//   - Runs the poll loop, delivering notifications to a Discord webhook, a
//     Discord channel and/or a Twitch chat channel.
//   - Serves watchlist commands as Discord slash commands, in Twitch chat and
//     over HTTP, plus /healthz, /readyz, /status and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM: main waits for the in-flight poll
// cycle, the chat and Discord sessions and the HTTP drain before exiting.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/bwmarrin/discordgo"
	twitch "github.com/gempir/go-twitch-irc/v4"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/streamwatch/bot"
	"github.com/onnwee/streamwatch/config"
	"github.com/onnwee/streamwatch/db"
	"github.com/onnwee/streamwatch/discord"
	"github.com/onnwee/streamwatch/live"
	"github.com/onnwee/streamwatch/notify"
	"github.com/onnwee/streamwatch/poller"
	"github.com/onnwee/streamwatch/server"
	"github.com/onnwee/streamwatch/telemetry"
	"github.com/onnwee/streamwatch/twitchapi"
	"github.com/onnwee/streamwatch/watchlist"
)

const version = "1.0.0"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing(telemetry.TracingConfig{
		Endpoint:         cfg.OTLPEndpoint,
		ServiceVersion:   version,
		SampleRatio:      cfg.TraceSampleRatio,
		WatchlistBackend: cfg.WatchlistBackend,
		CheckInterval:    cfg.CheckInterval,
	})
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var readyChecks []server.ReadyCheck

	// Watchlist store
	var store watchlist.Store
	switch cfg.WatchlistBackend {
	case config.BackendPostgres:
		database, err := db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.RunMigrations(database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
		store = &watchlist.PostgresStore{DB: database}
		readyChecks = append(readyChecks, server.ReadyCheck{Name: "database", Fn: pinger(database)})
	default:
		store = &watchlist.FileStore{Path: cfg.WatchlistPath()}
	}
	list := watchlist.NewList(store)
	slog.Info("watchlist store ready", slog.String("backend", cfg.WatchlistBackend))

	// Helix
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	tokens := &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret, HTTPClient: httpClient}
	helix := &twitchapi.HelixClient{AppTokenSource: tokens, ClientID: cfg.TwitchClientID, HTTPClient: httpClient}

	var users live.UserCache = live.NewMemoryUserCache(cfg.UserCacheTTL, clockwork.NewRealClock())
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", slog.Any("err", err))
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unavailable, using in-memory user cache", slog.Any("err", err))
		} else {
			users = &live.RedisUserCache{Client: rdb, TTL: cfg.UserCacheTTL}
			readyChecks = append(readyChecks, server.ReadyCheck{Name: "redis", Fn: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})
			slog.Info("user cache backed by redis")
		}
	}
	engine := &live.QueryEngine{Helix: helix, Users: users}

	// Chat client (optional)
	var chat *twitch.Client
	if cfg.ChatEnabled() {
		if err := cfg.ValidateChatReady(); err != nil {
			slog.Warn("twitch chat not started", slog.Any("err", err))
		} else {
			chat = twitch.NewClient(cfg.TwitchBotUsername, cfg.TwitchOAuthToken)
		}
	} else {
		slog.Info("twitch chat disabled (TWITCH_BOT_USERNAME/TWITCH_OAUTH_TOKEN not set)")
	}

	// Discord bot session (optional)
	var dg *discordgo.Session
	if cfg.DiscordEnabled() {
		dg, err = discordgo.New("Bot " + cfg.DiscordToken)
		if err != nil {
			slog.Error("invalid DISCORD_TOKEN", slog.Any("err", err))
			os.Exit(1)
		}
		dg.Client = httpClient
	} else {
		slog.Info("discord bot disabled (DISCORD_TOKEN not set)")
	}

	// Delivery targets
	var targets notify.Multi
	if cfg.DiscordWebhookURL != "" {
		webhook, err := notify.NewDiscordWebhook(cfg.DiscordWebhookURL, httpClient)
		if err != nil {
			slog.Error("invalid DISCORD_WEBHOOK_URL", slog.Any("err", err))
			os.Exit(1)
		}
		targets = append(targets, webhook)
	}
	if dg != nil && cfg.DiscordChannelID != "" {
		targets = append(targets, &notify.DiscordChannel{Session: dg, ChannelID: cfg.DiscordChannelID})
	}
	if chat != nil && cfg.NotifyChatChannel != "" {
		targets = append(targets, &notify.ChatChannel{Client: chat, Channel: cfg.NotifyChatChannel})
	}
	var target notify.Target = targets
	if len(targets) == 0 {
		slog.Warn("no notification target configured; live notifications will only be logged")
		target = notify.Log{}
	}

	var wg sync.WaitGroup
	svc := poller.New(list, engine, target)
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.Start(ctx, cfg.CheckInterval)
	}()

	if chat != nil {
		b := &bot.Bot{List: list, Checker: svc, Chat: chat, ModsOnly: cfg.BotModsOnly}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bot.Run(ctx, chat, b, cfg.ChatChannels()); err != nil {
				slog.Error("twitch chat exited with error", slog.Any("err", err))
			}
		}()
	}
	if dg != nil {
		h := &discord.Handler{List: list, Checker: svc, Session: dg}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := discord.Run(ctx, dg, h, cfg.DiscordGuildID); err != nil {
				slog.Error("discord bot exited with error", slog.Any("err", err))
			}
		}()
	}

	handlers := server.NewHandlers(list, svc, readyChecks...)
	mux := server.NewMux(handlers, server.Options{
		Auth:               server.AuthConfig{Username: cfg.AdminUsername, Password: cfg.AdminPassword, Token: cfg.AdminToken},
		RateLimit: server.RateLimitConfig{
			Enabled:        cfg.RateLimitEnabled,
			PerMinute:      cfg.RateLimitPerMinute,
			Burst:          cfg.RateLimitBurst,
			TrustedProxies: cfg.TrustedProxies,
		},
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx, cfg.HTTPAddr, mux); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	wg.Wait()
	slog.Info("shutdown complete")
}

// setupLogging configures the default logger. Defaults: level=info, format=text.
func setupLogging(level, format string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", level))
	}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

func pinger(database *sql.DB) func(context.Context) error {
	return func(ctx context.Context) error { return database.PingContext(ctx) }
}
