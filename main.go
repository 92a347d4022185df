// Command modkeeper is the permission bot daemon.
// It:
//   - Loads configuration and initializes structured logging.
//   - Opens the permission store (Postgres with versioned migrations, or memory).
//   - Runs the permissions engine and feeds it from Twitch chat, the Helix
//     chatters and moderator listings, and subscription checks.
//   - Publishes group changes to RabbitMQ when AMQP_URL is set.
//   - Keeps the stored Twitch user token fresh.
//   - Serves /healthz, /readyz, /metrics and the user/group API over HTTP.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/modkeeper/chat"
	"github.com/onnwee/modkeeper/commands"
	"github.com/onnwee/modkeeper/config"
	"github.com/onnwee/modkeeper/db"
	"github.com/onnwee/modkeeper/notify"
	"github.com/onnwee/modkeeper/oauth"
	"github.com/onnwee/modkeeper/permissions"
	"github.com/onnwee/modkeeper/presence"
	"github.com/onnwee/modkeeper/server"
	"github.com/onnwee/modkeeper/subcheck"
	"github.com/onnwee/modkeeper/telemetry"
	"github.com/onnwee/modkeeper/twitchapi"
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

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("modkeeper", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("modkeeper exited with error", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutting down")
}

// setupLogging installs the default logger. Defaults: level=info, format=text.
func setupLogging(level, format string) {
	lvl := slog.LevelInfo
	unknown := false
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		unknown = true
	}
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	if unknown {
		slog.Warn("unknown LOG_LEVEL, using info", slog.String("value", level))
	}
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

type storeBackend interface {
	permissions.Store
	server.Pinger
}

// openStore returns the permission store and, for Postgres, the database it
// lives in.
func openStore(ctx context.Context, cfg *config.Config) (storeBackend, *sql.DB, error) {
	if cfg.StoreBackend == config.BackendMemory {
		slog.Warn("using in-memory store; group assignments are lost on restart", slog.String("component", "db"))
		return db.NewMemoryStore(), nil, nil
	}
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		return nil, nil, err
	}
	// Versioned migrations first; the idempotent embedded schema covers
	// databases the migrator cannot manage.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, database); err != nil {
			_ = database.Close()
			return nil, nil, err
		}
	}
	return db.NewKVStore(database), database, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	store, database, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if database != nil {
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
	}

	// User token: the stored OAuth row when present, else TWITCH_OAUTH_TOKEN.
	static := twitchapi.StaticToken(cfg.TwitchOAuthToken)
	userTokens := twitchapi.TokenFunc(func(ctx context.Context) (string, error) {
		if database != nil {
			tok, err := db.GetToken(ctx, database, "twitch")
			if err == nil && tok.AccessToken != "" {
				return tok.AccessToken, nil
			}
			if err != nil && !errors.Is(err, db.ErrNotFound) {
				slog.Warn("stored twitch token unavailable", slog.Any("err", err), slog.String("component", "twitchapi"))
			}
		}
		return static.Get(ctx)
	})

	var helix *twitchapi.HelixClient
	var oauthCfg *oauth2.Config
	if cfg.HelixReady() {
		helix = &twitchapi.HelixClient{
			AppTokens:  &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret},
			UserTokens: userTokens,
			ClientID:   cfg.TwitchClientID,
		}
		oauthCfg = twitchapi.OAuthConfig(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.TwitchRedirectURI, twitchapi.ParseScopes(cfg.TwitchScopes))
	} else {
		slog.Info("helix disabled (missing TWITCH_CLIENT_ID/TWITCH_CLIENT_SECRET): no chatters, moderator or subscription lookups")
	}
	broadcasterID, moderatorID := resolveIDs(ctx, cfg, helix)

	ident := permissions.Identity{Bot: cfg.TwitchBotUsername, Owner: cfg.TwitchOwner, Channel: cfg.TwitchChannel}
	live := presence.New(cfg.PresenceTTL)
	live.Pin(ident.Bot, ident.Owner, ident.Channel)

	var querier subcheck.Querier
	if helix != nil {
		querier = helix
	}
	subs := subcheck.New(querier, store, broadcasterID, subcheck.Options{
		Concurrency: cfg.SubcheckConcurrency,
		Recheck:     cfg.SubcheckRecheck,
	})

	perms := permissions.New(store, ident)
	engineOpts := permissions.Options{GCInterval: cfg.GCInterval, Presence: live}
	if subs.Enabled() {
		engineOpts.Subscription = subs
	}
	engine := permissions.NewEngine(perms, engineOpts)

	var pub notify.Publisher
	if cfg.AMQPURL != "" {
		amqpPub, err := notify.DialAMQP(cfg.AMQPURL)
		if err != nil {
			return err
		}
		pub = amqpPub
	}
	notifier := notify.New(pub, cfg.NotifyQueue, cfg.TwitchChannel, 0)
	perms.OnChange(notifier.Notify)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error { return notifier.Run(ctx) })

	if subs.Enabled() {
		g.Go(func() error { return subs.Run(ctx, engine.Submit) })
	}

	if helix != nil && broadcasterID != "" {
		if moderatorID != "" {
			chatters := presence.ListerFunc(func(ctx context.Context) ([]string, error) {
				return helix.GetChatters(ctx, broadcasterID, moderatorID)
			})
			g.Go(func() error { return presence.Poll(ctx, live, chatters, cfg.ChattersPollInterval) })
		}
		mods := chat.ModeratorListerFunc(func(ctx context.Context) ([]string, error) {
			return helix.GetModerators(ctx, broadcasterID)
		})
		g.Go(func() error { return chat.SyncModerators(ctx, mods, engine, cfg.ModeratorsPollInterval) })
	}

	if database != nil && oauthCfg != nil {
		refresher := &oauth.Refresher{
			DB:       database,
			Provider: "twitch",
			Interval: cfg.OAuthRefreshInterval,
			Refresh: func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
				return twitchapi.RefreshUserToken(ctx, oauthCfg, refreshToken)
			},
			Scope: twitchapi.ScopeOf,
		}
		g.Go(func() error { return refresher.Run(ctx) })
	}

	if err := cfg.ValidateChatReady(); err != nil {
		slog.Info("chat disabled", slog.Any("reason", err))
	} else {
		bot := chat.NewBot(chat.Config{
			Channel:  cfg.TwitchChannel,
			Username: cfg.TwitchBotUsername,
			Token:    chatToken(ctx, userTokens),
			Prefix:   cfg.CommandPrefix,
			SayRate:  cfg.ChatSayRate,
		}, engine, live, nil)
		bot.SetCommands(commands.New(engine, bot))
		g.Go(func() error { return bot.Run(ctx) })
	}

	var serverOAuth *oauth2.Config
	if cfg.OAuthReady() {
		serverOAuth = oauthCfg
	}
	router := server.NewRouter(ctx, server.Options{Engine: engine, Store: store, DB: database, OAuth: serverOAuth})
	g.Go(func() error { return server.Start(ctx, cfg.HTTPAddr, router) })

	return g.Wait()
}

// resolveIDs fills in the broadcaster and moderator user ids from their
// logins when they are not configured.
func resolveIDs(ctx context.Context, cfg *config.Config, helix *twitchapi.HelixClient) (broadcasterID, moderatorID string) {
	broadcasterID, moderatorID = cfg.TwitchBroadcasterID, cfg.TwitchModeratorID
	if helix == nil {
		return broadcasterID, moderatorID
	}
	lookup := func(login string) string {
		if login == "" {
			return ""
		}
		lctx, cancel := context.WithTimeout(ctx, 8*time.Second)
		defer cancel()
		id, err := helix.GetUserID(lctx, login)
		if err != nil {
			slog.Warn("twitch user lookup failed", slog.String("login", login), slog.Any("err", err))
			return ""
		}
		return id
	}
	if broadcasterID == "" {
		broadcasterID = lookup(cfg.TwitchChannel)
	}
	if moderatorID == "" {
		moderatorID = lookup(cfg.TwitchBotUsername)
	}
	return broadcasterID, moderatorID
}

// chatToken picks the IRC password: the stored user token when available.
func chatToken(ctx context.Context, tokens twitchapi.TokenProvider) string {
	tctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tok, err := tokens.Get(tctx)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(tok)
}
