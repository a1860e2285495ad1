package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/conversation"
	"github.com/relaydesk/relaydesk/internal/db"
	"github.com/relaydesk/relaydesk/internal/dispatch"
	"github.com/relaydesk/relaydesk/internal/handlers"
	"github.com/relaydesk/relaydesk/internal/lead"
	"github.com/relaydesk/relaydesk/internal/logger"
	"github.com/relaydesk/relaydesk/internal/mailbox"
	"github.com/relaydesk/relaydesk/internal/meta"
	"github.com/relaydesk/relaydesk/internal/reminder"
	"github.com/relaydesk/relaydesk/internal/secrets"
	"github.com/relaydesk/relaydesk/internal/server"
	"github.com/relaydesk/relaydesk/internal/users"
	"github.com/relaydesk/relaydesk/internal/whatsapp"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideCipher,
			channel.NewStore,
			conversation.NewStore,
			provideResolver,
			lead.NewStore,
			provideLeadLinker,
			users.NewDirectory,
			reminder.NewStore,
			provideReminderService,
			provideGraphClient,
			provideRelayClient,
			provideMetaIngestor,
			provideWhatsAppIngestor,
			provideMailboxProcessor,
			provideMailboxManager,
			provideDispatcher,
			provideServerHandler(handlers.NewHealthHandler),
			provideServerHandler(provideConversationsHandler),
			provideServerHandler(provideChannelsHandler),
			provideServerHandler(provideRemindersHandler),
			provideServerHandler(provideUsersHandler),
			provideServerHandler(provideMetaWebhookHandler),
			provideServerHandler(provideWhatsAppWebhookHandler),
			provideServer,
		),
		fx.Invoke(
			startMailboxManager,
			startReminderSchedule,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideCipher(cfg config.Config) (*secrets.Cipher, error) {
	return secrets.NewCipher(cfg.Secrets.Key)
}

func provideResolver(log *slog.Logger, store *conversation.Store) *conversation.Resolver {
	return conversation.NewResolver(log, store)
}

func provideLeadLinker(log *slog.Logger, leads *lead.Store, conversations *conversation.Store) *lead.Linker {
	return lead.NewLinker(log, leads, conversations)
}

func provideReminderService(log *slog.Logger, store *reminder.Store, cfg config.Config) *reminder.Service {
	return reminder.NewService(log, store, cfg.Reminder.StaleDays)
}

func provideGraphClient(log *slog.Logger, cfg config.Config) *meta.Client {
	return meta.NewClient(log, cfg.Graph.BaseURL)
}

func provideRelayClient(log *slog.Logger, cfg config.Config) *whatsapp.Client {
	return whatsapp.NewClient(log, cfg.Relay.BaseURL)
}

func provideMetaIngestor(log *slog.Logger, graph *meta.Client, resolver *conversation.Resolver, store *conversation.Store) *meta.Ingestor {
	return meta.NewIngestor(log, graph, resolver, store)
}

func provideWhatsAppIngestor(log *slog.Logger, resolver *conversation.Resolver, store *conversation.Store) *whatsapp.Ingestor {
	return whatsapp.NewIngestor(log, resolver, store)
}

func provideMailboxProcessor(log *slog.Logger, resolver *conversation.Resolver, store *conversation.Store, linker *lead.Linker) *mailbox.Processor {
	return mailbox.NewProcessor(log, resolver, store, linker)
}

func provideMailboxManager(log *slog.Logger, channels *channel.Store, processor *mailbox.Processor, cfg config.Config) *mailbox.Manager {
	interval := time.Duration(cfg.Poller.DefaultIntervalSeconds) * time.Second
	return mailbox.NewManager(log, channels, processor, interval)
}

func provideDispatcher(log *slog.Logger, channels *channel.Store, conversations *conversation.Store, graph *meta.Client, relay *whatsapp.Client) *dispatch.Dispatcher {
	return dispatch.NewDispatcher(log, channels, conversations, graph, relay)
}

func provideConversationsHandler(log *slog.Logger, store *conversation.Store, dispatcher *dispatch.Dispatcher, linker *lead.Linker, leads *lead.Store) *handlers.ConversationsHandler {
	return handlers.NewConversationsHandler(log, store, dispatcher, linker, leads)
}

func provideChannelsHandler(log *slog.Logger, store *channel.Store) *handlers.ChannelsHandler {
	return handlers.NewChannelsHandler(log, store)
}

func provideRemindersHandler(log *slog.Logger, store *reminder.Store) *handlers.RemindersHandler {
	return handlers.NewRemindersHandler(log, store)
}

func provideUsersHandler(log *slog.Logger, directory *users.Directory) *handlers.UsersHandler {
	return handlers.NewUsersHandler(log, directory)
}

func provideMetaWebhookHandler(log *slog.Logger, channels *channel.Store, ingestor *meta.Ingestor) *handlers.MetaWebhookHandler {
	return handlers.NewMetaWebhookHandler(log, channels, ingestor)
}

func provideWhatsAppWebhookHandler(log *slog.Logger, channels *channel.Store, ingestor *whatsapp.Ingestor) *handlers.WhatsAppWebhookHandler {
	return handlers.NewWhatsAppWebhookHandler(log, channels, ingestor)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.New(params.Logger, params.Config.Server.Addr, params.ServerHandlers)
}

func startMailboxManager(lc fx.Lifecycle, manager *mailbox.Manager) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { manager.Start(ctx); return nil },
		OnStop:  func(_ context.Context) error { cancel(); manager.Stop(); return nil },
	})
}

func startReminderSchedule(lc fx.Lifecycle, svc *reminder.Service, cfg config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { return svc.StartSchedule(ctx, cfg.Reminder.Schedule) },
		OnStop:  func(_ context.Context) error { cancel(); svc.Stop(); return nil },
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
