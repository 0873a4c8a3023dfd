package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/socialnet/backend/internal/auth"
	"github.com/socialnet/backend/internal/authz"
	"github.com/socialnet/backend/internal/config"
	"github.com/socialnet/backend/internal/db"
	"github.com/socialnet/backend/internal/events"
	"github.com/socialnet/backend/internal/handlers"
	"github.com/socialnet/backend/internal/middleware"
	"github.com/socialnet/backend/internal/relationships"
	"github.com/socialnet/backend/internal/repositories"
	"github.com/socialnet/backend/internal/storage"
)

// Event relay backends.
const (
	eventsBackendLog      = "log"
	eventsBackendRabbitMQ = "rabbitmq"
	eventsBackendPubSub   = "pubsub"
)

type cleanupFunc func(context.Context) error

// services groups the domain services shared by serve and seed.
type services struct {
	store         repositories.Store
	auth          *auth.Service
	authz         *authz.Authorizer
	relationships *relationships.Manager
	dispatcher    *events.Dispatcher
}

func (s services) close(ctx context.Context) error {
	var errs []error
	if s.dispatcher != nil {
		errs = append(errs, s.dispatcher.Shutdown(ctx))
	}
	if s.store != nil {
		errs = append(errs, s.store.Close(ctx))
	}
	return errors.Join(errs...)
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, cleanupFunc, error) {
	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	media, err := storage.New(ctx, cfg.ObjectStore)
	if err != nil {
		_ = svc.close(ctx)
		return handlers.Dependencies{}, nil, fmt.Errorf("configure object store: %w", err)
	}
	if media == nil {
		logger.Warn("no object store configured, picture uploads are disabled")
	}

	limit := cfg.LoginLimit
	deps := handlers.Dependencies{
		Logger:        logger,
		Store:         svc.store,
		Auth:          svc.auth,
		Tokens:        svc.auth.Tokens(),
		Relationships: svc.relationships,
		Users:         svc.store,
		Authz:         svc.authz,
		Media:         media,
		LoginLimiter:  middleware.NewIPRateLimiter(limit.Requests, limit.Window, limit.Burst, limit.TTL),
		CookieSecure:  cfg.Auth.CookieSecure,
		RefreshTTL:    cfg.Auth.RefreshTokenTTL,
	}

	cleanup := func(ctx context.Context) error {
		var errs []error
		if closer, ok := media.(interface{ Close() error }); ok {
			errs = append(errs, closer.Close())
		}
		errs = append(errs, svc.close(ctx))
		return errors.Join(errs...)
	}

	return deps, cleanup, nil
}

func buildServices(ctx context.Context, cfg config.Config, logger *slog.Logger) (services, error) {
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return services{}, err
	}
	svc := services{store: store}

	svc.authz, err = authz.New(ctx)
	if err != nil {
		_ = svc.close(ctx)
		return services{}, err
	}

	tokens := auth.NewTokenManager(cfg.Auth.AccessTokenSecret, cfg.Auth.RefreshTokenSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	var opts []auth.Option
	if cfg.Auth.RevokeOnLogout {
		opts = append(opts, auth.WithRevocation(store))
	}
	svc.auth, err = auth.NewService(store, tokens, opts...)
	if err != nil {
		_ = svc.close(ctx)
		return services{}, err
	}

	backend, err := openEventsBackend(ctx, cfg.Events, logger)
	if err != nil {
		_ = svc.close(ctx)
		return services{}, fmt.Errorf("configure events: %w", err)
	}
	svc.dispatcher = events.NewDispatcher(backend, events.DispatcherConfig{
		Topic:     cfg.Events.Topic,
		QueueSize: cfg.Events.QueueSize,
		Workers:   cfg.Events.Workers,
	}, logger)

	svc.relationships = relationships.NewManager(store, svc.authz, svc.dispatcher)
	return svc, nil
}

// openStore connects to the configured account store.
func openStore(ctx context.Context, cfg config.StoreConfig) (repositories.Store, error) {
	switch cfg.Driver {
	case config.StoreDriverMemory:
		return repositories.NewMemoryStore(), nil
	case config.StoreDriverPostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return repositories.NewPostgresStore(pool), nil
	case config.StoreDriverMongo:
		client, database, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return repositories.NewMongoStore(client, database), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func openEventsBackend(ctx context.Context, cfg config.EventsConfig, logger *slog.Logger) (events.Backend, error) {
	switch cfg.Backend {
	case "", eventsBackendLog:
		return events.NewLogBackend(logger), nil
	case eventsBackendRabbitMQ:
		return events.NewRabbitMQBackend(cfg.RabbitMQURL)
	case eventsBackendPubSub:
		return events.NewPubSubBackend(ctx, cfg.PubSubProjectID, cfg.CredentialsFile)
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}
