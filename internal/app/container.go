package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keystone-admin/keystone/internal/audit"
	"github.com/keystone-admin/keystone/internal/auth"
	"github.com/keystone-admin/keystone/internal/authz"
	"github.com/keystone-admin/keystone/internal/observability"
	"github.com/keystone-admin/keystone/internal/platform/memdb"
	"github.com/keystone-admin/keystone/internal/rbac"
	"github.com/keystone-admin/keystone/internal/roles"
	"github.com/keystone-admin/keystone/internal/seed"
	"github.com/keystone-admin/keystone/internal/token"
	"github.com/keystone-admin/keystone/internal/users"
	"github.com/keystone-admin/keystone/jobs"
)

// Backend bundles the persistence ports. Both implementations satisfy all three.
type Backend struct {
	Accounts auth.Repository
	Users    users.RepositoryPort
	Graph    rbac.Store
}

// MemoryBackend returns an empty in-process backend.
func MemoryBackend() Backend {
	store := memdb.New()
	return Backend{Accounts: store, Users: store, Graph: store}
}

// PostgresBackend returns the pgx-backed repositories sharing pool.
func PostgresBackend(pool *pgxpool.Pool) Backend {
	return Backend{
		Accounts: auth.NewRepository(pool),
		Users:    users.NewRepository(pool),
		Graph:    rbac.NewPGStore(pool),
	}
}

// Options collects what Build needs from the process entrypoint.
type Options struct {
	Config  *Config
	Logger  *slog.Logger
	Backend Backend
	Metrics *observability.Metrics
	// Audit defaults to a LogRecorder.
	Audit audit.Recorder
	// Denylist is nil unless DENYLIST_ENABLED.
	Denylist   auth.Denylist
	JobHandler *jobs.Handler
	RequestLog bool
}

// Container holds the wired services of one process.
type Container struct {
	Config   *Config
	Logger   *slog.Logger
	Codec    *token.Codec
	Resolver rbac.Resolver
	Graph    *rbac.Service
	Auth     *auth.Service
	Users    *users.Service
	Gate     *authz.Gate
	Guard    *authz.Middleware
	Seeder   *seed.Seeder
	Router   http.Handler
}

// Build wires codec, resolver, services, gate and router.
func Build(opts Options) (*Container, error) {
	if opts.Config == nil {
		return nil, errors.New("app: config required")
	}
	if opts.Backend.Accounts == nil || opts.Backend.Users == nil || opts.Backend.Graph == nil {
		return nil, errors.New("app: backend incomplete")
	}
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := opts.Audit
	if recorder == nil {
		recorder = audit.NewLogRecorder(logger)
	}

	codec, err := token.NewCodec(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("app: token codec: %w", err)
	}
	resolver, err := rbac.NewResolver(cfg.PermissionStrategy, opts.Backend.Graph)
	if err != nil {
		return nil, err
	}

	graph := rbac.NewService(opts.Backend.Graph, resolver, recorder, logger)

	authService := auth.NewService(opts.Backend.Accounts, codec, graph, recorder, logger)
	if opts.Metrics != nil {
		authService.WithObserver(opts.Metrics)
	}

	gateOpts := []authz.Option{
		authz.WithLookupTimeout(cfg.LookupTimeout),
		authz.WithLogger(logger),
	}
	if opts.Metrics != nil {
		gateOpts = append(gateOpts, authz.WithObserver(opts.Metrics))
	}
	if opts.Denylist != nil {
		authService.WithDenylist(opts.Denylist)
		gateOpts = append(gateOpts, authz.WithDenylist(opts.Denylist))
	}
	gate := authz.NewGate(codec, opts.Backend.Accounts, resolver, gateOpts...)
	guard := authz.NewMiddleware(gate, recorder, logger)

	userService := users.NewService(opts.Backend.Users, graph, recorder, logger)
	seeder := seed.New(graph, userService, opts.Backend.Accounts, logger)

	router := NewRouter(RouterParams{
		Logger:        logger,
		Config:        cfg,
		AuthHandler:   auth.NewHandler(logger, authService, guard, cfg.LoginRateLimit),
		UsersHandler:  users.NewHandler(logger, userService, guard),
		RolesHandler:  roles.NewHandler(logger, graph, guard),
		ScopesHandler: rbac.NewScopesHandler(logger, graph, guard),
		JobHandler:    opts.JobHandler,
		Metrics:       opts.Metrics,
		RequestLog:    opts.RequestLog,
	})

	return &Container{
		Config:   cfg,
		Logger:   logger,
		Codec:    codec,
		Resolver: resolver,
		Graph:    graph,
		Auth:     authService,
		Users:    userService,
		Gate:     gate,
		Guard:    guard,
		Seeder:   seeder,
		Router:   router,
	}, nil
}

// Seed installs the default scopes, roles and administrator.
func (c *Container) Seed(ctx context.Context) (seed.Result, error) {
	admin := seed.DefaultAdmin
	if c.Config.SeedAdminPassword != "" {
		admin.Password = c.Config.SeedAdminPassword
	}
	return c.Seeder.Run(ctx, admin)
}
