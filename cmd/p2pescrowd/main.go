package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/netutil"

	"p2pescrow/config"
	"p2pescrow/core/events"
	"p2pescrow/core/state"
	gwconfig "p2pescrow/gateway/config"
	"p2pescrow/gateway/middleware"
	"p2pescrow/gateway/routes"
	"p2pescrow/native/authority"
	"p2pescrow/native/escrow"
	"p2pescrow/native/reputation"
	"p2pescrow/native/rewards"
	"p2pescrow/observability"
	"p2pescrow/observability/logging"
	telemetry "p2pescrow/observability/otel"
	"p2pescrow/storage"
	"p2pescrow/storage/eventlog"
)

const streamBuffer = 256

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the node configuration file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "p2pescrowd: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := strings.TrimSpace(cfg.Env)
	if override := strings.TrimSpace(os.Getenv("P2PESCROW_ENV")); override != "" {
		env = override
	}
	logger, closeLog := logging.Setup("p2pescrowd", env, logging.Options{File: cfg.LogFile})
	defer closeLog()

	gwCfg, gwPath, err := loadGatewayConfig(cfg)
	if err != nil {
		return err
	}
	logger.Info("configuration loaded",
		slog.String("config", configFile),
		slog.String("gateway_config", gwPath),
		slog.String("data_dir", cfg.DataDir))

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			return fmt.Errorf("initialise telemetry: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(ctx); err != nil {
				logger.Warn("telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	store := state.NewStore(db)

	allocs, err := cfg.GenesisAllocations()
	if err != nil {
		return err
	}
	applied, err := store.ApplyGenesis(allocs)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	if applied {
		logger.Info("genesis allocations applied", slog.Int("accounts", len(allocs)))
	}

	stream := events.NewBroadcaster(streamBuffer)
	emitter := events.Multi{stream, observability.EventCounter{}}
	var eventLog *eventlog.Sink
	if driver := strings.TrimSpace(cfg.EventStore.Driver); driver != "" {
		dsn := cfg.EventStore.DSN
		if strings.EqualFold(driver, "sqlite") {
			dsn = cfg.ResolvePath(dsn)
		}
		eventLog, err = eventlog.Open(driver, dsn)
		if err != nil {
			return err
		}
		defer eventLog.Close()
		eventLog.SetLogger(logger)
		emitter = append(emitter, eventLog)
	}

	engines, err := buildEngines(cfg, store, emitter, logger)
	if err != nil {
		return err
	}

	handler, err := buildGateway(gwCfg, engines, store, stream, eventLog, logger)
	if err != nil {
		return err
	}
	return serve(gwCfg, filepath.Dir(gwPath), handler, logger)
}

// loadGatewayConfig reads the gateway YAML referenced by the node config. A
// missing file falls back to the built-in defaults.
func loadGatewayConfig(cfg *config.Config) (gwconfig.Config, string, error) {
	path := cfg.ResolvePath(cfg.GatewayConfig)
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	gwCfg, err := gwconfig.Load(path)
	if err != nil {
		return gwconfig.Config{}, path, fmt.Errorf("load gateway config: %w", err)
	}
	return gwCfg, path, nil
}

type engineSet struct {
	escrow     *escrow.Engine
	reputation *reputation.Engine
	rewards    *rewards.Engine
}

func buildEngines(cfg *config.Config, store *state.Store, emitter events.Emitter, logger *slog.Logger) (*engineSet, error) {
	params, err := cfg.EscrowParams()
	if err != nil {
		return nil, err
	}
	admins, err := cfg.AdminAddresses()
	if err != nil {
		return nil, err
	}

	rep := reputation.NewEngine(store)
	rep.SetEmitter(emitter)

	rew, err := rewards.NewEngine(store, cfg.RewardParams())
	if err != nil {
		return nil, fmt.Errorf("rewards: %w", err)
	}
	rew.SetEmitter(emitter)

	engine := escrow.NewEngine()
	engine.SetStore(store)
	engine.SetEmitter(emitter)
	engine.SetLogger(logger)
	engine.SetPauses(cfg.PauseSet())
	engine.SetReserveCalculator(escrow.FixedReserve(cfg.Escrow.MinimumReserve))
	engine.SetReputation(rep)
	engine.SetRewards(rew)
	if err := engine.SetParams(params); err != nil {
		return nil, fmt.Errorf("escrow: %w", err)
	}

	if len(admins) > 0 {
		multisig, err := authority.NewMultisig(admins, cfg.Admin.Threshold)
		if err != nil {
			return nil, fmt.Errorf("admin: %w", err)
		}
		engine.SetAuthorizer(multisig)
		rew.SetAuthorizer(multisig)
	} else {
		logger.Warn("no admin addresses configured; juror assignment and verdicts are disabled")
	}
	return &engineSet{escrow: engine, reputation: rep, rewards: rew}, nil
}

func buildGateway(cfg gwconfig.Config, engines *engineSet, store *state.Store, stream *events.Broadcaster, eventLog *eventlog.Sink, logger *slog.Logger) (http.Handler, error) {
	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName:   cfg.Observability.ServiceName,
		MetricsPrefix: cfg.Observability.MetricsPrefix,
		LogRequests:   cfg.Observability.LogRequests,
		Enabled:       cfg.Observability.Metrics || cfg.Observability.Tracing,
	}, logger)

	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:         cfg.Auth.Enabled,
		HMACSecret:      cfg.Auth.HMACSecret,
		Issuer:          cfg.Auth.Issuer,
		Audience:        cfg.Auth.Audience,
		ScopeClaim:      cfg.Auth.ScopeClaim,
		SubjectClaim:    cfg.Auth.SubjectClaim,
		OptionalPaths:   cfg.Auth.OptionalPaths,
		AllowAnonymous:  cfg.Auth.AllowAnonymous,
		ClockSkew:       cfg.Auth.ClockSkew,
		DevCallerHeader: cfg.Security.DevCallerHeader,
	}, logger)
	if !cfg.Auth.Enabled {
		logger.Warn("gateway authentication disabled; caller taken from request header",
			slog.String("header", cfg.Security.DevCallerHeader))
	}

	rateLimits := make(map[string]middleware.RateLimit)
	for _, entry := range cfg.RateLimits {
		if entry.ID == "" {
			continue
		}
		rateLimits[entry.ID] = middleware.RateLimit{
			RequestsPerMinute: entry.RequestsPerMinute,
			RatePerSecond:     entry.RatePerSecond,
			Burst:             entry.Burst,
		}
	}

	rcfg := routes.Config{
		Escrow:        engines.escrow,
		Reputation:    engines.reputation,
		Rewards:       engines.rewards,
		Accounts:      store,
		Stream:        stream,
		Authenticator: auth,
		AdminScope:    cfg.Auth.AdminScope,
		RateLimiter:   middleware.NewRateLimiter(rateLimits, logger),
		Observability: obs,
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		},
		StreamOrigins: cfg.CORS.AllowedOrigins,
		Logger:        logger,
	}
	if eventLog != nil {
		rcfg.EventLog = eventLog
	}
	router, err := routes.New(rcfg)
	if err != nil {
		return nil, fmt.Errorf("configure routes: %w", err)
	}
	if cfg.Observability.Tracing {
		return otelhttp.NewHandler(router, "p2pescrow-gateway"), nil
	}
	return router, nil
}

func serve(cfg gwconfig.Config, configDir string, handler http.Handler, logger *slog.Logger) error {
	tlsConfig, err := buildTLSConfig(configDir, cfg.Security)
	if err != nil {
		return fmt.Errorf("configure TLS: %w", err)
	}
	if tlsConfig == nil && !isLoopbackAddress(cfg.ListenAddress) {
		logger.Warn("gateway serving plaintext on a non-loopback address", slog.String("listen", cfg.ListenAddress))
	}

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		TLSConfig:    tlsConfig,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := newListener(cfg, tlsConfig)
	if err != nil {
		return err
	}
	serveErr := make(chan error, 1)
	go func() {
		scheme := "http"
		if tlsConfig != nil {
			scheme = "https"
		}
		logger.Info("gateway listening",
			slog.String("address", scheme+"://"+listener.Addr().String()),
			slog.Int("max_connections", cfg.MaxConnections))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.Any("error", err))
	}
	return nil
}

// newListener binds the gateway address, caps concurrent connections when
// MaxConnections is set and terminates TLS when configured.
func newListener(cfg gwconfig.Config, tlsConfig *tls.Config) (net.Listener, error) {
	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	if cfg.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.MaxConnections)
	}
	if tlsConfig != nil {
		listener = tls.NewListener(listener, tlsConfig)
	}
	return listener, nil
}
