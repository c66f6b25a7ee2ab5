package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"tvshelf.org/internal/auth"
	"tvshelf.org/internal/catalog"
	"tvshelf.org/internal/config"
	"tvshelf.org/internal/httpapi"
	"tvshelf.org/internal/obs"
	"tvshelf.org/internal/ratelimit"
	"tvshelf.org/internal/store/memory"
	"tvshelf.org/internal/store/pg"
)

type stores struct {
	accounts auth.AccountStore
	roles    auth.RoleStore
	shows    catalog.Store
	ready    httpapi.ReadinessChecker
	close    func() error
}

func main() {
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config")
	}
	if err := obs.SetLevel(cfg.LogLevel); err != nil {
		log.WithError(err).Warn("invalid log level, keeping default")
	}
	obs.Init()
	obs.InitBuildInfo(cfg.Version, cfg.Commit)

	st, err := openStores(cfg.Storage)
	if err != nil {
		log.WithError(err).Fatal("open stores")
	}
	defer func() { _ = st.close() }()

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	roles, err := auth.EnsureRoles(bootCtx, st.roles)
	cancelBoot()
	if err != nil {
		log.WithError(err).Fatal("seed roles")
	}
	log.WithField("roles", roles).Info("role vocabulary ready")

	tokens, err := auth.NewTokenService(cfg.Tokens.AccessSecret, cfg.Tokens.RefreshSecret,
		auth.WithAccessTTL(cfg.Tokens.AccessTTL),
		auth.WithRefreshTTL(cfg.Tokens.RefreshTTL),
		auth.WithIssuer(cfg.Tokens.Issuer),
	)
	if err != nil {
		log.WithError(err).Fatal("token service")
	}
	authSvc, err := auth.NewService(st.accounts, st.roles, tokens)
	if err != nil {
		log.WithError(err).Fatal("auth service")
	}
	guard := auth.NewGuard(auth.WithDecisionObserver(func(d auth.Decision) {
		obs.ObserveDecision(d.Operation, d.Allowed, string(d.Reason))
		if !d.Allowed {
			log.WithFields(logrus.Fields{"operation": d.Operation, "reason": d.Reason}).Debug("authz_denied")
		}
	}))

	limiter, closeLimiter, err := newLimiter(cfg.Storage.RedisURL, cfg.RateLimit)
	if err != nil {
		log.WithError(err).Fatal("rate limiter")
	}
	defer closeLimiter()

	api := httpapi.New(httpapi.Deps{
		Auth:     authSvc,
		Accounts: auth.NewAccountService(st.accounts, st.roles, st.shows, guard),
		Shows:    catalog.NewService(st.shows, guard),
		Ready:    st.ready,
		Limiter:  limiter,
		Server:   cfg.Server,
		Version:  cfg.Version,
		Commit:   cfg.Commit,
	})

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := httpapi.NewHealthServer(st.ready)
	grpcSrv := grpc.NewServer()
	health.Register(grpcSrv)
	go health.Run(ctx, 10*time.Second)

	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.WithError(err).Fatal("grpc listen")
	}
	go func() {
		if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.WithError(err).Error("grpc serve")
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()
	log.WithFields(logrus.Fields{
		"version": cfg.Version,
		"http":    cfg.Server.HTTPAddr,
		"grpc":    cfg.Server.GRPCAddr,
	}).Info("tvshelf-api started")

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	grpcSrv.GracefulStop()
	log.Info("stopped")
}

func openStores(cfg config.StorageConfig) (stores, error) {
	if cfg.PostgresDSN == "" {
		obs.Logger().Warn("TVSHELF_PG_DSN not set, using in-memory stores")
		mem := memory.New()
		return stores{
			accounts: mem.Accounts(),
			roles:    mem.Roles(),
			shows:    mem.Shows(),
			ready:    httpapi.ReadyProbe{},
			close:    func() error { return nil },
		}, nil
	}
	db, err := pg.Open(cfg.PostgresDSN)
	if err != nil {
		return stores{}, err
	}
	return stores{
		accounts: db.Accounts(),
		roles:    db.Roles(),
		shows:    db.Shows(),
		ready:    httpapi.ReadyProbe{Ping: db.Ping},
		close:    db.Close,
	}, nil
}

// newLimiter shares limits through Redis when configured, otherwise keeps them in process.
func newLimiter(redisURL string, cfg config.RateLimitConfig) (ratelimit.Limiter, func(), error) {
	if redisURL == "" {
		return ratelimit.NewLocal(cfg.PerSecond, cfg.Burst), func() {}, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	perWindow := int(cfg.Window.Seconds()) * cfg.PerSecond
	if perWindow < cfg.Burst {
		perWindow = cfg.Burst
	}
	return ratelimit.NewRedis(client, perWindow, cfg.Window, "tvshelf:ratelimit"), func() { _ = client.Close() }, nil
}
