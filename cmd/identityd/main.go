// identityd is a small HTTP front for the identity engine: gin
// transport, env configuration, zap logging, Redis-backed one-time
// codes, and a Postgres or in-memory credential store.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/merchkit/identity"
	"github.com/merchkit/identity/notify"
	"github.com/merchkit/identity/store"
	"github.com/merchkit/identity/token"
)

type serverConfig struct {
	Addr        string        `env:"IDENTITY_ADDR" envDefault:":8080"`
	DatabaseDSN string        `env:"IDENTITY_DATABASE_DSN"`
	RedisAddr   string        `env:"IDENTITY_REDIS_ADDR"`
	JWTMethod   string        `env:"IDENTITY_JWT_METHOD" envDefault:"hs256"`
	JWTSecret   string        `env:"IDENTITY_JWT_SECRET,required"`
	JWTIssuer   string        `env:"IDENTITY_JWT_ISSUER" envDefault:"merchkit-identity"`
	JWTAudience string        `env:"IDENTITY_JWT_AUDIENCE"`
	AccessTTL   time.Duration `env:"IDENTITY_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL  time.Duration `env:"IDENTITY_REFRESH_TTL" envDefault:"720h"`
	LogCodes    bool          `env:"IDENTITY_LOG_CODES" envDefault:"false"`
	Debug       bool          `env:"IDENTITY_DEBUG" envDefault:"false"`
}

func main() {
	_ = godotenv.Load()

	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Debug)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("identityd exited", zap.Error(err))
	}
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg serverConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	credStore, cleanup, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	builder := identity.New().
		WithConfig(identity.Config{
			JWT: identity.JWTConfig{
				AccessTTL:     cfg.AccessTTL,
				RefreshTTL:    cfg.RefreshTTL,
				SigningMethod: token.SigningMethod(cfg.JWTMethod),
				PrivateKey:    []byte(cfg.JWTSecret),
				Issuer:        cfg.JWTIssuer,
				Audience:      cfg.JWTAudience,
			},
		}).
		WithStore(credStore).
		WithLogger(logger).
		WithAuditSink(identity.NewJSONWriterSink(os.Stdout)).
		WithSender(sender(cfg, logger))

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		defer rdb.Close()
		builder = builder.WithRedis(rdb)
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(engine, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("identityd listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildStore(ctx context.Context, cfg serverConfig, logger *zap.Logger) (store.Store, func(), error) {
	if cfg.DatabaseDSN == "" {
		logger.Warn("no database DSN configured, using in-memory store")
		return store.NewMemoryStore(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store.NewPostgresStore(pool), pool.Close, nil
}

func sender(cfg serverConfig, logger *zap.Logger) notify.Sender {
	if cfg.LogCodes {
		return notify.LogSender{Logger: logger}
	}
	return notify.NopSender{}
}
