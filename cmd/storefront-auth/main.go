package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	cacheadapter "github.com/Crow-Studio/vikings-eccomerce-sub001/internal/adapter/cache"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/adapter/mail"
	oauthadapter "github.com/Crow-Studio/vikings-eccomerce-sub001/internal/adapter/oauth"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/bootstrap"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/config"
	httptransport "github.com/Crow-Studio/vikings-eccomerce-sub001/internal/http"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/http/handler"
	httpmiddleware "github.com/Crow-Studio/vikings-eccomerce-sub001/internal/http/middleware"
	apimiddleware "github.com/Crow-Studio/vikings-eccomerce-sub001/internal/middleware"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/ratelimit"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/repository"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/server"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/service"
	authservice "github.com/Crow-Studio/vikings-eccomerce-sub001/internal/service/auth"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/session"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newStores,
			newOAuthProviderConfigRepository,
			newOAuthStateStore,
			newOAuthProviderClient,
			newMailSender,
			newLimiters,
			newSessionManager,
			newAuthService,
			authservice.NewOAuthService,
			newSessionCookie,
			handler.NewAuthHandler,
			httpmiddleware.NewAuth,
			newRateLimiter,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startJanitor, bootstrap.EnsureAdmin, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Log.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Log.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		zcfg.Level = level
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}

	if cfg.Log.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
			Compress:   true,
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotator),
			zcfg.Level,
		)
		logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
	}

	zap.ReplaceGlobals(logger)
	return logger.With(zap.String("service", cfg.ServiceName)), nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg.ServiceName, cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

type stores struct {
	fx.Out

	Users         repository.UserRepository
	Sessions      repository.SessionRepository
	Verifications repository.VerificationRepository
	Accounts      repository.OAuthAccountRepository
}

// newStores connects Postgres when DATABASE_URL is set and falls back to the
// in-memory store otherwise.
func newStores(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (stores, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		mem := repository.NewMemoryStore()
		return stores{
			Users:         mem.Users(),
			Sessions:      mem.Sessions(),
			Verifications: mem.Verifications(),
			Accounts:      mem.OAuthAccounts(),
		}, nil
	}

	pool, err := newPGXPool(cfg)
	if err != nil {
		return stores{}, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := repository.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return stores{
		Users:         repository.NewPostgresUserRepo(pool),
		Sessions:      repository.NewPostgresSessionRepo(pool),
		Verifications: repository.NewPostgresVerificationRepo(pool),
		Accounts:      repository.NewPostgresOAuthAccountRepo(pool),
	}, nil
}

func newPGXPool(cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func newOAuthProviderConfigRepository(cfg config.Config) repository.OAuthProviderConfigRepo {
	return repository.NewStaticOAuthProviderConfigRepo(cfg.OAuthProviders()...)
}

func newOAuthStateStore(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (repository.OAuthStateStore, error) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, keeping oauth state in memory")
		return cacheadapter.NewMemoryStateStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return cacheadapter.NewRedisStateStore(client), nil
}

func newOAuthProviderClient() oauthadapter.ProviderClient {
	return oauthadapter.NewHTTPProviderClient(nil)
}

func newMailSender(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (mail.Sender, error) {
	sender, err := mail.New(cfg.SMTP, logger)
	if err != nil {
		return nil, fmt.Errorf("mail init: %w", err)
	}
	if pooled, ok := sender.(*mail.SMTPSender); ok {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				pooled.Close()
				return nil
			},
		})
	}
	return sender, nil
}

func newLimiters(cfg config.Config) *service.Limiters {
	return service.NewLimiters(cfg.RateLimit)
}

func newSessionManager(cfg config.Config, sessions repository.SessionRepository, users repository.UserRepository, logger *zap.Logger) *session.Manager {
	return session.NewManager(sessions, users,
		session.WithLifetime(cfg.Session.Lifetime),
		session.WithRenewalWindow(cfg.Session.RenewalWindow),
		session.WithLogger(logger),
	)
}

func newAuthService(
	cfg config.Config,
	users repository.UserRepository,
	verifications repository.VerificationRepository,
	sessions *session.Manager,
	mailer mail.Sender,
	limiters *service.Limiters,
	node *snowflake.Node,
	logger *zap.Logger,
) *service.AuthService {
	return service.NewAuthService(users, verifications, sessions, mailer, limiters, node, cfg.Password.Policy(), logger)
}

func newSessionCookie(cfg config.Config) httpmiddleware.SessionCookie {
	return httpmiddleware.NewSessionCookie(cfg)
}

func newRateLimiter(limiters *service.Limiters) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(limiters.Global, limiters.RequestCost)
}

func startJanitor(lc fx.Lifecycle, cfg config.Config, limiters *service.Limiters, logger *zap.Logger) {
	janitor := ratelimit.NewJanitor(cfg.RateLimit.SweepInterval, logger, limiters.Sweepers()...)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			janitor.Start()
			return nil
		},
		OnStop: janitor.Stop,
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
