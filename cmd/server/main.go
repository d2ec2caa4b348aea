package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	webhttp "github.com/movesage/movesage/modules/billing"
	"github.com/movesage/movesage/pkg/billing"
	"github.com/movesage/movesage/pkg/config"
	"github.com/movesage/movesage/pkg/environment"
	"github.com/movesage/movesage/pkg/httpserver"
	"github.com/movesage/movesage/pkg/jwt"
	"github.com/movesage/movesage/pkg/logger"
	"github.com/movesage/movesage/pkg/pg"
	"github.com/movesage/movesage/pkg/requestid"
)

type appConfig struct {
	AppName       string `env:"APP_NAME" envDefault:"movesage"`
	AppEnv        string `env:"APP_ENV" envDefault:"development"`
	JWTSigningKey string `env:"JWT_SIGNING_KEY,required"`
}

func main() {
	var (
		appCfg    appConfig
		pgCfg     pg.Config
		httpCfg   httpserver.Config
		stripeCfg billing.StripeConfig
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&pgCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&stripeCfg)

	log := logger.New(
		logger.WithEnvironment(appCfg.AppEnv, appCfg.AppName),
		logger.WithContextExtractors(requestid.LoggerExtractor(), environment.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	ctx := context.Background()

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		log.Error("failed to connect to postgres", logger.Error(err))
		os.Exit(1)
	}
	defer pool.Close()

	provider, err := billing.NewStripeProvider(stripeCfg)
	if err != nil {
		log.Error("failed to configure payment provider", logger.Error(err))
		os.Exit(1)
	}

	tokens, err := jwt.NewFromString(appCfg.JWTSigningKey)
	if err != nil {
		log.Error("failed to configure token service", logger.Error(err))
		os.Exit(1)
	}

	stores := billing.NewPostgresStores(pool)
	svc := billing.NewService(stores, stores, provider, billing.WithLogger(log))

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(environment.Middleware(environment.Environment(appCfg.AppEnv)))

	r.Get("/health", httpserver.HealthCheckHandler(ctx, log, pg.Healthcheck(pool)))
	r.Mount("/", webhttp.Router(webhttp.RouterOptions{
		Subscriptions: webhttp.NewService(svc, tokens, webhttp.WithLogger(log)),
		Webhooks:      webhttp.NewWebhook(svc, webhttp.WithWebhookLogger(log)),
	}))

	srv := httpserver.NewFromConfig(httpCfg,
		httpserver.WithLogger(log),
		httpserver.WithStartHook(func(l *slog.Logger) {
			l.Info("server started", "addr", httpCfg.Addr)
		}),
	)
	if err := srv.Run(ctx, r); err != nil {
		log.Error("server stopped with error", logger.Error(err))
		os.Exit(1)
	}
}
