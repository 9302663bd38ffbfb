package main

import (
	"context"
	"net/http"
	"time"

	"github.com/sing3demons/oryfm/internal/audit"
	"github.com/sing3demons/oryfm/internal/client"
	"github.com/sing3demons/oryfm/internal/config"
	"github.com/sing3demons/oryfm/internal/consent"
	"github.com/sing3demons/oryfm/internal/credential"
	"github.com/sing3demons/oryfm/internal/database"
	"github.com/sing3demons/oryfm/internal/filemaker"
	"github.com/sing3demons/oryfm/internal/hydra"
	"github.com/sing3demons/oryfm/internal/login"
	"github.com/sing3demons/oryfm/internal/logout"
	"github.com/sing3demons/oryfm/internal/metrics"
	"github.com/sing3demons/oryfm/internal/passwordreset"
	"github.com/sing3demons/oryfm/internal/remember"
	"github.com/sing3demons/oryfm/pkg/csrf"
	"github.com/sing3demons/oryfm/pkg/kafka"
	"github.com/sing3demons/oryfm/pkg/kp"
	"github.com/sing3demons/oryfm/pkg/logAction"
	"github.com/sing3demons/oryfm/pkg/logger"
	"github.com/sing3demons/oryfm/pkg/mlog"
	"github.com/sing3demons/oryfm/pkg/view"
)

const csrfTokenTTL = time.Hour

func serve(ctx context.Context, cfg *config.AppConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	startup := logger.NewLoggerWithConfig(cfg.ServiceName, cfg.Version, &cfg.LoggerConfig)
	startup.SetUseCase("startup")
	ctx = mlog.With(ctx, startup)
	if err := metrics.Register(nil); err != nil {
		return err
	}

	var redis database.IRedisClient
	if cfg.RedisEnabled() {
		r, err := database.NewRedisClient(cfg.RedisConfig)
		if err != nil {
			return err
		}
		defer r.Close()
		redis = r
	}

	hydraClient, err := hydra.NewClient(cfg.Hydra, nil)
	if err != nil {
		return err
	}

	var fmOpts []filemaker.Option
	if redis != nil {
		fmOpts = append(fmOpts, filemaker.WithTokenStore(filemaker.NewRedisTokenStore(redis, cfg.FileMaker.Username)))
	}
	fmClient, err := filemaker.NewClient(cfg.FileMaker, fmOpts...)
	if err != nil {
		return err
	}
	users := filemaker.NewService(fmClient)

	var clientCache client.ICacheRepository
	if redis != nil {
		clientCache = client.NewRedisCacheRepository(redis)
	} else {
		clientCache = client.NewMemoryCacheRepository(client.CacheTTL)
	}
	defer clientCache.Close()
	clients := client.NewClientService(hydraClient, clientCache)

	recorder, closeSinks, err := auditRecorder(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	labels, err := view.LoadLabels(cfg.LabelsPath)
	if err != nil {
		return err
	}
	renderer, err := view.New(labels, view.Data{"themeCssUrl": cfg.ThemeCSSURL})
	if err != nil {
		return err
	}

	app := kp.NewMicroservice(cfg,
		kp.WithRenderer(renderer),
		kp.WithCSRF(csrf.New(cfg.CSRFSecret, csrfTokenTTL, !cfg.IsDevelopment())),
	)
	app.Use(kp.RecoverMiddleware)

	credentials := credential.NewPolicy(cfg.Argon2)

	loginHandler := login.NewLoginHandler(
		login.NewLoginService(hydraClient, users, credentials, remember.NewPolicy(cfg.Login), cfg.AuthenticationMethod, recorder),
		labels,
	)
	app.GET("/login", loginHandler.LoginForm)
	app.POST("/login", loginHandler.Login)

	consentHandler := consent.NewConsentHandler(
		consent.NewConsentService(hydraClient, users, remember.NewPolicy(cfg.Consent), recorder),
		labels,
	)
	app.GET("/consent", consentHandler.ConsentForm)
	app.POST("/consent", consentHandler.Consent)

	app.GET("/logout", logout.NewLogoutHandler(logout.NewLogoutService(hydraClient, recorder)).Logout)

	if !cfg.IsBasicAuth() {
		passwordreset.NewPasswordResetHandler(
			passwordreset.NewPasswordResetService(users, clients, credentials, recorder, cfg.TestMode),
			labels,
		).Register(app)
	}

	app.GET("/error", func(ctx *kp.Ctx) {
		ctx.L("hydra_error")
		ctx.Render(http.StatusOK, view.HydraError, view.Data{
			"description": ctx.Query("error_description"),
			"hint":        ctx.Query("error_hint"),
		})
	})
	app.GET("/healthz", func(ctx *kp.Ctx) {
		ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	app.Handle("GET /metrics", metrics.Handler())
	app.Handle("GET /public/", view.Static())

	app.Start()
	return nil
}

// auditRecorder wires the configured sinks. With none configured events are
// only logged.
func auditRecorder(ctx context.Context, cfg *config.AppConfig) (*audit.Recorder, func(), error) {
	var (
		sinks   []audit.Publisher
		closers []func() error
	)
	closeAll := func() { closeSinks(ctx, closers) }

	if cfg.MongoEnabled() {
		db, err := database.NewDatabase(cfg.MongoConfig)
		if err != nil {
			return nil, func() {}, err
		}
		closers = append(closers, db.Close)
		repo, err := audit.NewMongoRepository(ctx, db)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		sinks = append(sinks, repo)
	}

	if cfg.KafkaEnabled() {
		kc := cfg.KafkaConfig
		producer, err := kafka.New(kafka.Config{
			Brokers:          kc.Brokers,
			SecurityProtocol: kc.SecurityProtocol,
			SASLMechanism:    kc.SASLMechanism,
			SASLUser:         kc.SASLUser,
			SASLPassword:     kc.SASLPassword,
			TLS:              kafka.TLSConfig{CACertFile: kc.CACertFile},
		})
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, producer.Close)
		sinks = append(sinks, audit.NewKafkaPublisher(producer, kc.AuditTopic))
	}

	return audit.NewRecorder(sinks...), closeAll, nil
}

func closeSinks(ctx context.Context, closers []func() error) {
	for _, c := range closers {
		if err := c(); err != nil {
			mlog.L(ctx).Error(logAction.EXCEPTION("close audit sink"), map[string]any{"error": err.Error()})
		}
	}
}
