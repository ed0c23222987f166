package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pvarki/takbackend/internal/api"
	"github.com/pvarki/takbackend/internal/api/handlers"
	mw "github.com/pvarki/takbackend/internal/api/middleware"
	"github.com/pvarki/takbackend/internal/api/types"
	"github.com/pvarki/takbackend/internal/certsapi"
	"github.com/pvarki/takbackend/internal/links"
	"github.com/pvarki/takbackend/internal/provisioner"
	"github.com/pvarki/takbackend/internal/repository"
	"github.com/pvarki/takbackend/internal/services"
	"github.com/pvarki/takbackend/pkg/config"
	"github.com/pvarki/takbackend/pkg/database"
	"github.com/pvarki/takbackend/pkg/logger"
)

func main() {
	cfg := config.MustLoad()

	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	logger.SetComponent("api")
	log = logger.L()

	log.Info("starting takbackend api",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("public_url", cfg.PublicURL),
	)

	ctx := context.Background()
	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL, database.Options{Verbose: cfg.AppEnv == "development"})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	log.Info("database connected")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()

	queue := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer queue.Close()

	jwtSecret := []byte(cfg.JWTSecret)
	if len(jwtSecret) == 0 {
		if cfg.AppEnv == "production" {
			log.Fatal("JWT_SECRET must be set in production")
		}
		log.Warn("JWT_SECRET not set, using default (INSECURE for production)")
		jwtSecret = []byte("change-me-in-production-please")
	}

	instanceRepo := repository.NewInstanceRepository(db)
	sequenceRepo := repository.NewSequenceRepository(db)
	clientRepo := repository.NewClientRepository(db)

	lb := links.New(cfg.PublicURL)
	gateway := provisioner.NewPipelineClient(cfg.PipelineURL, cfg.PipelineToken, cfg.PipelineTimeout)
	certsHTTP := &http.Client{Timeout: 30 * time.Second}

	instanceSvc := services.NewInstanceService(instanceRepo, sequenceRepo, gateway, queue, services.InstanceServiceOptions{
		Links:         lb,
		NotifyTimeout: cfg.NotifyTimeout,
	})
	sequenceSvc := services.NewSequenceService(instanceRepo, sequenceRepo)
	instructionsSvc := services.NewInstructionsService(instanceRepo, sequenceRepo, clientRepo, certsapi.NewPoller(cfg.ReadinessInterval), services.InstructionsServiceOptions{
		CertsScheme:   cfg.CertsAPIScheme,
		CertsHTTP:     certsHTTP,
		ReadinessWait: cfg.ReadinessWait,
	})

	limiter := mw.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer limiter.Stop()

	router := api.NewRouter(api.Dependencies{
		HMACSecret:  jwtSecret,
		CORSOrigins: cfg.AllowedOrigins(),
		RateLimiter: limiter,
		HealthHandler: handlers.NewHealthHandler(map[string]handlers.Checker{
			"postgres": func(ctx context.Context) error { return database.Ping(ctx, db) },
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}),
		InstancesHandler: handlers.NewInstancesHandler(instanceSvc, lb),
		SequencesHandler: handlers.NewSequencesHandler(sequenceSvc, lb),
		CallbacksHandler: handlers.NewCallbacksHandler(instanceSvc),
		InstructionsHandler: handlers.NewInstructionsHandler(instructionsSvc, lb, types.DocumentLinks{
			Instructions: cfg.InstructionsURL,
			TAKCard:      cfg.TakorttiURL,
			Templates:    cfg.DocTemplateURL,
		}),
	})

	// WriteTimeout has to outlast ReadinessWait plus the bundle fetch.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.ReadinessWait + 60*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	} else {
		log.Info("server exited gracefully")
	}
}
