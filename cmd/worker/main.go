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

	"github.com/pvarki/takbackend/internal/certsapi"
	"github.com/pvarki/takbackend/internal/links"
	"github.com/pvarki/takbackend/internal/notify"
	"github.com/pvarki/takbackend/internal/queue/tasks"
	"github.com/pvarki/takbackend/internal/repository"
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
	logger.SetComponent("worker")
	log = logger.L()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}
	_ = rdb.Close()

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		},
		asynq.Config{
			Concurrency:     cfg.AsynqConcurrency,
			Logger:          logger.QueueLogger{},
			ShutdownTimeout: cfg.ShutdownTimeout,
		},
	)

	ctx := context.Background()
	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL, database.Options{Verbose: cfg.AppEnv == "development"})
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	instanceRepo := repository.NewInstanceRepository(db)

	var mailer notify.Mailer = notify.LogMailer{}
	if cfg.MailEnabled() {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
	} else {
		log.Warn("SMTP not configured, ready emails will only be logged")
	}

	handler := tasks.NewNotifyTaskHandler(
		instanceRepo,
		certsapi.NewPoller(cfg.ReadinessInterval),
		mailer,
		notify.NewWebhookSender(30*time.Second),
		links.New(cfg.PublicURL),
		cfg.CertsAPIScheme,
		&http.Client{Timeout: 30 * time.Second},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeNotifyEmail, handler.HandleEmail)
	mux.HandleFunc(tasks.TypeNotifyWebhook, handler.HandleWebhook)

	errCh := make(chan error, 1)
	go func() {
		log.Info("asynq worker starting", zap.Int("concurrency", cfg.AsynqConcurrency))
		if err := srv.Run(mux); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("worker stopped with error", zap.Error(err))
	}

	// Tasks still waiting on readiness are abandoned after ShutdownTimeout and
	// picked up again by the next worker.
	srv.Shutdown()
}
