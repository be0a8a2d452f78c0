package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/bidhub/internal/alerts"
	"github.com/sudo-init-do/bidhub/internal/auth"
	"github.com/sudo-init-do/bidhub/internal/config"
	"github.com/sudo-init-do/bidhub/internal/db"
	"github.com/sudo-init-do/bidhub/internal/logging"
	"github.com/sudo-init-do/bidhub/internal/marketplace"
	"github.com/sudo-init-do/bidhub/internal/metrics"
	"github.com/sudo-init-do/bidhub/internal/realtime"
	"github.com/sudo-init-do/bidhub/internal/router"
	"github.com/sudo-init-do/bidhub/internal/storage"
	"github.com/sudo-init-do/bidhub/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool, "up"); err != nil {
		return err
	}

	m := metrics.New()
	httpClient := &http.Client{Timeout: 30 * time.Second}

	redis := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	queueClient := asynq.NewClient(redis)
	defer queueClient.Close()
	queue := alerts.NewQueue(queueClient, cfg.ResetTTL)

	users := user.NewPGStore(pool)
	inbox := alerts.NewPGStore(pool)

	authSvc, err := auth.NewService(users, auth.NewTokens(cfg.JWTSecret, cfg.JWTExpiresIn), queue, log, auth.Options{
		BcryptCost: cfg.BcryptCost,
		ResetTTL:   cfg.ResetTTL,
		AppURL:     cfg.AppURL,
	})
	if err != nil {
		return err
	}

	uploader, uploadDir := newUploader(cfg, httpClient)
	hub := realtime.NewHub(log)
	market := marketplace.NewService(marketplace.Deps{
		Store:    marketplace.NewPGStore(pool),
		Users:    users,
		Uploader: uploader,
		Notifier: queue,
		Events:   hub,
		Metrics:  m,
		Log:      log,
	})

	e := router.New(router.Deps{
		Log:           log,
		Metrics:       m,
		DB:            pool,
		Auth:          authSvc,
		AuthHandler:   auth.NewHandler(authSvc),
		Users:         user.NewHandler(users),
		Market:        marketplace.NewHandler(market, hub),
		Notifications: alerts.NewHandler(inbox),
		UploadDir:     uploadDir,
		AuthRateLimit: cfg.AuthRateLimit,
	})

	// The email worker runs in-process unless a separate worker is deployed.
	if cfg.RunWorker {
		mailer, err := alerts.NewMailer(cfg.Mail, httpClient, log)
		if err != nil {
			return err
		}
		mux := asynq.NewServeMux()
		alerts.NewProcessor(mailer, inbox, m, log).Register(mux)
		worker := alerts.NewServer(redis, 5, log)
		if err := worker.Start(mux); err != nil {
			return err
		}
		defer worker.Shutdown()
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr()).Info("API server listening")
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newUploader(cfg *config.Config, client *http.Client) (storage.Uploader, string) {
	if cfg.Storage.Driver == "cloudinary" {
		return storage.NewCloudinary(storage.CloudinaryConfig{
			CloudName: cfg.Cloudinary.CloudName,
			APIKey:    cfg.Cloudinary.APIKey,
			APISecret: cfg.Cloudinary.APISecret,
			Folder:    cfg.Cloudinary.Folder,
			APIBase:   cfg.Cloudinary.APIBase,
		}, client), ""
	}
	local := storage.NewLocal(cfg.Storage.UploadDir, cfg.Cloudinary.Folder, cfg.Storage.PublicURL)
	return local, local.Dir()
}
