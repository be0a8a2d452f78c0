// Command worker processes queued notification emails. Run it when the
// API server is started with RUN_WORKER=false.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/bidhub/internal/alerts"
	"github.com/sudo-init-do/bidhub/internal/config"
	"github.com/sudo-init-do/bidhub/internal/db"
	"github.com/sudo-init-do/bidhub/internal/logging"
	"github.com/sudo-init-do/bidhub/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		log.WithError(err).Fatal("connect database")
	}
	defer pool.Close()

	mailer, err := alerts.NewMailer(cfg.Mail, &http.Client{Timeout: 30 * time.Second}, log)
	if err != nil {
		log.WithError(err).Fatal("configure mailer")
	}

	mux := asynq.NewServeMux()
	alerts.NewProcessor(mailer, alerts.NewPGStore(pool), metrics.New(), log).Register(mux)

	srv := alerts.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, 10, log)
	if err := srv.Start(mux); err != nil {
		log.WithError(err).Fatal("start worker")
	}
	log.WithField("redis", cfg.RedisAddr).Info("worker started")

	<-ctx.Done()
	log.Info("worker shutting down")
	srv.Shutdown()
}
