// Command migrate applies the embedded schema migrations.
//
//	migrate [up|down|status|version|reset]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/bidhub/internal/config"
	"github.com/sudo-init-do/bidhub/internal/db"
	"github.com/sudo-init-do/bidhub/internal/logging"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [up|down|status|version|reset]\n", os.Args[0])
	}
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}
	switch command {
	case "up", "down", "status", "version", "reset":
	default:
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		log.WithError(err).Fatal("connect database")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, command); err != nil {
		log.WithError(err).Fatal("migrate")
	}
	log.WithField("command", command).Info("migrations done")
}
