package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"rzr-relay/go-backend/internal/composition/relayserver"
	"rzr-relay/go-backend/internal/config"
	"rzr-relay/go-backend/internal/platform/privacylog"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to relay.yaml (optional)")
	listen := flag.String("listen", "", "HTTP listen address override")
	keyFile := flag.String("key-file", "", "Sealed node key file override")
	logLevel := flag.String("log-level", "", "Log level override: debug | info | warn | error")
	requireRegistered := flag.Bool("require-registered", false, "Only admit identities registered on the ledger")
	flag.Parse()
	if *showVersion {
		fmt.Printf("relayd version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relayd: %v\n", err)
		os.Exit(2)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *keyFile != "" {
		cfg.Identity.KeyFile = *keyFile
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "require-registered" {
			v := *requireRegistered
			cfg.Relay.RequireRegistered = &v
		}
	})

	logger := privacylog.New(os.Stderr, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("relayd starting", "version", version, "listen", cfg.Listen)
	if err := relayserver.Run(ctx, cfg, logger); err != nil {
		logger.Error("relayd failed", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("relayd stopped")
}
