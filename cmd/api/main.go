package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/aman-zulfiqar/rift-liquidity/internal/app"
	"github.com/aman-zulfiqar/rift-liquidity/internal/config"
	"github.com/aman-zulfiqar/rift-liquidity/internal/logger"
	"github.com/aman-zulfiqar/rift-liquidity/internal/server"
)

// loadEnv reads .env from the project root, if present
func loadEnv() {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	_ = godotenv.Load(filepath.Join(projectRoot, ".env"))
}

func main() {
	// load .env BEFORE anything reads the environment
	loadEnv()

	flags := pflag.NewFlagSet("api", pflag.ExitOnError)
	cfgFile := flags.String("config", "", "config file (default ./rift.yaml)")
	flags.String("api-addr", ":8090", "HTTP bind address")
	flags.Bool("dev-mode", false, "include error details in responses")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*cfgFile, flags)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	log := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		Output:     cfg.LogOutput,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   cfg.LogCompress,
	})
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize components")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.WithError(err).Warn("error while closing backends")
		}
	}()

	srv, err := server.NewServer(server.ServerDeps{
		Handlers: a.Handlers(cfg.DevMode),
		Config: server.ServerConfig{
			Addr:       cfg.APIAddr,
			DevMode:    cfg.DevMode,
			APIKey:     cfg.APIKey,
			QuoteRate:  cfg.QuoteRate,
			QuoteBurst: cfg.QuoteBurst,
		},
	})
	if err != nil {
		log.WithError(err).Fatal("failed to create http server")
	}

	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
		_ = srv.Shutdown(context.Background())
	}()

	log.WithFields(logrus.Fields{
		"addr":     cfg.APIAddr,
		"bundling": a.Relay != nil,
	}).Info("api server starting")
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("api server failed")
	}

	if err := srv.WaitClosed(context.Background()); err != nil {
		log.WithError(err).Warn("shutdown did not complete")
	}
}
