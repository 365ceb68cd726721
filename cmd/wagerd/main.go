package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/cometbft/cometbft/abci/server"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"wagerchain/internal/app"
	"wagerchain/internal/config"
)

func main() {
	var (
		cfgPath   = flag.String("config", "", "path to TOML config (optional)")
		home      = flag.String("home", "", "app home directory (state will be stored under <home>/app)")
		addr      = flag.String("addr", "", "ABCI listen address")
		transport = flag.String("transport", "", "ABCI transport (socket|grpc)")
		logLevel  = flag.String("log-level", "", "log level (debug|info|warn|error)")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatal("load config", err)
	}
	// Flags override the config file.
	if *home != "" {
		cfg.Home = *home
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *transport != "" {
		cfg.Transport = *transport
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fatal("validate config", err)
	}

	logger := newLogger(cfg.LogLevel)

	a, err := app.New(cfg.Home, logger)
	if err != nil {
		fatal("init app", err)
	}

	srv, err := server.NewServer(cfg.ListenAddr, cfg.Transport, a)
	if err != nil {
		fatal("create abci server", err)
	}
	if err := srv.Start(); err != nil {
		fatal("start abci server", err)
	}
	defer func() { _ = srv.Stop() }()

	level.Info(logger).Log("msg", "wagerd started", "addr", cfg.ListenAddr, "transport", cfg.Transport, "home", cfg.Home)

	// Wait for signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	level.Info(logger).Log("msg", "shutting down")
}

func newLogger(lvl string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	switch lvl {
	case "debug":
		logger = level.NewFilter(logger, level.AllowDebug())
	case "warn":
		logger = level.NewFilter(logger, level.AllowWarn())
	case "error":
		logger = level.NewFilter(logger, level.AllowError())
	default:
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	return log.With(logger, "ts", log.DefaultTimestampUTC)
}

func fatal(msg string, err error) {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	_ = level.Error(logger).Log("msg", msg, "err", err)
	os.Exit(1)
}
