package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"flow-metrics/analysis"
	"flow-metrics/config"
	"flow-metrics/eventlog"
	"flow-metrics/history"
	"flow-metrics/logger"
	"flow-metrics/metrics"
	"flow-metrics/web"
)

func main() {
	// Parse command line flags
	var (
		port       int
		configPath string
		source     string
	)
	flag.IntVar(&port, "port", 0, "Port to run the server on (overrides config)")
	flag.StringVar(&configPath, "config", "config.json", "Path to the configuration file")
	flag.StringVar(&source, "source", "files", "Raw changelog source: files or redis")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.WithError(err).Fatal("could not load configuration")
	}
	if port > 0 {
		cfg.Port = port
	}

	src, err := analysis.ParseSource(source)
	if err != nil {
		log.WithError(err).Fatal("invalid source")
	}

	engine, err := analysis.NewEngine(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("could not prepare analysis")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store eventlog.Store
	if src == analysis.SourceStore {
		redisLog, err := eventlog.NewRedisLog(cfg.RedisAddr, cfg.RedisPrefix)
		if err != nil {
			log.WithError(err).Fatal("event log unavailable")
		}
		defer redisLog.Close()
		store = redisLog
	}

	var runs web.RunStore
	if cfg.DatabaseURL != "" {
		db, err := history.NewPostgres(ctx, cfg.DatabaseURL, history.DefaultSchema)
		if err != nil {
			log.WithError(err).Warn("run history unavailable, continuing without it")
		} else {
			defer db.Close()
			runs = db
		}
	}

	report := func(ctx context.Context) (metrics.Report, error) {
		res, err := engine.Run(ctx, src, store)
		if err != nil {
			return metrics.Report{}, err
		}
		return res.Report, nil
	}

	server := web.NewServer(cfg, log, report, runs)
	if err := server.Start(ctx, cfg.Port); err != nil {
		log.WithError(err).Fatal("server failed")
	}
}
