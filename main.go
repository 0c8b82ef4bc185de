package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"Skycast/bot"
	"Skycast/core"
	"Skycast/dialogue"
	"Skycast/holder"
	"Skycast/lib/sl"
	"Skycast/observability"
	"Skycast/render"
	"Skycast/storage"
	"Skycast/weather"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	conf := core.MustLoad(*configPath)
	log := setupLogger(conf.Env)
	log.With(
		slog.String("config", *configPath),
		slog.String("env", conf.Env),
		slog.String("storage", conf.Storage.Backend),
	).Info("starting skycast bot")

	store := setupStorage(conf, log)

	metrics := observability.NewMetrics()
	if conf.MetricsAddress != "" {
		go func() {
			if err := http.ListenAndServe(conf.MetricsAddress, observability.Handler()); err != nil {
				log.Error("metrics server stopped", sl.Err(err))
			}
		}()
	}

	sessions := holder.NewSessionManager(conf.Session.TTL, nil, log)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go sessions.Run(sweepCtx, conf.Session.SweepInterval)

	renderer, err := render.NewRenderer(conf.Hcti.Endpoint, conf.Hcti.UserId, conf.Hcti.ApiKey, log)
	if err != nil {
		log.Error("creating renderer", sl.Err(err))
		return
	}
	provider := weather.NewClient(conf.OwmApiKey, log)

	tgBot, err := bot.NewTgBot(conf, log)
	if err != nil {
		log.Error("creating telegram", sl.Err(err))
		return
	}

	controller := dialogue.NewController(log, store, provider, renderer, sessions, tgBot, metrics)
	tgBot.SetDialogue(controller)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := tgBot.Start(); err != nil {
			log.Error("bot stopped with error", sl.Err(err))
		}
	}()

	log.Info("bot started")

	sig := <-sigChan
	log.Info("received signal, shutting down", slog.String("signal", sig.String()))

	tgBot.Stop()
	stopSweep()

	if err := store.Close(); err != nil {
		log.Error("error closing storage", sl.Err(err))
	}

	log.Info("shutdown complete")
}

// setupStorage picks the user store backend, falling back to memory
// when the configured backend is unreachable.
func setupStorage(conf *core.Config, log *slog.Logger) storage.UserStorage {
	switch conf.Storage.Backend {
	case "mongo":
		uri := fmt.Sprintf("mongodb://%s:%s@%s:%s",
			conf.Mongo.User, conf.Mongo.Password,
			conf.Mongo.Host, conf.Mongo.Port)
		store, err := storage.NewMongoStorage(uri, conf.Mongo.Database, log)
		if err != nil {
			log.With(
				slog.String("db", conf.Mongo.Database),
				slog.String("host", conf.Mongo.Host),
			).Error("falling back to memory", sl.Err(err))
			return storage.NewMemoryStorage()
		}
		log.Info("using MongoDB storage")
		return store
	case "postgres":
		url := fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
			conf.Postgres.User, conf.Postgres.Password,
			conf.Postgres.Host, conf.Postgres.Port, conf.Postgres.Database)
		store, err := storage.NewPostgresStorage(url, log)
		if err != nil {
			log.With(
				slog.String("db", conf.Postgres.Database),
				slog.String("host", conf.Postgres.Host),
			).Error("falling back to memory", sl.Err(err))
			return storage.NewMemoryStorage()
		}
		log.Info("using PostgreSQL storage")
		return store
	default:
		log.Info("using in-memory storage")
		return storage.NewMemoryStorage()
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal, envDev:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
