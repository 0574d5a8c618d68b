package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vbonduro/album/internal/album"
	"github.com/vbonduro/album/internal/config"
	"github.com/vbonduro/album/internal/db"
	"github.com/vbonduro/album/internal/logging"
	"github.com/vbonduro/album/internal/objecturl"
	"github.com/vbonduro/album/internal/store"
	"github.com/vbonduro/album/internal/timefmt"
	"github.com/vbonduro/album/internal/web"
	"github.com/vbonduro/album/internal/web/templates"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	database, err := db.Open(cfg.DBPath, cfg.DBQuotaBytes)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	urls, closeURLs, err := newObjectURLRegistry(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize object url registry", "error", err)
		return
	}
	defer closeURLs()

	times, err := timefmt.New(cfg.TimeZone, cfg.TimeLayout)
	if err != nil {
		logger.Error("failed to load time zone", "zone", cfg.TimeZone, "error", err)
		return
	}

	entryStore := store.NewEntryStore(database)
	newAlbum := func(basePath string) (*album.Album, error) {
		return album.New(album.Options{
			BasePath:         basePath,
			CarouselInterval: cfg.CarouselInterval,
		}, entryStore, urls, times, logger.With("album", basePath))
	}

	server := web.NewServer(newAlbum, urls, templates.FS, web.Options{
		SessionTTL:     cfg.SessionTTL,
		SessionLimit:   cfg.SessionLimit,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, logger)
	defer server.Close()

	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		logger.Error("server error", "error", err)
	}
}

func newObjectURLRegistry(cfg *config.Config, logger *slog.Logger) (objecturl.Registry, func(), error) {
	switch cfg.ObjectURLBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		logger.Info("using redis object url registry", "addr", cfg.RedisAddr, "ttl", cfg.ObjectURLTTL)
		return objecturl.NewRedis(client, cfg.ObjectURLTTL), func() {
			if err := client.Close(); err != nil {
				logger.Error("failed to close redis client", "error", err)
			}
		}, nil
	default:
		logger.Info("using in-memory object url registry")
		return objecturl.NewMemory(), func() {}, nil
	}
}
