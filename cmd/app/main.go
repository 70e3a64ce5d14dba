package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Genrec-Community/tabble-v3.1-sub000/internal/activity"
	"github.com/Genrec-Community/tabble-v3.1-sub000/internal/config"
	"github.com/Genrec-Community/tabble-v3.1-sub000/internal/gateway"
	"github.com/Genrec-Community/tabble-v3.1-sub000/internal/lib/logger"
	"github.com/Genrec-Community/tabble-v3.1-sub000/internal/poller"
	"github.com/Genrec-Community/tabble-v3.1-sub000/internal/remote"
	"github.com/Genrec-Community/tabble-v3.1-sub000/internal/service"
)

func main() {
	// 1. Инициализация конфигурации
	cfg := config.MustLoad("config/config.yaml")

	// 2. Инициализация логгера
	log := logger.New(cfg.Logger.Level)
	log.Info("starting tabble sync engine",
		slog.String("remote", cfg.Remote.BaseURL),
		slog.String("log_level", cfg.Logger.Level),
	)

	// 3. Клиент remote resource API
	client := remote.New(cfg.Remote, log)

	// 4. Шлюз читающих запросов: дедупликация + TTL-кэш
	gw := gateway.New(client, cfg.Cache.TTL, log)

	// 5. Монитор активности
	monitor := activity.New()

	// 6. Сервис синхронизации поверх шлюза
	syncSvc := service.NewSyncService(gw, log)

	// 7. Планировщик опроса
	sched := poller.New(poller.Options{
		BaseInterval: cfg.Poll.BaseInterval,
		FastInterval: cfg.Poll.FastInterval,
		MaxInterval:  cfg.Poll.MaxInterval,
		IdleAfter:    cfg.Poll.IdleAfter,
	}, monitor, log)

	sched.Start(func(ctx context.Context) error {
		if err := syncSvc.FetchSnapshot(ctx); err != nil {
			return err
		}
		log.Debug("snapshot merged", slog.Any("counts", syncSvc.AggregateCounts()))
		return nil
	})

	// 8. Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down application")
	sched.Stop()

	stats := gw.Stats()
	log.Info("application stopped",
		slog.Int("cache_entries", stats.Entries),
		slog.Int("cache_bytes", stats.SizeBytes),
	)
}
