package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	apihttp "github.com/waveplay/teenpatti-settlement/internal/bet-api/http"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/balance"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/notify"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/queue"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/stats"
	"github.com/waveplay/teenpatti-settlement/internal/shared/cache"
	"github.com/waveplay/teenpatti-settlement/internal/shared/config"
	"github.com/waveplay/teenpatti-settlement/internal/shared/logger"
	"github.com/waveplay/teenpatti-settlement/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, _ := logger.New(cfg.ServiceName, cfg.Env)
	defer log.Sync()

	// Redis: fila, cache de saldo e canal de notificações
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}

	q, err := queue.New(rdb, stats.New(), log)
	if err != nil {
		log.Fatal("queue", zap.Error(err))
	}

	// Hub de sessões WebSocket + assinatura do canal de notificações do worker
	hub := notify.NewHub(log, func(r *http.Request) bool { return true })
	notify.StartRedisSubscriber(context.Background(), rdb, cfg.NotifyChannel, hub, log)

	api := apihttp.NewServer(log, q, balance.NewStore(rdb), hub, rdb)
	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.Router(),
	}

	// metrics/health
	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})

	log.Info("bet-api listening", zap.String("addr", fmt.Sprintf(":%s", cfg.HTTPPort)))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}
