package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/waveplay/teenpatti-settlement/internal/settlement/breaker"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/client"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/ledger"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/limiter"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/notify"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/producer"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/queue"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/stats"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/worker"
	"github.com/waveplay/teenpatti-settlement/internal/shared/cache"
	"github.com/waveplay/teenpatti-settlement/internal/shared/config"
	"github.com/waveplay/teenpatti-settlement/internal/shared/db"
	"github.com/waveplay/teenpatti-settlement/internal/shared/kafka"
	"github.com/waveplay/teenpatti-settlement/internal/shared/logger"
	"github.com/waveplay/teenpatti-settlement/internal/shared/metrics"
)

// Controle de admissão da chamada de liquidação: 3 em voo, 3 por segundo
const (
	callConcurrency = 3
	callsPerSec     = 3
)

func main() {
	cfg := config.Load()
	log, _ := logger.New(cfg.ServiceName, cfg.Env)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis: fila durável e canal de notificações
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}

	// Postgres: ledger de contribuições de pote
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()

	// Kafka: eventos terminais + DLQ
	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetSettled)
	defer settledWriter.Close()
	dlqWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetSettledDLQ)
	defer dlqWriter.Close()

	st := stats.New()
	q, err := queue.New(rdb, st, log)
	if err != nil {
		log.Fatal("queue", zap.Error(err))
	}
	q.StartScheduler(ctx)

	brk := breaker.New(func(from, to breaker.State) {
		log.Warn("circuit breaker state change",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	})

	notifier := notify.NewRedisBroadcaster(rdb, cfg.NotifyChannel, log)

	pool := worker.NewPool(
		q,
		brk,
		limiter.New(callConcurrency, callsPerSec),
		client.New(notifier, log),
		notifier,
		ledger.NewPostgres(pg),
		producer.NewKafkaPublisher(settledWriter, dlqWriter),
		st,
		log,
	)

	agg := stats.NewAggregator(q, brk, st, rdb, log)
	go agg.Run(ctx)

	// metrics/health
	metrics.StartMetricsServer(cfg.MetricsPort, func(hctx context.Context) error {
		if err := rdb.Ping(hctx).Err(); err != nil {
			return err
		}
		return pg.PingContext(hctx)
	})

	log.Info("settlement-worker started",
		zap.Int("concurrency", worker.Concurrency),
		zap.String("stream", queue.StreamJobs),
		zap.String("publish", cfg.TopicBetSettled),
	)

	pool.Run(ctx)
	log.Info("settlement-worker stopped")
}
