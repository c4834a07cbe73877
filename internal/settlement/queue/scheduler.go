package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	schedulerPoll = 500 * time.Millisecond

	// Janela de visibilidade: entrada entregue a um worker que morreu sem
	// dar ack volta para o stream depois desse período ocioso. Bem acima
	// do timeout de 8s da chamada mais as notificações.
	reclaimMinIdle = 30 * time.Second
	reclaimPoll    = 10 * time.Second
)

// StartScheduler inicia a goroutine que devolve ao stream os jobs atrasados
// (retries em backoff) cujo horário já chegou, e que recupera entradas
// pendentes de workers mortos. O envelope volta intacto em ambos os casos,
// preservando o contador de tentativas.
func (q *Queue) StartScheduler(ctx context.Context) {
	go func() {
		t := time.NewTicker(schedulerPoll)
		defer t.Stop()
		rt := time.NewTicker(reclaimPoll)
		defer rt.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := q.releaseDue(ctx); err != nil && ctx.Err() == nil {
					q.log.Warn("scheduler release", zap.Error(err))
				}
			case <-rt.C:
				if err := q.reclaimStale(ctx); err != nil && ctx.Err() == nil {
					q.log.Warn("scheduler reclaim", zap.Error(err))
				}
			}
		}
	}()
}

// releaseDue move do ZSET para o stream todo job com score <= agora
func (q *Queue) releaseDue(ctx context.Context) error {
	now := time.Now().UnixMilli()

	due, err := q.rdb.ZRangeByScore(ctx, keyDelayed, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now, 10),
		Count: 10,
	}).Result()
	if err != nil && err != redis.Nil {
		return err
	}

	for _, raw := range due {
		if err := q.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: StreamJobs,
			Values: map[string]interface{}{"job": raw},
		}).Err(); err != nil {
			return err
		}
		if err := q.rdb.ZRem(ctx, keyDelayed, raw).Err(); err != nil {
			return err
		}
	}
	return nil
}

// reclaimStale varre o PEL do consumer group e devolve ao fluxo normal de
// despacho toda entrada entregue e nunca confirmada (worker morto entre o
// dequeue e o ack). A redelivery é segura: o contador de tentativas viaja
// no envelope.
func (q *Queue) reclaimStale(ctx context.Context) error {
	start := "0-0"
	for {
		msgs, next, err := q.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   StreamJobs,
			Group:    ConsumerGroup,
			Consumer: "reclaimer",
			MinIdle:  reclaimMinIdle,
			Start:    start,
			Count:    10,
		}).Result()
		if err != nil && err != redis.Nil {
			return err
		}

		for _, msg := range msgs {
			raw, ok := msg.Values["job"].(string)
			if !ok {
				_ = q.ack(ctx, msg.ID)
				continue
			}
			if err := q.rdb.XAdd(ctx, &redis.XAddArgs{
				Stream: StreamJobs,
				Values: map[string]interface{}{"job": raw},
			}).Err(); err != nil {
				return err
			}
			if err := q.ack(ctx, msg.ID); err != nil {
				return err
			}
			q.log.Warn("stale job reclaimed", zap.String("msgId", msg.ID))
		}

		// cursor "0-0" indica que a varredura completou a volta
		if len(msgs) == 0 || next == "0-0" {
			return nil
		}
		start = next
	}
}
