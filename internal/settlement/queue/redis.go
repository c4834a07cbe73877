package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/waveplay/teenpatti-settlement/internal/settlement/job"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/stats"
)

// Chaves Redis da fila de liquidação
const (
	StreamJobs    = "settlement:jobs"
	ConsumerGroup = "settlement-workers"

	keyDelayed   = "settlement:jobs:delayed"   // ZSET score = pronto-em (unix ms)
	keyCompleted = "settlement:jobs:completed" // LIST limitada aos últimos N
	keyFailed    = "settlement:jobs:failed"    // LIST mantida até revisão manual
)

var ErrNoJob = errors.New("no job available")

// Queue é a fila durável de jobs de aposta sobre Redis Streams.
// O envelope JSON carrega o contador de tentativas, então attempt e
// horário de retry sobrevivem a restarts do worker.
type Queue struct {
	rdb   *redis.Client
	stats *stats.Stats
	log   *zap.Logger
}

func New(rdb *redis.Client, s *stats.Stats, log *zap.Logger) (*Queue, error) {
	// garante que o consumer group exista
	err := rdb.XGroupCreateMkStream(context.Background(), StreamJobs, ConsumerGroup, "$").Err()
	if err != nil && !isBusyGroup(err) {
		return nil, err
	}
	return &Queue{rdb: rdb, stats: s, log: log}, nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// Enqueue persiste o job e devolve a posição aproximada na fila.
// Incrementa o contador queued e loga a posição (token nunca aparece).
func (q *Queue) Enqueue(ctx context.Context, j job.BetJob) (string, int64, error) {
	if err := j.Validate(); err != nil {
		return "", 0, err
	}
	if j.Timestamp.IsZero() {
		j.Timestamp = time.Now()
	}

	env := job.Envelope{
		ID:          uuid.NewString(),
		Attempt:     0,
		MaxAttempts: job.MaxAttempts,
		EnqueuedAt:  time.Now().UnixMilli(),
		Job:         j,
	}
	raw, _ := json.Marshal(env)

	if err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamJobs,
		Values: map[string]interface{}{"job": string(raw)},
	}).Err(); err != nil {
		return "", 0, err
	}

	position, err := q.rdb.XLen(ctx, StreamJobs).Result()
	if err != nil {
		position = 0
	}

	q.stats.IncQueued()
	q.log.Info("bet queued",
		zap.String("betId", j.BetID),
		zap.String("userId", j.UserID),
		zap.Int64("position", position),
	)
	return j.BetID, position, nil
}

// Dequeue entrega o próximo job para o consumer informado, bloqueando por
// alguns segundos. Retorna ErrNoJob quando o stream está vazio.
func (q *Queue) Dequeue(ctx context.Context, consumer string) (*job.Envelope, string, error) {
	entries, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: consumer,
		Streams:  []string{StreamJobs, ">"},
		Block:    5 * time.Second,
		Count:    1,
	}).Result()
	if err == redis.Nil {
		return nil, "", ErrNoJob
	}
	if err != nil {
		return nil, "", err
	}
	if len(entries) == 0 || len(entries[0].Messages) == 0 {
		return nil, "", ErrNoJob
	}

	msg := entries[0].Messages[0]
	raw, ok := msg.Values["job"].(string)
	if !ok {
		// mensagem corrompida: descarta para não travar o consumer
		_ = q.ack(ctx, msg.ID)
		return nil, "", ErrNoJob
	}

	var env job.Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		_ = q.ack(ctx, msg.ID)
		return nil, "", ErrNoJob
	}
	return &env, msg.ID, nil
}

// Reschedule tira o job do stream e o coloca no ZSET de atrasados, pronto
// para voltar após o delay de backoff.
func (q *Queue) Reschedule(ctx context.Context, msgID string, env *job.Envelope, delay time.Duration) error {
	raw, _ := json.Marshal(env)
	readyAt := time.Now().Add(delay).UnixMilli()

	if err := q.rdb.ZAdd(ctx, keyDelayed, redis.Z{
		Score:  float64(readyAt),
		Member: string(raw),
	}).Err(); err != nil {
		return err
	}
	return q.ack(ctx, msgID)
}

// Complete encerra o job com sucesso, mantendo os últimos concluídos
// para inspeção de curto prazo.
func (q *Queue) Complete(ctx context.Context, msgID string, env *job.Envelope) error {
	raw, _ := json.Marshal(env)
	pipe := q.rdb.TxPipeline()
	pipe.LPush(ctx, keyCompleted, string(raw))
	pipe.LTrim(ctx, keyCompleted, 0, job.CompletedRetention-1)
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Warn("completed retention", zap.Error(err))
	}
	return q.ack(ctx, msgID)
}

// Fail encerra o job como falha permanente; fica retido até revisão.
func (q *Queue) Fail(ctx context.Context, msgID string, env *job.Envelope, reason string) error {
	entry, _ := json.Marshal(map[string]any{
		"envelope": env,
		"reason":   reason,
		"failedAt": time.Now().UnixMilli(),
	})
	if err := q.rdb.LPush(ctx, keyFailed, string(entry)).Err(); err != nil {
		q.log.Warn("failed retention", zap.Error(err))
	}
	return q.ack(ctx, msgID)
}

// ack confirma e remove a entrada do stream; sem o XDel o stream
// cresceria sem limite com jobs já encerrados
func (q *Queue) ack(ctx context.Context, msgID string) error {
	pipe := q.rdb.TxPipeline()
	pipe.XAck(ctx, StreamJobs, ConsumerGroup, msgID)
	pipe.XDel(ctx, StreamJobs, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

// Contadores de observabilidade da fila

func (q *Queue) WaitingCount(ctx context.Context) (int64, error) {
	total, err := q.rdb.XLen(ctx, StreamJobs).Result()
	if err != nil {
		return 0, err
	}
	active, err := q.ActiveCount(ctx)
	if err != nil {
		return 0, err
	}
	if total < active {
		return 0, nil
	}
	return total - active, nil
}

func (q *Queue) ActiveCount(ctx context.Context) (int64, error) {
	p, err := q.rdb.XPending(ctx, StreamJobs, ConsumerGroup).Result()
	if err != nil {
		return 0, err
	}
	return p.Count, nil
}

func (q *Queue) DelayedCount(ctx context.Context) (int64, error) {
	return q.rdb.ZCard(ctx, keyDelayed).Result()
}
