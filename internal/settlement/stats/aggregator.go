package stats

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/waveplay/teenpatti-settlement/internal/settlement/breaker"
)

// Chave Redis onde o worker deixa o snapshot mais recente para o bet-api
const snapshotKey = "settlement:stats"

const snapshotInterval = 10 * time.Second

// Snapshot é a visão de observabilidade do pipeline (getQueueStats)
type Snapshot struct {
	Waiting                int64 `json:"waiting"`
	Active                 int64 `json:"active"`
	Completed              int64 `json:"completed"`
	Failed                 int64 `json:"failed"`
	Delayed                int64 `json:"delayed"`
	BusinessLogicFailed    int64 `json:"businessLogicFailed"`
	CircuitBreakerOpen     bool  `json:"circuitBreakerOpen"`
	CircuitBreakerHalfOpen bool  `json:"circuitBreakerHalfOpen"`
}

// QueueCounts é o recorte da fila que o agregador observa
type QueueCounts interface {
	WaitingCount(ctx context.Context) (int64, error)
	ActiveCount(ctx context.Context) (int64, error)
	DelayedCount(ctx context.Context) (int64, error)
}

// BreakerState expõe o modo do breaker para o snapshot
type BreakerState interface {
	State() breaker.State
}

// Aggregator amostra fila, contadores e breaker a cada 10s, loga uma linha
// de resumo e publica o snapshot no Redis. Somente leitura: nenhum efeito
// sobre o pipeline.
type Aggregator struct {
	queue   QueueCounts
	breaker BreakerState
	stats   *Stats
	rdb     *redis.Client
	log     *zap.Logger
}

func NewAggregator(q QueueCounts, b BreakerState, s *Stats, rdb *redis.Client, log *zap.Logger) *Aggregator {
	return &Aggregator{queue: q, breaker: b, stats: s, rdb: rdb, log: log}
}

func (a *Aggregator) Run(ctx context.Context) {
	t := time.NewTicker(snapshotInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			snap, err := a.Snapshot(ctx)
			if err != nil {
				a.log.Warn("stats sample", zap.Error(err))
				continue
			}

			a.log.Info("queue stats",
				zap.Int64("waiting", snap.Waiting),
				zap.Int64("active", snap.Active),
				zap.Int64("delayed", snap.Delayed),
				zap.Int64("completed", snap.Completed),
				zap.Int64("failed", snap.Failed),
				zap.Int64("businessLogicFailed", snap.BusinessLogicFailed),
				zap.String("breaker", a.breaker.State().String()),
			)

			if err := a.publish(ctx, snap); err != nil {
				a.log.Warn("stats publish", zap.Error(err))
			}
		}
	}
}

// Snapshot monta a visão corrente de fila + contadores + breaker
func (a *Aggregator) Snapshot(ctx context.Context) (Snapshot, error) {
	waiting, err := a.queue.WaitingCount(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	active, err := a.queue.ActiveCount(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	delayed, err := a.queue.DelayedCount(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	state := a.breaker.State()
	mBreakerState.Set(float64(state))

	return Snapshot{
		Waiting:                waiting,
		Active:                 active,
		Delayed:                delayed,
		Completed:              a.stats.Completed(),
		Failed:                 a.stats.Failed(),
		BusinessLogicFailed:    a.stats.BusinessLogicFailed(),
		CircuitBreakerOpen:     state == breaker.StateOpen,
		CircuitBreakerHalfOpen: state == breaker.StateHalfOpen,
	}, nil
}

func (a *Aggregator) publish(ctx context.Context, snap Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return a.rdb.Set(ctx, snapshotKey, b, 3*snapshotInterval).Err()
}

// ReadSnapshot lê o snapshot publicado pelo worker. Retorna ok=false quando
// não há snapshot recente (worker parado ou recém-iniciado).
func ReadSnapshot(ctx context.Context, rdb *redis.Client) (Snapshot, bool, error) {
	raw, err := rdb.Get(ctx, snapshotKey).Bytes()
	if err == redis.Nil {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}
