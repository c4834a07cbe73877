package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/waveplay/teenpatti-settlement/internal/settlement/breaker"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/client"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/job"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/ledger"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/notify"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/queue"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/stats"
	ev "github.com/waveplay/teenpatti-settlement/pkg/contracts/events"
)

// Tunables do pool: 5 jobs em voo e 3 inícios de job por segundo.
// Independentes do limiter por chamada (defesa em profundidade).
const (
	Concurrency  = 5
	StartsPerSec = 3
)

// Mensagem de falha sintética quando o breaker está aberto: a tentativa
// consome o orçamento de retry sem tocar a rede.
const msgBreakerOpen = "Service temporarily unavailable - retrying soon"

// JobQueue é o recorte da fila durável consumido pelo pool
type JobQueue interface {
	Dequeue(ctx context.Context, consumer string) (*job.Envelope, string, error)
	Reschedule(ctx context.Context, msgID string, env *job.Envelope, delay time.Duration) error
	Complete(ctx context.Context, msgID string, env *job.Envelope) error
	Fail(ctx context.Context, msgID string, env *job.Envelope, reason string) error
}

// Breaker protege a chamada de liquidação
type Breaker interface {
	State() breaker.State
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Limiter é o controle de admissão por chamada
type Limiter interface {
	Acquire(ctx context.Context) error
	Release()
}

// Caller executa a chamada de liquidação em si
type Caller interface {
	Call(ctx context.Context, j *job.BetJob) (*client.Result, error)
}

// Publisher emite os eventos terminais no Kafka
type Publisher interface {
	PublishBetSettled(ctx context.Context, e ev.BetSettled) error
	PublishDLQ(ctx context.Context, env *job.Envelope, reason string) error
}

// Pool orquestra o pipeline: puxa jobs da fila, aplica breaker/limiter,
// chama a carteira, decide retry ou término e notifica o jogador.
// Todas as dependências entram pelo construtor.
type Pool struct {
	queue     JobQueue
	breaker   Breaker
	limiter   Limiter
	caller    Caller
	notifier  notify.Notifier
	ledger    ledger.Appender
	publisher Publisher
	stats     *stats.Stats
	log       *zap.Logger

	startLimiter *rate.Limiter
}

func NewPool(
	q JobQueue,
	b Breaker,
	l Limiter,
	c Caller,
	n notify.Notifier,
	led ledger.Appender,
	p Publisher,
	s *stats.Stats,
	log *zap.Logger,
) *Pool {
	return &Pool{
		queue:        q,
		breaker:      b,
		limiter:      l,
		caller:       c,
		notifier:     n,
		ledger:       led,
		publisher:    p,
		stats:        s,
		log:          log,
		startLimiter: rate.NewLimiter(rate.Limit(StartsPerSec), StartsPerSec),
	}
}

// Run inicia os workers e bloqueia até o contexto encerrar
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.runWorker(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	consumer := fmt.Sprintf("worker-%d", id)
	log := p.log.With(zap.String("consumer", consumer))
	log.Info("worker started")

	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.startLimiter.Wait(ctx); err != nil {
			return
		}

		env, msgID, err := p.queue.Dequeue(ctx, consumer)
		if errors.Is(err, queue.ErrNoJob) {
			continue
		}
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("dequeue", zap.Error(err))
				time.Sleep(time.Second)
			}
			continue
		}

		p.processOne(ctx, log, env, msgID)
	}
}

// processOne executa uma tentativa de liquidação de um job:
// 1. Notifica betProcessing para a sessão do jogador
// 2. Breaker aberto -> falha sintética sem chamada de rede
// 3. Caso contrário, limiter -> breaker -> chamada na carteira
// 4. Sucesso -> notificação terminal, ledger (game 16) e bet_settled
// 5. Falha com tentativas restantes -> reagenda com backoff exponencial
// 6. Falha na 8a tentativa -> notificação de falha permanente + DLQ
func (p *Pool) processOne(ctx context.Context, log *zap.Logger, env *job.Envelope, msgID string) {
	env.Attempt++
	j := &env.Job

	p.stats.IncProcessing()
	defer p.stats.DecProcessing()

	p.notifier.Notify(ctx, j.UserID, ev.EventBetProcessing, ev.BetProcessing{
		BetID:       j.BetID,
		Status:      "processing",
		Attempt:     env.Attempt,
		MaxAttempts: env.MaxAttempts,
	})

	res, err := p.attempt(ctx, j)

	if err == nil {
		p.finish(ctx, log, env, msgID, res)
		return
	}

	log.Warn("settlement attempt failed",
		zap.String("betId", j.BetID),
		zap.Int("attempt", env.Attempt),
		zap.Int("maxAttempts", env.MaxAttempts),
		zap.String("reason", failureReason(err)),
	)

	if env.Attempt < env.MaxAttempts {
		delay := job.RetryDelay(env.Attempt)
		log.Info("bet rescheduled",
			zap.String("betId", j.BetID),
			zap.Duration("delay", delay),
		)
		if rerr := p.queue.Reschedule(ctx, msgID, env, delay); rerr != nil {
			log.Error("reschedule", zap.String("betId", j.BetID), zap.Error(rerr))
		}
		return
	}

	p.finishPermanentFailure(ctx, log, env, msgID, err)
}

// attempt faz uma única tentativa, respeitando breaker e limiter
func (p *Pool) attempt(ctx context.Context, j *job.BetJob) (*client.Result, error) {
	if p.breaker.State() == breaker.StateOpen {
		return nil, breaker.ErrCircuitOpen
	}

	if err := p.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer p.limiter.Release()

	var res *client.Result
	err := p.breaker.Do(ctx, func(cctx context.Context) error {
		r, cerr := p.caller.Call(cctx, j)
		if cerr != nil {
			return cerr
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// finish encerra o job após resposta definitiva da carteira: liquidado
// ou rejeitado por regra de negócio. Falha de ledger/Kafka é logada e
// não reabre o job.
func (p *Pool) finish(ctx context.Context, log *zap.Logger, env *job.Envelope, msgID string, res *client.Result) {
	j := &env.Job

	if !res.Success {
		// rejeição de negócio: resposta definitiva, sem retry
		p.stats.IncBusinessLogicFailed()
		p.notifier.Notify(ctx, j.UserID, ev.EventBetResponse, ev.BetResponse{
			Success: false,
			Message: res.Message,
			Data:    map[string]any{"betId": j.BetID, "permanentFailure": false},
		})
		p.publishSettled(ctx, log, env, "REJECTED", res.Message)
		if err := p.queue.Complete(ctx, msgID, env); err != nil {
			log.Error("complete", zap.String("betId", j.BetID), zap.Error(err))
		}
		return
	}

	potName := job.PotName(j.PotIndex)

	data := make(map[string]any, len(res.Data)+5)
	for k, v := range res.Data {
		data[k] = v
	}
	data["betId"] = j.BetID
	data["potIndex"] = j.PotIndex
	data["betType"] = j.BetType
	data["amount"] = j.Amount
	data["potName"] = potName

	p.notifier.Notify(ctx, j.UserID, ev.EventBetResponse, ev.BetResponse{
		Success: true,
		Message: res.Message,
		Data:    data,
	})

	if j.GameID == job.LedgerGameID {
		if err := p.ledger.AppendPotContribution(ctx, ledger.Row{
			PotIndex: j.PotIndex,
			UserID:   j.UserID,
			Amount:   j.Amount,
			Type:     j.BetType,
			PotName:  potName,
			AppKey:   j.AppKey,
		}); err != nil {
			log.Error("ledger append", zap.String("betId", j.BetID), zap.Error(err))
		}
	}

	p.publishSettled(ctx, log, env, "SETTLED", res.Message)

	if err := p.queue.Complete(ctx, msgID, env); err != nil {
		log.Error("complete", zap.String("betId", j.BetID), zap.Error(err))
	}
	p.stats.IncCompleted()

	log.Info("bet settled",
		zap.String("betId", j.BetID),
		zap.Int("attempts", env.Attempt),
	)
}

// finishPermanentFailure encerra o job após esgotar as 8 tentativas
func (p *Pool) finishPermanentFailure(ctx context.Context, log *zap.Logger, env *job.Envelope, msgID string, lastErr error) {
	j := &env.Job
	final := client.FinalFailureMessage(lastErr)

	p.notifier.Notify(ctx, j.UserID, ev.EventBetResponse, ev.BetResponse{
		Success: false,
		Message: final,
		Data:    map[string]any{"betId": j.BetID, "permanentFailure": true},
	})

	if err := p.publisher.PublishDLQ(ctx, env, failureReason(lastErr)); err != nil {
		log.Error("dlq publish", zap.String("betId", j.BetID), zap.Error(err))
	}
	p.publishSettled(ctx, log, env, "FAILED", final)

	if err := p.queue.Fail(ctx, msgID, env, failureReason(lastErr)); err != nil {
		log.Error("fail", zap.String("betId", j.BetID), zap.Error(err))
	}
	p.stats.IncFailed()

	log.Error("bet permanently failed",
		zap.String("betId", j.BetID),
		zap.Int("attempts", env.Attempt),
		zap.String("message", final),
	)
}

func (p *Pool) publishSettled(ctx context.Context, log *zap.Logger, env *job.Envelope, status, message string) {
	e := ev.BetSettled{
		BetID:    env.Job.BetID,
		UserID:   env.Job.UserID,
		GameID:   env.Job.GameID,
		Amount:   env.Job.Amount,
		BetType:  env.Job.BetType,
		Status:   status,
		Message:  message,
		Attempts: env.Attempt,
	}
	if err := p.publisher.PublishBetSettled(ctx, e); err != nil {
		log.Warn("bet_settled publish", zap.String("betId", env.Job.BetID), zap.Error(err))
	}
}

// failureReason padroniza a razão logada/retida de uma falha de tentativa
func failureReason(err error) string {
	if errors.Is(err, breaker.ErrCircuitOpen) {
		return msgBreakerOpen
	}
	return err.Error()
}
