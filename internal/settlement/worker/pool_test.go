package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/waveplay/teenpatti-settlement/internal/settlement/breaker"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/client"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/job"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/ledger"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/stats"
	ev "github.com/waveplay/teenpatti-settlement/pkg/contracts/events"
)

// --- fakes ---

type fakeQueue struct {
	rescheduled []time.Duration
	completed   int
	failed      int
	failReason  string
}

func (f *fakeQueue) Dequeue(ctx context.Context, consumer string) (*job.Envelope, string, error) {
	return nil, "", nil
}
func (f *fakeQueue) Reschedule(ctx context.Context, msgID string, env *job.Envelope, delay time.Duration) error {
	f.rescheduled = append(f.rescheduled, delay)
	return nil
}
func (f *fakeQueue) Complete(ctx context.Context, msgID string, env *job.Envelope) error {
	f.completed++
	return nil
}
func (f *fakeQueue) Fail(ctx context.Context, msgID string, env *job.Envelope, reason string) error {
	f.failed++
	f.failReason = reason
	return nil
}

type sentEvent struct {
	UserID  string
	Event   string
	Payload any
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (f *fakeNotifier) Notify(_ context.Context, userID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{UserID: userID, Event: event, Payload: payload})
}

// terminal retorna as notificações teenpattiBetResponse emitidas
func (f *fakeNotifier) terminal() []ev.BetResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ev.BetResponse
	for _, e := range f.events {
		if e.Event == ev.EventBetResponse {
			out = append(out, e.Payload.(ev.BetResponse))
		}
	}
	return out
}

type fakeCaller struct {
	calls int
	res   *client.Result
	err   error
}

func (f *fakeCaller) Call(ctx context.Context, j *job.BetJob) (*client.Result, error) {
	f.calls++
	return f.res, f.err
}

type fakeLedger struct {
	rows []ledger.Row
}

func (f *fakeLedger) AppendPotContribution(ctx context.Context, r ledger.Row) error {
	f.rows = append(f.rows, r)
	return nil
}

type fakePublisher struct {
	settled []ev.BetSettled
	dlq     int
}

func (f *fakePublisher) PublishBetSettled(ctx context.Context, e ev.BetSettled) error {
	f.settled = append(f.settled, e)
	return nil
}
func (f *fakePublisher) PublishDLQ(ctx context.Context, env *job.Envelope, reason string) error {
	f.dlq++
	return nil
}

// openBreaker simula o circuito aberto: nenhuma chamada passa
type openBreaker struct{}

func (openBreaker) State() breaker.State { return breaker.StateOpen }
func (openBreaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return breaker.ErrCircuitOpen
}

type noopLimiter struct{}

func (noopLimiter) Acquire(ctx context.Context) error { return nil }
func (noopLimiter) Release()                          {}

type fixture struct {
	pool      *Pool
	queue     *fakeQueue
	notifier  *fakeNotifier
	caller    *fakeCaller
	ledger    *fakeLedger
	publisher *fakePublisher
	stats     *stats.Stats
}

func newFixture(c *fakeCaller, b Breaker) *fixture {
	f := &fixture{
		queue:     &fakeQueue{},
		notifier:  &fakeNotifier{},
		caller:    c,
		ledger:    &fakeLedger{},
		publisher: &fakePublisher{},
		stats:     stats.New(),
	}
	if b == nil {
		b = breaker.New(nil)
	}
	f.pool = NewPool(f.queue, b, noopLimiter{}, f.caller, f.notifier, f.ledger, f.publisher, f.stats, zap.NewNop())
	return f
}

func envelope(attempt int) *job.Envelope {
	return &job.Envelope{
		ID:          "env-1",
		Attempt:     attempt,
		MaxAttempts: job.MaxAttempts,
		Job: job.BetJob{
			BetID:    "bet-1",
			UserID:   "user-1",
			Amount:   500,
			BetType:  1,
			PotIndex: 0,
			GameID:   "16",
		},
	}
}

// --- tests ---

func TestProcessOne_SuccessWithLedger(t *testing.T) {
	f := newFixture(&fakeCaller{res: &client.Result{
		Success: true,
		Message: "ok",
		Data:    map[string]any{"balance": int64(1500)},
	}}, nil)

	f.pool.processOne(context.Background(), zap.NewNop(), envelope(0), "m-1")

	// betProcessing antes da tentativa
	require.NotEmpty(t, f.notifier.events)
	assert.Equal(t, ev.EventBetProcessing, f.notifier.events[0].Event)
	proc := f.notifier.events[0].Payload.(ev.BetProcessing)
	assert.Equal(t, 1, proc.Attempt)
	assert.Equal(t, 8, proc.MaxAttempts)

	// exatamente uma notificação terminal, com payload mesclado
	term := f.notifier.terminal()
	require.Len(t, term, 1)
	assert.True(t, term[0].Success)
	assert.Equal(t, int64(1500), term[0].Data["balance"])
	assert.Equal(t, "bet-1", term[0].Data["betId"])
	assert.Equal(t, 0, term[0].Data["potIndex"])
	assert.Equal(t, 1, term[0].Data["betType"])
	assert.Equal(t, int64(500), term[0].Data["amount"])
	assert.Equal(t, "Pot 1", term[0].Data["potName"])

	// uma linha de ledger para gameId == "16"
	require.Len(t, f.ledger.rows, 1)
	assert.Equal(t, ledger.Row{PotIndex: 0, UserID: "user-1", Amount: 500, Type: 1, PotName: "Pot 1"}, f.ledger.rows[0])

	assert.Equal(t, 1, f.queue.completed)
	assert.Equal(t, int64(1), f.stats.Completed())
	require.Len(t, f.publisher.settled, 1)
	assert.Equal(t, "SETTLED", f.publisher.settled[0].Status)
}

func TestProcessOne_NoLedgerForOtherGames(t *testing.T) {
	f := newFixture(&fakeCaller{res: &client.Result{Success: true}}, nil)

	env := envelope(0)
	env.Job.GameID = "7"
	f.pool.processOne(context.Background(), zap.NewNop(), env, "m-1")

	assert.Empty(t, f.ledger.rows)
	assert.Equal(t, 1, f.queue.completed)
}

func TestProcessOne_TransientFailureReschedules(t *testing.T) {
	f := newFixture(&fakeCaller{err: &client.CallError{Kind: client.KindTimeout, Message: "API timeout"}}, nil)

	f.pool.processOne(context.Background(), zap.NewNop(), envelope(0), "m-1")

	// sem notificação terminal do pool; reagendado com o primeiro backoff
	assert.Empty(t, f.notifier.terminal())
	require.Len(t, f.queue.rescheduled, 1)
	assert.Equal(t, 2*time.Second, f.queue.rescheduled[0])
	assert.Zero(t, f.queue.failed)
	assert.Zero(t, f.stats.Failed())
}

func TestProcessOne_BackoffDoubles(t *testing.T) {
	f := newFixture(&fakeCaller{err: &client.CallError{Kind: client.KindTimeout, Message: "API timeout"}}, nil)

	for attempt := 0; attempt < 3; attempt++ {
		f.pool.processOne(context.Background(), zap.NewNop(), envelope(attempt), "m-1")
	}
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, f.queue.rescheduled)
}

func TestProcessOne_ExhaustionIsPermanent(t *testing.T) {
	f := newFixture(&fakeCaller{err: &client.CallError{Kind: client.KindTimeout, Message: "API timeout"}}, nil)

	// tentativa 8 (Attempt chega em 8 depois do incremento)
	f.pool.processOne(context.Background(), zap.NewNop(), envelope(7), "m-1")

	term := f.notifier.terminal()
	require.Len(t, term, 1)
	assert.False(t, term[0].Success)
	assert.Equal(t, "API timeout - please contact support", term[0].Message)
	assert.Equal(t, true, term[0].Data["permanentFailure"])
	assert.Equal(t, "bet-1", term[0].Data["betId"])

	assert.Empty(t, f.queue.rescheduled)
	assert.Equal(t, 1, f.queue.failed)
	assert.Equal(t, 1, f.publisher.dlq)
	assert.Equal(t, int64(1), f.stats.Failed())
	require.Len(t, f.publisher.settled, 1)
	assert.Equal(t, "FAILED", f.publisher.settled[0].Status)
}

func TestProcessOne_BreakerOpenSkipsCallAndConsumesAttempt(t *testing.T) {
	caller := &fakeCaller{res: &client.Result{Success: true}}
	f := newFixture(caller, openBreaker{})

	f.pool.processOne(context.Background(), zap.NewNop(), envelope(0), "m-1")

	// nenhuma chamada de rede; tentativa consumida e reagendada
	assert.Zero(t, caller.calls)
	require.Len(t, f.queue.rescheduled, 1)
	assert.Equal(t, 2*time.Second, f.queue.rescheduled[0])
}

func TestProcessOne_BreakerOpenOnLastAttempt(t *testing.T) {
	caller := &fakeCaller{}
	f := newFixture(caller, openBreaker{})

	f.pool.processOne(context.Background(), zap.NewNop(), envelope(7), "m-1")

	assert.Zero(t, caller.calls)
	term := f.notifier.terminal()
	require.Len(t, term, 1)
	assert.Equal(t, "Service temporarily unavailable - please try again later", term[0].Message)
	assert.Equal(t, 1, f.queue.failed)
}

func TestProcessOne_BusinessRejectionIsTerminal(t *testing.T) {
	f := newFixture(&fakeCaller{res: &client.Result{
		Success: false,
		Message: "Bet not allowed",
	}}, nil)

	f.pool.processOne(context.Background(), zap.NewNop(), envelope(0), "m-1")

	term := f.notifier.terminal()
	require.Len(t, term, 1)
	assert.False(t, term[0].Success)
	assert.Equal(t, "Bet not allowed", term[0].Message)
	assert.Equal(t, false, term[0].Data["permanentFailure"])

	// rejeição de negócio não conta como falha de infra nem reagenda
	assert.Empty(t, f.queue.rescheduled)
	assert.Equal(t, 1, f.queue.completed)
	assert.Equal(t, int64(1), f.stats.BusinessLogicFailed())
	assert.Empty(t, f.ledger.rows)
	require.Len(t, f.publisher.settled, 1)
	assert.Equal(t, "REJECTED", f.publisher.settled[0].Status)
}
