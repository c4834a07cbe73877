package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "close"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "halfOpen"
	default:
		return "unknown"
	}
}

// Parâmetros do breaker que protege a chamada de liquidação:
// janela rolante de 10s (10 buckets de 1s), abre com >=50% de erro sobre
// um volume mínimo de 5 chamadas, fica aberto por 15s e então libera
// uma chamada de sondagem.
const (
	windowBuckets   = 10
	bucketWidth     = time.Second
	errorPercent    = 50
	volumeThreshold = 5
	openTimeout     = 15 * time.Second
	callTimeout     = 8 * time.Second
)

type bucket struct {
	sec    int64 // segundo unix que o bucket representa
	calls  int64
	errors int64
}

// Breaker envolve a chamada de liquidação com um circuit breaker de
// janela rolante. Uma única instância é compartilhada por todos os
// workers do pool; todo acesso ao estado passa pelo mutex.
type Breaker struct {
	mu sync.Mutex

	state         State
	buckets       [windowBuckets]bucket
	openedAt      time.Time
	probeInFlight bool

	now           func() time.Time
	onStateChange func(from, to State)
}

// New cria o breaker no estado fechado. onStateChange é chamado fora de
// caminhos críticos de rede a cada transição (open/halfOpen/close) e pode
// ser nil.
func New(onStateChange func(from, to State)) *Breaker {
	return &Breaker{
		state:         StateClosed,
		now:           time.Now,
		onStateChange: onStateChange,
	}
}

// Do executa fn sob o breaker, aplicando o timeout de 8s por chamada.
// Retorna ErrCircuitOpen sem invocar fn enquanto o circuito estiver aberto.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	err := fn(cctx)
	b.record(err)
	return err
}

// State retorna o modo atual, promovendo Open->HalfOpen se o período de
// reset já passou (leitura não dispara a sondagem).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= openTimeout {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < openTimeout {
			return ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
	}

	if b.state == StateHalfOpen {
		// apenas uma chamada de sondagem por vez
		if b.probeInFlight {
			return ErrCircuitOpen
		}
		b.probeInFlight = true
	}

	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := err != nil

	switch b.state {
	case StateHalfOpen:
		b.probeInFlight = false
		if failed {
			b.transition(StateOpen)
			b.openedAt = b.now()
		} else {
			b.transition(StateClosed)
			b.resetWindow()
		}

	case StateClosed:
		bk := b.currentBucket()
		bk.calls++
		if failed {
			bk.errors++
		}
		if failed && b.shouldTrip() {
			b.transition(StateOpen)
			b.openedAt = b.now()
		}

	case StateOpen:
		// chamada admitida antes da abertura terminou depois dela; ignora
	}
}

// currentBucket retorna o bucket do segundo corrente, reciclando a posição
// quando ela pertence a um segundo antigo.
func (b *Breaker) currentBucket() *bucket {
	sec := b.now().Unix()
	bk := &b.buckets[sec%windowBuckets]
	if bk.sec != sec {
		bk.sec = sec
		bk.calls = 0
		bk.errors = 0
	}
	return bk
}

// shouldTrip avalia a janela rolante: volume mínimo e percentual de erro.
func (b *Breaker) shouldTrip() bool {
	cutoff := b.now().Unix() - windowBuckets

	var calls, errs int64
	for i := range b.buckets {
		if b.buckets[i].sec > cutoff {
			calls += b.buckets[i].calls
			errs += b.buckets[i].errors
		}
	}

	if calls < volumeThreshold {
		return false
	}
	return errs*100 >= calls*errorPercent
}

func (b *Breaker) resetWindow() {
	for i := range b.buckets {
		b.buckets[i] = bucket{}
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}
