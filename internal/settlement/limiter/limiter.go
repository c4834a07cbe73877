package limiter

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter aplica controle de admissão local sobre a chamada de liquidação:
// no máximo maxConcurrent chamadas em voo e perSecond inícios por segundo.
// Chamadas acima do limite esperam (backpressure), não são rejeitadas.
type Limiter struct {
	sem chan struct{}
	rl  *rate.Limiter
}

func New(maxConcurrent int, perSecond float64) *Limiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Limiter{
		sem: make(chan struct{}, maxConcurrent),
		rl:  rate.NewLimiter(rate.Limit(perSecond), maxConcurrent),
	}
}

// Acquire bloqueia até haver vaga no semáforo e cota no limitador de taxa.
// Deve ser pareado com Release quando retornar nil.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.rl.Wait(ctx); err != nil {
		return err
	}
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) Release() {
	<-l.sem
}
