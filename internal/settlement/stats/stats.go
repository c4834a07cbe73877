package stats

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Métricas Prometheus espelhando os contadores do pipeline
var (
	mQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_jobs_queued_total",
		Help: "Bet jobs enqueued",
	})
	mProcessing = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settlement_jobs_processing",
		Help: "Bet jobs currently being processed",
	})
	mCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_jobs_completed_total",
		Help: "Bet jobs settled successfully",
	})
	mFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_jobs_failed_total",
		Help: "Bet jobs permanently failed",
	})
	mBusinessFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_jobs_business_failed_total",
		Help: "Bet jobs rejected by the wallet",
	})
	mBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settlement_breaker_state",
		Help: "Circuit breaker state (0=closed 1=open 2=half-open)",
	})
)

// Stats agrega os contadores do processo. Atualizados atomicamente pelos
// hooks de ciclo de vida do worker pool; zerados apenas no restart.
type Stats struct {
	queued              atomic.Int64
	processing          atomic.Int64
	completed           atomic.Int64
	failed              atomic.Int64
	businessLogicFailed atomic.Int64
}

func New() *Stats { return &Stats{} }

func (s *Stats) IncQueued() {
	s.queued.Add(1)
	mQueued.Inc()
}

func (s *Stats) IncProcessing() {
	s.processing.Add(1)
	mProcessing.Inc()
}

func (s *Stats) DecProcessing() {
	s.processing.Add(-1)
	mProcessing.Dec()
}

func (s *Stats) IncCompleted() {
	s.completed.Add(1)
	mCompleted.Inc()
}

func (s *Stats) IncFailed() {
	s.failed.Add(1)
	mFailed.Inc()
}

func (s *Stats) IncBusinessLogicFailed() {
	s.businessLogicFailed.Add(1)
	mBusinessFailed.Inc()
}

func (s *Stats) Queued() int64              { return s.queued.Load() }
func (s *Stats) Processing() int64          { return s.processing.Load() }
func (s *Stats) Completed() int64           { return s.completed.Load() }
func (s *Stats) Failed() int64              { return s.failed.Load() }
func (s *Stats) BusinessLogicFailed() int64 { return s.businessLogicFailed.Load() }
