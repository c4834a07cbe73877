package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/waveplay/teenpatti-settlement/internal/bet-api/dto"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/balance"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/job"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/notify"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/queue"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/stats"
)

type Server struct {
	log     *zap.Logger
	queue   *queue.Queue
	balance *balance.Store
	hub     *notify.Hub
	rdb     *redis.Client
}

func NewServer(log *zap.Logger, q *queue.Queue, b *balance.Store, h *notify.Hub, rdb *redis.Client) *Server {
	return &Server{log: log, queue: q, balance: b, hub: h, rdb: rdb}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/bets", s.placeBet)         // POST
	mux.HandleFunc("/bets/stats", s.queueStats) // GET
	mux.HandleFunc("/balance/", s.getBalance)   // GET /balance/{userId}
	mux.HandleFunc("/ws", s.hub.HandleWS)       // sessão do jogador
	return mux
}

// placeBet enfileira a aposta e devolve a posição na fila. A liquidação em
// si acontece de forma assíncrona no settlement-worker; o resultado chega
// pela sessão WebSocket do jogador.
func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	betID, position, err := s.queue.Enqueue(r.Context(), job.BetJob{
		BetID:         req.BetID,
		UserID:        req.UserID,
		Amount:        req.Amount,
		BetType:       req.BetType,
		Token:         req.Token,
		GameID:        req.GameID,
		PotIndex:      req.PotIndex,
		TenantBaseURL: req.TenantBaseURL,
		AppKey:        req.AppKey,
		Timestamp:     time.Now(),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, dto.PlaceBetResponse{BetID: betID, QueuePosition: position})
}

// queueStats serve o snapshot publicado pelo worker; sem snapshot recente,
// cai para os contadores vivos da fila (breaker/contadores zerados).
func (s *Server) queueStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, ok, err := stats.ReadSnapshot(r.Context(), s.rdb)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		snap, err = s.liveCounts(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, snap)
}

func (s *Server) liveCounts(ctx context.Context) (stats.Snapshot, error) {
	waiting, err := s.queue.WaitingCount(ctx)
	if err != nil {
		return stats.Snapshot{}, err
	}
	active, err := s.queue.ActiveCount(ctx)
	if err != nil {
		return stats.Snapshot{}, err
	}
	delayed, err := s.queue.DelayedCount(ctx)
	if err != nil {
		return stats.Snapshot{}, err
	}
	return stats.Snapshot{Waiting: waiting, Active: active, Delayed: delayed}, nil
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// path: /balance/{userId}
	userID := r.URL.Path[len("/balance/"):]
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}

	bal, err := s.balance.Get(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, dto.BalanceResponse{UserID: userID, Balance: bal})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
