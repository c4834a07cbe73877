package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	ev "github.com/waveplay/teenpatti-settlement/pkg/contracts/events"
)

// session é uma conexão WebSocket com escrita serializada: o pong do
// read-loop e o fanout do subscriber escrevem na mesma conexão, e o
// gorilla/websocket não permite escritas concorrentes.
type session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) write(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

func (s *session) writeJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Hub gerencia as sessões WebSocket dos jogadores no bet-api.
// sessions: mapeia userID para o conjunto de conexões vivas daquele jogador
// (um jogador pode ter mais de uma aba/dispositivo conectado).
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	// userID -> set of sessions
	sessions map[string]map[*session]struct{}
}

// NewHub cria o hub com política customizada de origem (CORS)
func NewHub(log *zap.Logger, allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		sessions: make(map[string]map[*session]struct{}),
	}
}

// HandleWS registra a conexão sob o userID informado na query string e a
// mantém aberta até o cliente desconectar. Mensagens recebidas são apenas
// pings de keep-alive.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sess := &session{conn: conn}

	h.mu.Lock()
	if _, ok := h.sessions[userID]; !ok {
		h.sessions[userID] = make(map[*session]struct{})
	}
	h.sessions[userID][sess] = struct{}{}
	h.mu.Unlock()

	for {
		var msg map[string]string
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		if msg["type"] == "ping" {
			_ = sess.writeJSON(map[string]string{"type": "pong"})
		}
	}

	// Remove a conexão do registro ao desconectar
	h.mu.Lock()
	if set, ok := h.sessions[userID]; ok {
		delete(set, sess)
		if len(set) == 0 {
			delete(h.sessions, userID)
		}
	}
	h.mu.Unlock()
}

// Notify envia o evento para todas as sessões do jogador. Sem sessão
// registrada a notificação é descartada em silêncio.
func (h *Hub) Notify(_ context.Context, userID, event string, payload any) {
	h.mu.RLock()
	sessions := make([]*session, 0, len(h.sessions[userID]))
	for s := range h.sessions[userID] {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()
	if len(sessions) == 0 {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("notify marshal", zap.String("event", event), zap.Error(err))
		return
	}
	b, _ := json.Marshal(ev.SessionMsg{Event: event, Payload: raw})

	for _, s := range sessions {
		_ = s.write(b)
	}
}
