package events

import "encoding/json"

// UserEvent é o envelope publicado no canal Redis Pub/Sub de notificações.
// O bet-api assina o canal e repassa Event/Payload para as sessões do UserID.
type UserEvent struct {
	UserID  string          `json:"userId"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// SessionMsg é o formato entregue na conexão WebSocket do jogador
type SessionMsg struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}
