package events

import "time"

// Evento publicado pelo settlement-worker após o término de um job.
type BetSettled struct {
	BetID    string    `json:"betId"`
	UserID   string    `json:"userId"`
	GameID   string    `json:"gameId,omitempty"`
	Amount   int64     `json:"amount"`
	BetType  int       `json:"betType"`
	Status   string    `json:"status"` // "SETTLED" | "REJECTED" | "FAILED"
	Message  string    `json:"message,omitempty"`
	Attempts int       `json:"attempts"`
	Ts       time.Time `json:"ts"`
}
