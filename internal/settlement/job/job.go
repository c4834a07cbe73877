package job

import (
	"errors"
	"time"
)

// Política padrão de retry aplicada a todo job de aposta
const (
	MaxAttempts        = 8
	BackoffBase        = 2 * time.Second
	CompletedRetention = 100
)

// GameID cuja liquidação também gera uma linha no ledger de potes
const LedgerGameID = "16"

var (
	ErrEmptyBetID  = errors.New("betId required")
	ErrEmptyUserID = errors.New("userId required")
	ErrBadAmount   = errors.New("amount must be positive")
)

// BetJob é a unidade de trabalho do pipeline: uma aposta aguardando
// liquidação na carteira do tenant. BetID é a chave de idempotência e
// correlaciona todas as notificações sobre essa aposta.
type BetJob struct {
	BetID         string    `json:"betId"`
	UserID        string    `json:"userId"`
	Amount        int64     `json:"amount"` // menor unidade da moeda
	BetType       int       `json:"betType"`
	Token         string    `json:"token,omitempty"` // credencial bearer, nunca logar
	GameID        string    `json:"gameId,omitempty"`
	PotIndex      int       `json:"potIndex"`
	TenantBaseURL string    `json:"tenantBaseUrl,omitempty"`
	AppKey        string    `json:"appKey,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func (j *BetJob) Validate() error {
	if j.BetID == "" {
		return ErrEmptyBetID
	}
	if j.UserID == "" {
		return ErrEmptyUserID
	}
	if j.Amount <= 0 {
		return ErrBadAmount
	}
	return nil
}

// Envelope acompanha o BetJob dentro da fila, carregando o contador de
// tentativas para que ele sobreviva a restarts junto com o job.
type Envelope struct {
	ID          string `json:"id"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"maxAttempts"`
	EnqueuedAt  int64  `json:"enqueuedAt"` // unix ms
	Job         BetJob `json:"job"`
}

// PotName mapeia o índice do pote para o nome exibido ao jogador.
// Índices fora de {0,1} caem em "Pot 3", seguindo o comportamento do produto.
func PotName(potIndex int) string {
	switch potIndex {
	case 0:
		return "Pot 1"
	case 1:
		return "Pot 2"
	default:
		return "Pot 3"
	}
}

// RetryDelay retorna o backoff exponencial após a tentativa n (1-based):
// 2s, 4s, 8s, ... dobrando a cada tentativa.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return BackoffBase << (attempt - 1)
}
