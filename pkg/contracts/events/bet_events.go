package events

// Nomes dos eventos emitidos para a sessão do jogador
const (
	EventBetProcessing = "betProcessing"
	EventBetResponse   = "teenpattiBetResponse"
)

// BetProcessing é emitido antes de cada tentativa de liquidação
type BetProcessing struct {
	BetID       string `json:"betId"`
	Status      string `json:"status"` // sempre "processing"
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"maxAttempts"`
}

// BetResponse é a notificação terminal (ou o fail-fast por tentativa) de uma aposta.
// No sucesso, Data carrega o payload da carteira mesclado com os campos da aposta
// (betId, potIndex, betType, amount, potName). Na falha permanente, Data carrega
// {betId, permanentFailure:true}.
type BetResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}
