package topics

const (
	// Liquidação de apostas
	BetSettled = "bet_settled"

	// DLQ para jobs que esgotaram as tentativas
	BetSettledDLQ = "bet_settled_dlq"
)

// Canal Redis Pub/Sub usado pelo worker para alcançar as sessões
// WebSocket dos jogadores hospedadas no bet-api
const NotifyChannel = "player_notifications"
