package notify

import "context"

// Notifier entrega um evento para todas as sessões vivas de um jogador.
// Entrega é fire-and-forget: sem sessão registrada, o evento é descartado.
// O estado terminal do job fica registrado na fila/ledger de qualquer forma.
type Notifier interface {
	Notify(ctx context.Context, userID, event string, payload any)
}
