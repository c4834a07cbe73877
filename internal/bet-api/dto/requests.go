package dto

// PlaceBetRequest é o corpo do POST /bets vindo da camada de sessão do jogo
type PlaceBetRequest struct {
	BetID         string `json:"betId"` // chave de idempotência da aposta
	UserID        string `json:"userId"`
	Amount        int64  `json:"amount"` // menor unidade da moeda
	BetType       int    `json:"betType"`
	Token         string `json:"token"`
	GameID        string `json:"gameId"`
	PotIndex      int    `json:"potIndex"`
	TenantBaseURL string `json:"tenantBaseUrl"`
	AppKey        string `json:"appKey"`
}
