package dto

type PlaceBetResponse struct {
	BetID         string `json:"betId"`
	QueuePosition int64  `json:"queuePosition"`
}

type BalanceResponse struct {
	UserID  string `json:"userId"`
	Balance int64  `json:"balance"`
}
