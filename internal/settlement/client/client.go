package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/waveplay/teenpatti-settlement/internal/settlement/breaker"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/job"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/notify"
	ev "github.com/waveplay/teenpatti-settlement/pkg/contracts/events"
)

// Kind classifica a falha de uma tentativa de liquidação
type Kind int

const (
	KindTimeout Kind = iota
	KindConnRefused
	KindNoResponse
	KindServerError
	KindRateLimited
	KindClientError
)

// CallError é o erro normalizado que chega ao breaker e ao worker pool.
// Toda falha aqui é tratada como transitória e elegível a retry.
type CallError struct {
	Kind    Kind
	Status  int
	Message string
}

func (e *CallError) Error() string { return e.Message }

// Result é o resultado de uma tentativa de liquidação. Data carrega o
// payload da carteira (id, balance, name, profilePicture, ...) e é
// consumido imediatamente; nada disso é persistido.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// Client realiza a chamada de liquidação na carteira do tenant.
// A URL base vem de cada job (plataforma multi-tenant).
type Client struct {
	HTTP     *http.Client
	notifier notify.Notifier
	log      *zap.Logger
}

func New(n notify.Notifier, log *zap.Logger) *Client {
	return &Client{
		HTTP:     &http.Client{Timeout: 7 * time.Second},
		notifier: n,
		log:      log,
	}
}

// Call submete a aposta em {tenantBaseURL}/wave/game/submitFlow com o token
// bearer do tenant. Em qualquer falha, além de retornar o CallError, emite
// imediatamente a notificação fail-fast da tentativa para o jogador.
func (c *Client) Call(ctx context.Context, j *job.BetJob) (*Result, error) {
	body, _ := json.Marshal(map[string]any{
		"betAmount":     j.Amount,
		"type":          j.BetType,
		"transactionId": j.BetID,
	})

	url := j.TenantBaseURL + "/wave/game/submitFlow"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, c.fail(ctx, j, &CallError{Kind: KindNoResponse, Message: "No response from API"})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+j.Token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, c.fail(ctx, j, transportError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, c.fail(ctx, j, httpError(resp))
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, c.fail(ctx, j, &CallError{Kind: KindNoResponse, Message: "No response from API"})
	}
	return &out, nil
}

// fail emite a notificação fail-fast da tentativa e devolve o erro.
// O worker pool ainda pode reagendar o job; a notificação por tentativa
// segue o comportamento do produto.
func (c *Client) fail(ctx context.Context, j *job.BetJob, cerr *CallError) error {
	c.log.Warn("settlement call failed",
		zap.String("betId", j.BetID),
		zap.Int("status", cerr.Status),
		zap.String("message", cerr.Message),
	)
	if c.notifier != nil {
		c.notifier.Notify(ctx, j.UserID, ev.EventBetResponse, ev.BetResponse{
			Success: false,
			Message: cerr.Message,
			Data:    map[string]any{"betId": j.BetID, "permanentFailure": true},
		})
	}
	return cerr
}

// transportError mapeia erros de transporte para a taxonomia
func transportError(err error) *CallError {
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return &CallError{Kind: KindTimeout, Message: "API timeout"}
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return &CallError{Kind: KindConnRefused, Message: "API connection refused"}
	}
	return &CallError{Kind: KindNoResponse, Message: "No response from API"}
}

// httpError mapeia status HTTP para a taxonomia
func httpError(resp *http.Response) *CallError {
	status := resp.StatusCode
	switch {
	case status >= 500:
		return &CallError{Kind: KindServerError, Status: status, Message: fmt.Sprintf("API server error: %d", status)}
	case status == http.StatusTooManyRequests:
		return &CallError{Kind: KindRateLimited, Status: status, Message: "Rate limit exceeded"}
	default:
		msg := "API client error"
		var body struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
			msg = body.Message
		}
		return &CallError{Kind: KindClientError, Status: status, Message: msg}
	}
}

// FinalFailureMessage refina a mensagem terminal quando o job esgota as 8
// tentativas, conforme o sabor da última falha.
func FinalFailureMessage(err error) string {
	if errors.Is(err, breaker.ErrCircuitOpen) {
		return "Service temporarily unavailable - please try again later"
	}
	var cerr *CallError
	if errors.As(err, &cerr) {
		switch cerr.Kind {
		case KindTimeout:
			return "API timeout - please contact support"
		case KindRateLimited:
			return "Too many requests - please slow down"
		case KindConnRefused, KindNoResponse, KindServerError:
			return "Service temporarily unavailable - please try again later"
		}
	}
	return "Bet could not be processed - please contact support"
}
