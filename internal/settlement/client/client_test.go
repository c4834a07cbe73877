package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/waveplay/teenpatti-settlement/internal/settlement/breaker"
	"github.com/waveplay/teenpatti-settlement/internal/settlement/job"
	ev "github.com/waveplay/teenpatti-settlement/pkg/contracts/events"
)

type recordedEvent struct {
	UserID  string
	Event   string
	Payload any
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeNotifier) Notify(_ context.Context, userID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{UserID: userID, Event: event, Payload: payload})
}

func testJob(base string) *job.BetJob {
	return &job.BetJob{
		BetID:         "bet-1",
		UserID:        "user-1",
		Amount:        500,
		BetType:       1,
		Token:         "tok",
		TenantBaseURL: base,
	}
}

func newTestClient(n *fakeNotifier) *Client {
	c := New(n, zap.NewNop())
	c.HTTP.Timeout = 200 * time.Millisecond
	return c
}

func TestCall_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/wave/game/submitFlow", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"message":"ok","data":{"balance":1500}}`))
	}))
	defer srv.Close()

	n := &fakeNotifier{}
	res, err := newTestClient(n).Call(context.Background(), testJob(srv.URL))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, float64(1500), res.Data["balance"])
	assert.Empty(t, n.events)
}

func TestCall_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := &fakeNotifier{}
	_, err := newTestClient(n).Call(context.Background(), testJob(srv.URL))

	var cerr *CallError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindServerError, cerr.Kind)
	assert.Equal(t, "API server error: 502", cerr.Message)

	// falha emite a notificação fail-fast da tentativa
	require.Len(t, n.events, 1)
	assert.Equal(t, "user-1", n.events[0].UserID)
	assert.Equal(t, ev.EventBetResponse, n.events[0].Event)
	resp := n.events[0].Payload.(ev.BetResponse)
	assert.False(t, resp.Success)
	assert.Equal(t, true, resp.Data["permanentFailure"])
}

func TestCall_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n := &fakeNotifier{}
	_, err := newTestClient(n).Call(context.Background(), testJob(srv.URL))

	var cerr *CallError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindRateLimited, cerr.Kind)
	assert.Equal(t, "Rate limit exceeded", cerr.Message)
}

func TestCall_ClientErrorUsesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Insufficient balance"}`))
	}))
	defer srv.Close()

	n := &fakeNotifier{}
	_, err := newTestClient(n).Call(context.Background(), testJob(srv.URL))

	var cerr *CallError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindClientError, cerr.Kind)
	assert.Equal(t, "Insufficient balance", cerr.Message)
}

func TestCall_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	n := &fakeNotifier{}
	_, err := newTestClient(n).Call(context.Background(), testJob(srv.URL))

	var cerr *CallError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindTimeout, cerr.Kind)
	assert.Equal(t, "API timeout", cerr.Message)
}

func TestCall_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // porta fechada

	n := &fakeNotifier{}
	_, err := newTestClient(n).Call(context.Background(), testJob(srv.URL))

	var cerr *CallError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindConnRefused, cerr.Kind)
	assert.Equal(t, "API connection refused", cerr.Message)
}

func TestFinalFailureMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&CallError{Kind: KindTimeout, Message: "API timeout"}, "API timeout - please contact support"},
		{&CallError{Kind: KindRateLimited, Message: "Rate limit exceeded"}, "Too many requests - please slow down"},
		{&CallError{Kind: KindConnRefused, Message: "API connection refused"}, "Service temporarily unavailable - please try again later"},
		{&CallError{Kind: KindServerError, Message: "API server error: 503"}, "Service temporarily unavailable - please try again later"},
		{breaker.ErrCircuitOpen, "Service temporarily unavailable - please try again later"},
		{&CallError{Kind: KindClientError, Message: "bad payload"}, "Bet could not be processed - please contact support"},
		{errors.New("weird"), "Bet could not be processed - please contact support"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FinalFailureMessage(tc.err))
	}
}
