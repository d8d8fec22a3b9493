package service

import (
	"context"
	"encoding/json"
	"sync"

	"slfs-backend/domain"
	"slfs-backend/infra/externalapi"
)

type fakeGateway struct {
	mu       sync.Mutex
	calls    []string
	token    string
	tokenErr error
	push     *externalapi.STKPushResult
	pushErr  error
	gotToken string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		token: "abc123",
		push: &externalapi.STKPushResult{
			Body:              json.RawMessage(`{"ResponseCode":"0","CheckoutRequestID":"ws_CO_1"}`),
			CheckoutRequestID: "ws_CO_1",
			ResponseCode:      "0",
		},
	}
}

func (g *fakeGateway) FetchToken(context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "token")
	return g.token, g.tokenErr
}

func (g *fakeGateway) STKPush(_ context.Context, token, _ string) (*externalapi.STKPushResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "stkpush")
	g.gotToken = token
	if g.pushErr != nil {
		return nil, g.pushErr
	}
	return g.push, nil
}

type fakeIdempotency struct {
	claims    []string
	completed map[string]json.RawMessage
	released  []string
	pending   map[string]bool
	claimErr  error
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{completed: map[string]json.RawMessage{}, pending: map[string]bool{}}
}

func (f *fakeIdempotency) Claim(_ context.Context, key string) (json.RawMessage, bool, error) {
	f.claims = append(f.claims, key)
	if f.claimErr != nil {
		return nil, false, f.claimErr
	}
	if resp, ok := f.completed[key]; ok {
		return resp, false, nil
	}
	if f.pending[key] {
		return nil, false, domain.ErrRequestInProgress
	}
	f.pending[key] = true
	return nil, true, nil
}

func (f *fakeIdempotency) Complete(_ context.Context, key string, response json.RawMessage) error {
	delete(f.pending, key)
	f.completed[key] = response
	return nil
}

func (f *fakeIdempotency) Release(_ context.Context, key string) error {
	delete(f.pending, key)
	f.released = append(f.released, key)
	return nil
}

type fakeLedger struct {
	attempts []domain.PaymentAttempt
}

func (l *fakeLedger) Record(_ context.Context, a domain.PaymentAttempt) error {
	l.attempts = append(l.attempts, a)
	return nil
}

type fakeEmitter struct {
	subjects []string
	payloads []any
}

func (e *fakeEmitter) Emit(subject string, payload any) {
	e.subjects = append(e.subjects, subject)
	e.payloads = append(e.payloads, payload)
}

type fakeRepository struct {
	saved []domain.ClearanceApplication
	err   error
}

func (r *fakeRepository) Create(_ context.Context, app *domain.ClearanceApplication) error {
	if r.err != nil {
		return r.err
	}
	app.ID = "65f0c0ffee0000000000000" + string(rune('0'+len(r.saved)))
	r.saved = append(r.saved, *app)
	return nil
}

type fakeChecker struct {
	known map[string]bool
	err   error
	calls int
}

func (c *fakeChecker) LaptopExists(_ context.Context, id string) (bool, error) {
	c.calls++
	return c.known[id], c.err
}
