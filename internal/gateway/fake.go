package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Fake is an in-process Gateway for tests and local runs without provider
// credentials. Webhook payloads are plain JSON Events and are not signed.
type Fake struct {
	mu       sync.Mutex
	seq      int
	Intents  map[string]IntentInput
	Refunds  []RefundInput
	keys     map[string]*Refund
	FailNext error
}

func NewFake() *Fake {
	return &Fake{Intents: map[string]IntentInput{}, keys: map[string]*Refund{}}
}

func (f *Fake) takeFailure() error {
	err := f.FailNext
	f.FailNext = nil
	return err
}

func (f *Fake) CreateIntent(_ context.Context, in IntentInput) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	f.seq++
	id := fmt.Sprintf("pi_fake_%d", f.seq)
	f.Intents[id] = in
	return &Intent{TransactionID: id, ClientSecret: id + "_secret"}, nil
}

func (f *Fake) UpdateIntent(_ context.Context, transactionID string, in IntentInput) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	if _, ok := f.Intents[transactionID]; !ok {
		return nil, errors.New("no such payment intent")
	}
	f.Intents[transactionID] = in
	return &Intent{TransactionID: transactionID, ClientSecret: transactionID + "_secret"}, nil
}

// Refund honours idempotency keys the way the provider does: a repeated key
// returns the first result without refunding twice.
func (f *Fake) Refund(_ context.Context, in RefundInput) (*Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	if r, ok := f.keys[in.IdempotencyKey]; ok && in.IdempotencyKey != "" {
		return r, nil
	}
	f.seq++
	r := &Refund{ID: fmt.Sprintf("re_fake_%d", f.seq), Amount: in.Amount, Status: "succeeded"}
	f.Refunds = append(f.Refunds, in)
	if in.IdempotencyKey != "" {
		f.keys[in.IdempotencyKey] = r
	}
	return r, nil
}

func (f *Fake) ParseWebhook(payload []byte, _ string) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	ev.Raw = payload
	return &ev, nil
}

func (f *Fake) RefundCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Refunds)
}
