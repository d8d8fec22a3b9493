package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// PaymentRequest is built per call to the STK push endpoint and never stored.
type PaymentRequest struct {
	PhoneNumber    string
	IdempotencyKey string
}

type PaymentStatus string

const (
	PaymentRequested PaymentStatus = "requested"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentAttempt is the ledger row written for every STK push that reached
// the gateway.
type PaymentAttempt struct {
	ID                string
	IdempotencyKey    string
	PhoneNumber       string
	Amount            int
	Status            PaymentStatus
	MerchantRequestID string
	CheckoutRequestID string
	ResponseCode      string
	Error             string
	Response          json.RawMessage
	RequestedAt       time.Time
}

// ErrRequestInProgress is returned when another request holding the same
// idempotency key has not finished yet.
var ErrRequestInProgress = errors.New("a request with this idempotency key is already in progress")
