package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"slfs-backend/domain"
	"slfs-backend/infra/externalapi"
	"slfs-backend/internal/metrics"
)

const bookkeepingTimeout = 5 * time.Second

var ErrPhoneNumberRequired = errors.New("phone number is required")

type ResultKind int

const (
	KindSuccess ResultKind = iota
	KindValidationError
	KindGatewayError
	KindInProgress
)

func (k ResultKind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindValidationError:
		return "validation_error"
	case KindGatewayError:
		return "gateway_error"
	case KindInProgress:
		return "in_progress"
	default:
		return "unknown"
	}
}

// Result is the outcome of one payment initiation. Response is set for
// KindSuccess, Err for every other kind.
type Result struct {
	Kind     ResultKind
	Response json.RawMessage
	Replayed bool
	Err      error
}

type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (json.RawMessage, bool, error)
	Complete(ctx context.Context, key string, response json.RawMessage) error
	Release(ctx context.Context, key string) error
}

type Ledger interface {
	Record(ctx context.Context, attempt domain.PaymentAttempt) error
}

type EventEmitter interface {
	Emit(subject string, payload any)
}

type PaymentService interface {
	InitiatePayment(ctx context.Context, req domain.PaymentRequest) Result
}

// PaymentDeps wires the payment service. Only Gateway is required.
type PaymentDeps struct {
	Gateway     externalapi.Client
	Amount      int
	Idempotency IdempotencyStore
	Ledger      Ledger
	Events      EventEmitter
	Metrics     *metrics.Metrics
	Log         *logrus.Entry
	Now         func() time.Time
}

type paymentService struct {
	PaymentDeps
}

type stkPushEvent struct {
	AttemptID         string `json:"attemptId"`
	PhoneNumber       string `json:"phoneNumber"`
	Amount            int    `json:"amount"`
	CheckoutRequestID string `json:"checkoutRequestId,omitempty"`
	ResponseCode      string `json:"responseCode,omitempty"`
	Error             string `json:"error,omitempty"`
}

func NewPaymentService(deps PaymentDeps) PaymentService {
	if deps.Amount <= 0 {
		deps.Amount = 1
	}
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &paymentService{PaymentDeps: deps}
}

func (s *paymentService) InitiatePayment(ctx context.Context, req domain.PaymentRequest) Result {
	if req.PhoneNumber == "" {
		return s.finish(Result{Kind: KindValidationError, Err: ErrPhoneNumberRequired})
	}

	log := s.Log.WithField("phone_number", req.PhoneNumber)
	if req.IdempotencyKey != "" {
		log = log.WithField("idempotency_key", req.IdempotencyKey)
	}

	// claimKey is set only while this request owns the idempotency key.
	var claimKey string
	if req.IdempotencyKey != "" && s.Idempotency != nil {
		key := idempotencyScope(req)
		replay, owned, err := s.Idempotency.Claim(ctx, key)
		switch {
		case errors.Is(err, domain.ErrRequestInProgress):
			log.Warn("duplicate stk push while first request is in flight")
			return s.finish(Result{Kind: KindInProgress, Err: err})
		case err != nil:
			log.WithError(err).Warn("idempotency store unavailable, sending without deduplication")
		case !owned:
			log.Info("replaying stored stk push response")
			return s.finish(Result{Kind: KindSuccess, Response: replay, Replayed: true})
		default:
			claimKey = key
		}
	}

	attempt := domain.PaymentAttempt{
		ID:             uuid.NewString(),
		IdempotencyKey: req.IdempotencyKey,
		PhoneNumber:    req.PhoneNumber,
		Amount:         s.Amount,
		RequestedAt:    s.Now().UTC(),
	}

	start := time.Now()
	token, err := s.Gateway.FetchToken(ctx)
	s.observe("token", start)
	if err != nil {
		return s.fail(ctx, log, attempt, claimKey, err)
	}

	start = time.Now()
	res, err := s.Gateway.STKPush(ctx, token, req.PhoneNumber)
	s.observe("stkpush", start)
	if err != nil {
		return s.fail(ctx, log, attempt, claimKey, err)
	}

	attempt.Status = domain.PaymentRequested
	attempt.MerchantRequestID = res.MerchantRequestID
	attempt.CheckoutRequestID = res.CheckoutRequestID
	attempt.ResponseCode = res.ResponseCode
	attempt.Response = res.Body

	bctx, cancel := bookkeepingContext(ctx)
	defer cancel()

	s.record(bctx, log, attempt)
	if claimKey != "" {
		if err := s.Idempotency.Complete(bctx, claimKey, res.Body); err != nil {
			log.WithError(err).Error("could not store idempotent response")
		}
	}
	s.emit(domain.SubjectSTKPushRequested, attempt)

	log.WithFields(logrus.Fields{
		"attempt_id":          attempt.ID,
		"checkout_request_id": attempt.CheckoutRequestID,
	}).Info("stk push sent")

	return s.finish(Result{Kind: KindSuccess, Response: res.Body})
}

func (s *paymentService) fail(ctx context.Context, log *logrus.Entry, attempt domain.PaymentAttempt, claimKey string, err error) Result {
	fields := logrus.Fields{"attempt_id": attempt.ID}
	var gwErr *externalapi.GatewayError
	if errors.As(err, &gwErr) {
		fields["status_code"] = gwErr.StatusCode
		fields["retryable"] = gwErr.Retryable
		if len(gwErr.Payload) > 0 {
			fields["upstream"] = string(gwErr.Payload)
		}
	}
	log.WithError(err).WithFields(fields).Error("stk push failed")

	attempt.Status = domain.PaymentFailed
	attempt.Error = err.Error()

	bctx, cancel := bookkeepingContext(ctx)
	defer cancel()

	if claimKey != "" {
		if rerr := s.Idempotency.Release(bctx, claimKey); rerr != nil {
			log.WithError(rerr).Error("could not release idempotency key")
		}
	}
	s.record(bctx, log, attempt)
	s.emit(domain.SubjectSTKPushFailed, attempt)

	return s.finish(Result{Kind: KindGatewayError, Err: err})
}

func (s *paymentService) record(ctx context.Context, log *logrus.Entry, attempt domain.PaymentAttempt) {
	if s.Ledger == nil {
		return
	}
	if err := s.Ledger.Record(ctx, attempt); err != nil {
		log.WithError(err).WithField("attempt_id", attempt.ID).Error("could not record stk push attempt")
	}
}

func (s *paymentService) emit(subject string, a domain.PaymentAttempt) {
	if s.Events == nil {
		return
	}
	s.Events.Emit(subject, stkPushEvent{
		AttemptID:         a.ID,
		PhoneNumber:       a.PhoneNumber,
		Amount:            a.Amount,
		CheckoutRequestID: a.CheckoutRequestID,
		ResponseCode:      a.ResponseCode,
		Error:             a.Error,
	})
}

func (s *paymentService) observe(step string, start time.Time) {
	if s.Metrics != nil {
		s.Metrics.ObserveStep(step, start)
	}
}

func (s *paymentService) finish(r Result) Result {
	if s.Metrics != nil {
		s.Metrics.STKPushOutcomes.WithLabelValues(r.Kind.String()).Inc()
	}
	return r
}

// idempotencyScope ties a client key to the phone number it was first used
// with, so reusing a key for another payer never replays someone else's
// response.
func idempotencyScope(req domain.PaymentRequest) string {
	return req.IdempotencyKey + ":" + req.PhoneNumber
}

// bookkeepingContext outlives a cancelled request so a payment that already
// reached the gateway is still recorded.
func bookkeepingContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}
