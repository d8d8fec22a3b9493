package externalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	tokenPath              = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath            = "/mpesa/stkpush/v1/processrequest"
	transactionTypePayBill = "CustomerPayBillOnline"
)

// Client talks to the M-Pesa Daraja API. Every FetchToken call performs a
// fresh OAuth grant; tokens are not cached.
type Client interface {
	FetchToken(ctx context.Context) (string, error)
	STKPush(ctx context.Context, token, phoneNumber string) (*STKPushResult, error)
}

type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	CallbackURL    string
	BaseURL        string
}

type Options struct {
	Timeout          time.Duration
	Location         *time.Location
	Amount           int
	AccountReference string
	TransactionDesc  string
	Now              func() time.Time
	HTTPClient       *http.Client
	Logger           *logrus.Entry
}

// STKPushResult carries the upstream body untouched plus the identifiers
// parsed out of it when present.
type STKPushResult struct {
	Body              json.RawMessage
	MerchantRequestID string
	CheckoutRequestID string
	ResponseCode      string
}

type client struct {
	creds      Credentials
	opts       Options
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	log        *logrus.Entry
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int    `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushAck struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResponseCode      string `json:"ResponseCode"`
}

func NewClient(creds Credentials, opts Options) Client {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Amount <= 0 {
		opts.Amount = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	settings := gobreaker.Settings{
		Name:        "DarajaGateway",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker changed state")
		},
	}

	return &client{
		creds:      creds,
		opts:       opts,
		httpClient: httpClient,
		cb:         gobreaker.NewCircuitBreaker(settings),
		log:        log,
	}
}

func (c *client) FetchToken(ctx context.Context) (string, error) {
	const op = "token request"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(tokenPath), nil)
	if err != nil {
		return "", &GatewayError{Op: op, Err: fmt.Errorf("could not create request: %w", err)}
	}
	req.SetBasicAuth(c.creds.ConsumerKey, c.creds.ConsumerSecret)

	body, status, err := c.do(req, op)
	if err != nil {
		return "", err
	}

	var token tokenResponse
	if err := sonic.Unmarshal(body, &token); err != nil {
		return "", &GatewayError{Op: op, StatusCode: status, Payload: body, Err: fmt.Errorf("could not decode token: %w", err)}
	}
	if token.AccessToken == "" {
		return "", &GatewayError{Op: op, StatusCode: status, Payload: body, Err: errors.New("empty access token")}
	}

	return token.AccessToken, nil
}

func (c *client) STKPush(ctx context.Context, token, phoneNumber string) (*STKPushResult, error) {
	const op = "stk push request"

	timestamp := Timestamp(c.opts.Now().In(c.opts.Location))
	payload := stkPushPayload{
		BusinessShortCode: c.creds.Shortcode,
		Password:          Password(c.creds.Shortcode, c.creds.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   transactionTypePayBill,
		Amount:            c.opts.Amount,
		PartyA:            phoneNumber,
		PartyB:            c.creds.Shortcode,
		PhoneNumber:       phoneNumber,
		CallBackURL:       c.creds.CallbackURL,
		AccountReference:  c.opts.AccountReference,
		TransactionDesc:   c.opts.TransactionDesc,
	}

	reqBody, err := sonic.Marshal(payload)
	if err != nil {
		return nil, &GatewayError{Op: op, Err: fmt.Errorf("could not serialize payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(stkPushPath), bytes.NewReader(reqBody))
	if err != nil {
		return nil, &GatewayError{Op: op, Err: fmt.Errorf("could not create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	body, _, err := c.do(req, op)
	if err != nil {
		return nil, err
	}

	result := &STKPushResult{Body: relayable(body)}
	var ack stkPushAck
	if err := sonic.Unmarshal(body, &ack); err == nil {
		result.MerchantRequestID = ack.MerchantRequestID
		result.CheckoutRequestID = ack.CheckoutRequestID
		result.ResponseCode = ack.ResponseCode
	}

	return result, nil
}

func (c *client) do(req *http.Request, op string) ([]byte, int, error) {
	var status int

	out, err := c.cb.Execute(func() (interface{}, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &GatewayError{Op: op, Retryable: true, Err: err}
		}
		defer resp.Body.Close()
		status = resp.StatusCode

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &GatewayError{Op: op, StatusCode: status, Retryable: true, Err: fmt.Errorf("could not read response: %w", err)}
		}

		if resp.StatusCode >= 300 {
			return nil, &GatewayError{
				Op:         op,
				StatusCode: resp.StatusCode,
				Payload:    body,
				Retryable:  resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
			}
		}

		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, 0, &GatewayError{Op: op, Retryable: true, Err: err}
		}
		return nil, status, err
	}

	return out.([]byte), status, nil
}

func (c *client) url(path string) string {
	return strings.TrimRight(c.creds.BaseURL, "/") + path
}

// countsAsSuccess keeps caller mistakes and cancellations from tripping the
// breaker; only failures worth retrying count against the gateway.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return !gwErr.Retryable
	}
	return false
}

// relayable returns body as-is when it is JSON, otherwise as a JSON string.
func relayable(body []byte) json.RawMessage {
	if sonic.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, err := sonic.Marshal(string(body))
	if err != nil {
		return json.RawMessage(`null`)
	}
	return json.RawMessage(quoted)
}
