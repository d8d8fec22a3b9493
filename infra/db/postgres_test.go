package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slfs-backend/domain"
	"slfs-backend/internal/logger"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []execCall
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestLedgerRecord(t *testing.T) {
	fake := &fakeExecer{}
	ledger := &PostgresLedger{db: fake, log: logger.Discard()}
	requestedAt := time.Date(2024, time.March, 5, 7, 8, 9, 0, time.UTC)

	err := ledger.Record(context.Background(), domain.PaymentAttempt{
		ID:                "3f1c7c1e-5f4a-4b2a-9d1e-000000000001",
		PhoneNumber:       "254712345678",
		Amount:            1,
		Status:            domain.PaymentRequested,
		CheckoutRequestID: "ws_CO_1",
		ResponseCode:      "0",
		Response:          []byte(`{"ResponseCode":"0"}`),
		RequestedAt:       requestedAt,
	})
	require.NoError(t, err)
	require.Len(t, fake.calls, 1)

	args := fake.calls[0].args
	require.Len(t, args, 11)
	assert.Nil(t, args[1], "empty idempotency key is stored as NULL")
	assert.Equal(t, "254712345678", args[2])
	assert.Equal(t, "requested", args[4])
	assert.Equal(t, "ws_CO_1", args[6])
	assert.Equal(t, []byte(`{"ResponseCode":"0"}`), args[9])
	assert.Equal(t, requestedAt, args[10])
}

func TestLedgerRecordDuplicateIsIgnored(t *testing.T) {
	fake := &fakeExecer{err: &pgconn.PgError{Code: uniqueViolation}}
	ledger := &PostgresLedger{db: fake, log: logger.Discard()}

	require.NoError(t, ledger.Record(context.Background(), domain.PaymentAttempt{ID: "dup"}))
}

func TestLedgerRecordError(t *testing.T) {
	fake := &fakeExecer{err: errors.New("connection reset")}
	ledger := &PostgresLedger{db: fake, log: logger.Discard()}

	err := ledger.Record(context.Background(), domain.PaymentAttempt{ID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestEnsureSchema(t *testing.T) {
	fake := &fakeExecer{}
	ledger := &PostgresLedger{db: fake, log: logger.Discard()}

	require.NoError(t, ledger.EnsureSchema(context.Background()))
	require.Len(t, fake.calls, 1)
	assert.Contains(t, fake.calls[0].sql, "CREATE TABLE IF NOT EXISTS stk_push_requests")
}
