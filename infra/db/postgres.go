package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"slfs-backend/domain"
)

const uniqueViolation = "23505"

const ledgerSchema = `
	CREATE TABLE IF NOT EXISTS stk_push_requests (
		id                  UUID PRIMARY KEY,
		idempotency_key     TEXT,
		phone_number        TEXT NOT NULL,
		amount              INTEGER NOT NULL,
		status              TEXT NOT NULL,
		merchant_request_id TEXT,
		checkout_request_id TEXT,
		response_code       TEXT,
		error               TEXT,
		response            JSONB,
		requested_at        TIMESTAMPTZ NOT NULL
	)
`

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresLedger keeps an audit row for every STK push sent to the gateway.
type PostgresLedger struct {
	db    execer
	close func()
	log   *logrus.Entry
}

func NewPostgresLedger(ctx context.Context, dsn string, maxConnections int, log *logrus.Entry) (*PostgresLedger, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid db config: %w", err)
	}

	if maxConnections > 0 {
		config.MaxConns = int32(maxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("could not create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not ping postgres: %w", err)
	}

	ledger := &PostgresLedger{db: pool, close: pool.Close, log: log}
	if err := ledger.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return ledger, nil
}

func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, ledgerSchema); err != nil {
		return fmt.Errorf("could not create ledger schema: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Record(ctx context.Context, a domain.PaymentAttempt) error {
	query := `
		INSERT INTO stk_push_requests (
			id, idempotency_key, phone_number, amount, status,
			merchant_request_id, checkout_request_id, response_code, error, response, requested_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var response any
	if len(a.Response) > 0 {
		response = []byte(a.Response)
	}

	_, err := l.db.Exec(ctx, query,
		a.ID, nullable(a.IdempotencyKey), a.PhoneNumber, a.Amount, string(a.Status),
		nullable(a.MerchantRequestID), nullable(a.CheckoutRequestID), nullable(a.ResponseCode),
		nullable(a.Error), response, a.RequestedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			l.log.WithField("attempt_id", a.ID).Info("stk push attempt already recorded, skipping insert")
			return nil
		}
		return fmt.Errorf("could not record stk push attempt: %w", err)
	}

	return nil
}

func (l *PostgresLedger) Close() {
	if l.close != nil {
		l.close()
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
