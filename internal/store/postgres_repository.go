/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to accounts, stored payment methods, and the payments ledger.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/linode/manager-sub003/internal/domain"
)

var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrPaymentMethodNotFound = errors.New("payment method not found")
	ErrPaymentNotFound       = errors.New("payment not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindAccountIDBySubject resolves the internal UUID from an identity provider subject.
func (r *PostgresRepository) FindAccountIDBySubject(ctx context.Context, subject string) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, "SELECT id FROM accounts WHERE external_subject = $1", subject).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", ErrAccountNotFound
		}
		return "", err
	}
	return id, nil
}

// FindAccountByID retrieves a billing account by its ID.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	var balance string
	query := `SELECT id, external_subject, email, balance::text, default_payment_method_id, updated_at
	          FROM accounts WHERE id = $1`
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&account.ID, &account.ExternalSubject, &account.Email, &balance,
		&account.DefaultPaymentMethodID, &account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	account.Balance, err = decimal.NewFromString(strings.TrimSpace(balance))
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// UpdateAccountBalance writes the refreshed balance after a settled payment.
func (r *PostgresRepository) UpdateAccountBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE accounts SET balance = $1, updated_at = now() WHERE id = $2",
		balance.StringFixed(2), accountID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ListPaymentMethods returns an account's stored instruments ordered with the
// default first, then by creation time. The ordering is what makes the
// no-default fallback deterministic.
func (r *PostgresRepository) ListPaymentMethods(ctx context.Context, accountID uuid.UUID) ([]domain.PaymentMethod, error) {
	query := `SELECT id, account_id, rail, card_brand, last_four, expiry_month, expiry_year,
	                 paypal_email, gateway_token, is_default, created_at
	          FROM payment_methods
	          WHERE account_id = $1
	          ORDER BY is_default DESC, created_at ASC`
	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var methods []domain.PaymentMethod
	for rows.Next() {
		method, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, err
		}
		methods = append(methods, *method)
	}
	return methods, rows.Err()
}

// FindPaymentMethodByID retrieves a stored instrument scoped to its account.
func (r *PostgresRepository) FindPaymentMethodByID(ctx context.Context, methodID uuid.UUID, accountID uuid.UUID) (*domain.PaymentMethod, error) {
	query := `SELECT id, account_id, rail, card_brand, last_four, expiry_month, expiry_year,
	                 paypal_email, gateway_token, is_default, created_at
	          FROM payment_methods
	          WHERE id = $1 AND account_id = $2`
	row := r.db.QueryRow(ctx, query, methodID, accountID)
	method, err := scanPaymentMethod(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentMethodNotFound
		}
		return nil, err
	}
	return method, nil
}

// scanPaymentMethod maps one payment_methods row, folding the nullable expiry
// columns into a *CardExpiry.
func scanPaymentMethod(row pgx.Row) (*domain.PaymentMethod, error) {
	var method domain.PaymentMethod
	var expMonth, expYear *int
	err := row.Scan(
		&method.ID, &method.AccountID, &method.Rail, &method.CardBrand, &method.LastFour,
		&expMonth, &expYear, &method.PaypalEmail, &method.GatewayToken,
		&method.IsDefault, &method.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if expMonth != nil && expYear != nil {
		method.Expiry = &domain.CardExpiry{Month: *expMonth, Year: *expYear}
	}
	return &method, nil
}

// CreatePaymentMethod stores a new instrument. When the instrument is flagged
// as default, the account's previous default is cleared in the same transaction.
func (r *PostgresRepository) CreatePaymentMethod(ctx context.Context, method *domain.PaymentMethod) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if method.IsDefault {
		if _, err := tx.Exec(ctx,
			"UPDATE payment_methods SET is_default = false WHERE account_id = $1",
			method.AccountID,
		); err != nil {
			return err
		}
	}

	var expMonth, expYear *int
	if method.Expiry != nil {
		expMonth, expYear = &method.Expiry.Month, &method.Expiry.Year
	}
	query := `INSERT INTO payment_methods (id, account_id, rail, card_brand, last_four, expiry_month, expiry_year,
	                                       paypal_email, gateway_token, is_default, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())`
	if _, err := tx.Exec(ctx, query,
		method.ID, method.AccountID, method.Rail, method.CardBrand, method.LastFour,
		expMonth, expYear, method.PaypalEmail, method.GatewayToken, method.IsDefault,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreatePayment inserts a new ledger record for a charge attempt.
func (r *PostgresRepository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	query := `INSERT INTO payments (id, account_id, session_id, payment_method_id, rail, status, usd, processor_ref, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())`
	_, err := r.db.Exec(ctx, query,
		payment.ID, payment.AccountID, payment.SessionID, payment.PaymentMethodID,
		payment.Rail, payment.Status, payment.USD.StringFixed(2), payment.ProcessorRef,
	)
	return err
}

// FindPaymentByProcessorRef retrieves the newest ledger record carrying a
// processor reference, scoped to its account. Two-phase rails stage a pending
// row before the processor handoff and settle that same row afterwards.
func (r *PostgresRepository) FindPaymentByProcessorRef(ctx context.Context, accountID uuid.UUID, processorRef string) (*domain.Payment, error) {
	var p domain.Payment
	var usd string
	query := `SELECT id, account_id, session_id, payment_method_id, rail, status, usd::text,
	                 processor_ref, failure_reason, warning_text, created_at, updated_at
	          FROM payments
	          WHERE account_id = $1 AND processor_ref = $2
	          ORDER BY created_at DESC
	          LIMIT 1`
	err := r.db.QueryRow(ctx, query, accountID, processorRef).Scan(
		&p.ID, &p.AccountID, &p.SessionID, &p.PaymentMethodID, &p.Rail, &p.Status, &usd,
		&p.ProcessorRef, &p.FailureReason, &p.WarningText, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	p.USD, err = decimal.NewFromString(strings.TrimSpace(usd))
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePaymentStatus moves a ledger record to a new status, recording the
// processor reference when one is known.
func (r *PostgresRepository) UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, processorRef, status string) error {
	query := `UPDATE payments
	          SET status = $1,
	              processor_ref = COALESCE(NULLIF($2, ''), processor_ref),
	              updated_at = now()
	          WHERE id = $3`
	tag, err := r.db.Exec(ctx, query, status, processorRef, paymentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// MarkPaymentFailed records a rejected charge with the surfaced reason.
func (r *PostgresRepository) MarkPaymentFailed(ctx context.Context, paymentID uuid.UUID, failureReason string) error {
	query := `UPDATE payments SET status = $1, failure_reason = $2, updated_at = now() WHERE id = $3`
	tag, err := r.db.Exec(ctx, query, domain.PaymentStatusFailed, failureReason, paymentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// MarkPaymentCompleted records a settled charge, with any processor warnings.
func (r *PostgresRepository) MarkPaymentCompleted(ctx context.Context, paymentID uuid.UUID, processorRef string, warningText *string) error {
	query := `UPDATE payments
	          SET status = $1,
	              processor_ref = COALESCE(NULLIF($2, ''), processor_ref),
	              warning_text = $3,
	              updated_at = now()
	          WHERE id = $4`
	tag, err := r.db.Exec(ctx, query, domain.PaymentStatusCompleted, processorRef, warningText, paymentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// ListPayments returns the account's payment ledger, newest first.
func (r *PostgresRepository) ListPayments(ctx context.Context, accountID uuid.UUID, opts domain.PaymentListOptions) ([]domain.Payment, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, account_id, session_id, payment_method_id, rail, status, usd::text,
	                 processor_ref, failure_reason, warning_text, created_at, updated_at
	          FROM payments
	          WHERE account_id = $1
	            AND ($2 = '' OR status = $2)
	          ORDER BY created_at DESC
	          LIMIT $3 OFFSET $4`
	rows, err := r.db.Query(ctx, query, accountID, strings.TrimSpace(opts.Status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var p domain.Payment
		var usd string
		err := rows.Scan(
			&p.ID, &p.AccountID, &p.SessionID, &p.PaymentMethodID, &p.Rail, &p.Status, &usd,
			&p.ProcessorRef, &p.FailureReason, &p.WarningText, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		p.USD, err = decimal.NewFromString(strings.TrimSpace(usd))
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
