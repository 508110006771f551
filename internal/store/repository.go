/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for
 * all data access operations required by the billing-service. By defining an
 * interface, we decouple the application's business logic from the specific
 * database implementation (e.g., PostgreSQL), making the code more modular and
 * easier to test.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID handling.
 * - github.com/shopspring/decimal: For exact USD amounts.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/linode/manager-sub003/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Account methods
	// Resolve internal UUID from the identity provider subject (JWT `sub`).
	FindAccountIDBySubject(ctx context.Context, subject string) (string, error)
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	UpdateAccountBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) error

	// Payment method methods
	ListPaymentMethods(ctx context.Context, accountID uuid.UUID) ([]domain.PaymentMethod, error)
	FindPaymentMethodByID(ctx context.Context, methodID uuid.UUID, accountID uuid.UUID) (*domain.PaymentMethod, error)
	CreatePaymentMethod(ctx context.Context, method *domain.PaymentMethod) error

	// Payment ledger methods
	CreatePayment(ctx context.Context, payment *domain.Payment) error
	FindPaymentByProcessorRef(ctx context.Context, accountID uuid.UUID, processorRef string) (*domain.Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, processorRef, status string) error
	MarkPaymentFailed(ctx context.Context, paymentID uuid.UUID, failureReason string) error
	MarkPaymentCompleted(ctx context.Context, paymentID uuid.UUID, processorRef string, warningText *string) error
	ListPayments(ctx context.Context, accountID uuid.UUID, opts domain.PaymentListOptions) ([]domain.Payment, error)
}
