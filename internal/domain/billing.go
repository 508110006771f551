/**
 * @description
 * This file defines the core domain models for the billing-service. These structs
 * represent the main entities and data transfer objects (DTOs) used throughout the
 * service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and external processor
 *   payloads ensures clear separation of concerns and type safety.
 * - Amounts are carried as `decimal.Decimal` and serialized as two-decimal USD
 *   strings, which avoids floating-point inaccuracies with financial data.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Rail identifiers. Exactly one rail settles any given payment.
const (
	RailCreditCard = "credit_card"
	RailPayPal     = "paypal"
	RailGooglePay  = "google_pay"
)

// Payment lifecycle statuses as recorded in the `payments` table.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusCanceled  = "canceled"
)

// Account represents a customer billing account. Balance is the signed amount
// owed (positive) or credited (negative) in USD.
type Account struct {
	ID                     uuid.UUID       `json:"id"`
	ExternalSubject        string          `json:"-"`
	Email                  string          `json:"email"`
	Balance                decimal.Decimal `json:"balance"`
	DefaultPaymentMethodID *uuid.UUID      `json:"default_payment_method_id,omitempty"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// CardExpiry is a month/year pair for a stored card. A nil *CardExpiry means
// the instrument carries no expiry (e.g. a PayPal billing agreement).
type CardExpiry struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// PaymentMethod represents a stored payment instrument. Card instruments carry
// brand, last four digits and expiry; PayPal instruments carry the account email.
type PaymentMethod struct {
	ID           uuid.UUID   `json:"id"`
	AccountID    uuid.UUID   `json:"-"`
	Rail         string      `json:"rail"`
	CardBrand    *string     `json:"card_brand,omitempty"`
	LastFour     *string     `json:"last_four,omitempty"`
	Expiry       *CardExpiry `json:"expiry,omitempty"`
	PaypalEmail  *string     `json:"paypal_email,omitempty"`
	GatewayToken string      `json:"-"`
	IsDefault    bool        `json:"is_default"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Warning is a non-fatal advisory returned alongside a successful payment,
// requiring user attention (e.g. "open a support ticket").
type Warning struct {
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// Payment is the ledger record for a single charge attempt.
type Payment struct {
	ID              uuid.UUID       `json:"id"`
	AccountID       uuid.UUID       `json:"account_id"`
	SessionID       uuid.UUID       `json:"session_id"`
	PaymentMethodID *uuid.UUID      `json:"payment_method_id,omitempty"`
	Rail            string          `json:"rail"`
	Status          string          `json:"status"`
	USD             decimal.Decimal `json:"usd"`
	ProcessorRef    *string         `json:"processor_ref,omitempty"`
	FailureReason   *string         `json:"failure_reason,omitempty"`
	WarningText     *string         `json:"warning_text,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// PaymentListOptions controls pagination for the account payment ledger.
type PaymentListOptions struct {
	Limit  int
	Offset int
	Status string
}

// MakePaymentRequest is the DTO for the credit-card and Google Pay rails.
// CVV is optional for stored-card payments and forwarded when present; Nonce
// carries a wallet tokenization nonce produced by the payment sheet.
type MakePaymentRequest struct {
	USD   string `json:"usd"`
	CVV   string `json:"cvv,omitempty"`
	Nonce string `json:"nonce,omitempty"`
}

// AddPaymentMethodRequest is the DTO for storing a card from the console's
// update credit card flow. Expiry uses the form's "MM/YYYY" layout.
type AddPaymentMethodRequest struct {
	GatewayToken string `json:"gateway_token"`
	CardBrand    string `json:"card_brand"`
	LastFour     string `json:"last_four"`
	Expiry       string `json:"expiry"`
	MakeDefault  bool   `json:"make_default"`
}

// StagePaypalResponse returns the staged order identifiers the console hands to
// PayPal's hosted approval flow.
type StagePaypalResponse struct {
	PaymentID     string `json:"payment_id"`
	CheckoutToken string `json:"checkout_token"`
}

// ExecutePaypalRequest is the DTO for the second (capture) phase of a PayPal
// payment, after the user approved the order on PayPal's site.
type ExecutePaypalRequest struct {
	PayerID   string `json:"payer_id"`
	PaymentID string `json:"payment_id"`
}

// PaymentResult is returned to the console after a settled charge.
type PaymentResult struct {
	USD      string    `json:"usd"`
	Warnings []Warning `json:"warnings,omitempty"`
	Message  string    `json:"message,omitempty"`
}
