/**
 * @description
 * This file defines the payment rail adapter contract and the error taxonomy
 * shared by all rails. Each rail wraps a distinct processor flow (direct gateway
 * sale, PayPal stage/execute, Google Pay tokenized sale) behind one interface so
 * the drawer controller never touches processor specifics.
 *
 * All asynchronous failures are caught at the rail boundary and translated into
 * one of these categories before reaching the drawer controller; no raw
 * transport error ever reaches the API layer.
 */

package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/linode/manager-sub003/internal/domain"
)

var (
	// ErrPaymentInFlight rejects a submission while another one is processing
	// on the same drawer session.
	ErrPaymentInFlight = errors.New("a payment is already in flight for this session")

	// ErrAmountBelowMinimum rejects an amount under the computed minimum payment.
	ErrAmountBelowMinimum = errors.New("amount is below the minimum payment")

	// ErrAmountAboveMaximum rejects a wallet-rail amount over the processor ceiling.
	ErrAmountAboveMaximum = errors.New("amount is above the maximum payment")

	// ErrMethodExpired rejects a submission against an expired stored card.
	ErrMethodExpired = errors.New("selected payment method is expired")

	// ErrPaymentCanceled signals a user abort before any charge attempt. It is
	// silent: the drawer returns to amount entry with no error shown.
	ErrPaymentCanceled = errors.New("payment canceled")

	// ErrSessionNotFound is returned for an unknown or already-closed drawer session.
	ErrSessionNotFound = errors.New("drawer session not found")

	// ErrRateLimited rejects a submission over the per-account attempt budget.
	ErrRateLimited = errors.New("too many payment attempts")
)

// RailInitError indicates a rail could not initialize (gateway unreachable,
// client token fetch failed). It degrades only that rail; the message is the
// inline text the console renders in place of the rail's button.
type RailInitError struct {
	Rail    string
	Message string
	Err     error
}

func (e *RailInitError) Error() string {
	return e.Message
}

func (e *RailInitError) Unwrap() error {
	return e.Err
}

// ProcessorError carries the first error reason returned by a processor after a
// rejected charge. The reason is safe to surface inline above the amount field.
type ProcessorError struct {
	Reason string
	Err    error
}

func (e *ProcessorError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return "Unable to make a payment at this time."
}

func (e *ProcessorError) Unwrap() error {
	return e.Err
}

// RailRequest is the input to a rail submission. Exactly one credential kind is
// populated per rail: CVV for stored cards, Nonce for Google Pay, and
// PayerID/PaymentID for a PayPal execute.
type RailRequest struct {
	Account   *domain.Account
	Method    *domain.PaymentMethod
	USD       decimal.Decimal
	CVV       string
	Nonce     string
	PayerID   string
	PaymentID string
}

// RailResult is the outcome of an accepted charge. Warnings are non-fatal
// advisories returned alongside success.
type RailResult struct {
	USD          decimal.Decimal
	ProcessorRef string
	Warnings     []domain.Warning
}

// Rail is the adapter contract shared by the credit-card, PayPal, and Google
// Pay rails: initialize against the processor, then attempt exactly one charge.
// Submit returns ErrPaymentCanceled for a user abort, a *ProcessorError for a
// rejected charge, and a *RailInitError when the rail could not initialize.
type Rail interface {
	Name() string
	Init(ctx context.Context) error
	Submit(ctx context.Context, req RailRequest) (*RailResult, error)
}

// railInitMessage maps a rail to the inline error text rendered when its
// initialization fails.
func railInitMessage(rail string) string {
	switch rail {
	case domain.RailPayPal:
		return "Error loading PayPal."
	case domain.RailGooglePay:
		return "Error initializing Google Pay."
	default:
		return fmt.Sprintf("Error initializing %s.", rail)
	}
}
