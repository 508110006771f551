/**
 * @description
 * This file contains the pure amount and expiry validation logic shared by the
 * payment drawer and every payment rail. Nothing here performs I/O; the functions
 * are total over well-formed input and fail closed on malformed expiry data.
 *
 * @dependencies
 * - github.com/shopspring/decimal: Exact decimal arithmetic for USD amounts.
 */

package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/linode/manager-sub003/internal/domain"
)

// ValidationError rejects malformed user input. Reason is safe to surface to
// the caller verbatim.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// PaymentBounds carries the allowed USD range for a drawer session. Min applies
// to every rail; Max additionally gates the wallet rails (PayPal, Google Pay),
// whose hosted flows cannot be validated server-side after handoff.
type PaymentBounds struct {
	Floor   decimal.Decimal
	Ceiling decimal.Decimal
}

// DefaultPaymentBounds returns the standard $5.00 floor and $10,000.00 ceiling.
func DefaultPaymentBounds() PaymentBounds {
	return PaymentBounds{
		Floor:   decimal.RequireFromString("5.00"),
		Ceiling: decimal.RequireFromString("10000.00"),
	}
}

// BoundsFromStrings builds PaymentBounds from configured USD strings, falling
// back to the defaults for any value that does not parse.
func BoundsFromStrings(floor, ceiling string) PaymentBounds {
	bounds := DefaultPaymentBounds()
	if v, err := decimal.NewFromString(strings.TrimSpace(floor)); err == nil && v.IsPositive() {
		bounds.Floor = v
	}
	if v, err := decimal.NewFromString(strings.TrimSpace(ceiling)); err == nil && v.GreaterThan(bounds.Floor) {
		bounds.Ceiling = v
	}
	return bounds
}

// MinimumPayment computes the smallest accepted payment for a balance, as a
// two-decimal USD string. A customer with no amount owed (or a credit) still
// pays at least the floor; a customer owing less than the floor may pay exactly
// what they owe.
func (b PaymentBounds) MinimumPayment(balance decimal.Decimal) string {
	if balance.LessThanOrEqual(decimal.Zero) || balance.GreaterThanOrEqual(b.Floor) {
		return b.Floor.StringFixed(2)
	}
	return balance.StringFixed(2)
}

// MaximumPayment computes the largest accepted payment for the wallet rails.
// Customers may pay above their balance (prepaying credit) up to the processor
// ceiling.
func (b PaymentBounds) MaximumPayment(balance decimal.Decimal) string {
	return b.Ceiling.StringFixed(2)
}

// CheckAmount validates an entered amount against the bounds for a balance.
// It returns ErrAmountBelowMinimum or ErrAmountAboveMaximum on violation.
func (b PaymentBounds) CheckAmount(usd, balance decimal.Decimal, walletRail bool) error {
	min := decimal.RequireFromString(b.MinimumPayment(balance))
	if usd.LessThan(min) {
		return ErrAmountBelowMinimum
	}
	if walletRail && usd.GreaterThan(b.Ceiling) {
		return ErrAmountAboveMaximum
	}
	return nil
}

// ParseUSD parses a user-entered USD amount string. It rejects empty input,
// negative values, and anything with more than two decimal places.
func ParseUSD(s string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	if trimmed == "" {
		return decimal.Zero, &ValidationError{Reason: "amount is required"}
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, &ValidationError{Reason: fmt.Sprintf("invalid amount %q", s)}
	}
	if parsed.IsNegative() {
		return decimal.Zero, &ValidationError{Reason: "amount must be positive"}
	}
	if parsed.Exponent() < -2 {
		return decimal.Zero, &ValidationError{Reason: fmt.Sprintf("amount %q has more than two decimal places", s)}
	}
	return parsed, nil
}

// ParseExpiry parses an "MM/YYYY" expiry string into a CardExpiry. Malformed
// input returns nil with an error so callers can fail closed.
func ParseExpiry(s string) (*domain.CardExpiry, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return nil, &ValidationError{Reason: fmt.Sprintf("expiry %q is not in MM/YYYY format", s)}
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return nil, &ValidationError{Reason: fmt.Sprintf("expiry %q has an invalid month", s)}
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 4 || year < 1 {
		return nil, &ValidationError{Reason: fmt.Sprintf("expiry %q has an invalid year", s)}
	}
	return &domain.CardExpiry{Month: month, Year: year}, nil
}

// IsExpired reports whether a card expiry falls strictly before the first day
// of the current month. A nil or malformed expiry is treated as not expired;
// the processor is the authority for instruments without usable expiry data.
func IsExpired(expiry *domain.CardExpiry, now time.Time) bool {
	if expiry == nil || expiry.Month < 1 || expiry.Month > 12 || expiry.Year < 1 {
		return false
	}
	firstOfCurrentMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	expiryMonth := time.Date(expiry.Year, time.Month(expiry.Month), 1, 0, 0, 0, 0, time.UTC)
	return expiryMonth.Before(firstOfCurrentMonth)
}

// ExpiryLabel renders the console's expiry text for a stored card:
// "Expires 12/23" for a usable card, "Expired 12/21" for one past its expiry,
// and the empty string when no expiry is on file.
func ExpiryLabel(expiry *domain.CardExpiry, now time.Time) string {
	if expiry == nil {
		return ""
	}
	prefix := "Expires"
	if IsExpired(expiry, now) {
		prefix = "Expired"
	}
	return fmt.Sprintf("%s %02d/%02d", prefix, expiry.Month, expiry.Year%100)
}

// CardLabel renders the console's stored-card text, e.g. "Visa ****1111".
func CardLabel(brand, lastFour string) string {
	return fmt.Sprintf("%s ****%s", brand, lastFour)
}

// BalanceLabel renders the console's balance text: the absolute amount to two
// decimals with a dollar prefix, suffixed with "(credit)" when negative.
func BalanceLabel(balance decimal.Decimal) string {
	label := "$" + balance.Abs().StringFixed(2)
	if balance.IsNegative() {
		label += " (credit)"
	}
	return label
}
