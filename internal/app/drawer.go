/**
 * @description
 * This file implements the payment drawer session: the state machine that owns
 * the entered amount, the selected payment method, and the single-flight gate
 * for submissions. A session is transient. It is created when the console opens
 * the drawer and discarded on close or successful, acknowledged payment.
 *
 * Lifecycle: amount-entry, then submitting, then success or back to
 * amount-entry with the error reason surfaced inline so the user can retry
 * without re-entering data.
 *
 * All mutable session state is guarded by one mutex so amount/method edits and
 * the in-flight flag can never race an outstanding charge.
 */

package app

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/linode/manager-sub003/internal/domain"
)

// DrawerState enumerates the payment drawer lifecycle.
type DrawerState string

const (
	DrawerAmountEntry DrawerState = "amount-entry"
	DrawerSubmitting  DrawerState = "submitting"
	DrawerSuccess     DrawerState = "success"
	DrawerClosed      DrawerState = "closed"
)

// DrawerSession is one open payment drawer. Fields are read and mutated only
// under mu.
type DrawerSession struct {
	mu sync.Mutex

	ID        uuid.UUID
	AccountID uuid.UUID

	state       DrawerState
	usd         decimal.Decimal
	minimum     decimal.Decimal
	maximum     decimal.Decimal
	methods     []domain.PaymentMethod
	selectedID  uuid.UUID
	selectedExp bool
	processing  bool
	warnings    []domain.Warning
	errorReason string
	message     string

	CreatedAt time.Time
}

// DrawerView is an immutable snapshot of a session, safe to serialize.
type DrawerView struct {
	SessionID      uuid.UUID        `json:"session_id"`
	State          DrawerState      `json:"state"`
	USD            string           `json:"usd"`
	Minimum        string           `json:"minimum"`
	Maximum        string           `json:"maximum"`
	SelectedMethod uuid.UUID        `json:"selected_method_id"`
	MethodExpired  bool             `json:"selected_method_expired"`
	Warnings       []domain.Warning `json:"warnings,omitempty"`
	Error          string           `json:"error,omitempty"`
	Message        string           `json:"message,omitempty"`
}

// newDrawerSession opens a session in amount-entry with the amount pre-filled
// to the minimum payment. Initial selection is the account's default method,
// falling back to the first returned method (methods arrive ordered by
// creation time).
func newDrawerSession(account *domain.Account, methods []domain.PaymentMethod, bounds PaymentBounds, now time.Time) *DrawerSession {
	min := decimal.RequireFromString(bounds.MinimumPayment(account.Balance))
	max := decimal.RequireFromString(bounds.MaximumPayment(account.Balance))

	s := &DrawerSession{
		ID:        uuid.New(),
		AccountID: account.ID,
		state:     DrawerAmountEntry,
		usd:       min,
		minimum:   min,
		maximum:   max,
		methods:   methods,
		CreatedAt: now,
	}

	var initial *domain.PaymentMethod
	for i := range methods {
		if account.DefaultPaymentMethodID != nil && methods[i].ID == *account.DefaultPaymentMethodID {
			initial = &methods[i]
			break
		}
	}
	if initial == nil && len(methods) > 0 {
		initial = &methods[0]
	}
	if initial != nil {
		s.selectedID = initial.ID
		s.selectedExp = IsExpired(initial.Expiry, now)
	}
	return s
}

// View returns a snapshot of the session.
func (s *DrawerSession) View() DrawerView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return DrawerView{
		SessionID:      s.ID,
		State:          s.state,
		USD:            s.usd.StringFixed(2),
		Minimum:        s.minimum.StringFixed(2),
		Maximum:        s.maximum.StringFixed(2),
		SelectedMethod: s.selectedID,
		MethodExpired:  s.selectedExp,
		Warnings:       s.warnings,
		Error:          s.errorReason,
		Message:        s.message,
	}
}

// SetAmount updates the entered amount. Edits are rejected while a payment is
// in flight so user input cannot race an outstanding charge.
func (s *DrawerSession) SetAmount(usd decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing {
		return ErrPaymentInFlight
	}
	s.usd = usd
	s.state = DrawerAmountEntry
	s.errorReason = ""
	s.message = ""
	return nil
}

// SelectMethod switches the active payment method, updating the id and the
// expiry-derived disablement in one mutation so Pay Now is never enabled
// against a stale expiry flag.
func (s *DrawerSession) SelectMethod(method *domain.PaymentMethod, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing {
		return ErrPaymentInFlight
	}
	s.selectedID = method.ID
	s.selectedExp = IsExpired(method.Expiry, now)
	s.state = DrawerAmountEntry
	s.errorReason = ""
	s.message = ""
	return nil
}

// RecalculateMinimum recomputes the minimum payment after a balance change and
// re-prefills the amount if the user has not raised it past the old minimum.
func (s *DrawerSession) RecalculateMinimum(balance decimal.Decimal, bounds PaymentBounds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing {
		return
	}
	newMin := decimal.RequireFromString(bounds.MinimumPayment(balance))
	if s.usd.Equal(s.minimum) {
		s.usd = newMin
	}
	s.minimum = newMin
	s.maximum = decimal.RequireFromString(bounds.MaximumPayment(balance))
}

// beginSubmit enforces the single-flight invariant: only one submission may be
// in flight per session. The credit-card path confirms and submits in one call
// (the console's dialog confirmation maps to the request itself); the wallet
// rails treat their hosted UI as the confirmation step.
func (s *DrawerSession) beginSubmit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == DrawerClosed {
		return ErrSessionNotFound
	}
	if s.processing {
		return ErrPaymentInFlight
	}
	s.processing = true
	s.state = DrawerSubmitting
	s.errorReason = ""
	s.message = ""
	return nil
}

// selected returns the currently selected method and its expiry flag.
func (s *DrawerSession) selected() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedID, s.selectedExp
}

// amount returns the current entered amount.
func (s *DrawerSession) amount() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usd
}

// finishSuccess records a settled charge. Without warnings the session closes;
// with warnings it stays open in success state until the user acknowledges.
func (s *DrawerSession) finishSuccess(warnings []domain.Warning, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = false
	s.warnings = warnings
	s.message = message
	if len(warnings) == 0 {
		s.state = DrawerClosed
		return
	}
	s.state = DrawerSuccess
}

// finishError records a rejected charge and returns to amount entry with the
// reason surfaced inline. Amount and selection are left untouched for retry.
func (s *DrawerSession) finishError(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = false
	s.errorReason = reason
	s.state = DrawerAmountEntry
}

// finishCancel records a user abort: no error shown, back to amount entry.
func (s *DrawerSession) finishCancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = false
	s.message = "Payment Cancelled"
	s.state = DrawerAmountEntry
}

// acknowledge dismisses surfaced warnings and closes the session.
func (s *DrawerSession) acknowledge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != DrawerSuccess {
		return ErrSessionNotFound
	}
	s.warnings = nil
	s.state = DrawerClosed
	return nil
}

// close discards the session (user closed the drawer).
func (s *DrawerSession) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing {
		return ErrPaymentInFlight
	}
	s.state = DrawerClosed
	return nil
}

// methodByID finds a stored method snapshot held by the session.
func (s *DrawerSession) methodByID(id uuid.UUID) *domain.PaymentMethod {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.methods {
		if s.methods[i].ID == id {
			m := s.methods[i]
			return &m
		}
	}
	return nil
}

// sessionRegistry tracks open drawer sessions in memory. Sessions do not
// survive a restart; the console simply reopens the drawer.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*DrawerSession
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[uuid.UUID]*DrawerSession)}
}

func (r *sessionRegistry) put(s *DrawerSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *sessionRegistry) get(id uuid.UUID) (*DrawerSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *sessionRegistry) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}
