/**
 * @description
 * This file contains the core business logic for the billing-service. The
 * `Service` struct orchestrates the payment drawer workflow, coordinating
 * between the database repository, the payment rail adapters, and the message
 * broker.
 *
 * Key features:
 * - Opens/edits drawer sessions and enforces the single-flight submission gate.
 * - Runs the shared completion path for all three rails: validate bounds,
 *   record the ledger attempt, submit, then settle or surface the failure.
 * - Refreshes the account balance and publishes a payment event after success.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - github.com/shopspring/decimal: For exact USD amounts.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linode/manager-sub003/internal/domain"
	"github.com/linode/manager-sub003/internal/store"
	"github.com/linode/manager-sub003/pkg/rabbitmq"
)

const paymentSuccessMessage = "Payment successfully submitted."

// PaymentRateLimiter is the contract for the distributed submission limiter.
type PaymentRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// TokenSource issues the gateway tokenization key the console's payment SDKs
// initialize with.
type TokenSource interface {
	ClientTokenValue(ctx context.Context) (string, error)
}

// Service provides the core business logic for the payment drawer workflow.
type Service struct {
	repo          store.Repository
	rails         map[string]Rail
	paypal        *PayPalRail
	tokenSource   TokenSource
	eventProducer rabbitmq.Publisher
	rateLimiter   PaymentRateLimiter
	ratePerMinute int
	bounds        PaymentBounds
	sessions      *sessionRegistry

	// now is swappable for deterministic expiry tests.
	now func() time.Time
}

// NewService creates a new billing service instance. The PayPal rail is passed
// separately because it alone exposes the two-phase Stage operation.
func NewService(
	repo store.Repository,
	creditCard Rail,
	paypal *PayPalRail,
	googlePay Rail,
	tokenSource TokenSource,
	producer rabbitmq.Publisher,
	limiter PaymentRateLimiter,
	ratePerMinute int,
	bounds PaymentBounds,
) *Service {
	rails := map[string]Rail{
		domain.RailCreditCard: creditCard,
		domain.RailGooglePay:  googlePay,
	}
	if paypal != nil {
		rails[domain.RailPayPal] = paypal
	}
	return &Service{
		repo:          repo,
		rails:         rails,
		paypal:        paypal,
		tokenSource:   tokenSource,
		eventProducer: producer,
		rateLimiter:   limiter,
		ratePerMinute: ratePerMinute,
		bounds:        bounds,
		sessions:      newSessionRegistry(),
		now:           time.Now,
	}
}

// ResolveAccountID converts an identity provider subject from a validated JWT
// into the internal UUID used by our database.
func (s *Service) ResolveAccountID(ctx context.Context, subject string) (string, error) {
	return s.repo.FindAccountIDBySubject(ctx, subject)
}

// AccountView is the console-facing account summary.
type AccountView struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	Balance        string    `json:"balance"`
	BalanceDisplay string    `json:"balance_display"`
	Credit         bool      `json:"credit"`
	MinimumPayment string    `json:"minimum_payment"`
}

// GetAccount returns the account summary with display helpers.
func (s *Service) GetAccount(ctx context.Context, accountID uuid.UUID) (*AccountView, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return &AccountView{
		ID:             account.ID,
		Email:          account.Email,
		Balance:        account.Balance.StringFixed(2),
		BalanceDisplay: BalanceLabel(account.Balance),
		Credit:         account.Balance.IsNegative(),
		MinimumPayment: s.bounds.MinimumPayment(account.Balance),
	}, nil
}

// PaymentMethodView decorates a stored instrument with the console's display
// strings.
type PaymentMethodView struct {
	domain.PaymentMethod
	Label       string `json:"label,omitempty"`
	ExpiryLabel string `json:"expiry_label,omitempty"`
	Expired     bool   `json:"expired"`
}

// ListPaymentMethods returns the account's stored instruments with display
// labels and expiry-derived disablement.
func (s *Service) ListPaymentMethods(ctx context.Context, accountID uuid.UUID) ([]PaymentMethodView, error) {
	methods, err := s.repo.ListPaymentMethods(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	now := s.now()
	views := make([]PaymentMethodView, 0, len(methods))
	for _, m := range methods {
		view := PaymentMethodView{
			PaymentMethod: m,
			ExpiryLabel:   ExpiryLabel(m.Expiry, now),
			Expired:       IsExpired(m.Expiry, now),
		}
		if m.CardBrand != nil && m.LastFour != nil {
			view.Label = CardLabel(*m.CardBrand, *m.LastFour)
		} else if m.PaypalEmail != nil {
			view.Label = *m.PaypalEmail
		}
		views = append(views, view)
	}
	return views, nil
}

// AddPaymentMethod stores a new card instrument from the console's update
// credit card flow. The expiry arrives as the "MM/YYYY" string the form
// collects; an expired card is refused outright.
func (s *Service) AddPaymentMethod(ctx context.Context, accountID uuid.UUID, req domain.AddPaymentMethodRequest) (*PaymentMethodView, error) {
	if strings.TrimSpace(req.GatewayToken) == "" {
		return nil, &ValidationError{Reason: "gateway_token is required"}
	}
	if strings.TrimSpace(req.LastFour) == "" {
		return nil, &ValidationError{Reason: "last_four is required"}
	}
	expiry, err := ParseExpiry(req.Expiry)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if IsExpired(expiry, now) {
		return nil, ErrMethodExpired
	}

	brand := strings.TrimSpace(req.CardBrand)
	lastFour := strings.TrimSpace(req.LastFour)
	token := strings.TrimSpace(req.GatewayToken)
	method := &domain.PaymentMethod{
		ID:           uuid.New(),
		AccountID:    accountID,
		Rail:         domain.RailCreditCard,
		CardBrand:    &brand,
		LastFour:     &lastFour,
		Expiry:       expiry,
		GatewayToken: token,
		IsDefault:    req.MakeDefault,
		CreatedAt:    now,
	}
	if err := s.repo.CreatePaymentMethod(ctx, method); err != nil {
		return nil, fmt.Errorf("failed to store payment method: %w", err)
	}
	log.Printf("level=info component=billing_service msg=\"payment method stored\" account_id=%s method_id=%s default=%t", accountID, method.ID, method.IsDefault)

	return &PaymentMethodView{
		PaymentMethod: *method,
		Label:         CardLabel(brand, lastFour),
		ExpiryLabel:   ExpiryLabel(expiry, now),
	}, nil
}

// ClientToken fetches the gateway tokenization key for the console.
func (s *Service) ClientToken(ctx context.Context) (string, error) {
	return s.tokenSource.ClientTokenValue(ctx)
}

// RailHealth initializes every rail and reports the inline error message for
// each one that failed, keyed by rail name. Healthy rails are absent from the
// map. A failed rail degrades alone; the others stay usable.
func (s *Service) RailHealth(ctx context.Context) map[string]string {
	failures := make(map[string]string)
	for name, rail := range s.rails {
		if rail == nil {
			failures[name] = railInitMessage(name)
			continue
		}
		if err := rail.Init(ctx); err != nil {
			var initErr *RailInitError
			if errors.As(err, &initErr) {
				failures[name] = initErr.Message
			} else {
				failures[name] = railInitMessage(name)
			}
			log.Printf("level=warn component=billing_service msg=\"rail init failed\" rail=%s err=%v", name, err)
		}
	}
	return failures
}

// OpenDrawer creates a drawer session for an account: the amount is pre-filled
// with the minimum payment and the default method is selected, falling back to
// the first stored method when no default flag is present.
func (s *Service) OpenDrawer(ctx context.Context, accountID uuid.UUID) (DrawerView, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return DrawerView{}, fmt.Errorf("failed to find account: %w", err)
	}
	methods, err := s.repo.ListPaymentMethods(ctx, accountID)
	if err != nil {
		return DrawerView{}, fmt.Errorf("failed to list payment methods: %w", err)
	}

	session := newDrawerSession(account, methods, s.bounds, s.now())
	s.sessions.put(session)
	log.Printf("level=info component=billing_service msg=\"drawer opened\" session_id=%s account_id=%s minimum=%s", session.ID, accountID, session.View().Minimum)
	return session.View(), nil
}

// session looks up an open drawer session scoped to its account.
func (s *Service) session(sessionID, accountID uuid.UUID) (*DrawerSession, error) {
	session, ok := s.sessions.get(sessionID)
	if !ok || session.AccountID != accountID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// SetAmount updates the entered amount on a session.
func (s *Service) SetAmount(ctx context.Context, sessionID, accountID uuid.UUID, usd string) (DrawerView, error) {
	session, err := s.session(sessionID, accountID)
	if err != nil {
		return DrawerView{}, err
	}
	amount, err := ParseUSD(usd)
	if err != nil {
		return DrawerView{}, err
	}
	if err := session.SetAmount(amount); err != nil {
		return DrawerView{}, err
	}
	return session.View(), nil
}

// SelectMethod switches the session's active payment method.
func (s *Service) SelectMethod(ctx context.Context, sessionID, accountID, methodID uuid.UUID) (DrawerView, error) {
	session, err := s.session(sessionID, accountID)
	if err != nil {
		return DrawerView{}, err
	}
	method := session.methodByID(methodID)
	if method == nil {
		// The method may have been stored after the drawer opened.
		stored, repoErr := s.repo.FindPaymentMethodByID(ctx, methodID, accountID)
		if repoErr != nil {
			return DrawerView{}, store.ErrPaymentMethodNotFound
		}
		method = stored
	}
	if err := session.SelectMethod(method, s.now()); err != nil {
		return DrawerView{}, err
	}
	return session.View(), nil
}

// CancelDrawer is a user abort before any charge attempt: silent, no error.
func (s *Service) CancelDrawer(ctx context.Context, sessionID, accountID uuid.UUID) (DrawerView, error) {
	session, err := s.session(sessionID, accountID)
	if err != nil {
		return DrawerView{}, err
	}
	session.finishCancel()
	return session.View(), nil
}

// CloseDrawer discards a session entirely.
func (s *Service) CloseDrawer(ctx context.Context, sessionID, accountID uuid.UUID) error {
	session, err := s.session(sessionID, accountID)
	if err != nil {
		return err
	}
	if err := session.close(); err != nil {
		return err
	}
	s.sessions.remove(sessionID)
	return nil
}

// AcknowledgeWarnings dismisses surfaced warnings and closes the session.
func (s *Service) AcknowledgeWarnings(ctx context.Context, sessionID, accountID uuid.UUID) error {
	session, err := s.session(sessionID, accountID)
	if err != nil {
		return err
	}
	if err := session.acknowledge(); err != nil {
		return err
	}
	s.sessions.remove(sessionID)
	return nil
}

// SubmitCreditCard runs the credit-card rail: the console's confirmation
// dialog maps to this request, so confirm and submit happen in one call. A
// failed submit leaves the session in amount-entry with nothing lost, so the
// dialog can be retried.
func (s *Service) SubmitCreditCard(ctx context.Context, sessionID, accountID uuid.UUID, cvv string) (*domain.PaymentResult, error) {
	session, err := s.session(sessionID, accountID)
	if err != nil {
		return nil, err
	}

	methodID, expired := session.selected()
	if methodID == uuid.Nil {
		return nil, store.ErrPaymentMethodNotFound
	}
	if expired {
		return nil, ErrMethodExpired
	}
	method := session.methodByID(methodID)
	if method == nil || method.Rail != domain.RailCreditCard {
		return nil, store.ErrPaymentMethodNotFound
	}

	return s.submit(ctx, session, domain.RailCreditCard, RailRequest{
		Method: method,
		CVV:    cvv,
	}, false)
}

// SubmitGooglePay runs the Google Pay rail with the wallet nonce produced by
// the console's payment sheet.
func (s *Service) SubmitGooglePay(ctx context.Context, sessionID, accountID uuid.UUID, nonce string) (*domain.PaymentResult, error) {
	session, err := s.session(sessionID, accountID)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, session, domain.RailGooglePay, RailRequest{
		Nonce: nonce,
	}, true)
}

// StagePaypal runs the first phase of the PayPal rail: create the order that
// PayPal's hosted approval flow will present. No charge happens here, but the
// stage is refused while another payment is in flight and the amount is
// validated with the same bounds as every rail.
func (s *Service) StagePaypal(ctx context.Context, sessionID, accountID uuid.UUID) (*domain.StagePaypalResponse, error) {
	session, err := s.session(sessionID, accountID)
	if err != nil {
		return nil, err
	}
	if s.paypal == nil {
		return nil, &RailInitError{Rail: domain.RailPayPal, Message: railInitMessage(domain.RailPayPal)}
	}
	if err := s.paypal.Init(ctx); err != nil {
		return nil, err
	}

	session.mu.Lock()
	if session.processing {
		session.mu.Unlock()
		return nil, ErrPaymentInFlight
	}
	usd := session.usd
	session.mu.Unlock()

	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if err := s.bounds.CheckAmount(usd, account.Balance, true); err != nil {
		return nil, err
	}

	order, err := s.paypal.Stage(ctx, usd)
	if err != nil {
		return nil, err
	}

	// Record the staged attempt so the execute phase settles an existing row.
	ref := order.PaymentID
	payment := &domain.Payment{
		ID:           uuid.New(),
		AccountID:    accountID,
		SessionID:    session.ID,
		Rail:         domain.RailPayPal,
		Status:       domain.PaymentStatusPending,
		USD:          usd,
		ProcessorRef: &ref,
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to record staged payment: %w", err)
	}

	return &domain.StagePaypalResponse{
		PaymentID:     order.PaymentID,
		CheckoutToken: order.CheckoutToken,
	}, nil
}

// ExecutePaypal runs the second phase of the PayPal rail after the user
// approved the order on PayPal's site.
func (s *Service) ExecutePaypal(ctx context.Context, sessionID, accountID uuid.UUID, payerID, paymentID string) (*domain.PaymentResult, error) {
	session, err := s.session(sessionID, accountID)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, session, domain.RailPayPal, RailRequest{
		PayerID:   payerID,
		PaymentID: paymentID,
	}, true)
}

// submit is the shared completion path for every rail: enforce the attempt
// budget and the single-flight gate, validate bounds, record the ledger
// attempt, invoke the rail, and settle or surface the outcome. Exactly one of
// success/error/cancel is reflected on the session.
func (s *Service) submit(ctx context.Context, session *DrawerSession, railName string, req RailRequest, walletRail bool) (*domain.PaymentResult, error) {
	rail := s.rails[railName]
	if rail == nil {
		return nil, &RailInitError{Rail: railName, Message: railInitMessage(railName)}
	}

	if s.rateLimiter != nil && s.ratePerMinute > 0 {
		count, _, limitErr := s.rateLimiter.ConsumeRateLimit(ctx, "payment_submit", session.AccountID.String(), s.ratePerMinute, time.Minute)
		if limitErr != nil {
			log.Printf("level=warn component=billing_service msg=\"rate limiter unavailable; allowing submission\" err=%v", limitErr)
		} else if count > s.ratePerMinute {
			return nil, ErrRateLimited
		}
	}

	account, err := s.repo.FindAccountByID(ctx, session.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	usd := session.amount()
	if err := s.bounds.CheckAmount(usd, account.Balance, walletRail); err != nil {
		return nil, err
	}

	if err := session.beginSubmit(); err != nil {
		return nil, err
	}

	req.Account = account
	req.USD = usd

	// Two-phase rails already staged a pending row keyed by the processor
	// reference; settle that row rather than inserting a second one.
	var payment *domain.Payment
	if req.PaymentID != "" {
		staged, findErr := s.repo.FindPaymentByProcessorRef(ctx, session.AccountID, req.PaymentID)
		if findErr == nil && staged.Status == domain.PaymentStatusPending {
			payment = staged
		} else if findErr != nil && !errors.Is(findErr, store.ErrPaymentNotFound) {
			session.finishError("Unable to make a payment at this time.")
			return nil, fmt.Errorf("failed to look up staged payment: %w", findErr)
		}
	}
	if payment == nil {
		payment = &domain.Payment{
			ID:        uuid.New(),
			AccountID: session.AccountID,
			SessionID: session.ID,
			Rail:      railName,
			Status:    domain.PaymentStatusPending,
			USD:       usd,
		}
		if req.Method != nil {
			id := req.Method.ID
			payment.PaymentMethodID = &id
		}
		if req.PaymentID != "" {
			ref := req.PaymentID
			payment.ProcessorRef = &ref
		}
		if err := s.repo.CreatePayment(ctx, payment); err != nil {
			session.finishError("Unable to make a payment at this time.")
			return nil, fmt.Errorf("failed to record payment attempt: %w", err)
		}
	}

	result, err := rail.Submit(ctx, req)
	if err != nil {
		return nil, s.settleFailure(ctx, session, payment, railName, err)
	}

	return s.settleSuccess(ctx, session, account, payment, railName, result), nil
}

// settleFailure maps a rail error onto the session and the ledger. Cancels are
// silent; everything else surfaces its taxonomy message inline.
func (s *Service) settleFailure(ctx context.Context, session *DrawerSession, payment *domain.Payment, railName string, err error) error {
	if errors.Is(err, ErrPaymentCanceled) {
		if updateErr := s.repo.UpdatePaymentStatus(ctx, payment.ID, "", domain.PaymentStatusCanceled); updateErr != nil {
			log.Printf("level=warn component=billing_service msg=\"failed to mark payment canceled\" payment_id=%s err=%v", payment.ID, updateErr)
		}
		session.finishCancel()
		return ErrPaymentCanceled
	}

	reason := "Unable to make a payment at this time."
	var initErr *RailInitError
	var procErr *ProcessorError
	switch {
	case errors.As(err, &initErr):
		reason = initErr.Message
	case errors.As(err, &procErr):
		reason = procErr.Error()
	}

	if updateErr := s.repo.MarkPaymentFailed(ctx, payment.ID, reason); updateErr != nil {
		log.Printf("level=warn component=billing_service msg=\"failed to mark payment failed\" payment_id=%s err=%v", payment.ID, updateErr)
	}
	log.Printf("level=warn component=billing_service msg=\"payment rejected\" rail=%s payment_id=%s reason=%q", railName, payment.ID, reason)
	session.finishError(reason)
	return err
}

// settleSuccess completes the ledger record, optimistically refreshes the
// balance, publishes the payment event, and reflects the outcome on the
// session. Warnings keep the drawer open until acknowledged.
func (s *Service) settleSuccess(ctx context.Context, session *DrawerSession, account *domain.Account, payment *domain.Payment, railName string, result *RailResult) *domain.PaymentResult {
	warningText := joinWarnings(result.Warnings)
	if err := s.repo.MarkPaymentCompleted(ctx, payment.ID, result.ProcessorRef, warningText); err != nil {
		log.Printf("level=warn component=billing_service msg=\"failed to mark payment completed\" payment_id=%s err=%v", payment.ID, err)
	}

	newBalance := account.Balance.Sub(result.USD)
	if err := s.repo.UpdateAccountBalance(ctx, account.ID, newBalance); err != nil {
		log.Printf("level=warn component=billing_service msg=\"failed to refresh balance\" account_id=%s err=%v", account.ID, err)
	} else {
		session.RecalculateMinimum(newBalance, s.bounds)
	}

	if s.eventProducer != nil {
		event := rabbitmq.PaymentEvent{
			AccountID:    account.ID,
			PaymentID:    payment.ID,
			Rail:         railName,
			USD:          result.USD.StringFixed(2),
			WarningCount: len(result.Warnings),
			Timestamp:    s.now().UTC(),
		}
		if err := s.eventProducer.PublishPaymentEvent(ctx, event); err != nil {
			log.Printf("level=warn component=billing_service msg=\"payment event publish failed\" payment_id=%s err=%v", payment.ID, err)
		}
	}

	session.finishSuccess(result.Warnings, paymentSuccessMessage)
	if len(result.Warnings) == 0 {
		s.sessions.remove(session.ID)
	}

	log.Printf("level=info component=billing_service msg=\"payment settled\" rail=%s payment_id=%s amount=%s warnings=%d", railName, payment.ID, result.USD.StringFixed(2), len(result.Warnings))
	return &domain.PaymentResult{
		USD:      result.USD.StringFixed(2),
		Warnings: result.Warnings,
		Message:  paymentSuccessMessage,
	}
}

// DrawerView returns the current snapshot of a session.
func (s *Service) DrawerView(ctx context.Context, sessionID, accountID uuid.UUID) (DrawerView, error) {
	session, err := s.session(sessionID, accountID)
	if err != nil {
		return DrawerView{}, err
	}
	return session.View(), nil
}

// ListPayments returns the account's payment ledger.
func (s *Service) ListPayments(ctx context.Context, accountID uuid.UUID, opts domain.PaymentListOptions) ([]domain.Payment, error) {
	return s.repo.ListPayments(ctx, accountID, opts)
}

// joinWarnings flattens processor warnings into the single ledger text column.
func joinWarnings(warnings []domain.Warning) *string {
	if len(warnings) == 0 {
		return nil
	}
	parts := make([]string, 0, len(warnings))
	for _, w := range warnings {
		if w.Detail != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", w.Title, w.Detail))
			continue
		}
		parts = append(parts, w.Title)
	}
	joined := strings.Join(parts, "; ")
	return &joined
}
