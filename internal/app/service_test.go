package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/linode/manager-sub003/internal/domain"
	"github.com/linode/manager-sub003/internal/store"
	"github.com/linode/manager-sub003/pkg/paypalclient"
	"github.com/linode/manager-sub003/pkg/rabbitmq"
)

type billingRepoStub struct {
	store.Repository

	account *domain.Account
	methods []domain.PaymentMethod

	createdPayments  []*domain.Payment
	storedMethod     *domain.PaymentMethod
	failedReason     string
	completedCalled  bool
	canceledCalled   bool
	updatedBalance   *decimal.Decimal
	balanceUpdateErr error
}

func (s *billingRepoStub) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	if s.account == nil || s.account.ID != accountID {
		return nil, store.ErrAccountNotFound
	}
	return s.account, nil
}

func (s *billingRepoStub) ListPaymentMethods(ctx context.Context, accountID uuid.UUID) ([]domain.PaymentMethod, error) {
	return s.methods, nil
}

func (s *billingRepoStub) FindPaymentMethodByID(ctx context.Context, methodID uuid.UUID, accountID uuid.UUID) (*domain.PaymentMethod, error) {
	for i := range s.methods {
		if s.methods[i].ID == methodID {
			return &s.methods[i], nil
		}
	}
	return nil, store.ErrPaymentMethodNotFound
}

func (s *billingRepoStub) CreatePaymentMethod(ctx context.Context, method *domain.PaymentMethod) error {
	s.storedMethod = method
	return nil
}

func (s *billingRepoStub) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	s.createdPayments = append(s.createdPayments, payment)
	return nil
}

func (s *billingRepoStub) FindPaymentByProcessorRef(ctx context.Context, accountID uuid.UUID, processorRef string) (*domain.Payment, error) {
	for i := len(s.createdPayments) - 1; i >= 0; i-- {
		p := s.createdPayments[i]
		if p.AccountID == accountID && p.ProcessorRef != nil && *p.ProcessorRef == processorRef {
			return p, nil
		}
	}
	return nil, store.ErrPaymentNotFound
}

func (s *billingRepoStub) UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, processorRef, status string) error {
	if status == domain.PaymentStatusCanceled {
		s.canceledCalled = true
	}
	return nil
}

func (s *billingRepoStub) MarkPaymentFailed(ctx context.Context, paymentID uuid.UUID, failureReason string) error {
	s.failedReason = failureReason
	return nil
}

func (s *billingRepoStub) MarkPaymentCompleted(ctx context.Context, paymentID uuid.UUID, processorRef string, warningText *string) error {
	s.completedCalled = true
	return nil
}

func (s *billingRepoStub) UpdateAccountBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) error {
	if s.balanceUpdateErr != nil {
		return s.balanceUpdateErr
	}
	s.updatedBalance = &balance
	return nil
}

type railStub struct {
	name        string
	initErr     error
	submitCalls int
	submitFn    func(ctx context.Context, req RailRequest) (*RailResult, error)
}

func (r *railStub) Name() string { return r.name }

func (r *railStub) Init(ctx context.Context) error { return r.initErr }

func (r *railStub) Submit(ctx context.Context, req RailRequest) (*RailResult, error) {
	r.submitCalls++
	return r.submitFn(ctx, req)
}

type publisherStub struct {
	events []rabbitmq.PaymentEvent
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}

func (p *publisherStub) PublishPaymentEvent(ctx context.Context, event rabbitmq.PaymentEvent) error {
	p.events = append(p.events, event)
	return nil
}

func (p *publisherStub) Close() {}

type tokenSourceStub struct {
	token string
	err   error
}

func (t *tokenSourceStub) ClientTokenValue(ctx context.Context) (string, error) {
	return t.token, t.err
}

type limiterStub struct {
	count int
	err   error
}

func (l *limiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return l.count, 0, l.err
}

func acceptingRail(name string) *railStub {
	return &railStub{
		name: name,
		submitFn: func(ctx context.Context, req RailRequest) (*RailResult, error) {
			return &RailResult{USD: req.USD, ProcessorRef: "txn_ok"}, nil
		},
	}
}

func newTestService(repo *billingRepoStub, card, googlePay *railStub, publisher *publisherStub, limiter PaymentRateLimiter) *Service {
	return NewService(repo, card, nil, googlePay, &tokenSourceStub{token: "tok"}, publisher, limiter, 10, DefaultPaymentBounds())
}

func openedSession(t *testing.T, svc *Service, accountID uuid.UUID) uuid.UUID {
	t.Helper()
	view, err := svc.OpenDrawer(context.Background(), accountID)
	if err != nil {
		t.Fatalf("expected drawer to open, got %v", err)
	}
	return view.SessionID
}

func TestOpenDrawerPrefillsMinimum(t *testing.T) {
	account := testAccount("3.50")
	repo := &billingRepoStub{account: account}
	svc := newTestService(repo, acceptingRail(domain.RailCreditCard), acceptingRail(domain.RailGooglePay), &publisherStub{}, nil)

	view, err := svc.OpenDrawer(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("expected drawer to open, got %v", err)
	}
	if view.USD != "3.50" || view.Minimum != "3.50" {
		t.Fatalf("expected prefilled minimum 3.50, got usd=%s minimum=%s", view.USD, view.Minimum)
	}
}

func TestSubmitCreditCardSettlesAndClosesSession(t *testing.T) {
	account := testAccount("100.00")
	method := testCardMethod(account.ID, &domain.CardExpiry{Month: 12, Year: 2030})
	repo := &billingRepoStub{account: account, methods: []domain.PaymentMethod{method}}
	card := acceptingRail(domain.RailCreditCard)
	publisher := &publisherStub{}
	svc := newTestService(repo, card, acceptingRail(domain.RailGooglePay), publisher, nil)

	sessionID := openedSession(t, svc, account.ID)
	if _, err := svc.SetAmount(context.Background(), sessionID, account.ID, "25.00"); err != nil {
		t.Fatalf("expected amount set, got %v", err)
	}

	result, err := svc.SubmitCreditCard(context.Background(), sessionID, account.ID, "123")
	if err != nil {
		t.Fatalf("expected settled payment, got %v", err)
	}
	if result.USD != "25.00" {
		t.Fatalf("expected settled amount 25.00, got %s", result.USD)
	}
	if result.Message != "Payment successfully submitted." {
		t.Fatalf("unexpected success message %q", result.Message)
	}
	if !repo.completedCalled {
		t.Fatal("expected ledger row marked completed")
	}
	if repo.updatedBalance == nil || repo.updatedBalance.StringFixed(2) != "75.00" {
		t.Fatalf("expected balance refreshed to 75.00, got %v", repo.updatedBalance)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 payment event, got %d", len(publisher.events))
	}
	if publisher.events[0].USD != "25.00" || publisher.events[0].Rail != domain.RailCreditCard {
		t.Fatalf("unexpected event payload %+v", publisher.events[0])
	}

	// Without warnings the session is gone after settlement.
	if _, err := svc.DrawerView(context.Background(), sessionID, account.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session removed, got %v", err)
	}
}

func TestSubmitRejectsSecondAttemptWhileInFlight(t *testing.T) {
	account := testAccount("100.00")
	method := testCardMethod(account.ID, &domain.CardExpiry{Month: 12, Year: 2030})
	repo := &billingRepoStub{account: account, methods: []domain.PaymentMethod{method}}

	var svc *Service
	var sessionID uuid.UUID
	var inFlightErr error
	card := &railStub{name: domain.RailCreditCard}
	card.submitFn = func(ctx context.Context, req RailRequest) (*RailResult, error) {
		// Re-enter while the first charge is outstanding.
		_, inFlightErr = svc.SubmitCreditCard(ctx, sessionID, account.ID, "123")
		return &RailResult{USD: req.USD, ProcessorRef: "txn_ok"}, nil
	}
	svc = newTestService(repo, card, acceptingRail(domain.RailGooglePay), &publisherStub{}, nil)
	sessionID = openedSession(t, svc, account.ID)

	if _, err := svc.SubmitCreditCard(context.Background(), sessionID, account.ID, "123"); err != nil {
		t.Fatalf("expected first submission to settle, got %v", err)
	}
	if !errors.Is(inFlightErr, ErrPaymentInFlight) {
		t.Fatalf("expected ErrPaymentInFlight for re-entrant submit, got %v", inFlightErr)
	}
	if card.submitCalls != 1 {
		t.Fatalf("expected exactly one charge, got %d", card.submitCalls)
	}
}

func TestSubmitCreditCardRejectsExpiredMethod(t *testing.T) {
	account := testAccount("100.00")
	method := testCardMethod(account.ID, &domain.CardExpiry{Month: 1, Year: 2020})
	repo := &billingRepoStub{account: account, methods: []domain.PaymentMethod{method}}
	card := acceptingRail(domain.RailCreditCard)
	svc := newTestService(repo, card, acceptingRail(domain.RailGooglePay), &publisherStub{}, nil)

	sessionID := openedSession(t, svc, account.ID)
	if _, err := svc.SubmitCreditCard(context.Background(), sessionID, account.ID, "123"); !errors.Is(err, ErrMethodExpired) {
		t.Fatalf("expected ErrMethodExpired, got %v", err)
	}
	if card.submitCalls != 0 {
		t.Fatalf("expected no charge attempt, got %d", card.submitCalls)
	}
	if len(repo.createdPayments) != 0 {
		t.Fatalf("expected no ledger row, got %d", len(repo.createdPayments))
	}
}

func TestSubmitRejectsAmountBelowMinimum(t *testing.T) {
	account := testAccount("100.00")
	method := testCardMethod(account.ID, &domain.CardExpiry{Month: 12, Year: 2030})
	repo := &billingRepoStub{account: account, methods: []domain.PaymentMethod{method}}
	card := acceptingRail(domain.RailCreditCard)
	svc := newTestService(repo, card, acceptingRail(domain.RailGooglePay), &publisherStub{}, nil)

	sessionID := openedSession(t, svc, account.ID)
	if _, err := svc.SetAmount(context.Background(), sessionID, account.ID, "1.00"); err != nil {
		t.Fatalf("expected amount edit to be accepted, got %v", err)
	}

	if _, err := svc.SubmitCreditCard(context.Background(), sessionID, account.ID, "123"); !errors.Is(err, ErrAmountBelowMinimum) {
		t.Fatalf("expected ErrAmountBelowMinimum, got %v", err)
	}
	if card.submitCalls != 0 {
		t.Fatalf("expected no charge attempt, got %d", card.submitCalls)
	}
}

func TestSubmitSurfacesProcessorDecline(t *testing.T) {
	account := testAccount("100.00")
	method := testCardMethod(account.ID, &domain.CardExpiry{Month: 12, Year: 2030})
	repo := &billingRepoStub{account: account, methods: []domain.PaymentMethod{method}}
	card := &railStub{
		name: domain.RailCreditCard,
		submitFn: func(ctx context.Context, req RailRequest) (*RailResult, error) {
			return nil, &ProcessorError{Reason: "Insufficient funds."}
		},
	}
	svc := newTestService(repo, card, acceptingRail(domain.RailGooglePay), &publisherStub{}, nil)

	sessionID := openedSession(t, svc, account.ID)
	_, err := svc.SubmitCreditCard(context.Background(), sessionID, account.ID, "123")
	var procErr *ProcessorError
	if !errors.As(err, &procErr) || procErr.Reason != "Insufficient funds." {
		t.Fatalf("expected processor decline, got %v", err)
	}
	if repo.failedReason != "Insufficient funds." {
		t.Fatalf("expected ledger failure reason recorded, got %q", repo.failedReason)
	}

	// The session survives the failure with the reason surfaced inline.
	view, viewErr := svc.DrawerView(context.Background(), sessionID, account.ID)
	if viewErr != nil {
		t.Fatalf("expected session to survive, got %v", viewErr)
	}
	if view.State != DrawerAmountEntry || view.Error != "Insufficient funds." {
		t.Fatalf("expected retryable amount-entry state, got state=%s error=%q", view.State, view.Error)
	}
}

func TestSubmitGooglePayCancelIsSilent(t *testing.T) {
	account := testAccount("100.00")
	repo := &billingRepoStub{account: account}
	googlePay := &railStub{
		name: domain.RailGooglePay,
		submitFn: func(ctx context.Context, req RailRequest) (*RailResult, error) {
			return nil, ErrPaymentCanceled
		},
	}
	svc := newTestService(repo, acceptingRail(domain.RailCreditCard), googlePay, &publisherStub{}, nil)

	sessionID := openedSession(t, svc, account.ID)
	if _, err := svc.SubmitGooglePay(context.Background(), sessionID, account.ID, ""); !errors.Is(err, ErrPaymentCanceled) {
		t.Fatalf("expected ErrPaymentCanceled, got %v", err)
	}
	if !repo.canceledCalled {
		t.Fatal("expected ledger row marked canceled")
	}

	view, err := svc.DrawerView(context.Background(), sessionID, account.ID)
	if err != nil {
		t.Fatalf("expected session to survive a cancel, got %v", err)
	}
	if view.Error != "" {
		t.Fatalf("expected no error after cancel, got %q", view.Error)
	}
	if view.Message != "Payment Cancelled" {
		t.Fatalf("expected cancel message, got %q", view.Message)
	}
}

func TestSubmitWithWarningsKeepsSessionUntilAcknowledged(t *testing.T) {
	account := testAccount("100.00")
	method := testCardMethod(account.ID, &domain.CardExpiry{Month: 12, Year: 2030})
	repo := &billingRepoStub{account: account, methods: []domain.PaymentMethod{method}}
	card := &railStub{
		name: domain.RailCreditCard,
		submitFn: func(ctx context.Context, req RailRequest) (*RailResult, error) {
			return &RailResult{
				USD:          req.USD,
				ProcessorRef: "txn_ok",
				Warnings:     []domain.Warning{{Title: "Partial hold", Detail: "Funds held pending review"}},
			}, nil
		},
	}
	svc := newTestService(repo, card, acceptingRail(domain.RailGooglePay), &publisherStub{}, nil)

	sessionID := openedSession(t, svc, account.ID)
	result, err := svc.SubmitCreditCard(context.Background(), sessionID, account.ID, "123")
	if err != nil {
		t.Fatalf("expected settled payment, got %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(result.Warnings))
	}

	view, err := svc.DrawerView(context.Background(), sessionID, account.ID)
	if err != nil {
		t.Fatalf("expected session to stay open with warnings, got %v", err)
	}
	if view.State != DrawerSuccess {
		t.Fatalf("expected success state, got %s", view.State)
	}

	if err := svc.AcknowledgeWarnings(context.Background(), sessionID, account.ID); err != nil {
		t.Fatalf("expected acknowledge to succeed, got %v", err)
	}
	if _, err := svc.DrawerView(context.Background(), sessionID, account.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session removed after acknowledge, got %v", err)
	}
}

func TestSubmitEnforcesRateLimit(t *testing.T) {
	account := testAccount("100.00")
	method := testCardMethod(account.ID, &domain.CardExpiry{Month: 12, Year: 2030})
	repo := &billingRepoStub{account: account, methods: []domain.PaymentMethod{method}}
	card := acceptingRail(domain.RailCreditCard)
	svc := newTestService(repo, card, acceptingRail(domain.RailGooglePay), &publisherStub{}, &limiterStub{count: 11})

	sessionID := openedSession(t, svc, account.ID)
	if _, err := svc.SubmitCreditCard(context.Background(), sessionID, account.ID, "123"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if card.submitCalls != 0 {
		t.Fatalf("expected no charge attempt, got %d", card.submitCalls)
	}
}

func TestSubmitAllowsWhenRateLimiterUnavailable(t *testing.T) {
	account := testAccount("100.00")
	method := testCardMethod(account.ID, &domain.CardExpiry{Month: 12, Year: 2030})
	repo := &billingRepoStub{account: account, methods: []domain.PaymentMethod{method}}
	card := acceptingRail(domain.RailCreditCard)
	svc := newTestService(repo, card, acceptingRail(domain.RailGooglePay), &publisherStub{}, &limiterStub{err: errors.New("redis down")})

	sessionID := openedSession(t, svc, account.ID)
	if _, err := svc.SubmitCreditCard(context.Background(), sessionID, account.ID, "123"); err != nil {
		t.Fatalf("expected submission to proceed without limiter, got %v", err)
	}
}

func TestStagePaypalWithoutRailReportsInitError(t *testing.T) {
	account := testAccount("100.00")
	repo := &billingRepoStub{account: account}
	svc := newTestService(repo, acceptingRail(domain.RailCreditCard), acceptingRail(domain.RailGooglePay), &publisherStub{}, nil)

	sessionID := openedSession(t, svc, account.ID)
	_, err := svc.StagePaypal(context.Background(), sessionID, account.ID)
	var initErr *RailInitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected RailInitError, got %v", err)
	}
	if initErr.Message != "Error loading PayPal." {
		t.Fatalf("expected PayPal init message, got %q", initErr.Message)
	}
}

func TestPaypalStageThenExecuteSettlesOneLedgerRow(t *testing.T) {
	account := testAccount("100.00")
	repo := &billingRepoStub{account: account}
	paypal, server := paypalRailForServer(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/capture") {
			json.NewEncoder(w).Encode(paypalclient.CaptureResult{Status: "completed"})
			return
		}
		json.NewEncoder(w).Encode(paypalclient.StagedOrder{PaymentID: "PAY-1", CheckoutToken: "EC-TOKEN"})
	})
	defer server.Close()
	svc := NewService(repo, acceptingRail(domain.RailCreditCard), paypal, acceptingRail(domain.RailGooglePay), &tokenSourceStub{token: "tok"}, &publisherStub{}, nil, 10, DefaultPaymentBounds())

	sessionID := openedSession(t, svc, account.ID)
	staged, err := svc.StagePaypal(context.Background(), sessionID, account.ID)
	if err != nil {
		t.Fatalf("expected stage to succeed, got %v", err)
	}

	result, err := svc.ExecutePaypal(context.Background(), sessionID, account.ID, "PAYER-1", staged.PaymentID)
	if err != nil {
		t.Fatalf("expected capture to settle, got %v", err)
	}
	if result.USD != "5.00" {
		t.Fatalf("expected settled amount 5.00, got %s", result.USD)
	}

	// The staged row is the one that settles; the execute phase must not
	// insert a second row for the same order.
	if len(repo.createdPayments) != 1 {
		t.Fatalf("expected exactly one ledger row, got %d", len(repo.createdPayments))
	}
	row := repo.createdPayments[0]
	if row.ProcessorRef == nil || *row.ProcessorRef != "PAY-1" {
		t.Fatalf("expected ledger row keyed to PAY-1, got %v", row.ProcessorRef)
	}
	if !repo.completedCalled {
		t.Fatal("expected staged row marked completed")
	}
}

func TestAddPaymentMethodStoresParsedExpiry(t *testing.T) {
	account := testAccount("100.00")
	repo := &billingRepoStub{account: account}
	svc := newTestService(repo, acceptingRail(domain.RailCreditCard), acceptingRail(domain.RailGooglePay), &publisherStub{}, nil)

	view, err := svc.AddPaymentMethod(context.Background(), account.ID, domain.AddPaymentMethodRequest{
		GatewayToken: "tok_visa",
		CardBrand:    "Visa",
		LastFour:     "4242",
		Expiry:       "06/2031",
		MakeDefault:  true,
	})
	if err != nil {
		t.Fatalf("expected method stored, got %v", err)
	}
	if repo.storedMethod == nil {
		t.Fatal("expected method persisted")
	}
	if repo.storedMethod.Expiry == nil || repo.storedMethod.Expiry.Month != 6 || repo.storedMethod.Expiry.Year != 2031 {
		t.Fatalf("expected expiry 06/2031, got %+v", repo.storedMethod.Expiry)
	}
	if !repo.storedMethod.IsDefault {
		t.Fatal("expected method flagged as default")
	}
	if view.Label != "Visa ****4242" {
		t.Fatalf("expected card label, got %q", view.Label)
	}
}

func TestAddPaymentMethodRejectsMalformedExpiry(t *testing.T) {
	account := testAccount("100.00")
	repo := &billingRepoStub{account: account}
	svc := newTestService(repo, acceptingRail(domain.RailCreditCard), acceptingRail(domain.RailGooglePay), &publisherStub{}, nil)

	_, err := svc.AddPaymentMethod(context.Background(), account.ID, domain.AddPaymentMethodRequest{
		GatewayToken: "tok_visa",
		CardBrand:    "Visa",
		LastFour:     "4242",
		Expiry:       "13/2031",
	})
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if repo.storedMethod != nil {
		t.Fatal("expected nothing persisted")
	}
}

func TestAddPaymentMethodRejectsExpiredCard(t *testing.T) {
	account := testAccount("100.00")
	repo := &billingRepoStub{account: account}
	svc := newTestService(repo, acceptingRail(domain.RailCreditCard), acceptingRail(domain.RailGooglePay), &publisherStub{}, nil)

	_, err := svc.AddPaymentMethod(context.Background(), account.ID, domain.AddPaymentMethodRequest{
		GatewayToken: "tok_visa",
		CardBrand:    "Visa",
		LastFour:     "4242",
		Expiry:       "01/2020",
	})
	if !errors.Is(err, ErrMethodExpired) {
		t.Fatalf("expected ErrMethodExpired, got %v", err)
	}
	if repo.storedMethod != nil {
		t.Fatal("expected nothing persisted")
	}
}

func TestRailHealthReportsPerRailFailures(t *testing.T) {
	account := testAccount("100.00")
	repo := &billingRepoStub{account: account}
	googlePay := &railStub{
		name:    domain.RailGooglePay,
		initErr: &RailInitError{Rail: domain.RailGooglePay, Message: "Error initializing Google Pay."},
	}
	svc := newTestService(repo, acceptingRail(domain.RailCreditCard), googlePay, &publisherStub{}, nil)

	failures := svc.RailHealth(context.Background())
	if got := failures[domain.RailGooglePay]; got != "Error initializing Google Pay." {
		t.Fatalf("expected Google Pay failure message, got %q", got)
	}
	if _, present := failures[domain.RailCreditCard]; present {
		t.Fatal("expected healthy credit card rail to be absent")
	}
}

func TestListPaymentMethodsDecoratesLabels(t *testing.T) {
	account := testAccount("100.00")
	card := testCardMethod(account.ID, &domain.CardExpiry{Month: 12, Year: 2021})
	paypalEmail := "payer@example.com"
	wallet := domain.PaymentMethod{
		ID:          uuid.New(),
		AccountID:   account.ID,
		Rail:        domain.RailPayPal,
		PaypalEmail: &paypalEmail,
	}
	repo := &billingRepoStub{account: account, methods: []domain.PaymentMethod{card, wallet}}
	svc := newTestService(repo, acceptingRail(domain.RailCreditCard), acceptingRail(domain.RailGooglePay), &publisherStub{}, nil)

	views, err := svc.ListPaymentMethods(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("expected methods listed, got %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 methods, got %d", len(views))
	}
	if views[0].Label != "Visa ****1111" {
		t.Fatalf("expected card label, got %q", views[0].Label)
	}
	if !views[0].Expired {
		t.Fatal("expected 12/2021 card to be expired")
	}
	if views[1].Label != paypalEmail {
		t.Fatalf("expected wallet label %q, got %q", paypalEmail, views[1].Label)
	}
}

func TestSelectMethodFallsBackToRepository(t *testing.T) {
	account := testAccount("100.00")
	existing := testCardMethod(account.ID, &domain.CardExpiry{Month: 12, Year: 2030})
	repo := &billingRepoStub{account: account, methods: []domain.PaymentMethod{existing}}
	svc := newTestService(repo, acceptingRail(domain.RailCreditCard), acceptingRail(domain.RailGooglePay), &publisherStub{}, nil)

	sessionID := openedSession(t, svc, account.ID)

	// A method stored after the drawer opened is still selectable.
	added := testCardMethod(account.ID, &domain.CardExpiry{Month: 6, Year: 2031})
	repo.methods = append(repo.methods, added)

	view, err := svc.SelectMethod(context.Background(), sessionID, account.ID, added.ID)
	if err != nil {
		t.Fatalf("expected selection to succeed, got %v", err)
	}
	if view.SelectedMethod != added.ID {
		t.Fatalf("expected %s selected, got %s", added.ID, view.SelectedMethod)
	}
}

func TestDrawerSessionIsScopedToAccount(t *testing.T) {
	account := testAccount("100.00")
	repo := &billingRepoStub{account: account}
	svc := newTestService(repo, acceptingRail(domain.RailCreditCard), acceptingRail(domain.RailGooglePay), &publisherStub{}, nil)

	sessionID := openedSession(t, svc, account.ID)
	if _, err := svc.DrawerView(context.Background(), sessionID, uuid.New()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for foreign account, got %v", err)
	}
}
