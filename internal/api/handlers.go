/**
 * @description
 * This file contains the HTTP handlers for the billing-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/linode/manager-sub003/internal/app"
	"github.com/linode/manager-sub003/internal/domain"
	"github.com/linode/manager-sub003/internal/store"
)

// BillingHandlers holds the application service that handlers will use.
type BillingHandlers struct {
	service *app.Service
}

// NewBillingHandlers creates a new instance of BillingHandlers.
func NewBillingHandlers(service *app.Service) *BillingHandlers {
	return &BillingHandlers{service: service}
}

// paymentResponse mirrors the structure the console expects after a settled
// charge: the amount, any processor warnings, and the success message.
type paymentResponse struct {
	Status   string           `json:"status"`
	USD      string           `json:"usd,omitempty"`
	Warnings []domain.Warning `json:"warnings,omitempty"`
	Message  string           `json:"message,omitempty"`
}

// resolveAccount maps the validated JWT subject to the internal account UUID.
func (h *BillingHandlers) resolveAccount(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	subject, ok := GetAuthSubject(r.Context())
	if !ok {
		http.Error(w, "Could not get subject from context", http.StatusInternalServerError)
		return uuid.Nil, false
	}

	internalIDStr, err := h.service.ResolveAccountID(r.Context(), subject)
	if err != nil {
		log.Printf("level=warn component=api outcome=reject reason=account_resolution_failed subject=%s err=%v", subject, err)
		http.Error(w, "Account not found", http.StatusBadRequest)
		return uuid.Nil, false
	}
	accountID, err := uuid.Parse(internalIDStr)
	if err != nil {
		log.Printf("level=warn component=api outcome=reject reason=invalid_account_id internal_account_id=%s", internalIDStr)
		http.Error(w, "Invalid account ID format", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return accountID, true
}

// sessionID parses the drawer session id from the URL.
func (h *BillingHandlers) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "sessionID")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid session ID")
		return uuid.Nil, false
	}
	return id, true
}

// GetAccountHandler returns the account's balance summary.
func (h *BillingHandlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}

	account, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=get_account outcome=failed account_id=%s err=%v", accountID, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// ListPaymentMethodsHandler returns the account's stored payment methods.
func (h *BillingHandlers) ListPaymentMethodsHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}

	methods, err := h.service.ListPaymentMethods(r.Context(), accountID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=list_payment_methods outcome=failed account_id=%s err=%v", accountID, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"payment_methods": methods})
}

// AddPaymentMethodHandler stores a card from the console's update credit card
// flow.
func (h *BillingHandlers) AddPaymentMethodHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}

	var req domain.AddPaymentMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	method, err := h.service.AddPaymentMethod(r.Context(), accountID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=add_payment_method outcome=failed account_id=%s err=%v", accountID, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, method)
}

// ClientTokenHandler returns the gateway tokenization key.
func (h *BillingHandlers) ClientTokenHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.resolveAccount(w, r); !ok {
		return
	}

	token, err := h.service.ClientToken(r.Context())
	if err != nil {
		log.Printf("level=warn component=api endpoint=client_token outcome=failed err=%v", err)
		h.writeError(w, http.StatusBadGateway, "Unable to initialize payments at this time.")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"client_token": token})
}

// ListPaymentsHandler returns the account's payment ledger.
func (h *BillingHandlers) ListPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}

	opts := domain.PaymentListOptions{
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
		Status: strings.TrimSpace(r.URL.Query().Get("status")),
	}
	payments, err := h.service.ListPayments(r.Context(), accountID, opts)
	if err != nil {
		log.Printf("level=warn component=api endpoint=list_payments outcome=failed account_id=%s err=%v", accountID, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"payments": payments})
}

// OpenDrawerHandler opens a payment drawer session. The response carries the
// pre-filled amount (the minimum payment), the bounds, the selected method,
// and the per-rail availability map.
func (h *BillingHandlers) OpenDrawerHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}

	view, err := h.service.OpenDrawer(r.Context(), accountID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=open_drawer outcome=failed account_id=%s err=%v", accountID, err)
		h.writeServiceError(w, err)
		return
	}

	railErrors := h.service.RailHealth(r.Context())
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"drawer":      view,
		"rail_errors": railErrors,
	})
}

// GetDrawerHandler returns the current snapshot of a drawer session.
func (h *BillingHandlers) GetDrawerHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	view, err := h.service.DrawerView(r.Context(), sessionID, accountID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// SetAmountHandler updates the entered amount on a session.
func (h *BillingHandlers) SetAmountHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req struct {
		USD string `json:"usd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	view, err := h.service.SetAmount(r.Context(), sessionID, accountID, req.USD)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// SelectMethodHandler switches the session's active payment method.
func (h *BillingHandlers) SelectMethodHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req struct {
		PaymentMethodID uuid.UUID `json:"payment_method_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	view, err := h.service.SelectMethod(r.Context(), sessionID, accountID, req.PaymentMethodID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// CreditCardPaymentHandler runs the credit-card rail. The console's
// confirmation dialog maps to this request.
func (h *BillingHandlers) CreditCardPaymentHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req domain.MakePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	// An amount in the body updates the session before the charge.
	if req.USD != "" {
		if _, err := h.service.SetAmount(r.Context(), sessionID, accountID, req.USD); err != nil {
			h.writeServiceError(w, err)
			return
		}
	}

	result, err := h.service.SubmitCreditCard(r.Context(), sessionID, accountID, req.CVV)
	h.writePaymentOutcome(w, "credit_card_payment", accountID, result, err)
}

// StagePaypalHandler creates the PayPal order for the hosted approval flow.
func (h *BillingHandlers) StagePaypalHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	staged, err := h.service.StagePaypal(r.Context(), sessionID, accountID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=stage_paypal outcome=failed account_id=%s err=%v", accountID, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, staged)
}

// ExecutePaypalHandler captures an approved PayPal order.
func (h *BillingHandlers) ExecutePaypalHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req domain.ExecutePaypalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	result, err := h.service.ExecutePaypal(r.Context(), sessionID, accountID, req.PayerID, req.PaymentID)
	h.writePaymentOutcome(w, "execute_paypal", accountID, result, err)
}

// GooglePayPaymentHandler runs the Google Pay rail with the sheet's nonce.
func (h *BillingHandlers) GooglePayPaymentHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req domain.MakePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	if req.USD != "" {
		if _, err := h.service.SetAmount(r.Context(), sessionID, accountID, req.USD); err != nil {
			h.writeServiceError(w, err)
			return
		}
	}

	result, err := h.service.SubmitGooglePay(r.Context(), sessionID, accountID, req.Nonce)
	h.writePaymentOutcome(w, "google_pay_payment", accountID, result, err)
}

// CancelDrawerHandler records a user abort: no error, back to amount entry.
func (h *BillingHandlers) CancelDrawerHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	view, err := h.service.CancelDrawer(r.Context(), sessionID, accountID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// AcknowledgeWarningsHandler dismisses surfaced warnings and closes the session.
func (h *BillingHandlers) AcknowledgeWarningsHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	if err := h.service.AcknowledgeWarnings(r.Context(), sessionID, accountID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// CloseDrawerHandler discards a session.
func (h *BillingHandlers) CloseDrawerHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	if err := h.service.CloseDrawer(r.Context(), sessionID, accountID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writePaymentOutcome translates a rail submission outcome into the response
// the console expects: settled payments return the result, user cancellation
// is a quiet 200, and everything else goes through the error taxonomy.
func (h *BillingHandlers) writePaymentOutcome(w http.ResponseWriter, endpoint string, accountID uuid.UUID, result *domain.PaymentResult, err error) {
	if err != nil {
		if errors.Is(err, app.ErrPaymentCanceled) {
			h.writeJSON(w, http.StatusOK, paymentResponse{Status: "canceled", Message: "Payment Cancelled"})
			return
		}
		log.Printf("level=warn component=api endpoint=%s outcome=failed account_id=%s err=%v", endpoint, accountID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=%s outcome=settled account_id=%s amount=%s warnings=%d", endpoint, accountID, result.USD, len(result.Warnings))
	h.writeJSON(w, http.StatusOK, paymentResponse{
		Status:   "completed",
		USD:      result.USD,
		Warnings: result.Warnings,
		Message:  result.Message,
	})
}

// writeServiceError maps service errors onto the HTTP error taxonomy. No raw
// transport error reaches the response body.
func (h *BillingHandlers) writeServiceError(w http.ResponseWriter, err error) {
	var initErr *app.RailInitError
	var procErr *app.ProcessorError
	var valErr *app.ValidationError

	switch {
	case errors.As(err, &valErr):
		h.writeError(w, http.StatusBadRequest, valErr.Error())
	case errors.Is(err, app.ErrSessionNotFound):
		h.writeError(w, http.StatusNotFound, "Drawer session not found")
	case errors.Is(err, app.ErrPaymentInFlight):
		h.writeError(w, http.StatusConflict, "A payment is already being processed.")
	case errors.Is(err, app.ErrAmountBelowMinimum):
		h.writeError(w, http.StatusBadRequest, "Amount is below the minimum payment.")
	case errors.Is(err, app.ErrAmountAboveMaximum):
		h.writeError(w, http.StatusBadRequest, "Amount is above the maximum payment.")
	case errors.Is(err, app.ErrMethodExpired):
		h.writeError(w, http.StatusBadRequest, "The selected card is expired.")
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "Too many payment attempts. Please wait and try again.")
	case errors.Is(err, store.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, store.ErrPaymentMethodNotFound):
		h.writeError(w, http.StatusNotFound, "Payment method not found")
	case errors.As(err, &initErr):
		h.writeError(w, http.StatusBadGateway, initErr.Message)
	case errors.As(err, &procErr):
		h.writeError(w, http.StatusPaymentRequired, procErr.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, "Unable to make a payment at this time.")
	}
}

func queryInt(r *http.Request, key string) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

// writeJSON is a helper for writing JSON responses.
func (h *BillingHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *BillingHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
