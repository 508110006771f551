package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/linode/manager-sub003/internal/app"
	"github.com/linode/manager-sub003/internal/domain"
	"github.com/linode/manager-sub003/internal/store"
)

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("expected JSON error body, got %v", err)
	}
	return body["error"]
}

func TestWriteServiceErrorTaxonomy(t *testing.T) {
	h := &BillingHandlers{}

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "unknown session",
			err:         app.ErrSessionNotFound,
			wantStatus:  http.StatusNotFound,
			wantMessage: "Drawer session not found",
		},
		{
			name:        "payment in flight",
			err:         app.ErrPaymentInFlight,
			wantStatus:  http.StatusConflict,
			wantMessage: "A payment is already being processed.",
		},
		{
			name:        "below minimum",
			err:         app.ErrAmountBelowMinimum,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Amount is below the minimum payment.",
		},
		{
			name:        "above maximum",
			err:         app.ErrAmountAboveMaximum,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Amount is above the maximum payment.",
		},
		{
			name:        "expired method",
			err:         app.ErrMethodExpired,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "The selected card is expired.",
		},
		{
			name:        "rate limited",
			err:         app.ErrRateLimited,
			wantStatus:  http.StatusTooManyRequests,
			wantMessage: "Too many payment attempts. Please wait and try again.",
		},
		{
			name:        "missing payment method",
			err:         store.ErrPaymentMethodNotFound,
			wantStatus:  http.StatusNotFound,
			wantMessage: "Payment method not found",
		},
		{
			name:        "malformed amount surfaces validation reason",
			err:         &app.ValidationError{Reason: `invalid amount "abc"`},
			wantStatus:  http.StatusBadRequest,
			wantMessage: `invalid amount "abc"`,
		},
		{
			name:        "unrecognized error stays generic",
			err:         errors.New("pg: connection reset"),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Unable to make a payment at this time.",
		},
		{
			name:        "rail init failure surfaces inline text",
			err:         &app.RailInitError{Rail: domain.RailPayPal, Message: "Error loading PayPal."},
			wantStatus:  http.StatusBadGateway,
			wantMessage: "Error loading PayPal.",
		},
		{
			name:        "processor decline surfaces first reason",
			err:         &app.ProcessorError{Reason: "Insufficient funds."},
			wantStatus:  http.StatusPaymentRequired,
			wantMessage: "Insufficient funds.",
		},
		{
			name:        "processor decline without reason uses generic text",
			err:         &app.ProcessorError{},
			wantStatus:  http.StatusPaymentRequired,
			wantMessage: "Unable to make a payment at this time.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeServiceError(rec, tt.err)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := decodeErrorBody(t, rec); got != tt.wantMessage {
				t.Fatalf("expected message %q, got %q", tt.wantMessage, got)
			}
		})
	}
}

func TestWritePaymentOutcomeCancelIsQuiet(t *testing.T) {
	h := &BillingHandlers{}
	rec := httptest.NewRecorder()

	h.writePaymentOutcome(rec, "google_pay_payment", uuid.New(), nil, app.ErrPaymentCanceled)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for a user cancel, got %d", rec.Code)
	}
	var body paymentResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("expected JSON body, got %v", err)
	}
	if body.Status != "canceled" {
		t.Fatalf("expected canceled status, got %q", body.Status)
	}
	if body.Message != "Payment Cancelled" {
		t.Fatalf("expected cancel message, got %q", body.Message)
	}
}

func TestWritePaymentOutcomeSettled(t *testing.T) {
	h := &BillingHandlers{}
	rec := httptest.NewRecorder()

	result := &domain.PaymentResult{
		USD:      "25.00",
		Warnings: []domain.Warning{{Title: "Partial hold"}},
		Message:  "Payment successfully submitted.",
	}
	h.writePaymentOutcome(rec, "credit_card_payment", uuid.New(), result, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var body paymentResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("expected JSON body, got %v", err)
	}
	if body.Status != "completed" || body.USD != "25.00" {
		t.Fatalf("unexpected settlement body %+v", body)
	}
	if len(body.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(body.Warnings))
	}
	if body.Message != "Payment successfully submitted." {
		t.Fatalf("unexpected message %q", body.Message)
	}
}
