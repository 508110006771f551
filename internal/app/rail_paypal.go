/**
 * @description
 * PayPal rail adapter. Two-phase: Stage creates an order before the user
 * approves it on PayPal's hosted page; Submit captures the approved order with
 * the payer id the approval flow returned. The hosted page replaces the local
 * confirmation dialog, so a capture reported as canceled means the user backed
 * out and no error is surfaced.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/linode/manager-sub003/internal/domain"
	"github.com/linode/manager-sub003/pkg/paypalclient"
)

// PayPalRail settles charges through PayPal's two-phase order flow.
type PayPalRail struct {
	client      *paypalclient.Client
	cancelURL   string
	redirectURL string
}

// NewPayPalRail creates the PayPal rail adapter.
func NewPayPalRail(client *paypalclient.Client, cancelURL, redirectURL string) *PayPalRail {
	return &PayPalRail{client: client, cancelURL: cancelURL, redirectURL: redirectURL}
}

func (r *PayPalRail) Name() string {
	return domain.RailPayPal
}

// Init verifies the PayPal API is configured. A failure degrades only this rail.
func (r *PayPalRail) Init(ctx context.Context) error {
	if r.client == nil || strings.TrimSpace(r.client.BaseURL) == "" || strings.TrimSpace(r.client.ClientID) == "" {
		return &RailInitError{Rail: r.Name(), Message: railInitMessage(r.Name()), Err: errors.New("paypal client not configured")}
	}
	return nil
}

// Stage creates a PayPal order for the amount. The returned identifiers are
// handed to the hosted approval flow; no charge happens yet.
func (r *PayPalRail) Stage(ctx context.Context, usd decimal.Decimal) (*paypalclient.StagedOrder, error) {
	order, err := r.client.CreateOrder(ctx, usd.StringFixed(2), r.cancelURL, r.redirectURL)
	if err != nil {
		return nil, translatePaypalError(err)
	}
	log.Printf("level=info component=paypal_rail op=stage payment_id=%s amount=%s", order.PaymentID, usd.StringFixed(2))
	return order, nil
}

// Submit captures a previously staged and user-approved order.
func (r *PayPalRail) Submit(ctx context.Context, req RailRequest) (*RailResult, error) {
	if req.PayerID == "" || req.PaymentID == "" {
		return nil, &ProcessorError{Reason: "Unable to make a payment at this time."}
	}

	capture, err := r.client.CaptureOrder(ctx, req.PayerID, req.PaymentID)
	if err != nil {
		return nil, translatePaypalError(err)
	}
	if strings.EqualFold(capture.Status, "canceled") {
		return nil, ErrPaymentCanceled
	}

	log.Printf("level=info component=paypal_rail outcome=accepted payment_id=%s amount=%s", req.PaymentID, req.USD.StringFixed(2))
	return &RailResult{
		USD:          req.USD,
		ProcessorRef: req.PaymentID,
		Warnings:     captureWarnings(capture.Warnings),
	}, nil
}

func translatePaypalError(err error) error {
	var paypalErr *paypalclient.ErrorResponse
	if errors.As(err, &paypalErr) {
		reason := paypalErr.FirstReason()
		if reason == "" {
			reason = "Unable to make a payment at this time."
		}
		return &ProcessorError{Reason: reason, Err: err}
	}
	return &ProcessorError{Reason: "Unable to make a payment at this time.", Err: fmt.Errorf("paypal rail: %w", err)}
}

func captureWarnings(in []paypalclient.CaptureWarning) []domain.Warning {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Warning, 0, len(in))
	for _, w := range in {
		out = append(out, domain.Warning{Title: w.Title, Detail: w.Detail})
	}
	return out
}
