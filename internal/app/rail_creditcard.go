/**
 * @description
 * Credit-card rail adapter. A single-phase charge: the stored instrument token
 * (plus the optional CVV the user re-entered in the confirmation dialog) is
 * submitted to the gateway as one sale.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/linode/manager-sub003/internal/domain"
	"github.com/linode/manager-sub003/pkg/gatewayclient"
)

// GatewayTokenSource issues the tokenization key the console's payment SDKs
// initialize with, backed by the gateway.
type GatewayTokenSource struct {
	gateway *gatewayclient.Client
}

// NewGatewayTokenSource creates a token source backed by the gateway.
func NewGatewayTokenSource(gateway *gatewayclient.Client) *GatewayTokenSource {
	return &GatewayTokenSource{gateway: gateway}
}

// ClientTokenValue fetches a fresh tokenization key.
func (t *GatewayTokenSource) ClientTokenValue(ctx context.Context) (string, error) {
	resp, err := t.gateway.ClientToken(ctx)
	if err != nil {
		return "", err
	}
	return resp.ClientToken, nil
}

// CreditCardRail settles charges against stored card instruments through the
// gateway.
type CreditCardRail struct {
	gateway *gatewayclient.Client
}

// NewCreditCardRail creates the credit-card rail adapter.
func NewCreditCardRail(gateway *gatewayclient.Client) *CreditCardRail {
	return &CreditCardRail{gateway: gateway}
}

func (r *CreditCardRail) Name() string {
	return domain.RailCreditCard
}

// Init verifies the gateway is reachable by fetching a client token. A failure
// degrades only this rail.
func (r *CreditCardRail) Init(ctx context.Context) error {
	if _, err := r.gateway.ClientToken(ctx); err != nil {
		return &RailInitError{Rail: r.Name(), Message: railInitMessage(r.Name()), Err: err}
	}
	return nil
}

// Submit charges the selected stored card for the requested amount.
func (r *CreditCardRail) Submit(ctx context.Context, req RailRequest) (*RailResult, error) {
	if req.Method == nil || req.Method.GatewayToken == "" {
		return nil, &ProcessorError{Reason: "No stored card is available for this payment."}
	}

	sale, err := r.gateway.Sale(ctx, gatewayclient.SaleRequest{
		Amount:             req.USD.StringFixed(2),
		PaymentMethodToken: req.Method.GatewayToken,
		CVV:                req.CVV,
	})
	if err != nil {
		return nil, translateGatewayError(r.Name(), err)
	}

	log.Printf("level=info component=credit_card_rail outcome=accepted processor_ref=%s amount=%s", sale.ID, sale.Amount)
	return &RailResult{
		USD:          req.USD,
		ProcessorRef: sale.ID,
		Warnings:     saleWarnings(sale.Warnings),
	}, nil
}

// translateGatewayError maps gateway failures into the shared error taxonomy.
// A structured rejection surfaces its first reason; transport failures get the
// generic inline message.
func translateGatewayError(rail string, err error) error {
	var gatewayErr *gatewayclient.ErrorResponse
	if errors.As(err, &gatewayErr) {
		reason := gatewayErr.FirstReason()
		if reason == "" {
			reason = "Unable to make a payment at this time."
		}
		return &ProcessorError{Reason: reason, Err: err}
	}
	return &ProcessorError{Reason: "Unable to make a payment at this time.", Err: fmt.Errorf("%s rail: %w", rail, err)}
}

func saleWarnings(in []gatewayclient.SaleWarning) []domain.Warning {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Warning, 0, len(in))
	for _, w := range in {
		out = append(out, domain.Warning{Title: w.Title, Detail: w.Detail})
	}
	return out
}
