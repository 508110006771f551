/**
 * @description
 * Google Pay rail adapter. The console's payment sheet produces a one-time
 * wallet nonce; the adapter exchanges it for a charge through the same gateway
 * the credit-card rail uses. An empty nonce means the user dismissed the sheet
 * before authorizing, which is a silent cancel.
 */

package app

import (
	"context"
	"log"

	"github.com/linode/manager-sub003/internal/domain"
	"github.com/linode/manager-sub003/pkg/gatewayclient"
)

// GooglePayRail settles wallet-tokenized charges through the gateway.
type GooglePayRail struct {
	gateway *gatewayclient.Client
}

// NewGooglePayRail creates the Google Pay rail adapter.
func NewGooglePayRail(gateway *gatewayclient.Client) *GooglePayRail {
	return &GooglePayRail{gateway: gateway}
}

func (r *GooglePayRail) Name() string {
	return domain.RailGooglePay
}

// Init verifies the gateway can issue the tokenization key the payment sheet
// needs. A failure degrades only this rail.
func (r *GooglePayRail) Init(ctx context.Context) error {
	if _, err := r.gateway.ClientToken(ctx); err != nil {
		return &RailInitError{Rail: r.Name(), Message: railInitMessage(r.Name()), Err: err}
	}
	return nil
}

// Submit exchanges the wallet nonce for a charge.
func (r *GooglePayRail) Submit(ctx context.Context, req RailRequest) (*RailResult, error) {
	if req.Nonce == "" {
		return nil, ErrPaymentCanceled
	}

	sale, err := r.gateway.Sale(ctx, gatewayclient.SaleRequest{
		Amount: req.USD.StringFixed(2),
		Nonce:  req.Nonce,
	})
	if err != nil {
		return nil, translateGatewayError(r.Name(), err)
	}

	log.Printf("level=info component=google_pay_rail outcome=accepted processor_ref=%s amount=%s", sale.ID, sale.Amount)
	return &RailResult{
		USD:          req.USD,
		ProcessorRef: sale.ID,
		Warnings:     saleWarnings(sale.Warnings),
	}, nil
}

var _ Rail = (*GooglePayRail)(nil)
var _ Rail = (*CreditCardRail)(nil)
var _ Rail = (*PayPalRail)(nil)
