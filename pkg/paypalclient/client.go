/**
 * @description
 * This package provides a client for the PayPal payments API. The PayPal rail is
 * two-phase: an order is created (staged) before the user approves it on
 * PayPal's hosted page, then captured (executed) with the payer id returned by
 * the approval flow.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package paypalclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Client is a client for the PayPal API.
type Client struct {
	BaseURL    string
	ClientID   string
	Secret     string
	HTTPClient *http.Client
}

// NewClient creates a new PayPal API client.
func NewClient(baseURL, clientID, secret string) *Client {
	return &Client{
		BaseURL:  baseURL,
		ClientID: clientID,
		Secret:   secret,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateOrderRequest represents the payload for staging a PayPal order.
type CreateOrderRequest struct {
	USD         string `json:"usd"`
	CancelURL   string `json:"cancel_url"`
	RedirectURL string `json:"redirect_url"`
}

// StagedOrder is the expected response from the order creation endpoint. The
// checkout token is handed to PayPal's hosted approval flow.
type StagedOrder struct {
	PaymentID     string `json:"payment_id"`
	CheckoutToken string `json:"checkout_token"`
}

// CaptureRequest represents the payload for executing an approved order.
type CaptureRequest struct {
	PayerID   string `json:"payer_id"`
	PaymentID string `json:"payment_id"`
}

// CaptureWarning is a non-fatal advisory attached to an accepted capture.
type CaptureWarning struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// CaptureResult is the expected response from the capture endpoint.
type CaptureResult struct {
	Status   string           `json:"status"`
	Warnings []CaptureWarning `json:"warnings,omitempty"`
}

// ErrorResponse represents an error from the PayPal API.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("paypal api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown paypal api error"
}

// FirstReason returns the first error reason suitable for inline display.
func (e *ErrorResponse) FirstReason() string {
	if len(e.Errors) == 0 {
		return ""
	}
	if e.Errors[0].Detail != "" {
		return e.Errors[0].Detail
	}
	return e.Errors[0].Title
}

// CreateOrder stages a PayPal order for a USD amount. The returned payment id
// and checkout token are passed to the hosted approval flow.
func (c *Client) CreateOrder(ctx context.Context, usd, cancelURL, redirectURL string) (*StagedOrder, error) {
	payload := CreateOrderRequest{USD: usd, CancelURL: cancelURL, RedirectURL: redirectURL}
	var order StagedOrder
	if err := c.do(ctx, "POST", "/v2/checkout/orders", "create_order", payload, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CaptureOrder executes an approved order with the payer id returned by the
// approval flow.
func (c *Client) CaptureOrder(ctx context.Context, payerID, paymentID string) (*CaptureResult, error) {
	payload := CaptureRequest{PayerID: payerID, PaymentID: paymentID}
	var result CaptureResult
	if err := c.do(ctx, "POST", "/v2/checkout/orders/"+paymentID+"/capture", "capture_order", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// do is a generic helper to execute PayPal API requests.
func (c *Client) do(ctx context.Context, method, path, op string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.ClientID, c.Secret)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=paypal_client op=%s status=%d msg=\"non-2xx response (unparsable error body)\"", op, resp.StatusCode)
			return fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=paypal_client op=%s status=%d reason=%q", op, resp.StatusCode, errResp.FirstReason())
		return &errResp
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}

	return nil
}
