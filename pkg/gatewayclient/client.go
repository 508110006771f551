/**
 * @description
 * This package provides a client for the card-processing gateway (a
 * Braintree-style tokenization and sale API). It encapsulates the logic for
 * making authenticated HTTP requests to the gateway's endpoints, handling
 * request body construction, and parsing responses.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package gatewayclient

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

// Client is a client for the gateway API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new gateway API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ClientTokenResponse carries the tokenization key the console's payment SDKs
// initialize with.
type ClientTokenResponse struct {
	ClientToken string `json:"client_token"`
}

// SaleRequest represents the payload for a gateway sale. Exactly one of
// PaymentMethodToken (stored instrument) or Nonce (one-time wallet credential)
// is set per charge.
type SaleRequest struct {
	Amount             string `json:"amount"`
	CurrencyCode       string `json:"currency_code"`
	PaymentMethodToken string `json:"payment_method_token,omitempty"`
	Nonce              string `json:"payment_method_nonce,omitempty"`
	CVV                string `json:"cvv,omitempty"`
}

// SaleWarning is a non-fatal advisory attached to an accepted sale.
type SaleWarning struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// SaleResponse is the expected response from the gateway's sale endpoint.
type SaleResponse struct {
	ID       string        `json:"id"`
	Status   string        `json:"status"`
	Amount   string        `json:"amount"`
	Warnings []SaleWarning `json:"warnings,omitempty"`
}

// ErrorResponse represents an error from the gateway API.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("gateway api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown gateway api error"
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

// ClientToken fetches a tokenization key from the gateway.
func (c *Client) ClientToken(ctx context.Context) (*ClientTokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"/v1/client-token", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create client token request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-gateway-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute client token request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read client token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=gateway_client op=client_token status=%d msg=\"non-2xx response (unparsable error body)\"", resp.StatusCode)
			return nil, fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=gateway_client op=client_token status=%d reason=%q", resp.StatusCode, errResp.FirstReason())
		return nil, &errResp
	}

	var tokenResp ClientTokenResponse
	if err := json.Unmarshal(bodyBytes, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode client token response: %w", err)
	}

	return &tokenResp, nil
}

// Sale sends a charge request to the gateway.
func (c *Client) Sale(ctx context.Context, payload SaleRequest) (*SaleResponse, error) {
	if payload.CurrencyCode == "" {
		payload.CurrencyCode = "USD"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sale request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v1/transactions", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create sale request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-gateway-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute sale request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read sale response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=gateway_client op=sale status=%d msg=\"non-2xx response (unparsable error body)\"", resp.StatusCode)
			return nil, fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=gateway_client op=sale status=%d reason=%q", resp.StatusCode, errResp.FirstReason())
		return nil, &errResp
	}

	var saleResp SaleResponse
	if err := json.Unmarshal(bodyBytes, &saleResp); err != nil {
		return nil, fmt.Errorf("failed to decode sale response: %w", err)
	}

	return &saleResp, nil
}
