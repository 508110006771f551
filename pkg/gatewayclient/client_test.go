package gatewayclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSaleSendsAuthAndDefaultsCurrency(t *testing.T) {
	var gotKey string
	var gotPayload SaleRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-gateway-key")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("failed to decode sale payload: %v", err)
		}
		json.NewEncoder(w).Encode(SaleResponse{ID: "txn_1", Status: "settled", Amount: "25.00"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key")
	resp, err := client.Sale(context.Background(), SaleRequest{Amount: "25.00", PaymentMethodToken: "tok_visa"})
	if err != nil {
		t.Fatalf("expected sale to succeed, got %v", err)
	}
	if resp.ID != "txn_1" || resp.Status != "settled" {
		t.Fatalf("unexpected sale response %+v", resp)
	}
	if gotKey != "secret-key" {
		t.Fatalf("expected gateway key header, got %q", gotKey)
	}
	if gotPayload.CurrencyCode != "USD" {
		t.Fatalf("expected currency defaulted to USD, got %q", gotPayload.CurrencyCode)
	}
}

func TestSaleDeclineReturnsErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]string{
				{"title": "Declined", "detail": "Insufficient funds.", "status": "422"},
				{"title": "Secondary", "detail": "Contact issuer.", "status": "422"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key")
	_, err := client.Sale(context.Background(), SaleRequest{Amount: "25.00", PaymentMethodToken: "tok_visa"})

	var errResp *ErrorResponse
	if !errors.As(err, &errResp) {
		t.Fatalf("expected *ErrorResponse, got %v", err)
	}
	if got := errResp.FirstReason(); got != "Insufficient funds." {
		t.Fatalf("expected first reason surfaced, got %q", got)
	}
}

func TestClientTokenFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/client-token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ClientTokenResponse{ClientToken: "tokenization-key"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key")
	resp, err := client.ClientToken(context.Background())
	if err != nil {
		t.Fatalf("expected token fetch to succeed, got %v", err)
	}
	if resp.ClientToken != "tokenization-key" {
		t.Fatalf("expected tokenization key, got %q", resp.ClientToken)
	}
}

func TestFirstReasonFallsBackToTitle(t *testing.T) {
	errResp := &ErrorResponse{}
	errResp.Errors = append(errResp.Errors, struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	}{Title: "Declined"})

	if got := errResp.FirstReason(); got != "Declined" {
		t.Fatalf("expected title fallback, got %q", got)
	}
}
