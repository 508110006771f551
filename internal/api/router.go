/**
 * @description
 * This file sets up the HTTP router for the billing-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for the browser console.
 */

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// BillingRoutes creates and returns a new router for the billing service.
func BillingRoutes(h *BillingHandlers, auth AuthOptions, allowedOrigins string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// The console is a browser app on another origin.
	origins := []string{"https://cloud.linode.com"}
	if trimmed := strings.TrimSpace(allowedOrigins); trimmed != "" {
		origins = strings.Split(trimmed, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		// Apply JWT authentication middleware for production
		r.Use(AuthMiddleware(auth))

		// Account surface
		r.Get("/account", h.GetAccountHandler)
		r.Get("/account/payment-methods", h.ListPaymentMethodsHandler)
		r.Post("/account/payment-methods", h.AddPaymentMethodHandler)
		r.Get("/account/client-token", h.ClientTokenHandler)
		r.Get("/account/payments", h.ListPaymentsHandler)

		// Payment drawer workflow
		r.Post("/drawer", h.OpenDrawerHandler)
		r.Get("/drawer/{sessionID}", h.GetDrawerHandler)
		r.Put("/drawer/{sessionID}/amount", h.SetAmountHandler)
		r.Put("/drawer/{sessionID}/method", h.SelectMethodHandler)
		r.Post("/drawer/{sessionID}/pay", h.CreditCardPaymentHandler)
		r.Post("/drawer/{sessionID}/paypal/stage", h.StagePaypalHandler)
		r.Post("/drawer/{sessionID}/paypal/execute", h.ExecutePaypalHandler)
		r.Post("/drawer/{sessionID}/googlepay", h.GooglePayPaymentHandler)
		r.Post("/drawer/{sessionID}/cancel", h.CancelDrawerHandler)
		r.Post("/drawer/{sessionID}/acknowledge", h.AcknowledgeWarningsHandler)
		r.Delete("/drawer/{sessionID}", h.CloseDrawerHandler)
	})

	return r
}
