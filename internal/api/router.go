/**
 * @description
 * This file sets up the HTTP router for the studio-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS policy for the dashboard origin.
 * - github.com/prometheus/client_golang/prometheus/promhttp: Metrics endpoint.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StudioRoutes creates and returns the router for the studio service.
func StudioRoutes(h *StudioHandlers, wh *WebhookHandlers, jwksURL, dashboardOrigin string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if dashboardOrigin != "" {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{dashboardOrigin},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Handle("/metrics", promhttp.Handler())

	// Webhooks authenticate via HMAC signatures, not JWTs.
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/lemon-squeezy", wh.LemonOrderHandler)
		r.Post("/lemon-squeezy/refund", wh.LemonRefundHandler)
		r.Post("/pipeline/training", wh.TrainingCompleteHandler)
		r.Post("/pipeline/headshot", wh.HeadshotCompleteHandler)
		r.Post("/pipeline/upscale", wh.UpscaleCompleteHandler)
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(ClerkAuthMiddleware(jwksURL))

		// Plans and checkout
		r.Get("/plans", h.ListPlansHandler)
		r.Get("/checkout/quote", h.QuoteHandler)
		r.Post("/checkout", h.CreateCheckoutHandler)

		// Studio lifecycle
		r.Post("/studios", h.CreateStudioHandler)
		r.Get("/studios", h.ListStudiosHandler)
		r.Get("/studios/{studioID}", h.GetStudioHandler)
		r.Post("/studios/{studioID}/accept", h.AcceptStudioHandler)
		r.Delete("/studios/{studioID}", h.DeleteStudioHandler)
		r.Post("/studios/{studioID}/headshots/{headshotID}/favorite", h.ToggleFavoriteHandler)
		r.Get("/organizations/{organizationID}/studios", h.ListOrganizationStudiosHandler)

		// Credits
		r.Get("/credits", h.GetCreditsHandler)
		r.Get("/credits/transactions", h.ListCreditTransactionsHandler)
		r.Post("/credits/transfer", h.TransferTeamCreditsHandler)

		// Pay-per-use AI actions
		r.Post("/ai/similar", h.GenerateSimilarImageHandler)
		r.Post("/ai/edit", h.AIEditImageHandler)
	})

	return r
}
