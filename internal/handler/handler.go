// Package handler exposes the checkout service over HTTP JSON.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
)

// HeaderUserID carries the authenticated storefront user. Guests omit it.
const HeaderUserID = "X-User-ID"

const maxBodyBytes = 1 << 20

// Checkout is the service surface used by the handlers.
type Checkout interface {
	OpenIntent(ctx context.Context, req checkout.OpenIntentRequest) (*checkout.OpenIntentResult, error)
	Capture(ctx context.Context, req checkout.CaptureRequest) (*checkout.CaptureResult, error)
}

// Handler serves the checkout API.
type Handler struct {
	checkout Checkout
}

// New returns a Handler delegating to svc.
func New(svc Checkout) *Handler {
	return &Handler{checkout: svc}
}

// Register mounts the API routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/checkout/intents", h.OpenIntent)
	r.Post("/api/checkout/intents/{intentId}/capture", h.Capture)
}

type errorResponse struct {
	Error string `json:"error"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return &checkout.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a checkout error to its status code.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		status = http.StatusInternalServerError
		ve     *checkout.ValidationError
		state  checkout.State
		ce     *checkout.Error
	)
	if errors.As(err, &ce) {
		state = ce.State
	}
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
	case errors.Is(err, checkout.ErrCaptureInProgress):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		zctx.From(ctx).Error("Checkout request failed",
			zap.String("state", string(state)),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
