// Package httpmiddleware provides net/http middleware for the checkout API.
package httpmiddleware

import "net/http"

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler
