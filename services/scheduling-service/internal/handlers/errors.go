package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/calbook/libs/httpx"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/bookings"
)

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, availability.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, availability.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, bookings.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, availability.ErrSlotUnavailable), errors.Is(err, bookings.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, availability.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError replies with the mapped status. Client errors echo the error
// text, server errors are logged and answered generically.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusOf(err)
	switch status {
	case http.StatusInternalServerError:
		logger.Error("request failed", "request_id", httpx.RequestIDFromContext(r.Context()), "path", r.URL.Path, "err", err)
		http.Error(w, "internal error", status)
	case http.StatusServiceUnavailable:
		logger.Warn("dependency unavailable", "request_id", httpx.RequestIDFromContext(r.Context()), "path", r.URL.Path, "err", err)
		http.Error(w, "calendar service unavailable", status)
	default:
		http.Error(w, err.Error(), status)
	}
}
