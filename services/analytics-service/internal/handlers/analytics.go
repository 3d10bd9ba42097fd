package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/calbook/libs/auth"
	"github.com/md-rashed-zaman/calbook/libs/httpx"
	"github.com/md-rashed-zaman/calbook/services/analytics-service/internal/events"
)

type SummaryReader interface {
	SellerSummary(ctx context.Context, sellerID string, now time.Time) (events.Summary, error)
}

type AnalyticsHandler struct {
	store  SummaryReader
	logger *slog.Logger
	now    func() time.Time
}

func NewAnalyticsHandler(store SummaryReader, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{store: store, logger: logger, now: time.Now}
}

func (h *AnalyticsHandler) Register(mux *http.ServeMux, requireAuth func(http.Handler) http.Handler) {
	mux.Handle("GET /api/v1/analytics/sellers/{sellerId}", requireAuth(http.HandlerFunc(h.SellerSummary)))
}

// SellerSummary is only available to the seller it describes.
func (h *AnalyticsHandler) SellerSummary(w http.ResponseWriter, r *http.Request) {
	sellerID := r.PathValue("sellerId")
	p, _ := auth.PrincipalFromContext(r.Context())
	if p.UserID != sellerID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	summary, err := h.store.SellerSummary(r.Context(), sellerID, h.now())
	if err != nil {
		h.logger.Error("analytics query failed", "seller_id", sellerID, "err", err)
		http.Error(w, "analytics unavailable", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, summary)
}
