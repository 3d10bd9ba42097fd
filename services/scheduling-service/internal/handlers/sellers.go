package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/calbook/libs/auth"
	"github.com/md-rashed-zaman/calbook/libs/httpx"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/sellers"
)

type SellerDirectory interface {
	ListSellers(ctx context.Context) ([]sellers.User, error)
	GetSeller(ctx context.Context, id string) (sellers.User, error)
	UpdatePreferences(ctx context.Context, userID string, prefs sellers.Preferences) error
	SetRole(ctx context.Context, userID, role string) (bool, error)
}

type AvailabilityComputer interface {
	Compute(ctx context.Context, sellerID, civilDate, timezone string, now time.Time) ([]availability.Slot, error)
}

type SellerHandler struct {
	directory    SellerDirectory
	availability AvailabilityComputer
	logger       *slog.Logger
	now          func() time.Time
}

func NewSellerHandler(directory SellerDirectory, avail AvailabilityComputer, logger *slog.Logger) *SellerHandler {
	return &SellerHandler{directory: directory, availability: avail, logger: logger, now: time.Now}
}

// Register mounts the public seller routes and the authenticated profile
// routes on mux.
func (h *SellerHandler) Register(mux *http.ServeMux, requireAuth func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /api/v1/sellers", h.List)
	mux.HandleFunc("GET /api/v1/sellers/{sellerId}", h.Get)
	mux.HandleFunc("GET /api/v1/sellers/{sellerId}/availability", h.Availability)
	mux.Handle("PUT /api/v1/users/preferences", requireAuth(http.HandlerFunc(h.UpdatePreferences)))
	mux.Handle("POST /api/v1/users/role", requireAuth(http.HandlerFunc(h.SetRole)))
}

type slotItem struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type availabilityResponse struct {
	Date     string     `json:"date"`
	Timezone string     `json:"timezone"`
	Slots    []slotItem `json:"slots"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *SellerHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.directory.ListSellers(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *SellerHandler) Get(w http.ResponseWriter, r *http.Request) {
	seller, err := h.directory.GetSeller(r.Context(), r.PathValue("sellerId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	seller.Preferences = nil
	httpx.WriteJSON(w, http.StatusOK, seller)
}

func (h *SellerHandler) Availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := strings.TrimSpace(q.Get("date"))
	if date == "" {
		http.Error(w, "date parameter is required", http.StatusBadRequest)
		return
	}
	timezone := strings.TrimSpace(q.Get("timezone"))
	if timezone == "" {
		timezone = "UTC"
	}

	slots, err := h.availability.Compute(r.Context(), r.PathValue("sellerId"), date, timezone, h.now())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			Start:     s.Start.UTC().Format(time.RFC3339),
			End:       s.End.UTC().Format(time.RFC3339),
			StartTime: s.StartLocal,
			EndTime:   s.EndLocal,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, availabilityResponse{Date: date, Timezone: timezone, Slots: items})
}

type preferencesRequest struct {
	Preferences sellers.Preferences `json:"preferences"`
}

func (h *SellerHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())

	var req preferencesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := h.directory.UpdatePreferences(r.Context(), p.UserID, req.Preferences); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("preferences updated", "user_id", p.UserID)
	httpx.WriteJSON(w, http.StatusOK, messageResponse{Message: "preferences updated"})
}

type roleRequest struct {
	Role string `json:"role"`
}

func (h *SellerHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())

	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	changed, err := h.directory.SetRole(r.Context(), p.UserID, strings.TrimSpace(req.Role))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	msg := "role already set"
	if changed {
		msg = "role updated"
		h.logger.Info("role updated", "user_id", p.UserID, "role", req.Role)
	}
	httpx.WriteJSON(w, http.StatusOK, messageResponse{Message: msg})
}
