package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/calbook/libs/auth"
	"github.com/md-rashed-zaman/calbook/libs/httpx"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/bookings"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/sellers"
)

type BookingService interface {
	Create(ctx context.Context, req bookings.CreateRequest) (bookings.Booking, error)
	Cancel(ctx context.Context, bookingID, userID string) (bookings.Booking, error)
	List(ctx context.Context, userID, role string, limit int) ([]bookings.View, error)
}

// UserLookup resolves the caller's current role; tokens may predate a
// role change.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (sellers.User, error)
}

type BookingHandler struct {
	svc    BookingService
	users  UserLookup
	logger *slog.Logger
}

func NewBookingHandler(svc BookingService, users UserLookup, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, users: users, logger: logger}
}

func (h *BookingHandler) Register(mux *http.ServeMux, requireAuth func(http.Handler) http.Handler) {
	mux.Handle("GET /api/v1/bookings", requireAuth(http.HandlerFunc(h.List)))
	mux.Handle("POST /api/v1/bookings", requireAuth(http.HandlerFunc(h.Create)))
	mux.Handle("DELETE /api/v1/bookings/{bookingId}", requireAuth(http.HandlerFunc(h.Cancel)))
}

type createBookingRequest struct {
	SellerID    string `json:"seller_id"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Timezone    string `json:"timezone"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())

	var req createBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.SellerID) == "" || req.StartTime == "" || req.EndTime == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return
	}

	b, err := h.svc.Create(r.Context(), bookings.CreateRequest{
		SellerID:    req.SellerID,
		BuyerID:     p.UserID,
		Start:       start,
		End:         end,
		Timezone:    req.Timezone,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, b)
}

type listBookingsResponse struct {
	Role     string          `json:"role"`
	Bookings []bookings.View `json:"bookings"`
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			http.Error(w, "limit must be between 1 and 200", http.StatusBadRequest)
			return
		}
		limit = n
	}

	role := p.Role
	if u, err := h.users.GetUser(r.Context(), p.UserID); err == nil {
		role = u.Role
	} else {
		h.logger.Warn("role lookup failed, using token role", "user_id", p.UserID, "err", err)
	}
	if role != sellers.RoleSeller {
		role = sellers.RoleBuyer
	}

	views, err := h.svc.List(r.Context(), p.UserID, role, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, listBookingsResponse{Role: role, Bookings: views})
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())

	b, err := h.svc.Cancel(r.Context(), r.PathValue("bookingId"), p.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}
