package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/calbook/libs/auth"
	"github.com/md-rashed-zaman/calbook/services/analytics-service/internal/events"
)

type fakeSummaries struct {
	err error
}

func (f fakeSummaries) SellerSummary(context.Context, string, time.Time) (events.Summary, error) {
	if f.err != nil {
		return events.Summary{}, f.err
	}
	return events.Summary{
		BookingTrends:    []events.DayCount{{Date: "2024-06-03", Bookings: 2}},
		PopularTimeSlots: []events.HourCount{{Hour: "9:00", Bookings: 2}},
	}, nil
}

func serve(t *testing.T, store SummaryReader, userID, path string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	NewAnalyticsHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(mux, auth.RequireAuth("secret"))

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userID != "" {
		claims := auth.Claims{}
		claims.Subject = userID
		token, err := auth.SignHS256(claims, "secret", time.Hour)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestSellerSummary(t *testing.T) {
	rec := serve(t, fakeSummaries{}, "seller-1", "/api/v1/analytics/sellers/seller-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"popular_time_slots":[{"hour":"9:00","bookings":2}]`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestSellerSummaryAccess(t *testing.T) {
	if rec := serve(t, fakeSummaries{}, "", "/api/v1/analytics/sellers/seller-1"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := serve(t, fakeSummaries{}, "seller-2", "/api/v1/analytics/sellers/seller-1"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec := serve(t, fakeSummaries{err: errors.New("mongo down")}, "seller-1", "/api/v1/analytics/sellers/seller-1"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
