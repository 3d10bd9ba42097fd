package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestHS256RoundTrip(t *testing.T) {
	claims := Claims{Role: "seller", Email: "s@example.com"}
	claims.Subject = "user-1"
	secret := "test-secret"

	token, err := SignHS256(claims, secret, time.Hour)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := ParseAndVerifyHS256(token, secret)
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if parsed.Subject != "user-1" || parsed.Role != "seller" || parsed.Email != "s@example.com" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := ParseAndVerifyHS256(token, "wrong-secret"); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
}

func TestRejectsExpiredAndForeignAlgorithms(t *testing.T) {
	secret := "test-secret"
	expired := Claims{}
	expired.Subject = "user-1"
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expired).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, secret); err == nil {
		t.Fatal("expected expired token to fail")
	}

	other := Claims{}
	other.Subject = "user-1"
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS384, other).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, secret); err == nil {
		t.Fatal("expected HS384 token to fail")
	}
}

func TestRequireAuth(t *testing.T) {
	secret := "test-secret"
	var got Principal
	h := RequireAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing header status = %d", rec.Code)
	}

	claims := Claims{Role: "buyer"}
	claims.Subject = "buyer-1"
	token, err := SignHS256(claims, secret, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || got.UserID != "buyer-1" || got.Role != "buyer" {
		t.Fatalf("status = %d principal = %+v", rec.Code, got)
	}
}
