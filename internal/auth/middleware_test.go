package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func protectedEcho(svc *Service) *echo.Echo {
	e := echo.New()
	e.GET("/secret", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}, svc.Middleware())
	return e
}

func TestMiddleware_RequiresCredentials(t *testing.T) {
	svc := newAuthService(t)
	e := protectedEcho(svc)

	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMiddleware_AcceptsBearerToken(t *testing.T) {
	svc := newAuthService(t)
	e := protectedEcho(svc)

	token, err := svc.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestMiddleware_AcceptsSessionCookie(t *testing.T) {
	svc := newAuthService(t)
	e := protectedEcho(svc)

	token, err := svc.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	req.AddCookie(&http.Cookie{Name: "helmarr_session", Value: token})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestMiddleware_APIKeyHeader(t *testing.T) {
	svc := newAuthService(t)
	e := protectedEcho(svc)

	key, err := svc.CreateAPIKey(context.Background(), "automation")
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	req.Header.Set("X-Api-Key", key.Key)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	// A present but wrong key is rejected outright, it does not fall
	// through to session auth.
	req = httptest.NewRequest(http.MethodGet, "/secret", nil)
	req.Header.Set("X-Api-Key", "wrong")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
