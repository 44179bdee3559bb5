package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func newGuardedRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/reset", JWTMiddleware(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "reset"})
	})
	return router
}

func signToken(t *testing.T, secret string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "operator",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	router := newGuardedRouter(testSecret)

	req := httptest.NewRequest(http.MethodPost, "/reset", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareRejectsWrongSecret(t *testing.T) {
	router := newGuardedRouter(testSecret)

	req := httptest.NewRequest(http.MethodPost, "/reset", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	router := newGuardedRouter(testSecret)

	req := httptest.NewRequest(http.MethodPost, "/reset", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestMiddlewareDisabledWithoutSecret(t *testing.T) {
	router := newGuardedRouter("")

	req := httptest.NewRequest(http.MethodPost, "/reset", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected guard to be disabled, got %d", resp.Code)
	}
}
