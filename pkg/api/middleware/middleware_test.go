package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	. "macagent/pkg/api/middleware"
	"macagent/pkg/auth"
	"macagent/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func authRouter(cfg AuthConfig) *gin.Engine {
	r := gin.New()
	r.Use(AuthMiddleware(cfg))
	handler := func(c *gin.Context) {
		client, _ := GetClientFromContext(c)
		c.String(http.StatusOK, client)
	}
	r.POST("/", handler)
	r.GET("/health", handler)
	return r
}

func TestAuthMiddleware_RejectsMissingCredentials(t *testing.T) {
	r := authRouter(AuthConfig{KeyStore: auth.NewStaticKeyStore("k")})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuthMiddleware_RejectsWrongKey(t *testing.T) {
	r := authRouter(AuthConfig{KeyStore: auth.NewStaticKeyStore("k")})

	for _, header := range []string{"Bearer nope", "Basic k", "k", "Bearer"} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(AuthHeaderKey, header)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("header %q: expected 401, got %d", header, w.Code)
		}
	}
}

func TestAuthMiddleware_AcceptsBearerKey(t *testing.T) {
	r := authRouter(AuthConfig{KeyStore: auth.NewStaticKeyStore("k")})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(AuthHeaderKey, "Bearer k")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "command-line" {
		t.Errorf("expected client command-line, got %q", w.Body.String())
	}
}

func TestAuthMiddleware_AcceptsAPIKeyHeader(t *testing.T) {
	r := authRouter(AuthConfig{KeyStore: auth.NewStaticKeyStore("k")})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(APIKeyHeaderKey, "k")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestAuthMiddleware_AcceptsJWT(t *testing.T) {
	jwtService, err := auth.NewJWTService(auth.DefaultJWTConfig("secret"))
	if err != nil {
		t.Fatal(err)
	}
	token, err := jwtService.GenerateToken("workflow-a")
	if err != nil {
		t.Fatal(err)
	}
	r := authRouter(AuthConfig{KeyStore: auth.NewStaticKeyStore("k"), JWTService: jwtService})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(AuthHeaderKey, "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "workflow-a" {
		t.Errorf("expected client workflow-a, got %q", w.Body.String())
	}
}

func TestAuthMiddleware_SkipPaths(t *testing.T) {
	r := authRouter(AuthConfig{KeyStore: auth.NewStaticKeyStore("k"), SkipPaths: []string{"/health"}})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected skipped path to pass, got %d", w.Code)
	}
}

func TestBodySizeLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(BodySizeLimitMiddleware(8))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small")))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeadersMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s: expected %q, got %q", header, want, got)
		}
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware(zap.NewNop()))
	r.GET("/", func(c *gin.Context) {
		if logger.FromContext(c.Request.Context()) == nil {
			t.Error("expected request logger in context")
		}
		c.String(http.StatusOK, c.GetString(ContextRequestIDKey))
	})

	const callerID = "9b2f4c1e-6f7a-4d3b-8c2e-1a5d7e9f0b3c"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, callerID)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() != callerID || w.Header().Get(RequestIDHeader) != callerID {
		t.Errorf("expected caller request id to be kept, got %q", w.Body.String())
	}

	// Anything that is not a UUID is replaced, so log fields stay well-formed.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "drop table;")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Body.String(); got == "drop table;" || len(got) != 36 {
		t.Errorf("expected generated uuid, got %q", got)
	}
}
