package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/greenway-eco/backend/internal/identity"
	"github.com/greenway-eco/backend/internal/models"
	"github.com/greenway-eco/backend/internal/policy"
	"github.com/greenway-eco/backend/internal/session"
)

type tokenVerifier map[string]*identity.Claims

func (v tokenVerifier) VerifyToken(_ context.Context, token string) (*identity.Claims, error) {
	if c, ok := v[token]; ok {
		return c, nil
	}
	return nil, identity.ErrInvalidToken
}

func newTestRouter(t *testing.T, metrics *Metrics, action policy.Action) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	resolver := session.NewResolver(tokenVerifier{
		"owner-token": {UserID: "o1", Email: "o1@example.com", Role: "owner"},
		"user-token":  {UserID: "u1", Email: "u1@example.com"},
	})
	router := gin.New()
	router.Use(metrics.Handler(), Session(resolver, zaptest.NewLogger(t)))
	router.POST("/listings", RequireAction(action, metrics), func(c *gin.Context) {
		id, _ := CurrentIdentity(c)
		c.String(http.StatusCreated, id.UserID+":"+string(id.Role))
	})
	return router
}

func TestSessionRejectsMissingCredential(t *testing.T) {
	router := newTestRouter(t, nil, policy.CreateListing)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/listings", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestSessionReadsCookie(t *testing.T) {
	router := newTestRouter(t, nil, policy.CreateListing)

	req := httptest.NewRequest(http.MethodPost, "/listings", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "owner-token"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated || rr.Body.String() != "o1:owner" {
		t.Fatalf("expected owner to pass, got %d %q", rr.Code, rr.Body.String())
	}
}

func TestRequireActionDeniesWrongRole(t *testing.T) {
	metrics, err := NewMetrics(MetricsOptions{Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	router := newTestRouter(t, metrics, policy.CreateListing)

	req := httptest.NewRequest(http.MethodPost, "/listings", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if got := testutil.ToFloat64(metrics.Denials.WithLabelValues(string(policy.CreateListing), policy.ReasonWrongRole)); got != 1 {
		t.Fatalf("expected one denial recorded, got %f", got)
	}
	labels := prometheus.Labels{"method": http.MethodPost, "route": "/listings", "status": "403"}
	if got := testutil.ToFloat64(metrics.Requests.With(labels)); got != 1 {
		t.Fatalf("expected request counter 1, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.InFlight); got != 0 {
		t.Fatalf("expected in-flight gauge back at 0, got %f", got)
	}
}

func TestCurrentIdentityDefaultsUserRole(t *testing.T) {
	router := newTestRouter(t, nil, policy.ViewListing)

	req := httptest.NewRequest(http.MethodPost, "/listings", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Body.String() != "u1:"+string(models.RoleUser) {
		t.Fatalf("unexpected identity %q", rr.Body.String())
	}
}

func TestNewMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(MetricsOptions{Registerer: reg})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	second, err := NewMetrics(MetricsOptions{Registerer: reg})
	if err != nil {
		t.Fatalf("second NewMetrics: %v", err)
	}
	if first.Requests != second.Requests {
		t.Fatalf("expected the registered counter to be reused")
	}
}

func TestCORSCredentialsOnlyForListedOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORS("http://localhost:3000"))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials to be allowed for a listed origin")
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("expected no CORS headers for unlisted origin")
	}
}

func TestCORSWildcardNeverSendsCredentials(t *testing.T) {
	p := parseCORS(" * , https://greenway.example/ ")
	if origin, creds := p.allow("https://greenway.example"); origin != "https://greenway.example" || !creds {
		t.Fatalf("listed origin: got %q creds=%v", origin, creds)
	}
	if origin, creds := p.allow("http://other.example"); origin != "*" || creds {
		t.Fatalf("wildcard origin: got %q creds=%v", origin, creds)
	}
	if origin, _ := parseCORS("").allow(""); origin != "*" {
		t.Fatalf("empty list should allow any origin, got %q", origin)
	}
}
