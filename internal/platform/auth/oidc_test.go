package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type recordingCounter struct {
	noop.Int64Counter
	mu      sync.Mutex
	reasons []string
}

func (c *recordingCounter) Add(_ context.Context, _ int64, opts ...metric.AddOption) {
	cfg := metric.NewAddConfig(opts)
	attrs := cfg.Attributes()
	reason, _ := attrs.Value("reason")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reasons = append(c.reasons, reason.AsString())
}

func (c *recordingCounter) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.reasons) == 0 {
		return ""
	}
	return c.reasons[len(c.reasons)-1]
}

type recordingMeter struct {
	noop.Meter
	counter *recordingCounter
}

func (m recordingMeter) Int64Counter(string, ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	return m.counter, nil
}

type recordingProvider struct {
	noop.MeterProvider
	meter recordingMeter
}

func (p recordingProvider) Meter(string, ...metric.MeterOption) metric.Meter {
	return p.meter
}

func TestJWKSCache_KeyCachesKeys(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "key1", Algorithm: jwt.SigningMethodRS256.Alg(), Use: "sig"}

	var mu sync.Mutex
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(server.Close)

	now := time.Unix(1_000_000, 0)
	cache := NewJWKSCache(server.URL, WithJWKSClock(func() time.Time { return now }))

	ctx := context.Background()
	got, err := cache.Key(ctx, "key1")
	if err != nil {
		t.Fatalf("cache.Key: %v", err)
	}
	if _, ok := got.(*rsa.PublicKey); !ok {
		t.Fatalf("expected *rsa.PublicKey, got %T", got)
	}
	if _, err := cache.Key(ctx, "key1"); err != nil {
		t.Fatalf("cache.Key second call: %v", err)
	}
	mu.Lock()
	if requests != 1 {
		t.Fatalf("expected single JWKS fetch, got %d", requests)
	}
	mu.Unlock()

	now = now.Add(2 * time.Hour)
	if _, err := cache.Key(ctx, "key1"); err != nil {
		t.Fatalf("cache.Key after expiry: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if requests != 2 {
		t.Fatalf("expected refetch after max-age, got %d fetches", requests)
	}
}

func TestParseMaxAge(t *testing.T) {
	if got := parseMaxAge("public, max-age=120, must-revalidate"); got != 2*time.Minute {
		t.Fatalf("unexpected max-age %s", got)
	}
	if got := parseMaxAge("no-store"); got != 0 {
		t.Fatalf("expected zero, got %s", got)
	}
}

func TestOIDCRequireOIDC_Success(t *testing.T) {
	validator, counter, token := setupOIDCTest(t, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/orders/ord_1:transition", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	validator.RequireOIDC("https://example.com", []string{"https://accounts.google.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := ServiceIdentityFromContext(r.Context())
		if !ok || identity.Email != "fulfilment@example.com" {
			t.Fatalf("expected service identity in context, got %+v", identity)
		}
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if counter.last() != "ok" {
		t.Fatalf("expected ok outcome, got %q", counter.last())
	}
}

func TestOIDCRequireOIDC_Rejections(t *testing.T) {
	cases := []struct {
		name     string
		audience string
		issuers  []string
		mutate   func(jwt.MapClaims)
		status   int
		reason   string
	}{
		{name: "audience mismatch", audience: "https://service.internal", status: http.StatusUnauthorized, reason: "audience_mismatch"},
		{name: "issuer mismatch", audience: "https://example.com", issuers: []string{"https://other"}, status: http.StatusUnauthorized, reason: "issuer_mismatch"},
		{
			name:     "expired",
			audience: "https://example.com",
			mutate:   func(c jwt.MapClaims) { c["exp"] = float64(1) },
			status:   http.StatusUnauthorized,
			reason:   "token_invalid",
		},
		{name: "not configured", audience: "", status: http.StatusServiceUnavailable, reason: "not_configured"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			validator, counter, token := setupOIDCTest(t, tc.mutate)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/internal/test", nil)
			req.Header.Set("Authorization", "Bearer "+token)

			validator.RequireOIDC(tc.audience, tc.issuers)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatalf("handler should not be called")
			})).ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			if counter.last() != tc.reason {
				t.Fatalf("expected %s, got %q", tc.reason, counter.last())
			}
		})
	}
}

func TestOIDCRequireOIDC_UsesIAPHeader(t *testing.T) {
	validator, _, token := setupOIDCTest(t, func(claims jwt.MapClaims) {
		claims["aud"] = "/projects/123/global/backendServices/456"
		claims["iss"] = "https://cloud.google.com/iap"
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/internal/test", nil)
	req.Header.Set(iapAssertionHeader, token)

	validator.RequireOIDC("/projects/123/global/backendServices/456", []string{"https://cloud.google.com/iap"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rr.Code)
	}
}

func TestOIDCRequireOIDC_JWKSUnavailable(t *testing.T) {
	validator, counter, token := setupOIDCTest(t, nil)
	validator.cache.url = "http://127.0.0.1:1/unreachable"

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/internal/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	validator.RequireOIDC("https://example.com", nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	if counter.last() != "jwks_unavailable" {
		t.Fatalf("expected jwks_unavailable, got %q", counter.last())
	}
}

func setupOIDCTest(t *testing.T, mutateClaims func(jwt.MapClaims)) (*OIDCValidator, *recordingCounter, string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "svc-key", Algorithm: jwt.SigningMethodRS256.Alg(), Use: "sig"}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(server.Close)

	now := time.Unix(1_700_000_000, 0)
	originalTimeFunc := jwt.TimeFunc
	jwt.TimeFunc = func() time.Time { return now }
	t.Cleanup(func() { jwt.TimeFunc = originalTimeFunc })

	counter := &recordingCounter{}
	provider := recordingProvider{meter: recordingMeter{counter: counter}}
	validator, err := NewOIDCValidator(NewJWKSCache(server.URL, WithJWKSClock(func() time.Time { return now })), nil, provider)
	if err != nil {
		t.Fatalf("NewOIDCValidator: %v", err)
	}

	claims := jwt.MapClaims{
		"aud":   []string{"https://example.com"},
		"iss":   "https://accounts.google.com",
		"sub":   "1234567890",
		"email": "fulfilment@example.com",
		"exp":   float64(now.Add(time.Hour).Unix()),
		"iat":   float64(now.Unix()),
	}
	if mutateClaims != nil {
		mutateClaims(claims)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "svc-key"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return validator, counter, signed
}
