package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/requestctx"
)

func TestParseCloudTraceContext(t *testing.T) {
	sc, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if sc.TraceID().String() != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("unexpected trace id %s", sc.TraceID())
	}
	if sc.SpanID().String() != "0000000000000001" || !sc.IsSampled() {
		t.Fatalf("unexpected span context %v sampled=%v", sc.SpanID(), sc.IsSampled())
	}
	if got := formatCloudTraceHeader(sc); got != "105445aa7843bc8bf206b12000100000/1;o=1" {
		t.Fatalf("unexpected round trip %s", got)
	}

	for _, bad := range []string{"", "abc", "zz/1", "105445aa7843bc8bf206b12000100000/x", "105445aa7843bc8bf206b12000100000/0"} {
		if _, ok := parseCloudTraceContext(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestTraceMiddlewareStoresTraceInfo(t *testing.T) {
	var info requestctx.TraceInfo
	handler := TraceMiddleware("sweety-dev")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, _ = requestctx.Trace(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/7;o=1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if info.ProjectID != "sweety-dev" {
		t.Fatalf("expected project id, got %+v", info)
	}
	if info.TraceID != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("expected remote trace to be continued, got %s", info.TraceID)
	}
}

func TestRequestLoggerLevelsByStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	router := chi.NewRouter()
	router.Use(RequestLoggerMiddleware(zap.New(core)))
	router.Get("/orders/{orderId}", func(w http.ResponseWriter, r *http.Request) {
		if !requestctx.HasLogger(r.Context()) {
			t.Fatalf("expected request logger")
		}
		w.WriteHeader(http.StatusNotFound)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion log, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.WarnLevel {
		t.Fatalf("expected warn for 404, got %s", entry.Level)
	}
	if entry.ContextMap()["route"] != "/orders/{orderId}" {
		t.Fatalf("expected route pattern, got %v", entry.ContextMap()["route"])
	}
}

func TestRecoveryMiddlewareWritesEnvelope(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "internal_server_error") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic log")
	}
}

func TestServiceLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logFn := ServiceLogger(zap.New(core).Named("orders"))

	logFn(context.Background(), "order.number.collision", map[string]any{"attempt": 1})
	logFn(context.Background(), "inventory.reserve.line.failed", map[string]any{"error": errors.New("short")})
	logFn(context.Background(), "payment.initiated", map[string]any{"orderId": "ord_1"})
	logFn(context.Background(), "payment.capture.order_closed", map[string]any{"orderId": "ord_2"})

	all := logs.All()
	if len(all) != 4 {
		t.Fatalf("expected four entries, got %d", len(all))
	}
	if all[0].Level != zapcore.WarnLevel || all[1].Level != zapcore.WarnLevel || all[3].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn for failure events, got %s %s %s", all[0].Level, all[1].Level, all[3].Level)
	}
	if all[2].Level != zapcore.DebugLevel {
		t.Fatalf("expected debug for routine events, got %s", all[2].Level)
	}
	if all[1].ContextMap()["error"] != "short" {
		t.Fatalf("expected error field, got %v", all[1].ContextMap())
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger("loud")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.Core().Enabled(zapcore.DebugLevel) || !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("expected info level")
	}
}

func TestSanitizeString(t *testing.T) {
	if got := sanitizeString("GET\n/evil\x00", 64); got != "GET/evil" {
		t.Fatalf("unexpected %q", got)
	}
	if got := SanitizeRoute(""); got != "/" {
		t.Fatalf("unexpected %q", got)
	}
}
