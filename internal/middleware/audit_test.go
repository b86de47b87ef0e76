package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAudit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		wantEvent string
	}{
		{name: "ok is silent", status: http.StatusOK},
		{name: "not found is silent", status: http.StatusNotFound},
		{name: "unauthorized", status: http.StatusUnauthorized, wantEvent: "security_event"},
		{name: "forbidden", status: http.StatusForbidden, wantEvent: "security_event"},
		{name: "rate limited", status: http.StatusTooManyRequests, wantEvent: "rate_limit_violation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.InfoLevel)
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			req := httptest.NewRequest(http.MethodGet, "/api/v1/days/today", nil)
			req.RemoteAddr = "10.0.0.1:5555"
			Audit(zap.New(core))(next).ServeHTTP(httptest.NewRecorder(), req)

			if tt.wantEvent == "" {
				if logs.Len() != 0 {
					t.Errorf("Expected no audit log, got %d", logs.Len())
				}
				return
			}
			entries := logs.FilterMessage(tt.wantEvent).All()
			if len(entries) != 1 {
				t.Fatalf("Expected one %s entry, got %d", tt.wantEvent, len(entries))
			}
			if ip := entries[0].ContextMap()["ip"]; ip != "10.0.0.1" {
				t.Errorf("Expected ip 10.0.0.1, got %v", ip)
			}
		})
	}
}
