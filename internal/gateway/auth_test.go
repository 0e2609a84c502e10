package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flemzord/agentbridge/internal/security"
	"github.com/flemzord/agentbridge/internal/security/securitytest"
)

func protected(a *authenticator) http.Handler {
	return a.middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
}

func TestAuthenticator(t *testing.T) {
	t.Parallel()

	both := AuthConfig{BearerToken: "admin-token", BasicUser: "ops", BasicPass: "hunter22"}

	tests := []struct {
		name      string
		cfg       AuthConfig
		setup     func(r *http.Request)
		want      int
		challenge string
	}{
		{
			name:  "valid bearer",
			cfg:   AuthConfig{BearerToken: "admin-token"},
			setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer admin-token") },
			want:  http.StatusOK,
		},
		{
			name:      "wrong bearer",
			cfg:       AuthConfig{BearerToken: "admin-token"},
			setup:     func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
			want:      http.StatusUnauthorized,
			challenge: `Bearer realm="agentbridge"`,
		},
		{
			name:  "valid basic",
			cfg:   AuthConfig{BasicUser: "ops", BasicPass: "hunter22"},
			setup: func(r *http.Request) { r.SetBasicAuth("ops", "hunter22") },
			want:  http.StatusOK,
		},
		{
			name:      "wrong basic password",
			cfg:       AuthConfig{BasicUser: "ops", BasicPass: "hunter22"},
			setup:     func(r *http.Request) { r.SetBasicAuth("ops", "guess") },
			want:      http.StatusUnauthorized,
			challenge: `Basic realm="agentbridge"`,
		},
		{
			name:  "basic accepted when bearer also configured",
			cfg:   both,
			setup: func(r *http.Request) { r.SetBasicAuth("ops", "hunter22") },
			want:  http.StatusOK,
		},
		{
			name:      "bearer scheme with basic secret",
			cfg:       both,
			setup:     func(r *http.Request) { r.Header.Set("Authorization", "Bearer hunter22") },
			want:      http.StatusUnauthorized,
			challenge: `Bearer realm="agentbridge"`,
		},
		{
			name:      "no header",
			cfg:       both,
			setup:     func(*http.Request) {},
			want:      http.StatusUnauthorized,
			challenge: `Bearer realm="agentbridge"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			tt.setup(req)
			rr := httptest.NewRecorder()
			protected(&authenticator{cfg: tt.cfg}).ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			if got := rr.Header().Get("WWW-Authenticate"); got != tt.challenge {
				t.Errorf("WWW-Authenticate = %q, want %q", got, tt.challenge)
			}
		})
	}
}

func TestAuthenticator_AuditTrail(t *testing.T) {
	t.Parallel()

	audit, rec := securitytest.NewAuditLogger()
	h := protected(&authenticator{cfg: AuthConfig{BearerToken: "admin-token"}, audit: audit})

	for _, header := range []string{"Bearer admin-token", "Bearer bad", ""} {
		req := httptest.NewRequest(http.MethodDelete, "/api/sessions/s1", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	events := rec.Events()
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	want := []struct {
		typ    security.EventType
		detail string
	}{
		{security.EventAuthSuccess, "bearer"},
		{security.EventAuthFailure, "invalid credentials"},
		{security.EventAuthFailure, "missing authorization header"},
	}
	for i, w := range want {
		if events[i].Type != w.typ || events[i].Detail != w.detail {
			t.Errorf("event %d = %s %q, want %s %q", i, events[i].Type, events[i].Detail, w.typ, w.detail)
		}
		if events[i].Metadata["path"] != "/api/sessions/s1" || events[i].Metadata["method"] != http.MethodDelete {
			t.Errorf("event %d metadata = %v", i, events[i].Metadata)
		}
	}
}

func TestAuthenticator_RateLimited(t *testing.T) {
	t.Parallel()

	audit, rec := securitytest.NewAuditLogger()
	limiter := security.NewRateLimiter(security.RateLimitConfig{AuthPerMin: 2})
	h := protected(&authenticator{cfg: AuthConfig{BearerToken: "admin-token"}, audit: audit, limiter: limiter})

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set("Authorization", "Bearer guess")
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}

	if codes[0] != http.StatusUnauthorized || codes[1] != http.StatusUnauthorized || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [401 401 429]", codes)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing on 429")
	}
	if got := rec.OfType(security.EventRateLimit); len(got) != 1 {
		t.Errorf("rate_limit events = %d, want 1", len(got))
	}
}

func TestAuthConfig_IsConfigured(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  AuthConfig
		want bool
	}{
		{"empty", AuthConfig{}, false},
		{"bearer only", AuthConfig{BearerToken: "tok"}, true},
		{"basic complete", AuthConfig{BasicUser: "u", BasicPass: "p"}, true},
		{"basic without password", AuthConfig{BasicUser: "u"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.cfg.IsConfigured(); got != tt.want {
				t.Errorf("IsConfigured() = %v, want %v", got, tt.want)
			}
		})
	}
}
