package gateway

import (
	"crypto/subtle"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/flemzord/agentbridge/internal/security"
)

var (
	errNoCredentials  = errors.New("missing authorization header")
	errBadCredentials = errors.New("invalid credentials")
)

// authenticator guards the admin routes. Every attempt counts against the
// auth rate-limit bucket and is recorded in the audit trail.
type authenticator struct {
	cfg     AuthConfig
	audit   *security.AuditLogger
	limiter *security.RateLimiter
}

func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.limiter != nil {
			if err := a.limiter.Allow(security.KindAuth); err != nil {
				a.record(security.EventRateLimit, r, "auth rate limit exceeded")
				secs := math.Ceil(a.limiter.RetryAfter(security.KindAuth).Seconds())
				w.Header().Set("Retry-After", strconv.Itoa(max(1, int(secs))))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
		}

		method, err := a.authenticate(r)
		if err != nil {
			a.record(security.EventAuthFailure, r, err.Error())
			w.Header().Set("WWW-Authenticate", a.challenge())
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		a.record(security.EventAuthSuccess, r, method)
		next.ServeHTTP(w, r)
	})
}

// authenticate returns the scheme that accepted the request. A bearer
// token is tried before basic credentials.
func (a *authenticator) authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errNoCredentials
	}
	if a.cfg.BearerToken != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok && equal(token, a.cfg.BearerToken) {
			return "bearer", nil
		}
	}
	if a.cfg.BasicUser != "" && a.cfg.BasicPass != "" {
		user, pass, ok := r.BasicAuth()
		// Both comparisons run so timing does not reveal a valid user.
		userOK := equal(user, a.cfg.BasicUser)
		passOK := equal(pass, a.cfg.BasicPass)
		if ok && userOK && passOK {
			return "basic", nil
		}
	}
	return "", errBadCredentials
}

func (a *authenticator) challenge() string {
	if a.cfg.BearerToken != "" {
		return `Bearer realm="agentbridge"`
	}
	return `Basic realm="agentbridge"`
}

func (a *authenticator) record(typ security.EventType, r *http.Request, detail string) {
	if a.audit == nil {
		return
	}
	a.audit.Log(security.AuditEvent{
		Type:   typ,
		Remote: r.RemoteAddr,
		Detail: detail,
		Metadata: map[string]string{
			"method": r.Method,
			"path":   r.URL.Path,
		},
	})
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
