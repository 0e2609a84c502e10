package security

// Service names under which the host publishes the shared security
// components on the core.AppContext.
const (
	CredentialsService = "security.credentials"
	RedactorService    = "security.redactor"
	AuditService       = "security.audit"
	RateLimiterService = "security.ratelimiter"
)
