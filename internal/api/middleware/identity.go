package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bazaarly/kernel/backend/internal/fingerprint"
)

const identityKey = "clientIdentity"

const seedCookieMaxAge = 365 * 24 * 60 * 60

// Identity is the requester as the kernel sees it. It is resolved fresh for every request.
type Identity struct {
	IP          string
	IPSource    string
	UserAgent   string
	Seed        string
	Fingerprint string
}

// IdentityConfig configures ClientIdentity.
type IdentityConfig struct {
	CookieName string
	Secure     bool
}

// ResolveIdentity computes the identity of r without touching the response.
func ResolveIdentity(r *http.Request, cookieName string) Identity {
	ip, source := fingerprint.Resolve(r)
	id := Identity{IP: ip, IPSource: source, UserAgent: r.UserAgent()}
	if cookieName != "" {
		if ck, err := r.Cookie(cookieName); err == nil {
			id.Seed = ck.Value
		}
	}
	id.Fingerprint, _ = fingerprint.Compute(id.IP, id.UserAgent, id.Seed)
	return id
}

// ClientIdentity resolves the requester's identity and issues a fingerprint seed cookie
// when the client has none. A freshly issued seed only affects later requests, so
// cookieless clients keep a stable ip+user-agent fingerprint.
func ClientIdentity(cfg IdentityConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := ResolveIdentity(c.Request, cfg.CookieName)
		if id.Seed == "" && cfg.CookieName != "" {
			http.SetCookie(c.Writer, &http.Cookie{
				Name:     cfg.CookieName,
				Value:    uuid.NewString(),
				Path:     "/",
				MaxAge:   seedCookieMaxAge,
				Secure:   cfg.Secure,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// GetIdentity returns the identity stored by ClientIdentity, resolving it on the spot when
// the middleware did not run.
func GetIdentity(c *gin.Context) Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(Identity); ok {
			return id
		}
	}
	return ResolveIdentity(c.Request, "")
}
