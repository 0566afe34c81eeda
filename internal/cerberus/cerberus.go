// Package cerberus is the request guard in front of the storefront API. It turns blocked
// IPs, blocked countries, trap endpoints, scanner paths and request floods into security
// events, rejecting the request where the condition calls for it.
package cerberus

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/bazaarly/kernel/backend/internal/api/middleware"
	"github.com/bazaarly/kernel/backend/internal/config"
	"github.com/bazaarly/kernel/backend/internal/geo"
	"github.com/bazaarly/kernel/backend/internal/logger"
	"github.com/bazaarly/kernel/backend/internal/metrics"
	"github.com/bazaarly/kernel/backend/internal/models"
)

// TrustChecker reports whether a requester is allow-listed.
type TrustChecker interface {
	IsTrusted(ctx context.Context, fingerprint, ip string) (bool, error)
}

// BlockChecker reports whether an IP is denied.
type BlockChecker interface {
	IsBlocked(ctx context.Context, ip string) (*models.IPBlock, bool, error)
}

// Deps are the collaborators the guard consults. Nil Trust or Blocks disable the
// corresponding checks; a nil Locator disables geo blocking.
type Deps struct {
	Events  middleware.EventLogger
	Trust   TrustChecker
	Blocks  BlockChecker
	Locator geo.Locator
}

// Cerberus evaluates every request against the configured security checks.
type Cerberus struct {
	cfg        config.SecurityConfig
	deps       Deps
	traps      map[string]struct{}
	suspicious []string
	countries  map[string]struct{}
	limiter    *limiterSet
	log        *logrus.Entry
}

// New creates a new Cerberus instance
func New(cfg config.SecurityConfig, deps Deps) *Cerberus {
	c := &Cerberus{
		cfg:       cfg,
		deps:      deps,
		traps:     make(map[string]struct{}),
		countries: make(map[string]struct{}),
		log:       logger.Component("guard"),
	}
	for _, p := range cfg.TrapPaths {
		if p = normalizePath(p); p != "" {
			c.traps[p] = struct{}{}
		}
	}
	for _, p := range cfg.SuspiciousPaths {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			c.suspicious = append(c.suspicious, p)
		}
	}
	if deps.Locator != nil {
		for _, cc := range cfg.BlockedCountries {
			if cc = strings.ToUpper(strings.TrimSpace(cc)); cc != "" {
				c.countries[cc] = struct{}{}
			}
		}
	}
	if cfg.RateLimitRPS > 0 {
		c.limiter = newLimiterSet(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	return c
}

// IsEnabled reports whether any check is configured.
func (c *Cerberus) IsEnabled() bool {
	return c.deps.Blocks != nil || len(c.traps) > 0 || len(c.suspicious) > 0 ||
		len(c.countries) > 0 || c.limiter != nil
}

// SweepLimiters forgets per-IP rate limiters idle for longer than maxIdle.
func (c *Cerberus) SweepLimiters(maxIdle time.Duration) int {
	if c.limiter == nil {
		return 0
	}
	return c.limiter.sweep(maxIdle)
}

// Middleware returns a Gin middleware that enforces Cerberus checks when enabled.
// Checks run in order: IP block, geo block, rate limit, trap, scanner path. The limiter
// comes before the trap so a client hammering a trap is throttled like any other flood.
// Trusted requesters pass the block, geo and rate checks; trap and scanner hits are
// always recorded.
func (c *Cerberus) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !c.IsEnabled() {
			ctx.Next()
			return
		}
		id := middleware.GetIdentity(ctx)
		path := ctx.Request.URL.Path
		trusted := c.trustLookup(ctx, id)

		if c.deps.Blocks != nil && id.IP != "" {
			block, blocked, err := c.deps.Blocks.IsBlocked(ctx.Request.Context(), id.IP)
			if err != nil {
				c.log.WithError(err).Warn("ip block check failed")
			} else if blocked && !trusted() {
				c.reject(ctx, models.EventIPBlock, http.StatusForbidden, "ip_block",
					models.BlockMetadata{Reason: block.Reason, BlockedBy: block.CreatedBy}, "access denied")
				return
			}
		}

		if len(c.countries) > 0 {
			if loc, ok := c.deps.Locator.Lookup(id.IP); ok {
				if _, denied := c.countries[strings.ToUpper(loc.CountryCode)]; denied && !trusted() {
					c.reject(ctx, models.EventGeoBlock, http.StatusForbidden, "geo_block",
						models.GeoBlockMetadata{Country: loc.CountryCode}, "access denied")
					return
				}
			}
		}

		if c.limiter != nil && id.IP != "" {
			if allowed, report := c.limiter.allow(id.IP); !allowed && !trusted() {
				meta := models.RateLimitMetadata{RPS: c.cfg.RateLimitRPS, Burst: c.limiter.burst}
				metrics.IncGuardRejected("rate_limit")
				if report {
					c.logEvent(ctx, models.EventRateLimited, http.StatusTooManyRequests, meta)
				}
				ctx.Header("Retry-After", "1")
				ctx.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
				return
			}
		}

		if c.matchTrap(path) {
			c.reject(ctx, models.EventTrapHit, http.StatusNotFound, "trap",
				models.TrapMetadata{Trap: path}, "not found")
			return
		}

		if pattern := c.matchSuspicious(path); pattern != "" {
			ctx.Next()
			c.logEvent(ctx, models.EventSuspiciousPath, ctx.Writer.Status(),
				models.SuspiciousPathMetadata{Pattern: pattern})
			return
		}

		ctx.Next()
	}
}

// trustLookup returns a memoized trust check so requests that trip nothing never touch
// the trust table.
func (c *Cerberus) trustLookup(ctx *gin.Context, id middleware.Identity) func() bool {
	var done, trusted bool
	return func() bool {
		if done {
			return trusted
		}
		done = true
		if c.deps.Trust == nil {
			return false
		}
		ok, err := c.deps.Trust.IsTrusted(ctx.Request.Context(), id.Fingerprint, id.IP)
		if err != nil {
			c.log.WithError(err).Warn("trust check failed")
			return false
		}
		trusted = ok
		return trusted
	}
}

func (c *Cerberus) reject(ctx *gin.Context, typ models.EventType, status int, reason string, meta models.EventMetadata, msg string) {
	metrics.IncGuardRejected(reason)
	c.logEvent(ctx, typ, status, meta)
	ctx.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func (c *Cerberus) logEvent(ctx *gin.Context, typ models.EventType, status int, meta models.EventMetadata) {
	c.log.WithFields(logrus.Fields{
		"event_type": typ,
		"status":     status,
		"ip":         middleware.GetIdentity(ctx).IP,
		"path":       middleware.SanitizePath(ctx.Request.URL.Path),
	}).Info("guard decision")
	if c.deps.Events != nil {
		c.deps.Events.LogEvent(middleware.SecurityEventInput(ctx, typ, status, meta))
	}
}

// matchTrap reports whether path is a trap or lies under one.
func (c *Cerberus) matchTrap(path string) bool {
	p := normalizePath(path)
	for {
		if _, ok := c.traps[p]; ok {
			return true
		}
		i := strings.LastIndexByte(p, '/')
		if i <= 0 {
			return false
		}
		p = p[:i]
	}
}

func (c *Cerberus) matchSuspicious(path string) string {
	lower := strings.ToLower(path)
	for _, p := range c.suspicious {
		if strings.Contains(lower, p) {
			return p
		}
	}
	return ""
}

func normalizePath(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}
