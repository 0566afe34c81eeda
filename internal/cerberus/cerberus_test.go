package cerberus_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazaarly/kernel/backend/internal/api/middleware"
	"github.com/bazaarly/kernel/backend/internal/cerberus"
	"github.com/bazaarly/kernel/backend/internal/config"
	"github.com/bazaarly/kernel/backend/internal/database"
	"github.com/bazaarly/kernel/backend/internal/geo"
	"github.com/bazaarly/kernel/backend/internal/logger"
	"github.com/bazaarly/kernel/backend/internal/models"
	"github.com/bazaarly/kernel/backend/internal/services"
)

type captured struct {
	mu     sync.Mutex
	events []services.EventInput
}

func (c *captured) LogEvent(in services.EventInput) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, in)
}

func (c *captured) types() []models.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.EventType
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

type countryLocator map[string]string

func (l countryLocator) Lookup(ip string) (geo.Location, bool) {
	cc, ok := l[ip]
	return geo.Location{CountryCode: cc}, ok
}

type guardEnv struct {
	trust  *services.TrustService
	blocks *services.BlockService
	events *captured
	guard  *cerberus.Cerberus
	router *gin.Engine
}

func newGuardEnv(t *testing.T, cfg config.SecurityConfig, locator geo.Locator) *guardEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := database.OpenMigratedTestDB(t)
	schema := services.NewSchemaState(db)
	env := &guardEnv{
		trust:  services.NewTrustService(db, schema),
		blocks: services.NewBlockService(db, schema),
		events: &captured{},
	}
	env.guard = cerberus.New(cfg, cerberus.Deps{
		Events:  env.events,
		Trust:   env.trust,
		Blocks:  env.blocks,
		Locator: locator,
	})
	r := gin.New()
	r.Use(middleware.ClientIdentity(middleware.IdentityConfig{CookieName: "bz_fp"}))
	r.Use(env.guard.Middleware())
	r.GET("/api/v1/products", func(c *gin.Context) { c.String(http.StatusOK, "products") })
	env.router = r
	return env
}

func (e *guardEnv) get(path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = ip + ":40000"
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestGuard_BlockedIP(t *testing.T) {
	env := newGuardEnv(t, config.SecurityConfig{}, nil)
	ctx := context.Background()
	_, err := env.blocks.Add(ctx, services.BlockRequest{IP: "203.0.113.50", Reason: "scraper", Operator: "alice"})
	require.NoError(t, err)

	w := env.get("/api/v1/products", "203.0.113.50")
	assert.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, []models.EventType{models.EventIPBlock}, env.events.types())
	assert.Equal(t, "scraper", env.events.events[0].Metadata.Fields()["reason"])

	assert.Equal(t, http.StatusOK, env.get("/api/v1/products", "203.0.113.51").Code)
}

func TestGuard_UnblockedRequestsLogNoErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	logger.Init(false, buf)
	t.Cleanup(func() { logger.Init(false, nil) })

	env := newGuardEnv(t, config.SecurityConfig{}, nil)
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, env.get("/api/v1/products", "203.0.113.2").Code)
	}
	assert.NotContains(t, buf.String(), "record not found")
	assert.NotContains(t, buf.String(), `"level":"error"`)
}

func TestGuard_TrustedIPBypassesBlock(t *testing.T) {
	env := newGuardEnv(t, config.SecurityConfig{}, nil)
	ctx := context.Background()
	_, err := env.blocks.Add(ctx, services.BlockRequest{IP: "203.0.113.50"})
	require.NoError(t, err)
	_, err = env.trust.Add(ctx, "", "203.0.113.50", "office")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, env.get("/api/v1/products", "203.0.113.50").Code)
	assert.Empty(t, env.events.types())
}

func TestGuard_TrapAlwaysRecorded(t *testing.T) {
	env := newGuardEnv(t, config.SecurityConfig{TrapPaths: []string{"/admin/backup.sql"}}, nil)
	_, err := env.trust.Add(context.Background(), "", "198.51.100.1", "pentester")
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, env.get("/admin/backup.sql", "203.0.113.60").Code)
	assert.Equal(t, http.StatusNotFound, env.get("/ADMIN/backup.sql/", "198.51.100.1").Code)
	assert.Equal(t, []models.EventType{models.EventTrapHit, models.EventTrapHit}, env.events.types())
}

func TestGuard_TrapCoversSubpaths(t *testing.T) {
	env := newGuardEnv(t, config.SecurityConfig{TrapPaths: []string{"/api/v1/debug"}}, nil)

	assert.Equal(t, http.StatusNotFound, env.get("/api/v1/debug/vars", "203.0.113.61").Code)
	assert.Equal(t, http.StatusOK, env.get("/api/v1/products", "203.0.113.61").Code)
	assert.Equal(t, []models.EventType{models.EventTrapHit}, env.events.types())
}

func TestGuard_SuspiciousPathPassesThrough(t *testing.T) {
	env := newGuardEnv(t, config.SecurityConfig{SuspiciousPaths: []string{"/.env", "/wp-login.php"}}, nil)

	w := env.get("/blog/wp-login.php", "203.0.113.70")
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.Len(t, env.events.events, 1)
	ev := env.events.events[0]
	assert.Equal(t, models.EventSuspiciousPath, ev.Type)
	assert.Equal(t, http.StatusNotFound, ev.StatusCode)
	assert.Equal(t, "/wp-login.php", ev.Metadata.Fields()["pattern"])
}

func TestGuard_GeoBlock(t *testing.T) {
	env := newGuardEnv(t, config.SecurityConfig{BlockedCountries: []string{"kp"}}, countryLocator{"175.45.176.1": "KP"})

	assert.Equal(t, http.StatusForbidden, env.get("/api/v1/products", "175.45.176.1").Code)
	assert.Equal(t, http.StatusOK, env.get("/api/v1/products", "203.0.113.80").Code)
	assert.Equal(t, []models.EventType{models.EventGeoBlock}, env.events.types())
}

func TestGuard_RateLimit(t *testing.T) {
	env := newGuardEnv(t, config.SecurityConfig{RateLimitRPS: 0.001, RateLimitBurst: 2}, nil)

	assert.Equal(t, http.StatusOK, env.get("/api/v1/products", "203.0.113.90").Code)
	assert.Equal(t, http.StatusOK, env.get("/api/v1/products", "203.0.113.90").Code)
	w := env.get("/api/v1/products", "203.0.113.90")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusTooManyRequests, env.get("/api/v1/products", "203.0.113.90").Code)

	assert.Equal(t, []models.EventType{models.EventRateLimited}, env.events.types(), "one event per interval")
	assert.Equal(t, http.StatusOK, env.get("/api/v1/products", "203.0.113.91").Code)

	assert.Equal(t, 0, env.guard.SweepLimiters(time.Hour))
	assert.Equal(t, 2, env.guard.SweepLimiters(-time.Second))
}

func TestGuard_TrapFloodIsThrottled(t *testing.T) {
	env := newGuardEnv(t, config.SecurityConfig{
		TrapPaths:      []string{"/api/v1/debug/vars"},
		RateLimitRPS:   0.001,
		RateLimitBurst: 2,
	}, nil)

	codes := map[int]int{}
	for i := 0; i < 200; i++ {
		codes[env.get("/api/v1/debug/vars", "203.0.113.99").Code]++
	}
	assert.Equal(t, 2, codes[http.StatusNotFound])
	assert.Equal(t, 198, codes[http.StatusTooManyRequests])

	var traps, limited int
	for _, typ := range env.events.types() {
		switch typ {
		case models.EventTrapHit:
			traps++
		case models.EventRateLimited:
			limited++
		}
	}
	assert.Equal(t, 2, traps)
	assert.Equal(t, 1, limited)
}

func TestGuard_RateLimitSkipsTrusted(t *testing.T) {
	env := newGuardEnv(t, config.SecurityConfig{RateLimitRPS: 0.001, RateLimitBurst: 1}, nil)
	_, err := env.trust.Add(context.Background(), "", "203.0.113.95", "load test")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, env.get("/api/v1/products", "203.0.113.95").Code)
	}
	assert.Empty(t, env.events.types())
}

func TestGuard_Disabled(t *testing.T) {
	g := cerberus.New(config.SecurityConfig{}, cerberus.Deps{})
	assert.False(t, g.IsEnabled())
	assert.Equal(t, 0, g.SweepLimiters(time.Minute))
}
