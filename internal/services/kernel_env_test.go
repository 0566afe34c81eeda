package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bazaarly/kernel/backend/internal/database"
	"github.com/bazaarly/kernel/backend/internal/geo"
	"github.com/bazaarly/kernel/backend/internal/models"
)

const (
	linuxUA   = "Mozilla/5.0 (X11; Linux x86_64) curl-ish"
	androidUA = "Mozilla/5.0 (Linux; Android 14; Pixel 8)"
	macUA     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0)"
)

type kernelEnv struct {
	db        *gorm.DB
	schema    *SchemaState
	events    *SecurityEventService
	trust     *TrustService
	blocks    *BlockService
	intel     *IntelService
	watchlist *WatchlistService
}

func newKernelEnv(t *testing.T) *kernelEnv {
	t.Helper()
	return buildKernelEnv(database.OpenMigratedTestDB(t))
}

func buildKernelEnv(db *gorm.DB) *kernelEnv {
	schema := NewSchemaState(db)
	trust := NewTrustService(db, schema)
	blocks := NewBlockService(db, schema)
	intel := NewIntelService(db, schema)
	return &kernelEnv{
		db:        db,
		schema:    schema,
		events:    NewSecurityEventService(db, schema, geo.NopLocator{}),
		trust:     trust,
		blocks:    blocks,
		intel:     intel,
		watchlist: NewWatchlistService(db, schema, trust, blocks, intel),
	}
}

func (e *kernelEnv) seed(t *testing.T, typ models.EventType, fp, ip, ua string, age time.Duration) {
	t.Helper()
	_, err := e.events.Record(context.Background(), EventInput{
		Type:        typ,
		Path:        "/wp-login.php",
		IP:          ip,
		UserAgent:   ua,
		Fingerprint: fp,
		At:          time.Now().Add(-age),
	})
	require.NoError(t, err)
}

func (e *kernelEnv) seedN(t *testing.T, n int, typ models.EventType, fp, ip, ua string) {
	t.Helper()
	for i := 0; i < n; i++ {
		e.seed(t, typ, fp, ip, ua, time.Duration(i+1)*time.Minute)
	}
}
