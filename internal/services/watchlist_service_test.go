package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazaarly/kernel/backend/internal/database"
	"github.com/bazaarly/kernel/backend/internal/models"
)

func findActor(actors []models.WatchlistActor, key string) *models.WatchlistActor {
	for i := range actors {
		if actors[i].ActorKey == key {
			return &actors[i]
		}
	}
	return nil
}

func seedTrapActorAndScanner(t *testing.T, env *kernelEnv) {
	t.Helper()
	env.seedN(t, 3, models.EventTrapHit, "F1", "203.0.113.1", linuxUA)
	env.seed(t, models.EventAdminForbidden, "F1", "203.0.113.1", linuxUA, 30*time.Minute)
	env.seedN(t, 5, models.EventSuspiciousPath, "F2", "203.0.113.2", "")
}

func TestWatchlist_TrapHitsRankFirst(t *testing.T) {
	env := newKernelEnv(t)
	seedTrapActorAndScanner(t, env)

	res, err := env.watchlist.List(context.Background(), WatchlistQuery{Days: 7})
	require.NoError(t, err)
	require.Len(t, res.Actors, 2)

	f1 := res.Actors[0]
	assert.Equal(t, "F1", f1.ActorKey)
	assert.Equal(t, 3, f1.TrapHits)
	assert.Equal(t, 1, f1.AdminForbidden)
	assert.Equal(t, 4, f1.TotalEvents)
	assert.Equal(t, 4, f1.SuspiciousEvents)
	assert.Equal(t, models.UAClassLinux, f1.UAClass)
	assert.Equal(t, "203.0.113.1", f1.IP)
	assert.True(t, f1.Emergency)
	assert.False(t, f1.IsTrusted)
	assert.True(t, !f1.FirstSeen.After(f1.LastSeen))

	f2 := res.Actors[1]
	assert.Equal(t, "F2", f2.ActorKey)
	assert.Equal(t, 5, f2.SuspiciousPath)
	assert.Equal(t, models.UAClassUnknown, f2.UAClass)
	assert.False(t, f2.Emergency)
}

func TestWatchlist_TrustedActorIsNeverEmergency(t *testing.T) {
	env := newKernelEnv(t)
	seedTrapActorAndScanner(t, env)
	ctx := context.Background()

	_, err := env.trust.Add(ctx, "F1", "", "pentest team")
	require.NoError(t, err)

	res, err := env.watchlist.List(ctx, WatchlistQuery{Days: 7})
	require.NoError(t, err)
	f1 := findActor(res.Actors, "F1")
	require.NotNil(t, f1)
	assert.True(t, f1.IsTrusted)
	assert.Equal(t, "pentest team", f1.TrustedLabel)
	assert.False(t, f1.Emergency)
	assert.Equal(t, 3, f1.TrapHits, "counts are unchanged by trust")
	assert.Equal(t, 1, f1.AdminForbidden)
}

func TestWatchlist_TrustByIPMatches(t *testing.T) {
	env := newKernelEnv(t)
	seedTrapActorAndScanner(t, env)
	ctx := context.Background()
	_, err := env.trust.Add(ctx, "", "203.0.113.1", "")
	require.NoError(t, err)

	res, err := env.watchlist.List(ctx, WatchlistQuery{Days: 7})
	require.NoError(t, err)
	f1 := findActor(res.Actors, "F1")
	require.NotNil(t, f1)
	assert.True(t, f1.IsTrusted)
	assert.False(t, f1.Emergency)
}

func TestWatchlist_SelfExclusion(t *testing.T) {
	env := newKernelEnv(t)
	seedTrapActorAndScanner(t, env)
	ctx := context.Background()

	byFP, err := env.watchlist.List(ctx, WatchlistQuery{Days: 7, ExcludeFingerprint: "F1"})
	require.NoError(t, err)
	assert.Nil(t, findActor(byFP.Actors, "F1"))
	assert.NotNil(t, findActor(byFP.Actors, "F2"))

	byIP, err := env.watchlist.List(ctx, WatchlistQuery{Days: 7, ExcludeIP: "203.0.113.2"})
	require.NoError(t, err)
	assert.Nil(t, findActor(byIP.Actors, "F2"))
	assert.NotNil(t, findActor(byIP.Actors, "F1"))
}

func TestWatchlist_PopulationFilter(t *testing.T) {
	env := newKernelEnv(t)
	env.seedN(t, 2, models.EventTrapHit, "MAC", "198.51.100.1", macUA)
	env.seedN(t, 2, models.EventTrapHit, "ANDROID", "198.51.100.2", androidUA)
	env.seedN(t, 1, models.EventTrapHit, "", "198.51.100.3", "")

	res, err := env.watchlist.List(context.Background(), WatchlistQuery{Days: 7})
	require.NoError(t, err)
	require.Len(t, res.Actors, 1)
	assert.Equal(t, "198.51.100.3", res.Actors[0].IP)
	assert.Equal(t, models.UAClassUnknown, res.Actors[0].UAClass)
}

func TestWatchlist_IgnoresLowRiskAndOldEvents(t *testing.T) {
	env := newKernelEnv(t)
	env.seedN(t, 3, models.EventAuthFailed, "F1", "198.51.100.1", linuxUA)
	env.seedN(t, 1, models.EventGeoBlock, "F1", "198.51.100.1", linuxUA)
	env.seed(t, models.EventTrapHit, "OLD", "198.51.100.2", linuxUA, 8*24*time.Hour)

	res, err := env.watchlist.List(context.Background(), WatchlistQuery{Days: 7})
	require.NoError(t, err)
	assert.Empty(t, res.Actors)

	wider, err := env.watchlist.List(context.Background(), WatchlistQuery{Days: 14})
	require.NoError(t, err)
	assert.NotNil(t, findActor(wider.Actors, "OLD"))
}

func TestWatchlist_RankingTieBreaks(t *testing.T) {
	env := newKernelEnv(t)
	env.seedN(t, 2, models.EventAdminForbidden, "A", "198.51.100.1", linuxUA)
	env.seedN(t, 4, models.EventSuspiciousPath, "B", "198.51.100.2", linuxUA)
	env.seedN(t, 6, models.EventRateLimited, "C", "198.51.100.3", linuxUA)
	env.seedN(t, 1, models.EventTrapHit, "D", "198.51.100.4", linuxUA)

	res, err := env.watchlist.List(context.Background(), WatchlistQuery{Days: 7})
	require.NoError(t, err)
	var keys []string
	for _, a := range res.Actors {
		keys = append(keys, a.ActorKey)
	}
	// rate_limited defaults to info severity so C has no suspicious events.
	assert.Equal(t, []string{"D", "A", "B", "C"}, keys)

	limited, err := env.watchlist.List(context.Background(), WatchlistQuery{Days: 7, Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited.Actors, 2)
	assert.Equal(t, "D", limited.Actors[0].ActorKey)
}

func TestWatchlist_BlockedAndIntelEnrichment(t *testing.T) {
	env := newKernelEnv(t)
	ctx := context.Background()
	env.seedN(t, 1, models.EventTrapHit, "F1", "198.51.100.7", linuxUA)
	_, err := env.blocks.Add(ctx, BlockRequest{IP: "198.51.100.7"})
	require.NoError(t, err)
	require.NoError(t, env.intel.Upsert(ctx, &models.IPIntel{IP: "198.51.100.7", IsTor: true, FraudScore: 90, RiskLevel: "high"}))

	res, err := env.watchlist.List(ctx, WatchlistQuery{Days: 7, WithIntel: true})
	require.NoError(t, err)
	require.Len(t, res.Actors, 1)
	assert.True(t, res.Actors[0].IsBlocked)
	require.NotNil(t, res.Actors[0].Intel)
	assert.True(t, res.Actors[0].Intel.IsTor)
	assert.Equal(t, 90, res.Actors[0].Intel.FraudScore)

	plain, err := env.watchlist.List(ctx, WatchlistQuery{Days: 7})
	require.NoError(t, err)
	assert.Nil(t, plain.Actors[0].Intel)
}

func TestWatchlist_DegradesWithoutTrustTables(t *testing.T) {
	db := database.OpenTestDB(t)
	require.NoError(t, db.AutoMigrate(&models.SecurityEvent{}))
	env := buildKernelEnv(db)
	env.seedN(t, 2, models.EventTrapHit, "F1", "198.51.100.1", linuxUA)

	res, err := env.watchlist.List(context.Background(), WatchlistQuery{Days: 7, WithIntel: true})
	require.NoError(t, err)
	assert.True(t, res.MigrationNeeded)
	require.Len(t, res.Actors, 1)
	assert.False(t, res.Actors[0].IsTrusted)
	assert.True(t, res.Actors[0].Emergency)
}

func TestWatchlist_MissingEventsTable(t *testing.T) {
	env := buildKernelEnv(database.OpenTestDB(t))
	res, err := env.watchlist.List(context.Background(), WatchlistQuery{})
	require.NoError(t, err)
	assert.True(t, res.MigrationNeeded)
	assert.Empty(t, res.Actors)

	set, err := env.watchlist.SuspiciousActors(context.Background(), SuspicionQuery{})
	require.NoError(t, err)
	assert.True(t, set.MigrationNeeded)
	assert.Equal(t, 0, set.Len())
}

func TestSuspiciousActors(t *testing.T) {
	env := newKernelEnv(t)
	env.seedN(t, 1, models.EventTrapHit, "TRAP", "198.51.100.1", macUA)
	env.seedN(t, 6, models.EventAuthLoginFailed, "", "198.51.100.2", macUA)
	env.seedN(t, 5, models.EventAuthFailed, "FIVE", "198.51.100.3", macUA)
	env.seedN(t, 9, models.EventSuspiciousPath, "SCAN", "198.51.100.4", linuxUA)

	set, err := env.watchlist.SuspiciousActors(context.Background(), SuspicionQuery{Days: 7})
	require.NoError(t, err)
	assert.True(t, set.Matches("TRAP", ""))
	assert.True(t, set.Matches("", "198.51.100.1"), "ips seen for a suspicious actor match too")
	assert.True(t, set.Matches("other-fp", "198.51.100.2"))
	assert.False(t, set.Matches("FIVE", "198.51.100.3"), "five failed logins is not above the threshold")
	assert.False(t, set.Matches("SCAN", "198.51.100.4"))
	assert.False(t, set.Matches("", ""))

	mine, err := env.watchlist.SuspiciousActors(context.Background(), SuspicionQuery{Days: 7, ExcludeIP: "198.51.100.2"})
	require.NoError(t, err)
	assert.False(t, mine.Matches("", "198.51.100.2"))
}
