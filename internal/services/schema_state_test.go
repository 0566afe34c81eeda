package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazaarly/kernel/backend/internal/database"
	"github.com/bazaarly/kernel/backend/internal/models"
)

func TestSchemaState_RefreshSeesNewTables(t *testing.T) {
	db := database.OpenTestDB(t)
	state := NewSchemaState(db)
	assert.False(t, state.EventsReady())
	assert.Len(t, state.MissingTables(), 4)

	require.NoError(t, db.AutoMigrate(&models.SecurityEvent{}))
	assert.False(t, state.EventsReady(), "state is cached until refreshed")

	state.Refresh()
	assert.True(t, state.EventsReady())
	assert.False(t, state.TrustReady())
	assert.Equal(t, []string{"security_trusted_actors", "security_ip_blocks", "ip_intel"}, state.MissingTables())
}
