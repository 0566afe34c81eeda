package services

import (
	"errors"
	"sync/atomic"

	"gorm.io/gorm"

	"github.com/bazaarly/kernel/backend/internal/models"
)

// ErrMigrationNeeded is returned by writes against a kernel table that does not exist yet.
// Reads degrade to empty results and report the same condition as a flag instead.
var ErrMigrationNeeded = errors.New("kernel tables missing: migration needed")

// SchemaState caches which kernel tables exist. It is checked once at startup and
// refreshed periodically, so request handlers never inspect storage errors to learn the
// schema is incomplete.
type SchemaState struct {
	db     *gorm.DB
	events atomic.Bool
	trust  atomic.Bool
	blocks atomic.Bool
	intel  atomic.Bool
}

// NewSchemaState checks db immediately.
func NewSchemaState(db *gorm.DB) *SchemaState {
	s := &SchemaState{db: db}
	s.Refresh()
	return s
}

// Refresh rechecks every table.
func (s *SchemaState) Refresh() {
	m := s.db.Migrator()
	s.events.Store(m.HasTable(&models.SecurityEvent{}))
	s.trust.Store(m.HasTable(&models.TrustedActor{}))
	s.blocks.Store(m.HasTable(&models.IPBlock{}))
	s.intel.Store(m.HasTable(&models.IPIntel{}))
}

func (s *SchemaState) EventsReady() bool { return s.events.Load() }
func (s *SchemaState) TrustReady() bool  { return s.trust.Load() }
func (s *SchemaState) BlocksReady() bool { return s.blocks.Load() }
func (s *SchemaState) IntelReady() bool  { return s.intel.Load() }

// MissingTables names the tables that still need a migration.
func (s *SchemaState) MissingTables() []string {
	var missing []string
	if !s.EventsReady() {
		missing = append(missing, models.SecurityEvent{}.TableName())
	}
	if !s.TrustReady() {
		missing = append(missing, models.TrustedActor{}.TableName())
	}
	if !s.BlocksReady() {
		missing = append(missing, models.IPBlock{}.TableName())
	}
	if !s.IntelReady() {
		missing = append(missing, models.IPIntel{}.TableName())
	}
	return missing
}
