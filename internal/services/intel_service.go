package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bazaarly/kernel/backend/internal/models"
)

// IntelService reads and writes cached IP reputation data.
type IntelService struct {
	db     *gorm.DB
	schema *SchemaState
}

func NewIntelService(db *gorm.DB, schema *SchemaState) *IntelService {
	return &IntelService{db: db, schema: schema}
}

// LookupMany returns intel keyed by IP for whichever of ips have it. Lookups are
// best-effort: a missing table returns an empty map.
func (s *IntelService) LookupMany(ctx context.Context, ips []string) (map[string]*models.IPIntel, error) {
	out := map[string]*models.IPIntel{}
	if len(ips) == 0 || !s.schema.IntelReady() {
		return out, nil
	}
	var rows []models.IPIntel
	if err := s.db.WithContext(ctx).Where("ip IN ?", ips).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("lookup ip intel: %w", err)
	}
	for i := range rows {
		out[rows[i].IP] = &rows[i]
	}
	return out, nil
}

// Upsert stores intel for an IP, replacing any earlier record.
func (s *IntelService) Upsert(ctx context.Context, intel *models.IPIntel) error {
	if !s.schema.IntelReady() {
		return ErrMigrationNeeded
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ip"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"isp", "org", "asn", "is_vpn", "is_proxy", "is_tor", "is_datacenter",
			"is_blacklisted", "fraud_score", "abuse_score", "risk_level", "updated_at",
		}),
	}).Create(intel).Error
	if err != nil {
		return fmt.Errorf("upsert ip intel: %w", err)
	}
	return nil
}
