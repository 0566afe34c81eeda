package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/bazaarly/kernel/backend/internal/fingerprint"
	"github.com/bazaarly/kernel/backend/internal/models"
)

var (
	ErrTrustIdentifierRequired = errors.New("fingerprint or ip is required")
	ErrTrustedActorNotFound    = errors.New("trusted actor not found")
)

// TrustIndex is an in-memory view of the active trusted actors used for joins.
type TrustIndex struct {
	fingerprints map[string]string
	ips          map[string]string
}

func newTrustIndex() *TrustIndex {
	return &TrustIndex{fingerprints: map[string]string{}, ips: map[string]string{}}
}

// Match returns the label of the first trusted row matching any of the fingerprints or
// ips. Empty identifiers never match.
func (t *TrustIndex) Match(fingerprints, ips []string) (string, bool) {
	for _, fp := range fingerprints {
		if fp == "" {
			continue
		}
		if label, ok := t.fingerprints[fp]; ok {
			return label, true
		}
	}
	for _, ip := range ips {
		if ip == "" {
			continue
		}
		if label, ok := t.ips[ip]; ok {
			return label, true
		}
	}
	return "", false
}

// Len is the number of distinct trusted identifiers.
func (t *TrustIndex) Len() int { return len(t.fingerprints) + len(t.ips) }

// TrustService manages the trusted-actor allow list.
type TrustService struct {
	db     *gorm.DB
	schema *SchemaState
}

// NewTrustService creates a new trust service.
func NewTrustService(db *gorm.DB, schema *SchemaState) *TrustService {
	return &TrustService{db: db, schema: schema}
}

// List returns trusted actors, newest first. A missing table yields an empty list and
// migrationNeeded=true.
func (s *TrustService) List(ctx context.Context, includeInactive bool) (actors []models.TrustedActor, migrationNeeded bool, err error) {
	actors = []models.TrustedActor{}
	if !s.schema.TrustReady() {
		return actors, true, nil
	}
	tx := s.db.WithContext(ctx)
	if !includeInactive {
		tx = tx.Where("is_active = ?", true)
	}
	if err := tx.Order("created_at DESC, id DESC").Find(&actors).Error; err != nil {
		return nil, false, fmt.Errorf("list trusted actors: %w", err)
	}
	return actors, false, nil
}

// Add trusts a fingerprint, an IP, or both. Each identifier is upserted independently so
// either lookup path matches; re-adding reactivates the row and replaces its label.
func (s *TrustService) Add(ctx context.Context, fp, ip, label string) ([]models.TrustedActor, error) {
	fp = strings.TrimSpace(fp)
	ip = strings.TrimSpace(ip)
	if fp == "" && ip == "" {
		return nil, ErrTrustIdentifierRequired
	}
	if ip != "" {
		if !fingerprint.ValidIP(ip) {
			return nil, ErrInvalidIP
		}
		ip = fingerprint.NormalizeIP(ip)
	}
	if !s.schema.TrustReady() {
		return nil, ErrMigrationNeeded
	}
	label = strings.TrimSpace(label)

	var out []models.TrustedActor
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if fp != "" {
			row, err := upsertTrusted(tx, "fingerprint", fp, label)
			if err != nil {
				return err
			}
			out = append(out, *row)
		}
		if ip != "" {
			row, err := upsertTrusted(tx, "ip", ip, label)
			if err != nil {
				return err
			}
			out = append(out, *row)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add trusted actor: %w", err)
	}
	return out, nil
}

// upsertTrusted finds the single-identifier row for column=value and reactivates it, or
// creates it.
func upsertTrusted(tx *gorm.DB, column, value, label string) (*models.TrustedActor, error) {
	other := "ip"
	if column == "ip" {
		other = "fingerprint"
	}
	var row models.TrustedActor
	err := tx.Where(column+" = ? AND "+other+" IS NULL", value).Order("id ASC").First(&row).Error
	switch {
	case err == nil:
		row.IsActive = true
		if label != "" {
			row.Label = label
		}
		if err := tx.Save(&row).Error; err != nil {
			return nil, err
		}
		return &row, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = models.TrustedActor{Label: label, IsActive: true}
		if column == "ip" {
			row.IP = &value
		} else {
			row.Fingerprint = &value
		}
		if err := tx.Create(&row).Error; err != nil {
			return nil, err
		}
		return &row, nil
	default:
		return nil, err
	}
}

// Deactivate soft-deletes a trusted actor by id.
func (s *TrustService) Deactivate(ctx context.Context, id uint) error {
	if !s.schema.TrustReady() {
		return ErrMigrationNeeded
	}
	res := s.db.WithContext(ctx).Model(&models.TrustedActor{}).
		Where("id = ?", id).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("deactivate trusted actor: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTrustedActorNotFound
	}
	return nil
}

// IsTrusted reports whether fp or ip belongs to an active trusted actor. A missing table
// means nothing is trusted.
func (s *TrustService) IsTrusted(ctx context.Context, fp, ip string) (bool, error) {
	if !s.schema.TrustReady() {
		return false, nil
	}
	return isTrustedTx(s.db.WithContext(ctx), fp, ip)
}

func isTrustedTx(tx *gorm.DB, fp, ip string) (bool, error) {
	if fp == "" && ip == "" {
		return false, nil
	}
	q := tx.Model(&models.TrustedActor{}).Where("is_active = ?", true)
	switch {
	case fp != "" && ip != "":
		q = q.Where("fingerprint = ? OR ip = ?", fp, ip)
	case fp != "":
		q = q.Where("fingerprint = ?", fp)
	default:
		q = q.Where("ip = ?", ip)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, fmt.Errorf("check trusted actor: %w", err)
	}
	return n > 0, nil
}

// Index loads every active trusted identifier. A missing table yields an empty index and
// migrationNeeded=true.
func (s *TrustService) Index(ctx context.Context) (idx *TrustIndex, migrationNeeded bool, err error) {
	idx = newTrustIndex()
	if !s.schema.TrustReady() {
		return idx, true, nil
	}
	var rows []models.TrustedActor
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, false, fmt.Errorf("load trusted actors: %w", err)
	}
	for _, r := range rows {
		if fp := models.Deref(r.Fingerprint); fp != "" {
			if _, seen := idx.fingerprints[fp]; !seen {
				idx.fingerprints[fp] = r.Label
			}
		}
		if ip := models.Deref(r.IP); ip != "" {
			if _, seen := idx.ips[ip]; !seen {
				idx.ips[ip] = r.Label
			}
		}
	}
	return idx, false, nil
}
