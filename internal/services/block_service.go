package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/bazaarly/kernel/backend/internal/fingerprint"
	"github.com/bazaarly/kernel/backend/internal/models"
)

var (
	ErrInvalidIP     = errors.New("invalid ip address")
	ErrSelfBlock     = errors.New("refusing to block your own ip")
	ErrBlockTrusted  = errors.New("refusing to block a trusted ip")
	ErrBlockNotFound = errors.New("ip block not found")
)

// BlockRequest is an operator's request to deny an IP.
type BlockRequest struct {
	IP          string
	Reason      string
	Operator    string
	RequesterIP string
}

// BlockService manages the IP deny list.
type BlockService struct {
	db     *gorm.DB
	schema *SchemaState
}

// NewBlockService creates a new block service.
func NewBlockService(db *gorm.DB, schema *SchemaState) *BlockService {
	return &BlockService{db: db, schema: schema}
}

// List returns blocks, newest first. A missing table yields an empty list and
// migrationNeeded=true.
func (s *BlockService) List(ctx context.Context, includeInactive bool) (blocks []models.IPBlock, migrationNeeded bool, err error) {
	blocks = []models.IPBlock{}
	if !s.schema.BlocksReady() {
		return blocks, true, nil
	}
	tx := s.db.WithContext(ctx)
	if !includeInactive {
		tx = tx.Where("is_active = ?", true)
	}
	if err := tx.Order("updated_at DESC, id DESC").Find(&blocks).Error; err != nil {
		return nil, false, fmt.Errorf("list ip blocks: %w", err)
	}
	return blocks, false, nil
}

// Add blocks an IP. The checks run in order: the IP must parse, must not be the
// requester's own IP, and must not be trusted. Trust is checked again inside the write
// transaction so a concurrent trust grant cannot slip between check and insert.
func (s *BlockService) Add(ctx context.Context, req BlockRequest) (*models.IPBlock, error) {
	raw := strings.TrimSpace(req.IP)
	if raw == "" || !fingerprint.ValidIP(raw) {
		return nil, ErrInvalidIP
	}
	ip := fingerprint.NormalizeIP(raw)

	if self := fingerprint.NormalizeIP(req.RequesterIP); self != "" && self == ip {
		return nil, ErrSelfBlock
	}
	if !s.schema.BlocksReady() {
		return nil, ErrMigrationNeeded
	}

	trustReady := s.schema.TrustReady()
	if trustReady {
		trusted, err := isTrustedTx(s.db.WithContext(ctx), "", ip)
		if err != nil {
			return nil, err
		}
		if trusted {
			return nil, ErrBlockTrusted
		}
	}

	var block models.IPBlock
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if trustReady {
			trusted, err := isTrustedTx(tx, "", ip)
			if err != nil {
				return err
			}
			if trusted {
				return ErrBlockTrusted
			}
		}

		err := tx.Where("ip = ?", ip).First(&block).Error
		switch {
		case err == nil:
			block.IsActive = true
			block.Reason = req.Reason
			block.CreatedBy = req.Operator
			return tx.Save(&block).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			block = models.IPBlock{
				IP:        ip,
				Reason:    req.Reason,
				IsActive:  true,
				CreatedBy: req.Operator,
			}
			return tx.Create(&block).Error
		default:
			return err
		}
	})
	if err != nil {
		if errors.Is(err, ErrBlockTrusted) {
			return nil, err
		}
		return nil, fmt.Errorf("add ip block: %w", err)
	}
	return &block, nil
}

// Deactivate soft-deletes the block for ip.
func (s *BlockService) Deactivate(ctx context.Context, ip string) error {
	if !fingerprint.ValidIP(ip) {
		return ErrInvalidIP
	}
	if !s.schema.BlocksReady() {
		return ErrMigrationNeeded
	}
	res := s.db.WithContext(ctx).Model(&models.IPBlock{}).
		Where("ip = ?", fingerprint.NormalizeIP(ip)).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("deactivate ip block: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrBlockNotFound
	}
	return nil
}

// IsBlocked reports whether ip has an active block. A missing table blocks nothing.
func (s *BlockService) IsBlocked(ctx context.Context, ip string) (*models.IPBlock, bool, error) {
	if ip == "" || !s.schema.BlocksReady() {
		return nil, false, nil
	}
	var block models.IPBlock
	err := s.db.WithContext(ctx).Where("ip = ? AND is_active = ?", ip, true).First(&block).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("check ip block: %w", err)
	}
	return &block, true, nil
}

// ActiveSet returns every actively blocked IP.
func (s *BlockService) ActiveSet(ctx context.Context) (map[string]struct{}, error) {
	set := map[string]struct{}{}
	if !s.schema.BlocksReady() {
		return set, nil
	}
	var ips []string
	if err := s.db.WithContext(ctx).Model(&models.IPBlock{}).Where("is_active = ?", true).Pluck("ip", &ips).Error; err != nil {
		return nil, fmt.Errorf("load ip blocks: %w", err)
	}
	for _, ip := range ips {
		set[ip] = struct{}{}
	}
	return set, nil
}
