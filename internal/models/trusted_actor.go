package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TrustedActor allow-lists a fingerprint or an IP. A single row carries one identifier;
// trusting both a fingerprint and an IP writes two rows so either lookup path matches.
// Rows are deactivated, never deleted.
type TrustedActor struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	UUID        string    `json:"uuid" gorm:"uniqueIndex"`
	Fingerprint *string   `json:"fingerprint" gorm:"size:64;index"`
	IP          *string   `json:"ip" gorm:"size:64;index"`
	Label       string    `json:"label"`
	IsActive    bool      `json:"is_active" gorm:"index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName pins the table name used by the kernel queries.
func (TrustedActor) TableName() string { return "security_trusted_actors" }

// BeforeCreate assigns a UUID.
func (a *TrustedActor) BeforeCreate(tx *gorm.DB) error {
	if a.UUID == "" {
		a.UUID = uuid.NewString()
	}
	return nil
}

// HasIdentifier reports whether at least one of fingerprint/ip is set.
func (a TrustedActor) HasIdentifier() bool {
	return Deref(a.Fingerprint) != "" || Deref(a.IP) != ""
}
