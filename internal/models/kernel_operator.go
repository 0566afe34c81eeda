package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserTypeOperator is the identity class allowed into the kernel. Storefront customers and
// merchants carry other user types and are rejected with 403.
const UserTypeOperator = "operator"

// Kernel roles.
const (
	RoleKernelAdmin  = "admin"
	RoleKernelViewer = "viewer"
)

// KernelOperator is an operator account, separate from storefront users.
type KernelOperator struct {
	ID                  uint       `json:"id" gorm:"primaryKey"`
	UUID                string     `json:"uuid" gorm:"uniqueIndex"`
	Username            string     `json:"username" gorm:"uniqueIndex;not null"`
	PasswordHash        string     `json:"-"`
	Role                string     `json:"role" gorm:"default:'viewer'"`
	Enabled             bool       `json:"enabled"`
	FailedLoginAttempts int        `json:"-" gorm:"default:0"`
	LockedUntil         *time.Time `json:"-"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// TableName pins the operators table.
func (KernelOperator) TableName() string { return "kernel_operators" }

// BeforeCreate assigns a UUID.
func (o *KernelOperator) BeforeCreate(tx *gorm.DB) error {
	if o.UUID == "" {
		o.UUID = uuid.NewString()
	}
	return nil
}

// SetPassword hashes and sets the operator's password.
func (o *KernelOperator) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	o.PasswordHash = string(hash)
	return nil
}

// CheckPassword compares the provided password with the stored hash.
func (o *KernelOperator) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(o.PasswordHash), []byte(password)) == nil
}

// IsLocked reports whether repeated login failures have locked the account at now.
func (o *KernelOperator) IsLocked(now time.Time) bool {
	return o.LockedUntil != nil && o.LockedUntil.After(now)
}
