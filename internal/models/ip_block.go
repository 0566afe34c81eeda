package models

import "time"

// IPBlock denies an IP. IP is unique; re-blocking reactivates the existing row.
type IPBlock struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	IP        string    `json:"ip" gorm:"size:64;uniqueIndex;not null"`
	Reason    string    `json:"reason" gorm:"type:text"`
	IsActive  bool      `json:"is_active" gorm:"index"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table name used by the kernel queries.
func (IPBlock) TableName() string { return "security_ip_blocks" }
