package models

import "time"

// IPIntel caches reputation data for an IP. The kernel only reads it; feeds upsert it.
type IPIntel struct {
	ID            uint      `json:"-" gorm:"primaryKey"`
	IP            string    `json:"ip" gorm:"size:64;uniqueIndex;not null"`
	ISP           string    `json:"isp"`
	Org           string    `json:"org"`
	ASN           int       `json:"asn"`
	IsVPN         bool      `json:"is_vpn"`
	IsProxy       bool      `json:"is_proxy"`
	IsTor         bool      `json:"is_tor"`
	IsDatacenter  bool      `json:"is_datacenter"`
	IsBlacklisted bool      `json:"is_blacklisted"`
	FraudScore    int       `json:"fraud_score"`
	AbuseScore    int       `json:"abuse_score"`
	RiskLevel     string    `json:"risk_level"`
	CreatedAt     time.Time `json:"-"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName pins the intel table.
func (IPIntel) TableName() string { return "ip_intel" }
