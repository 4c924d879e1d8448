package models

import "time"

// PrivacyLog is one sample of the cloaking simulation: a real position, its
// cloaked counterpart and whether fence membership survived the perturbation.
type PrivacyLog struct {
	ID                string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	FenceID           string    `gorm:"type:uuid;index" json:"fenceId"`
	RealLat           float64   `gorm:"not null" json:"realLat"`
	RealLon           float64   `gorm:"not null" json:"realLon"`
	PerturbedLat      float64   `gorm:"not null" json:"perturbedLat"`
	PerturbedLon      float64   `gorm:"not null" json:"perturbedLon"`
	ErrorMeters       float64   `gorm:"not null" json:"errorMeters"`
	IsRealInside      bool      `gorm:"not null" json:"isRealInside"`
	IsPerturbedInside bool      `gorm:"not null" json:"isPerturbedInside"`
	QoSRetained       bool      `gorm:"column:qos_retained;not null" json:"qosRetained"`
	Timestamp         time.Time `gorm:"type:timestamptz;not null;index" json:"timestamp"`
}
