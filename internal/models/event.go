package models

import (
	"time"

	"github.com/geoaware/backend/internal/geo"
)

// EventType is the kind of interaction recorded against a geofence
type EventType string

const (
	EventEntry       EventType = "entry"
	EventExit        EventType = "exit"
	EventContentView EventType = "content_view"
)

// Valid reports whether t is a known event type
func (t EventType) Valid() bool {
	switch t {
	case EventEntry, EventExit, EventContentView:
		return true
	}
	return false
}

// Event records a user entering, leaving or viewing content in a geofence.
// FenceID is cleared when the geofence is deleted so history survives.
type Event struct {
	ID        string       `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Type      EventType    `gorm:"type:varchar(16);not null;index" json:"type"`
	FenceID   *string      `gorm:"type:uuid;index" json:"fenceId"`
	Fence     *Geofence    `gorm:"foreignKey:FenceID;constraint:OnDelete:SET NULL" json:"fence,omitempty"`
	UserID    string       `gorm:"type:uuid;not null;index" json:"userId"`
	User      *User        `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Location  geo.Geometry `gorm:"type:geometry(Point,4326);not null" json:"location"`
	Timestamp time.Time    `gorm:"type:timestamptz;not null;index" json:"timestamp"`
}
