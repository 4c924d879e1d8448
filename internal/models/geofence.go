package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/geoaware/backend/internal/geo"
)

// JSONMap is a free-form JSON object stored in a jsonb column
type JSONMap map[string]interface{}

// Scan implements the sql.Scanner interface for reading from database
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("JSONMap: cannot scan %T", value)
	}
	return json.Unmarshal(data, m)
}

// Value implements the driver.Valuer interface for writing to database
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Geofence is a named region users can enter and leave
type Geofence struct {
	ID        string        `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Name      string        `gorm:"not null" json:"name"`
	Geometry  geo.Geometry  `gorm:"type:geometry(Geometry,4326);not null" json:"geometry"`
	Metadata  JSONMap       `gorm:"type:jsonb" json:"metadata,omitempty"`
	Contents  []ContentMeta `gorm:"foreignKey:FenceID;constraint:OnDelete:CASCADE" json:"contents,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
