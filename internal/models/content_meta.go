package models

import "time"

// ContentMeta describes a piece of content unlocked inside a geofence.
// RepoURL points at the blob in the content repository.
type ContentMeta struct {
	ID         string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	FenceID    string    `gorm:"type:uuid;not null;index" json:"fenceId"`
	Fence      *Geofence `gorm:"foreignKey:FenceID" json:"fence,omitempty"`
	Type       string    `gorm:"not null" json:"type"`
	Descriptor string    `gorm:"type:text;not null" json:"descriptor"`
	RepoURL    string    `gorm:"column:repo_url;not null" json:"repoUrl"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName overrides the pluralized default
func (ContentMeta) TableName() string {
	return "content_meta"
}
