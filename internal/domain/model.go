package domain

import "time"

// BaseModel is the common base struct for all persisted models.
// It replaces gorm.Model to avoid the implicit soft delete behavior of DeletedAt.
type BaseModel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LocalEntry is a single scoped key/value pair of client-side state, the
// server-side stand-in for a browser's local storage.
type LocalEntry struct {
	BaseModel
	Scope string `gorm:"size:64;not null;uniqueIndex:idx_local_scope_key" json:"scope"`
	Key   string `gorm:"size:128;not null;uniqueIndex:idx_local_scope_key" json:"key"`
	Value string `gorm:"type:text;not null" json:"value"`
}

// TableName pins the table name independent of GORM's pluralization rules.
func (LocalEntry) TableName() string {
	return "local_storage"
}
