package photos

import "time"

// Photo is a persisted dog image.
type Photo struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	ImageURL  string      `gorm:"column:image_url;size:500;not null" json:"imageUrl" validate:"required,httpurl,min=10,max=500"`
	Breed     *string     `gorm:"size:50" json:"breed" validate:"omitempty,lowercase,min=2,max=50"`
	SubBreed  *string     `gorm:"size:50" json:"subBreed" validate:"omitempty,lowercase,max=50"`
	CreatedAt time.Time   `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Stats     *PhotoStats `gorm:"foreignKey:PhotoID;constraint:OnDelete:CASCADE" json:"stats"`
}

// TableName overrides the gorm default.
func (Photo) TableName() string { return "dog_photos" }

// PhotoStats tracks how often a photo was viewed. Every Photo has exactly
// one PhotoStats row.
type PhotoStats struct {
	ID           uint       `gorm:"primaryKey" json:"-"`
	PhotoID      uint       `gorm:"uniqueIndex;not null" json:"photoId"`
	Views        int64      `gorm:"not null;default:0" json:"views"`
	LastViewedAt *time.Time `json:"lastViewedAt"`
}

// TableName overrides the gorm default.
func (PhotoStats) TableName() string { return "dog_photo_stats" }

// Models lists the schema owned by this package, for database.AutoMigrate.
func Models() []any {
	return []any{&Photo{}, &PhotoStats{}}
}
