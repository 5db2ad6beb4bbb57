package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Movie struct {
	ID           snowflake.ID    `gorm:"primaryKey"`
	Title        string          `gorm:"type:text;not null"`
	Slug         string          `gorm:"type:text;not null"`
	Description  string          `gorm:"type:text;not null"`
	Stock        int             `gorm:"not null"`
	RentalPrice  decimal.Decimal `gorm:"column:rental_price;type:numeric(8,2);not null"`
	SalePrice    decimal.Decimal `gorm:"column:sale_price;type:numeric(8,2);not null"`
	Availability bool            `gorm:"not null;default:true"`
	LikesCount   int             `gorm:"column:likes_count;not null"`
	CreatedAt    time.Time       `gorm:"not null"`
	UpdatedAt    time.Time       `gorm:"not null"`
}

func (Movie) TableName() string { return "movies" }

// MovieImage belongs to exactly one movie. StorageKey is empty for images
// that reference an external URL.
type MovieImage struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	MovieID     snowflake.ID `gorm:"column:movie_id;not null"`
	StorageKey  string       `gorm:"column:storage_key;type:text;not null"`
	URL         string       `gorm:"column:url;type:text;not null"`
	ContentType string       `gorm:"column:content_type;type:text;not null"`
	CreatedAt   time.Time    `gorm:"not null"`
}

func (MovieImage) TableName() string { return "movie_images" }

type MovieLike struct {
	MovieID   snowflake.ID `gorm:"column:movie_id;primaryKey"`
	UserID    snowflake.ID `gorm:"column:user_id;primaryKey"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (MovieLike) TableName() string { return "movie_likes" }
