package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	Title        string
	Availability *bool
	SortBy       string
	OrderBy      string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, movie *Movie) error
	Update(ctx context.Context, db *gorm.DB, movie *Movie) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Movie, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Movie, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Movie, error)
	SlugExists(ctx context.Context, db *gorm.DB, slug string, excludeID snowflake.ID) (bool, error)
	SetAvailability(ctx context.Context, db *gorm.DB, id snowflake.ID, available bool, at time.Time) (bool, error)

	// ReserveStock decrements stock only when enough copies remain. It
	// reports false when the conditional update matched no row.
	ReserveStock(ctx context.Context, db *gorm.DB, id snowflake.ID, quantity int) (bool, error)
	ReleaseStock(ctx context.Context, db *gorm.DB, id snowflake.ID, quantity int) error

	InsertImage(ctx context.Context, db *gorm.DB, image *MovieImage) error
	DeleteImage(ctx context.Context, db *gorm.DB, movieID, imageID snowflake.ID) error
	ListImages(ctx context.Context, db *gorm.DB, movieIDs []snowflake.ID) ([]MovieImage, error)

	InsertLike(ctx context.Context, db *gorm.DB, like *MovieLike) (bool, error)
	DeleteLike(ctx context.Context, db *gorm.DB, movieID, userID snowflake.ID) (bool, error)
	AdjustLikes(ctx context.Context, db *gorm.DB, movieID snowflake.ID, delta int) error
}
