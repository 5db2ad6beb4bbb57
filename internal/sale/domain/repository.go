package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	UserID  *snowflake.ID
	MovieID *snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sale *Sale) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*SaleView, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]SaleView, error)
}
