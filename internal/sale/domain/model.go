package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Sale is settled when created and never changes afterwards.
type Sale struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	MovieID   snowflake.ID    `gorm:"column:movie_id;not null"`
	UserID    snowflake.ID    `gorm:"column:user_id;not null"`
	Quantity  int             `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(8,2);not null"`
	Amount    decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Date      time.Time       `gorm:"not null"`
	CreatedAt time.Time       `gorm:"not null"`
}

func (Sale) TableName() string { return "sales" }

// SaleView joins the buyer and movie names used by listings and receipts.
type SaleView struct {
	Sale
	Username   string `gorm:"column:username"`
	Email      string `gorm:"column:email"`
	MovieTitle string `gorm:"column:movie_title"`
}
