package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusCreated         Status = "created"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusPaid            Status = "paid"
	StatusReturned        Status = "returned"
)

// Rent moves created -> awaiting_payment -> paid -> returned. Returned is
// reachable from every earlier state; returned rents never move again.
type Rent struct {
	ID               snowflake.ID    `gorm:"primaryKey"`
	RentedBy         snowflake.ID    `gorm:"column:rented_by;not null"`
	MovieID          snowflake.ID    `gorm:"column:movie_id;not null"`
	Quantity         int             `gorm:"not null"`
	DueDate          time.Time       `gorm:"column:due_date;type:date;not null"`
	Amount           decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Status           Status          `gorm:"type:text;not null"`
	Returned         bool            `gorm:"not null"`
	ReturnedAt       *time.Time      `gorm:"column:returned_at"`
	ExtraCharge      decimal.Decimal `gorm:"column:extra_charge;type:numeric(10,2);not null"`
	Paid             bool            `gorm:"not null"`
	PaidAt           *time.Time      `gorm:"column:paid_at"`
	PaymentProvider  *string         `gorm:"column:payment_provider"`
	PaymentReference *string         `gorm:"column:payment_reference"`
	PaymentURL       *string         `gorm:"column:payment_url"`
	CreatedAt        time.Time       `gorm:"not null"`
	UpdatedAt        time.Time       `gorm:"not null"`
}

func (Rent) TableName() string { return "rents" }

// CanTransition reports whether a rent in from may move to to.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusCreated:
		return to == StatusAwaitingPayment || to == StatusPaid || to == StatusReturned
	case StatusAwaitingPayment:
		return to == StatusPaid || to == StatusReturned
	case StatusPaid:
		return to == StatusReturned
	default:
		return false
	}
}
