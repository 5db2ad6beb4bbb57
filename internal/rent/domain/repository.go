package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ListFilter struct {
	// RentedBy scopes the listing to one renter when set.
	RentedBy *snowflake.ID
	Status   Status
	Returned *bool
	MovieID  *snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rent *Rent) error
	// DeleteUnsettled removes a rent that was never returned, paid or given a
	// checkout reference, reporting whether a row went away.
	DeleteUnsettled(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Rent, error)
	// FindByReference matches the current or any earlier checkout reference.
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Rent, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Rent, error)

	// AttachCheckout makes reference the current session of an unpaid rent,
	// records it in the session history and moves a created rent to
	// awaiting_payment. It reports false when the rent is already paid. Run it
	// inside a transaction.
	AttachCheckout(ctx context.Context, db *gorm.DB, id snowflake.ID, provider, reference, url string, at time.Time) (bool, error)
	ListCheckoutReferences(ctx context.Context, db *gorm.DB, id snowflake.ID) ([]string, error)
	// MarkPaidByReference reports how many rents flipped to paid. Zero means
	// the reference is unknown or already paid.
	MarkPaidByReference(ctx context.Context, db *gorm.DB, reference string, paidAt time.Time) (int64, error)
	// MarkReturned reports false when the rent was already returned.
	MarkReturned(ctx context.Context, db *gorm.DB, id snowflake.ID, returnedAt time.Time, extraCharge decimal.Decimal) (bool, error)
	// UpdateDueDate reports false when the rent is returned or paid.
	UpdateDueDate(ctx context.Context, db *gorm.DB, id snowflake.ID, dueDate time.Time, amount decimal.Decimal, at time.Time) (bool, error)
}
