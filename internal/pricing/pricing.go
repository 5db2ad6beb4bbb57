// Package pricing validates proposed rents and sales against a movie snapshot
// and computes their amounts. It never touches storage.
package pricing

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/moviestore/internal/clock"
)

// Snapshot is the catalog state a decision is made against.
type Snapshot struct {
	Stock       int
	RentalPrice decimal.Decimal
	SalePrice   decimal.Decimal
}

// Policy carries the tunable parts of pricing.
type Policy struct {
	LateFeeMultiplier decimal.Decimal
	// MaxRentalDays bounds due dates when positive.
	MaxRentalDays int
}

func DefaultPolicy() Policy {
	return Policy{LateFeeMultiplier: decimal.NewFromInt(1)}
}

var (
	ErrNegativeAmount      = errors.New("negative_amount")
	ErrFractionalMinorUnit = errors.New("fractional_minor_unit")
	ErrAmountOverflow      = errors.New("amount_overflow")
)

// ValidateAndPriceRent returns quantity x rental_price x days, where days is the
// number of calendar days between today and dueDate.
func ValidateAndPriceRent(movie Snapshot, quantity int, dueDate, today time.Time, policy Policy) (decimal.Decimal, *Rejection) {
	if rej := validateQuantity(movie, quantity); rej != nil {
		return decimal.Zero, rej
	}

	days := DaysBetween(today, dueDate)
	if days < 1 {
		return decimal.Zero, &Rejection{Field: FieldDueDate, Code: DueDateInvalid, Message: MsgDueDateInvalid}
	}
	if policy.MaxRentalDays > 0 && days > policy.MaxRentalDays {
		return decimal.Zero, &Rejection{
			Field:   FieldDueDate,
			Code:    DueDateTooFar,
			Message: fmt.Sprintf(MsgDueDateTooFar, policy.MaxRentalDays),
		}
	}

	amount := movie.RentalPrice.
		Mul(decimal.NewFromInt(int64(quantity))).
		Mul(decimal.NewFromInt(int64(days)))
	return amount, nil
}

// ValidateAndPriceSale returns quantity x sale_price.
func ValidateAndPriceSale(movie Snapshot, quantity int) (decimal.Decimal, *Rejection) {
	if rej := validateQuantity(movie, quantity); rej != nil {
		return decimal.Zero, rej
	}
	return movie.SalePrice.Mul(decimal.NewFromInt(int64(quantity))), nil
}

// ExtraCharge prices a late return. Returning on or before the due date costs nothing.
func ExtraCharge(movie Snapshot, quantity int, dueDate, returnedOn time.Time, policy Policy) (decimal.Decimal, int) {
	lateDays := DaysBetween(dueDate, returnedOn)
	if lateDays <= 0 || quantity <= 0 {
		return decimal.Zero, 0
	}
	extra := movie.RentalPrice.
		Mul(decimal.NewFromInt(int64(quantity))).
		Mul(decimal.NewFromInt(int64(lateDays))).
		Mul(policy.LateFeeMultiplier)
	return extra.Round(2), lateDays
}

// DaysBetween counts calendar days from one UTC date to another.
func DaysBetween(from, to time.Time) int {
	a := clock.DateOf(from)
	b := clock.DateOf(to)
	return int(b.Sub(a).Hours() / 24)
}

// ToMinorUnits converts an amount to integer minor units (cents for an
// exponent of 2). Amounts that do not divide evenly are rejected.
func ToMinorUnits(amount decimal.Decimal, exponent int32) (int64, error) {
	if amount.IsNegative() {
		return 0, ErrNegativeAmount
	}
	shifted := amount.Shift(exponent)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, ErrFractionalMinorUnit
	}
	n := shifted.BigInt()
	if !n.IsInt64() || n.Cmp(big.NewInt(0)) < 0 {
		return 0, ErrAmountOverflow
	}
	return n.Int64(), nil
}

// Format renders an amount with two fixed decimals.
func Format(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

func validateQuantity(movie Snapshot, quantity int) *Rejection {
	if quantity <= 0 {
		return &Rejection{Field: FieldQuantity, Code: QuantityTooLow, Message: MsgQuantityTooLow}
	}
	if quantity > movie.Stock {
		return &Rejection{Field: FieldQuantity, Code: QuantityUnavailable, Message: MsgQuantityUnavailable}
	}
	return nil
}
