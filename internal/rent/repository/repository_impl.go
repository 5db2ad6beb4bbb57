package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/moviestore/internal/rent/domain"
	"gorm.io/gorm"
)

const rentColumns = `id, rented_by, movie_id, quantity, due_date, amount, status, returned, returned_at,
	extra_charge, paid, paid_at, payment_provider, payment_reference, payment_url, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rent *domain.Rent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO rents (`+rentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rent.ID,
		rent.RentedBy,
		rent.MovieID,
		rent.Quantity,
		rent.DueDate,
		rent.Amount,
		rent.Status,
		rent.Returned,
		rent.ReturnedAt,
		rent.ExtraCharge,
		rent.Paid,
		rent.PaidAt,
		rent.PaymentProvider,
		rent.PaymentReference,
		rent.PaymentURL,
		rent.CreatedAt,
		rent.UpdatedAt,
	).Error
}

func (r *repo) DeleteUnsettled(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM rents WHERE id = ? AND returned = ? AND paid = ? AND payment_reference IS NULL`,
		id,
		false,
		false,
	)
	return res.RowsAffected == 1, res.Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Rent, error) {
	var rent domain.Rent
	err := db.WithContext(ctx).Raw(
		`SELECT `+rentColumns+` FROM rents WHERE id = ?`,
		id,
	).Scan(&rent).Error
	if err != nil {
		return nil, err
	}
	if rent.ID == 0 {
		return nil, nil
	}
	return &rent, nil
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Rent, error) {
	var rent domain.Rent
	err := db.WithContext(ctx).Raw(
		`SELECT `+rentColumns+` FROM rents WHERE `+matchesReference,
		reference,
		reference,
	).Scan(&rent).Error
	if err != nil {
		return nil, err
	}
	if rent.ID == 0 {
		return nil, nil
	}
	return &rent, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Rent, error) {
	var items []domain.Rent
	stmt := db.WithContext(ctx).Model(&domain.Rent{})

	if filter.RentedBy != nil {
		stmt = stmt.Where("rented_by = ?", *filter.RentedBy)
	}
	if filter.MovieID != nil {
		stmt = stmt.Where("movie_id = ?", *filter.MovieID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Returned != nil {
		stmt = stmt.Where("returned = ?", *filter.Returned)
	}

	if err := stmt.Order("created_at desc").Order("id desc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// A rent matches every checkout reference it was ever issued, not only the
// current one.
const matchesReference = `(payment_reference = ? OR id IN (SELECT rent_id FROM rent_checkout_sessions WHERE reference = ?))`

func (r *repo) AttachCheckout(ctx context.Context, db *gorm.DB, id snowflake.ID, provider, reference, url string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE rents
		SET payment_provider = ?, payment_reference = ?, payment_url = ?, updated_at = ?,
			status = CASE WHEN status = ? THEN ? ELSE status END
		WHERE id = ? AND paid = ?`,
		provider,
		reference,
		url,
		at,
		domain.StatusCreated,
		domain.StatusAwaitingPayment,
		id,
		false,
	)
	if res.Error != nil || res.RowsAffected == 0 {
		return false, res.Error
	}
	err := db.WithContext(ctx).Exec(
		`INSERT INTO rent_checkout_sessions (reference, rent_id, provider, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (reference) DO NOTHING`,
		reference,
		id,
		provider,
		at,
	).Error
	return err == nil, err
}

func (r *repo) ListCheckoutReferences(ctx context.Context, db *gorm.DB, id snowflake.ID) ([]string, error) {
	var refs []string
	err := db.WithContext(ctx).Raw(
		`SELECT reference FROM rent_checkout_sessions WHERE rent_id = ? ORDER BY created_at, reference`,
		id,
	).Scan(&refs).Error
	return refs, err
}

func (r *repo) MarkPaidByReference(ctx context.Context, db *gorm.DB, reference string, paidAt time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE rents
		SET paid = ?, paid_at = ?, updated_at = ?,
			status = CASE WHEN returned THEN status ELSE ? END
		WHERE paid = ? AND `+matchesReference,
		true,
		paidAt,
		paidAt,
		domain.StatusPaid,
		false,
		reference,
		reference,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) MarkReturned(ctx context.Context, db *gorm.DB, id snowflake.ID, returnedAt time.Time, extraCharge decimal.Decimal) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE rents
		SET returned = ?, returned_at = ?, extra_charge = ?, status = ?, updated_at = ?
		WHERE id = ? AND returned = ?`,
		true,
		returnedAt,
		extraCharge,
		domain.StatusReturned,
		returnedAt,
		id,
		false,
	)
	return res.RowsAffected == 1, res.Error
}

func (r *repo) UpdateDueDate(ctx context.Context, db *gorm.DB, id snowflake.ID, dueDate time.Time, amount decimal.Decimal, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE rents SET due_date = ?, amount = ?, updated_at = ? WHERE id = ? AND returned = ? AND paid = ?`,
		dueDate,
		amount,
		at,
		id,
		false,
		false,
	)
	return res.RowsAffected == 1, res.Error
}
