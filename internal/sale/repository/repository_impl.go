package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/moviestore/internal/sale/domain"
	"gorm.io/gorm"
)

const viewColumns = `s.id, s.movie_id, s.user_id, s.quantity, s.unit_price, s.amount, s.date, s.created_at,
	u.username AS username, u.email AS email, m.title AS movie_title`

const viewFrom = ` FROM sales s
	JOIN users u ON u.id = s.user_id
	JOIN movies m ON m.id = s.movie_id`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sale *domain.Sale) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO sales (id, movie_id, user_id, quantity, unit_price, amount, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sale.ID,
		sale.MovieID,
		sale.UserID,
		sale.Quantity,
		sale.UnitPrice,
		sale.Amount,
		sale.Date,
		sale.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.SaleView, error) {
	var view domain.SaleView
	err := db.WithContext(ctx).Raw(
		`SELECT `+viewColumns+viewFrom+` WHERE s.id = ?`,
		id,
	).Scan(&view).Error
	if err != nil {
		return nil, err
	}
	if view.ID == 0 {
		return nil, nil
	}
	return &view, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.SaleView, error) {
	query := `SELECT ` + viewColumns + viewFrom + ` WHERE 1 = 1`
	args := []any{}
	if filter.UserID != nil {
		query += ` AND s.user_id = ?`
		args = append(args, *filter.UserID)
	}
	if filter.MovieID != nil {
		query += ` AND s.movie_id = ?`
		args = append(args, *filter.MovieID)
	}
	query += ` ORDER BY s.date DESC, s.id DESC`

	var items []domain.SaleView
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
