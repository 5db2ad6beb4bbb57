package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/moviestore/internal/movie/domain"
	"github.com/smallbiznis/moviestore/pkg/db/option"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const movieColumns = `id, title, slug, description, stock, rental_price, sale_price, availability, likes_count, created_at, updated_at`

var sortableColumns = map[string]bool{
	"title":        true,
	"created_at":   true,
	"updated_at":   true,
	"rental_price": true,
	"sale_price":   true,
	"stock":        true,
}

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, movie *domain.Movie) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO movies (`+movieColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		movie.ID,
		movie.Title,
		movie.Slug,
		movie.Description,
		movie.Stock,
		movie.RentalPrice,
		movie.SalePrice,
		movie.Availability,
		movie.LikesCount,
		movie.CreatedAt,
		movie.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, movie *domain.Movie) error {
	if movie == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE movies
		SET title = ?, slug = ?, description = ?, stock = ?, rental_price = ?, sale_price = ?, availability = ?, updated_at = ?
		WHERE id = ?`,
		movie.Title,
		movie.Slug,
		movie.Description,
		movie.Stock,
		movie.RentalPrice,
		movie.SalePrice,
		movie.Availability,
		movie.UpdatedAt,
		movie.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM movies WHERE id = ?`, id).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Movie, error) {
	return r.find(ctx, db, id, false)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Movie, error) {
	return r.find(ctx, db, id, true)
}

func (r *repo) find(ctx context.Context, db *gorm.DB, id snowflake.ID, lock bool) (*domain.Movie, error) {
	query := `SELECT ` + movieColumns + ` FROM movies WHERE id = ?`
	if lock && supportsRowLocks(db) {
		query += ` FOR UPDATE`
	}

	var movie domain.Movie
	if err := db.WithContext(ctx).Raw(query, id).Scan(&movie).Error; err != nil {
		return nil, err
	}
	if movie.ID == 0 {
		return nil, nil
	}
	return &movie, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Movie, error) {
	var items []domain.Movie
	stmt := db.WithContext(ctx).Model(&domain.Movie{})

	if filter.Title != "" {
		stmt = stmt.Where("title = ?", filter.Title)
	}
	if filter.Availability != nil {
		stmt = stmt.Where("availability = ?", *filter.Availability)
	}

	stmt = option.WithSortBy(option.WithQuerySortBy(filter.SortBy, filter.OrderBy, sortableColumns, "title")).Apply(stmt)
	stmt = stmt.Order("id asc")

	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SlugExists(ctx context.Context, db *gorm.DB, slug string, excludeID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM movies WHERE slug = ? AND id <> ?`,
		slug,
		excludeID,
	).Scan(&count).Error
	return count > 0, err
}

func (r *repo) SetAvailability(ctx context.Context, db *gorm.DB, id snowflake.ID, available bool, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE movies SET availability = ?, updated_at = ? WHERE id = ?`,
		available,
		at,
		id,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) ReserveStock(ctx context.Context, db *gorm.DB, id snowflake.ID, quantity int) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE movies SET stock = stock - ? WHERE id = ? AND stock >= ?`,
		quantity,
		id,
		quantity,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ReleaseStock(ctx context.Context, db *gorm.DB, id snowflake.ID, quantity int) error {
	return db.WithContext(ctx).Exec(
		`UPDATE movies SET stock = stock + ? WHERE id = ?`,
		quantity,
		id,
	).Error
}

func (r *repo) InsertImage(ctx context.Context, db *gorm.DB, image *domain.MovieImage) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO movie_images (id, movie_id, storage_key, url, content_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		image.ID,
		image.MovieID,
		image.StorageKey,
		image.URL,
		image.ContentType,
		image.CreatedAt,
	).Error
}

func (r *repo) DeleteImage(ctx context.Context, db *gorm.DB, movieID, imageID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM movie_images WHERE movie_id = ? AND id = ?`,
		movieID,
		imageID,
	).Error
}

func (r *repo) ListImages(ctx context.Context, db *gorm.DB, movieIDs []snowflake.ID) ([]domain.MovieImage, error) {
	if len(movieIDs) == 0 {
		return nil, nil
	}
	var images []domain.MovieImage
	err := db.WithContext(ctx).Raw(
		`SELECT id, movie_id, storage_key, url, content_type, created_at
		FROM movie_images WHERE movie_id IN ? ORDER BY created_at ASC, id ASC`,
		movieIDs,
	).Scan(&images).Error
	return images, err
}

func (r *repo) InsertLike(ctx context.Context, db *gorm.DB, like *domain.MovieLike) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(like)
	return res.RowsAffected == 1, res.Error
}

func (r *repo) DeleteLike(ctx context.Context, db *gorm.DB, movieID, userID snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM movie_likes WHERE movie_id = ? AND user_id = ?`,
		movieID,
		userID,
	)
	return res.RowsAffected == 1, res.Error
}

func (r *repo) AdjustLikes(ctx context.Context, db *gorm.DB, movieID snowflake.ID, delta int) error {
	return db.WithContext(ctx).Exec(
		`UPDATE movies SET likes_count = CASE WHEN likes_count + ? < 0 THEN 0 ELSE likes_count + ? END WHERE id = ?`,
		delta,
		delta,
		movieID,
	).Error
}

func supportsRowLocks(db *gorm.DB) bool {
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		return true
	default:
		return false
	}
}
