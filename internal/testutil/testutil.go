// Package testutil wires an in-memory store with the production schema for
// package tests.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/moviestore/internal/migration"
	"github.com/smallbiznis/moviestore/pkg/db/dbtest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var nodeSeq atomic.Int64

func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	conn := dbtest.Open(t, migration.SQLiteSchema()...)
	if err := conn.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	return conn
}

func NewNode(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(nodeSeq.Add(1) % 1024)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

func NewLogger(t testing.TB) *zap.Logger {
	return zap.NewNop()
}

type UserSeed struct {
	Username string
	Email    string
	Role     string
}

func SeedUser(t testing.TB, db *gorm.DB, node *snowflake.Node, seed UserSeed) snowflake.ID {
	t.Helper()
	if seed.Role == "" {
		seed.Role = "customer"
	}
	if seed.Email == "" {
		seed.Email = seed.Username + "@example.com"
	}
	id := node.Generate()
	now := time.Now().UTC()
	err := db.WithContext(context.Background()).Exec(
		`INSERT INTO users (id, username, email, password_hash, role, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, seed.Username, seed.Email, "unused", seed.Role, true, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed user %s: %v", seed.Username, err)
	}
	return id
}

type MovieSeed struct {
	Title       string
	Stock       int
	RentalPrice string
	SalePrice   string
	Unavailable bool
}

func SeedMovie(t testing.TB, db *gorm.DB, node *snowflake.Node, seed MovieSeed) snowflake.ID {
	t.Helper()
	if seed.RentalPrice == "" {
		seed.RentalPrice = "0.50"
	}
	if seed.SalePrice == "" {
		seed.SalePrice = "40.00"
	}
	id := node.Generate()
	now := time.Now().UTC()
	err := db.WithContext(context.Background()).Exec(
		`INSERT INTO movies (id, title, slug, description, stock, rental_price, sale_price, availability, likes_count, created_at, updated_at)
		VALUES (?, ?, ?, '', ?, ?, ?, ?, 0, ?, ?)`,
		id, seed.Title, fmt.Sprintf("%s-%d", seed.Title, id), seed.Stock,
		decimal.RequireFromString(seed.RentalPrice), decimal.RequireFromString(seed.SalePrice),
		!seed.Unavailable, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed movie %s: %v", seed.Title, err)
	}
	return id
}

// MovieStock reads the current stock of a movie.
func MovieStock(t testing.TB, db *gorm.DB, id snowflake.ID) int {
	t.Helper()
	var stock int
	if err := db.Raw(`SELECT stock FROM movies WHERE id = ?`, id).Scan(&stock).Error; err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return stock
}

type RentSeed struct {
	RentedBy  snowflake.ID
	MovieID   snowflake.ID
	Quantity  int
	DueDate   time.Time
	Amount    string
	Reference string
}

// SeedRent inserts a rent awaiting payment under seed.Reference.
func SeedRent(t testing.TB, db *gorm.DB, node *snowflake.Node, seed RentSeed) snowflake.ID {
	t.Helper()
	if seed.Quantity == 0 {
		seed.Quantity = 1
	}
	if seed.Amount == "" {
		seed.Amount = "1.00"
	}
	if seed.DueDate.IsZero() {
		seed.DueDate = time.Now().UTC().AddDate(0, 0, 2).Truncate(24 * time.Hour)
	}
	var reference *string
	status := "created"
	if seed.Reference != "" {
		reference = &seed.Reference
		status = "awaiting_payment"
	}
	id := node.Generate()
	now := time.Now().UTC()
	err := db.WithContext(context.Background()).Exec(
		`INSERT INTO rents (id, rented_by, movie_id, quantity, due_date, amount, status, returned, extra_charge, paid, payment_provider, payment_reference, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, '0', ?, 'stripe', ?, ?, ?)`,
		id, seed.RentedBy, seed.MovieID, seed.Quantity, seed.DueDate,
		decimal.RequireFromString(seed.Amount), status, false, false, reference, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed rent: %v", err)
	}
	return id
}
