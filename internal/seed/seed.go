package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/moviestore/internal/auth/password"
	"github.com/smallbiznis/moviestore/internal/config"
	"gorm.io/gorm"
)

// EnsureAdmin creates the bootstrap administrator when credentials are
// configured and no account with that username or email exists yet.
func EnsureAdmin(ctx context.Context, db *gorm.DB, cfg config.BootstrapConfig) (bool, error) {
	if db == nil {
		return false, errors.New("seed database handle is required")
	}

	username := strings.TrimSpace(cfg.AdminUsername)
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if username == "" || email == "" || cfg.AdminPassword == "" {
		return false, nil
	}
	if err := password.Validate(cfg.AdminPassword); err != nil {
		return false, err
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return false, err
	}

	created := false
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Raw(
			`SELECT COUNT(*) FROM users WHERE LOWER(username) = ? OR LOWER(email) = ?`,
			strings.ToLower(username), email,
		).Scan(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		hashed, err := password.Hash(cfg.AdminPassword)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.Exec(
			`INSERT INTO users (id, username, email, password_hash, role, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, 'admin', ?, ?, ?)`,
			node.Generate(), username, email, hashed, true, now, now,
		).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}
