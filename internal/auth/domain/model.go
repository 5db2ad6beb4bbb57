// Package domain contains core types for the auth service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleCustomer
}

// User represents a storefront account.
type User struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	Username     string       `gorm:"type:text;not null"`
	Email        string       `gorm:"type:text;not null"`
	PasswordHash string       `gorm:"column:password_hash;type:text;not null"`
	Role         Role         `gorm:"type:text;not null"`
	IsActive     bool         `gorm:"column:is_active;not null"`
	CreatedAt    time.Time    `gorm:"not null"`
	UpdatedAt    time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

func (u User) IsPrivileged() bool { return u.Role == RoleAdmin }

// Principal is the authenticated caller resolved from a bearer token.
type Principal struct {
	UserID   snowflake.ID
	Username string
	Email    string
	Role     Role
}

func (p Principal) IsPrivileged() bool { return p.Role == RoleAdmin }
