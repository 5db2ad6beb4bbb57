package migration

import (
	"context"
	"errors"

	"github.com/smallbiznis/moviestore/internal/config"
	"github.com/smallbiznis/moviestore/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Run),
)

// Run migrates the schema and seeds the bootstrap admin before the HTTP
// server starts. Dialects without an embedded schema must be prepared by hand.
func Run(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	log = log.Named("migration")

	version, err := Apply(conn, cfg.DBType)
	switch {
	case errors.Is(err, ErrUnsupportedDialect):
		log.Warn("automatic migrations unavailable, expecting an existing schema", zap.String("db_type", cfg.DBType))
	case err != nil:
		return err
	default:
		log.Info("schema up to date", zap.String("db_type", cfg.DBType), zap.Uint("version", version))
	}

	created, err := seed.EnsureAdmin(context.Background(), conn, cfg.Bootstrap)
	if err != nil {
		return err
	}
	if created {
		log.Info("bootstrap admin created", zap.String("username", cfg.Bootstrap.AdminUsername))
	}
	return nil
}
