package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/moviestore/internal/clock"
	"github.com/smallbiznis/moviestore/internal/config"
	"github.com/smallbiznis/moviestore/internal/migration"
	"github.com/smallbiznis/moviestore/internal/observability"
	"github.com/smallbiznis/moviestore/internal/scheduler"
	"github.com/smallbiznis/moviestore/internal/server"
	"github.com/smallbiznis/moviestore/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface and the storefront domains it serves
		server.Module,

		// Background jobs
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
