package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/launchpad/internal/clock"
	"github.com/smallbiznis/launchpad/internal/config"
	"github.com/smallbiznis/launchpad/internal/migration"
	"github.com/smallbiznis/launchpad/internal/observability"
	"github.com/smallbiznis/launchpad/internal/scheduler"
	"github.com/smallbiznis/launchpad/internal/server"
	"github.com/smallbiznis/launchpad/pkg/db"
	"github.com/smallbiznis/launchpad/pkg/redis"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redis.Module,
		clock.Module,

		// Schema must be current before any handler runs.
		migration.Module,

		// HTTP surface and every domain module behind it
		server.Module,

		// Outbox replay and abandoned checkout sweep
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) *snowflake.Node {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		panic(err)
	}
	return node
}
