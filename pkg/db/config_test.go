package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDSN(t *testing.T) {
	dsn, err := Config{Type: " Postgres ", Host: "db", Port: "5432", Name: "launchpad", User: "app", Password: "s3cret"}.DSN()
	require.NoError(t, err)
	assert.Equal(t, "host=db user=app password=s3cret dbname=launchpad port=5432 sslmode=disable TimeZone=UTC", dsn)

	dsn, err = Config{Type: "sqlite"}.DSN()
	require.NoError(t, err)
	assert.Equal(t, "launchpad.db", dsn)

	_, err = Config{Type: "oracle"}.DSN()
	assert.Error(t, err)
}

func TestConfigTargetHidesCredentials(t *testing.T) {
	target := Config{Type: "postgres", Host: "db", Port: "5432", Name: "launchpad", User: "app", Password: "s3cret"}.Target()
	assert.Equal(t, "postgres://db:5432/launchpad", target)
	assert.NotContains(t, target, "s3cret")
}
