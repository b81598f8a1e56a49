package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	assert.Equal(t, ups, downs)
}

func TestCoreMigrationDeclaresUniquenessGuards(t *testing.T) {
	body, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_launchpad_core.up.sql")
	require.NoError(t, err)
	sql := string(body)

	for _, index := range []string{
		"ux_benefit_codes_benefit_user",
		"ux_launch_progress_request",
		"ux_payment_events_provider_event",
		"ux_domain_events_aggregate",
	} {
		assert.Contains(t, sql, index)
	}
}

func TestCheckoutGuardsMigration(t *testing.T) {
	body, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000002_checkout_guards.up.sql")
	require.NoError(t, err)
	sql := string(body)

	assert.Contains(t, sql, "ux_checkout_attempts_live_target")
	assert.Contains(t, sql, "WHERE state NOT IN ('succeeded', 'failed')")
	assert.Contains(t, sql, "ux_payment_overpayments_transaction")
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	assert.Error(t, RunMigrations(nil))
}
