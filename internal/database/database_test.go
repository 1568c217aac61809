package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attribly/internal/config"
	"attribly/internal/database"
	"attribly/internal/store"
	"attribly/internal/testsupport"
)

func sqliteConfig(t *testing.T, env string) *config.Config {
	return &config.Config{
		AppName:      "attribly",
		Environment:  env,
		DatabaseType: config.SQLiteDatabase,
		DatabasePath: t.TempDir(),
	}
}

func TestDBManagerSQLiteLifecycle(t *testing.T) {
	cfg := sqliteConfig(t, config.Test)
	dm := database.NewDBManager(cfg, testsupport.GetLogger())

	assert.Error(t, dm.Ping(context.Background()))
	require.NoError(t, dm.Init())
	require.NoError(t, dm.Init())
	require.NoError(t, dm.Ping(context.Background()))

	require.NoError(t, dm.MigrateDatabase())
	assert.True(t, dm.GetConnection().Migrator().HasTable(&store.WebsiteEvent{}))
	assert.True(t, dm.GetConnection().Migrator().HasTable("brevo_cumulative"))

	require.NoError(t, dm.Close())
	assert.Nil(t, dm.GetConnection())
	require.NoError(t, dm.Close())
}

func TestMigrateRefusedInProduction(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	dm := database.NewDBManagerWithConnection(sqliteConfig(t, config.Production), testsupport.GetLogger(), db)

	assert.ErrorIs(t, dm.MigrateDatabase(), database.ErrMigrationRefused)
}

func TestDialect(t *testing.T) {
	pg, err := database.Dialect(&config.Config{
		DatabaseType: config.PostgresDatabase,
		DatabaseHost: "localhost",
		DatabasePort: "5432",
	})
	require.NoError(t, err)
	assert.Equal(t, "postgres", pg.Name())

	lite, err := database.Dialect(sqliteConfig(t, config.Test))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", lite.Name())

	_, err = database.Dialect(&config.Config{DatabaseType: "oracle"})
	assert.Error(t, err)
}
