package database

import (
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/sanctions/config"
)

func TestMySQLDSN(t *testing.T) {
	t.Run("explicit DSN gains parseTime", func(t *testing.T) {
		dsn, err := mysqlDSN(config.DatabaseConfig{DSN: "app:pw@tcp(db:3306)/sanctions?loc=UTC"})
		require.NoError(t, err)
		mc, err := mysql.ParseDSN(dsn)
		require.NoError(t, err)
		assert.True(t, mc.ParseTime)
		assert.Equal(t, "db:3306", mc.Addr)
		assert.Equal(t, "sanctions", mc.DBName)
		assert.Equal(t, time.UTC, mc.Loc)
	})

	t.Run("discrete fields", func(t *testing.T) {
		dsn, err := mysqlDSN(config.DatabaseConfig{Host: "127.0.0.1", Port: "3306", User: "u", Password: "p", DBName: "s"})
		require.NoError(t, err)
		mc, err := mysql.ParseDSN(dsn)
		require.NoError(t, err)
		assert.True(t, mc.ParseTime)
		assert.Equal(t, "127.0.0.1:3306", mc.Addr)
	})

	t.Run("invalid DSN", func(t *testing.T) {
		_, err := mysqlDSN(config.DatabaseConfig{DSN: "not a dsn"})
		assert.ErrorContains(t, err, "invalid mysql DSN")
	})
}
