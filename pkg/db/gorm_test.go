package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

func TestOpenAppliesPoolSettingsAndPings(t *testing.T) {
	gdb, err := open(sqlite.Open("file::memory:"), Config{MaxOpenConns: 3, MaxIdleConns: 1, ConnMaxLifetime: time.Minute})
	require.NoError(t, err)
	require.True(t, gdb.Config.TranslateError)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	require.Equal(t, 3, sqlDB.Stats().MaxOpenConnections)

	require.NoError(t, Ping(context.Background(), gdb))
}
