package gorm_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	oa "github.com/panyam/lmsauth"
	gormstore "github.com/panyam/lmsauth/stores/gorm"
	"github.com/panyam/lmsauth/stores/storetest"
)

func openTestDB(t *testing.T) *gorm.DB {
	dsn := filepath.Join(t.TempDir(), "users.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// sqlite allows one writer; serialize so concurrent inserts see the
	// unique index instead of SQLITE_BUSY
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, gormstore.AutoMigrate(db))
	return db
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) oa.Store {
		return gormstore.NewStore(openTestDB(t))
	})
}
