package db

import (
	"log"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the database named by dsn. DSNs starting with "file:" or
// ending in ".db" use the pure-Go sqlite driver, everything else is MySQL.
func Connect(dsn string, models ...any) *gorm.DB {
	gdb, err := Open(dsn)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if len(models) > 0 {
		if err := gdb.AutoMigrate(models...); err != nil {
			log.Fatalf("db automigrate: %v", err)
		}
	}
	return gdb
}

func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	if isSQLite(dsn) {
		gdb, err := gorm.Open(sqlite.Open(dsn), cfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		// sqlite only supports one writer
		sqlDB.SetMaxOpenConns(1)
		return gdb, nil
	}

	gdb, err := gorm.Open(mysql.Open(dsn), cfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	return gdb, nil
}

func isSQLite(dsn string) bool {
	d := strings.TrimSpace(dsn)
	if strings.HasPrefix(d, "file:") || d == ":memory:" {
		return true
	}
	if i := strings.Index(d, "?"); i >= 0 {
		d = d[:i]
	}
	return strings.HasSuffix(d, ".db") || strings.HasSuffix(d, ".sqlite")
}
