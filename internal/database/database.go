package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bazaarly/kernel/backend/internal/logger"
	"github.com/bazaarly/kernel/backend/internal/models"
)

// Connect opens the SQLite database at dbPath with WAL journaling and a busy timeout so
// concurrent fire-and-forget event writes do not trip over each other.
func Connect(dbPath string) (*gorm.DB, error) {
	dsn := dbPath
	if dsn != "" && dsn[0] != ':' && !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	return db, nil
}

// Migrate creates or updates every kernel table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Models lists the persisted kernel models in migration order.
func Models() []interface{} {
	return []interface{}{
		&models.SecurityEvent{},
		&models.TrustedActor{},
		&models.IPBlock{},
		&models.KernelOperator{},
		&models.IPIntel{},
	}
}

// gormWriter sends gorm's slow-query and error lines through the kernel logger so they
// share its format and file rotation.
type gormWriter struct {
	entry *logrus.Entry
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.entry.Warnf(format, args...)
}

// newGormLogger logs warnings and errors only. Not-found lookups are ordinary control flow
// here (the guard checks the block list on every request) and are not logged.
func newGormLogger() gormlogger.Interface {
	return gormlogger.New(gormWriter{entry: logger.Component("gorm")}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  newGormLogger(),
	}
}
