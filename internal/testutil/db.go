// Package testutil provides shared fixtures for backend tests.
package testutil

import (
	"database/sql"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"nokoroa/internal/database"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteDriver is a sqlite3 driver with the trigonometric and comparison
// functions PostgreSQL provides, so distance queries run unchanged in tests.
const SQLiteDriver = "sqlite3_geo"

var (
	registerOnce sync.Once
	dbSeq        atomic.Int64
)

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case []byte:
		var f float64
		_, _ = fmt.Sscan(string(n), &f)
		return f
	case string:
		var f float64
		_, _ = fmt.Sscan(n, &f)
		return f
	default:
		return math.NaN()
	}
}

func registerDriver() {
	registerOnce.Do(func() {
		unary := map[string]func(float64) float64{
			"acos":    math.Acos,
			"cos":     math.Cos,
			"sin":     math.Sin,
			"radians": func(deg float64) float64 { return deg * math.Pi / 180 },
		}
		sql.Register(SQLiteDriver, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				for name, fn := range unary {
					fn := fn
					if err := conn.RegisterFunc(name, func(x any) float64 { return fn(toFloat(x)) }, true); err != nil {
						return err
					}
				}
				if err := conn.RegisterFunc("least", func(a, b any) float64 { return math.Min(toFloat(a), toFloat(b)) }, true); err != nil {
					return err
				}
				return conn.RegisterFunc("greatest", func(a, b any) float64 { return math.Max(toFloat(a), toFloat(b)) }, true)
			},
		})
	})
}

// NewDB opens an isolated in-memory database with the full schema applied.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	registerDriver()

	dsn := fmt.Sprintf("file:nokoroa_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: SQLiteDriver, DSN: dsn}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}
