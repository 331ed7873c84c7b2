// Package testdb opens migrated in-memory SQLite databases for tests.
//
// The pool is capped at one connection, so concurrent transactions queue up
// behind each other the same way MySQL row locks make them wait.
package testdb

import (
	"testing"
	"time"

	"go-pos-register/internal/database"
	"go-pos-register/internal/models"
	"go-pos-register/internal/money"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a fresh, migrated database that is closed when the test ends.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// CreateUser inserts a user whose password is "secret".
func CreateUser(t testing.TB, db *gorm.DB, username, role string) models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	u := models.User{Username: username, PasswordHash: string(hash), Role: role}
	require.NoError(t, db.Create(&u).Error)
	return u
}

// CreateProduct inserts an active product.
func CreateProduct(t testing.TB, db *gorm.DB, sku string, price money.Cents, stock int) models.Product {
	t.Helper()
	p := models.Product{
		SKU:               sku,
		Name:              "Product " + sku,
		PriceCents:        price,
		StockQuantity:     stock,
		LowStockThreshold: 10,
		IsActive:          true,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

// Stock reads the current stock of a product.
func Stock(t testing.TB, db *gorm.DB, productID uint) int {
	t.Helper()
	var p models.Product
	require.NoError(t, db.First(&p, productID).Error)
	return p.StockQuantity
}
