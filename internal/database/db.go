package database

import (
	"fmt"
	"time"

	"go-pos-register/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Options controls how Connect reaches MySQL.
type Options struct {
	DSN     string
	Retries int
	LogSQL  bool
}

// Connect opens the MySQL connection (waiting for the DB to be ready) and
// syncs the schema.
func Connect(opts Options, log zerolog.Logger) (*gorm.DB, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("database: DB_DSN is empty, please configure your database")
	}
	if opts.Retries < 1 {
		opts.Retries = 1
	}

	gormLog := logger.Default.LogMode(logger.Warn)
	if opts.LogSQL {
		gormLog = logger.Default.LogMode(logger.Info)
	}

	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < opts.Retries; i++ {
		db, err = gorm.Open(mysql.Open(opts.DSN), &gorm.Config{
			Logger:         gormLog,
			TranslateError: true,
			NowFunc:        func() time.Time { return time.Now().UTC() },
		})
		if err == nil {
			break
		}
		log.Warn().Err(err).Msgf("failed to connect to database, retrying in 2 seconds (%d/%d)", i+1, opts.Retries)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("database: connect after %d attempts: %w", opts.Retries, err)
	}
	log.Info().Msg("connected to MySQL")

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info().Msg("database schema synced")
	return db, nil
}

// Migrate syncs the schema and seeds the register lock row.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	lock := models.RegisterLock{ID: models.MainRegisterID, Name: "main"}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&lock).Error; err != nil {
		return fmt.Errorf("database: seed register lock: %w", err)
	}
	return nil
}
