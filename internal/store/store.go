package store

import (
	"context"
	"fmt"

	"tablevault/internal/domain"
	"tablevault/internal/store/migrations"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
)

type Store struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Store { return &Store{DB: db} }

func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{DB: tx})
	})
}

// Migrate applies the embedded SQL migrations on postgres. Other dialects
// (sqlite in tests) get the schema from the gorm models.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return db.WithContext(ctx).AutoMigrate(&domain.User{}, &domain.File{}, &domain.CSVFile{}, &domain.Blob{})
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
