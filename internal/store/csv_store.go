package store

import (
	"context"

	"tablevault/internal/domain"

	"gorm.io/gorm"
)

type CSVStore struct{ db *gorm.DB }

func (s *Store) CSVFiles() *CSVStore { return &CSVStore{db: s.DB} }

// Create fails with ErrDuplicate when the user already has a table of that name.
func (c *CSVStore) Create(ctx context.Context, f *domain.CSVFile) error {
	return translate(c.db.WithContext(ctx).Create(f).Error)
}

func (c *CSVStore) GetByTable(ctx context.Context, userID domain.UserID, table string) (*domain.CSVFile, error) {
	var f domain.CSVFile
	err := c.db.WithContext(ctx).
		Where("user_id = ? AND table_name = ?", userID, table).
		First(&f).Error
	if err != nil {
		return nil, translate(err)
	}
	return &f, nil
}

func (c *CSVStore) List(ctx context.Context, userID domain.UserID) ([]domain.CSVFile, error) {
	var out []domain.CSVFile
	err := c.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("uploaded_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
