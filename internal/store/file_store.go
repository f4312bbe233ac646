package store

import (
	"context"
	"time"

	"tablevault/internal/domain"

	"gorm.io/gorm"
)

type FileStore struct{ db *gorm.DB }

func (s *Store) Files() *FileStore { return &FileStore{db: s.DB} }

func (f *FileStore) Create(ctx context.Context, file *domain.File) error {
	return translate(f.db.WithContext(ctx).Create(file).Error)
}

// Get returns the file only when it belongs to userID.
func (f *FileStore) Get(ctx context.Context, userID domain.UserID, id domain.FileID) (*domain.File, error) {
	var file domain.File
	err := f.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&file).Error
	if err != nil {
		return nil, translate(err)
	}
	return &file, nil
}

// List returns the user's files newest first. limit <= 0 means no limit.
func (f *FileStore) List(ctx context.Context, userID domain.UserID, limit int) ([]domain.File, error) {
	q := f.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("uploaded_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var files []domain.File
	if err := q.Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

// ListSince returns files uploaded at or after since, oldest first.
func (f *FileStore) ListSince(ctx context.Context, userID domain.UserID, since time.Time) ([]domain.File, error) {
	var files []domain.File
	err := f.db.WithContext(ctx).
		Where("user_id = ? AND uploaded_at >= ?", userID, since).
		Order("uploaded_at ASC").
		Find(&files).Error
	if err != nil {
		return nil, err
	}
	return files, nil
}

type FileTotals struct {
	Count     int64
	TotalSize int64
}

func (f *FileStore) Totals(ctx context.Context, userID domain.UserID) (FileTotals, error) {
	var out FileTotals
	err := f.db.WithContext(ctx).Model(&domain.File{}).
		Select("COUNT(*) AS count, COALESCE(SUM(file_size), 0) AS total_size").
		Where("user_id = ?", userID).
		Scan(&out).Error
	return out, err
}

type MimeCount struct {
	MimeType string
	Count    int64
}

func (f *FileStore) CountByMimeType(ctx context.Context, userID domain.UserID) ([]MimeCount, error) {
	var out []MimeCount
	err := f.db.WithContext(ctx).Model(&domain.File{}).
		Select("COALESCE(mime_type, '') AS mime_type, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("mime_type").
		Scan(&out).Error
	return out, err
}

func (f *FileStore) CountSince(ctx context.Context, userID domain.UserID, since time.Time) (int64, error) {
	var n int64
	err := f.db.WithContext(ctx).Model(&domain.File{}).
		Where("user_id = ? AND uploaded_at >= ?", userID, since).
		Count(&n).Error
	return n, err
}
