package store

import (
	"context"
	"fmt"
	"time"

	"tablevault/internal/domain"

	"gorm.io/gorm"
)

// BlobStore keeps raw file bytes addressed by storage key.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// StorageKey is the blob location for a new upload:
// users/<user_id>/<yyyy>/<mm>/<dd>/<uuid>.
func StorageKey(userID domain.UserID, at time.Time, id string) string {
	at = at.UTC()
	return fmt.Sprintf("users/%d/%04d/%02d/%02d/%s", userID, at.Year(), int(at.Month()), at.Day(), id)
}

// DBBlobStore keeps blobs in the relational store's blobs table.
type DBBlobStore struct{ db *gorm.DB }

func (s *Store) Blobs() *DBBlobStore { return &DBBlobStore{db: s.DB} }

func (b *DBBlobStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	blob := &domain.Blob{
		StorageKey:  key,
		ContentType: contentType,
		Data:        data,
		CreatedAt:   time.Now().UTC(),
	}
	return translate(b.db.WithContext(ctx).Create(blob).Error)
}

func (b *DBBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	var blob domain.Blob
	if err := b.db.WithContext(ctx).First(&blob, "storage_key = ?", key).Error; err != nil {
		return nil, translate(err)
	}
	return blob.Data, nil
}

func (b *DBBlobStore) Delete(ctx context.Context, key string) error {
	return b.db.WithContext(ctx).Delete(&domain.Blob{}, "storage_key = ?", key).Error
}
