package store

import (
	"context"

	"tablevault/internal/domain"

	"gorm.io/gorm"
)

// DeleteUserData removes the user's record and every file and table row they
// own, returning per-resource counts captured before deletion and the storage
// keys whose blobs are now orphaned.
func (s *Store) DeleteUserData(ctx context.Context, userID domain.UserID) (map[string]int64, []string, error) {
	deleted := map[string]int64{}
	var keys []string

	err := s.WithTx(ctx, func(tx *Store) error {
		db := tx.DB.WithContext(ctx)

		count := func(label string, query *gorm.DB) error {
			var total int64
			if err := query.Count(&total).Error; err != nil {
				return err
			}
			deleted[label] = total
			return nil
		}

		if err := count("users", db.Model(&domain.User{}).Where("id = ?", userID)); err != nil {
			return err
		}
		if deleted["users"] == 0 {
			return ErrRecordNotFound
		}
		if err := count("files", db.Model(&domain.File{}).Where("user_id = ?", userID)); err != nil {
			return err
		}
		if err := count("csvTables", db.Model(&domain.CSVFile{}).Where("user_id = ?", userID)); err != nil {
			return err
		}

		var fileKeys, csvKeys []string
		if err := db.Model(&domain.File{}).Where("user_id = ?", userID).Pluck("storage_key", &fileKeys).Error; err != nil {
			return err
		}
		if err := db.Model(&domain.CSVFile{}).Where("user_id = ?", userID).Pluck("storage_key", &csvKeys).Error; err != nil {
			return err
		}
		keys = append(fileKeys, csvKeys...)

		if err := db.Where("user_id = ?", userID).Delete(&domain.CSVFile{}).Error; err != nil {
			return err
		}
		if err := db.Where("user_id = ?", userID).Delete(&domain.File{}).Error; err != nil {
			return err
		}
		return db.Where("id = ?", userID).Delete(&domain.User{}).Error
	})
	if err != nil {
		return nil, nil, translate(err)
	}
	return deleted, keys, nil
}
