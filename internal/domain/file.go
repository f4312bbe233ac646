package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type File struct {
	ID           FileID    `gorm:"primaryKey;autoIncrement" db:"id" json:"file_id"`
	UserID       UserID    `gorm:"not null;index:idx_files_user_uploaded,priority:1" db:"user_id" json:"-"`
	Filename     string    `gorm:"type:varchar(255);not null" db:"filename" json:"filename"`
	OriginalName string    `gorm:"column:original_name;type:varchar(255);not null" db:"original_name" json:"original_name"`
	StorageKey   string    `gorm:"column:storage_key;type:varchar(512);not null" db:"storage_key" json:"-"`
	FileSize     int64     `gorm:"column:file_size;not null" db:"file_size" json:"file_size"`
	MimeType     string    `gorm:"column:mime_type;type:varchar(100)" db:"mime_type" json:"mime_type"`
	UploadedAt   time.Time `gorm:"column:uploaded_at;not null;index:idx_files_user_uploaded,priority:2" db:"uploaded_at" json:"uploaded_at"`
}

func (File) TableName() string { return "files" }

// IsCSV matches the loose content-type check used for analytics ("csv" anywhere in the type).
func (f *File) IsCSV() bool {
	return f.MimeType != "" && strings.Contains(strings.ToLower(f.MimeType), "csv")
}

// CSVFile is a named table uploaded by a user. Table names are unique per user.
type CSVFile struct {
	ID         FileID      `gorm:"primaryKey;autoIncrement" db:"id" json:"id"`
	UserID     UserID      `gorm:"not null;uniqueIndex:ux_csv_user_table,priority:1" db:"user_id" json:"-"`
	Table      string      `gorm:"column:table_name;type:varchar(255);not null;uniqueIndex:ux_csv_user_table,priority:2" db:"table_name" json:"table_name"`
	Filename   string      `gorm:"type:varchar(255);not null" db:"filename" json:"filename"`
	StorageKey string      `gorm:"column:storage_key;type:varchar(512);not null" db:"storage_key" json:"-"`
	Metadata   CSVMetadata `gorm:"type:jsonb;not null" db:"metadata" json:"metadata"`
	UploadedAt time.Time   `gorm:"column:uploaded_at;not null" db:"uploaded_at" json:"uploaded_at"`
}

func (CSVFile) TableName() string { return "csv_files" }

// CSVMetadata is persisted as a JSON document alongside the table row.
type CSVMetadata struct {
	TableName   string    `json:"table_name"`
	ColumnNames []string  `json:"column_names"`
	Filename    string    `json:"filename"`
	CreatedAt   time.Time `json:"created_at"`
}

// Value implements driver.Valuer.
func (m CSVMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *CSVMetadata) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*m = CSVMetadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("csv metadata: unsupported scan type %T", value)
	}
	if err := json.Unmarshal(raw, m); err != nil {
		return fmt.Errorf("csv metadata: %w", err)
	}
	return nil
}

// Blob holds raw bytes for the relational blob backend.
type Blob struct {
	StorageKey  string    `gorm:"column:storage_key;primaryKey;type:varchar(512)" db:"storage_key"`
	ContentType string    `gorm:"column:content_type;type:varchar(100)" db:"content_type"`
	Data        []byte    `gorm:"not null" db:"data"`
	CreatedAt   time.Time `gorm:"not null" db:"created_at"`
}

func (Blob) TableName() string { return "blobs" }
