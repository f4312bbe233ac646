package dto

import "time"

type UploadResponse struct {
	FileID   uint   `json:"file_id"`
	Filename string `json:"filename"`
}

type FileInfo struct {
	FileID     uint      `json:"file_id"`
	Filename   string    `json:"filename"`
	FileSize   int64     `json:"file_size"`
	MimeType   string    `json:"mime_type"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type FileListResponse struct {
	Files []FileInfo `json:"files"`
}

type CSVUploadResponse struct {
	FileID      uint     `json:"file_id"`
	TableName   string   `json:"table_name"`
	ColumnNames []string `json:"column_names"`
}

type CSVTableInfo struct {
	TableName   string    `json:"table_name"`
	Filename    string    `json:"filename"`
	ColumnNames []string  `json:"column_names"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

type CSVTableListResponse struct {
	Tables []CSVTableInfo `json:"tables"`
}
