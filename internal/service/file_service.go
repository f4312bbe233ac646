package service

import (
	"context"

	"tablevault/internal/domain"
	"tablevault/internal/dto"
)

type FileService interface {
	Upload(ctx context.Context, userID domain.UserID, filename, mimeType string, data []byte) (*dto.UploadResponse, error)
	List(ctx context.Context, userID domain.UserID) (*dto.FileListResponse, error)
	Get(ctx context.Context, userID domain.UserID, fileID domain.FileID) (*domain.File, []byte, error)

	UploadCSV(ctx context.Context, userID domain.UserID, table, filename string, data []byte) (*dto.CSVUploadResponse, error)
	ListTables(ctx context.Context, userID domain.UserID) (*dto.CSVTableListResponse, error)
}

type AnalyticsService interface {
	Schema(ctx context.Context, userID domain.UserID, table string) (*dto.SchemaResponse, error)
	Rows(ctx context.Context, userID domain.UserID, table string, page, pageSize int) (*dto.RowsResponse, error)
	Chart(ctx context.Context, userID domain.UserID, table string, r dto.ChartRequest) (*dto.ChartResponse, error)

	Overview(ctx context.Context, userID domain.UserID) (*dto.OverviewResponse, error)
	RecentFiles(ctx context.Context, userID domain.UserID) (*dto.RecentFilesResponse, error)
	// FileAnalytics fails with *domain.NotCSVError for files that are not CSV.
	FileAnalytics(ctx context.Context, userID domain.UserID, fileID domain.FileID) (*dto.FileAnalyticsResponse, error)
	UploadTrends(ctx context.Context, userID domain.UserID) (*dto.UploadTrendsResponse, error)
}
