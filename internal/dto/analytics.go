package dto

import "time"

type ColumnSchema struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	NonNull int    `json:"non_null"`
	Missing int    `json:"missing"`
}

type SchemaResponse struct {
	TableName string         `json:"table_name"`
	RowCount  int            `json:"row_count"`
	Columns   []ColumnSchema `json:"columns"`
}

type RowsResponse struct {
	TableName  string           `json:"table_name"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalRows  int              `json:"total_rows"`
	TotalPages int              `json:"total_pages"`
	Columns    []string         `json:"columns"`
	Rows       []map[string]any `json:"rows"`
}

type ChartRequest struct {
	X     string
	Y     string
	Agg   string
	Limit int
}

type ChartResponse struct {
	X      string    `json:"x"`
	Y      string    `json:"y"`
	Agg    string    `json:"agg"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

type OverviewResponse struct {
	TotalFiles  int64            `json:"total_files"`
	TotalSizeMB float64          `json:"total_size_mb"`
	FilesToday  int64            `json:"files_today"`
	FilesByType map[string]int64 `json:"files_by_type"`
}

type RecentFile struct {
	ID         uint      `json:"id"`
	Name       string    `json:"name"`
	SizeKB     float64   `json:"size_kb"`
	Type       string    `json:"type"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type RecentFilesResponse struct {
	RecentFiles []RecentFile `json:"recent_files"`
}

type FileAnalyticsResponse struct {
	Filename       string           `json:"filename"`
	TotalRows      int              `json:"total_rows"`
	TotalColumns   int              `json:"total_columns"`
	NumericColumns []string         `json:"numeric_columns"`
	TextColumns    []string         `json:"text_columns"`
	MissingData    map[string]int   `json:"missing_data"`
	SampleData     []map[string]any `json:"sample_data"`
	Columns        []string         `json:"columns"`
}

// NotCSVResponse is returned with 200 when analytics are requested for a non-CSV file.
type NotCSVResponse struct {
	Error    string `json:"error"`
	Filename string `json:"filename"`
}

type UploadTrend struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type UploadTrendsResponse struct {
	UploadTrends []UploadTrend `json:"upload_trends"`
}
