package impl

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"tablevault/internal/domain"
	"tablevault/internal/dto"
	"tablevault/internal/store"
	"tablevault/internal/tabular"
)

const (
	DefaultPageSize   = 50
	MaxPageSize       = 500
	DefaultChartLimit = 100
	MaxChartLimit     = 1000

	recentFilesLimit = 10
	sampleRows       = 5
	trendDays        = 7
)

type analyticsFileStore interface {
	Get(ctx context.Context, userID domain.UserID, id domain.FileID) (*domain.File, error)
	List(ctx context.Context, userID domain.UserID, limit int) ([]domain.File, error)
	ListSince(ctx context.Context, userID domain.UserID, since time.Time) ([]domain.File, error)
	Totals(ctx context.Context, userID domain.UserID) (store.FileTotals, error)
	CountByMimeType(ctx context.Context, userID domain.UserID) ([]store.MimeCount, error)
	CountSince(ctx context.Context, userID domain.UserID, since time.Time) (int64, error)
}

type AnalyticsServiceImpl struct {
	Files analyticsFileStore
	CSV   csvStore
	Blobs store.BlobStore

	now func() time.Time
}

func NewAnalyticsServiceImpl(st *store.Store, blobs store.BlobStore) *AnalyticsServiceImpl {
	return &AnalyticsServiceImpl{
		Files: st.Files(),
		CSV:   st.CSVFiles(),
		Blobs: blobs,
		now:   time.Now,
	}
}

func (s *AnalyticsServiceImpl) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

func (s *AnalyticsServiceImpl) loadTable(ctx context.Context, userID domain.UserID, table string) (*tabular.Frame, error) {
	rec, err := s.CSV.GetByTable(ctx, userID, table)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrTableNotFound
		}
		return nil, fmt.Errorf("lookup table: %w", err)
	}
	return s.loadFrame(ctx, rec.StorageKey)
}

func (s *AnalyticsServiceImpl) loadFrame(ctx context.Context, key string) (*tabular.Frame, error) {
	data, err := s.Blobs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load blob %s: %w", key, err)
	}
	frame, err := tabular.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCSV, err)
	}
	return frame, nil
}

func (s *AnalyticsServiceImpl) Schema(ctx context.Context, userID domain.UserID, table string) (*dto.SchemaResponse, error) {
	frame, err := s.loadTable(ctx, userID, table)
	if err != nil {
		return nil, err
	}
	schema := frame.Schema()
	out := &dto.SchemaResponse{
		TableName: table,
		RowCount:  frame.Len(),
		Columns:   make([]dto.ColumnSchema, 0, len(schema)),
	}
	for _, c := range schema {
		out.Columns = append(out.Columns, dto.ColumnSchema{
			Name:    c.Name,
			Type:    string(c.Type),
			NonNull: c.NonNull,
			Missing: c.Missing,
		})
	}
	return out, nil
}

func (s *AnalyticsServiceImpl) Rows(ctx context.Context, userID domain.UserID, table string, page, pageSize int) (*dto.RowsResponse, error) {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}

	frame, err := s.loadTable(ctx, userID, table)
	if err != nil {
		return nil, err
	}
	p := frame.Page(page, pageSize)
	return &dto.RowsResponse{
		TableName:  table,
		Page:       p.Number,
		PageSize:   p.Size,
		TotalRows:  p.TotalRows,
		TotalPages: p.TotalPages,
		Columns:    frame.Columns(),
		Rows:       p.Records,
	}, nil
}

func (s *AnalyticsServiceImpl) Chart(ctx context.Context, userID domain.UserID, table string, r dto.ChartRequest) (*dto.ChartResponse, error) {
	if r.X == "" || r.Y == "" {
		return nil, fmt.Errorf("%w: x and y are required", domain.ErrInvalidRequest)
	}
	agg, err := tabular.ParseAgg(r.Agg)
	if err != nil {
		return nil, fmt.Errorf("%w: agg must be one of none, sum, avg, count, min, max", domain.ErrInvalidRequest)
	}
	limit := r.Limit
	switch {
	case limit <= 0:
		limit = DefaultChartLimit
	case limit > MaxChartLimit:
		limit = MaxChartLimit
	}

	frame, err := s.loadTable(ctx, userID, table)
	if err != nil {
		return nil, err
	}
	series, err := frame.Chart(r.X, r.Y, agg, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return &dto.ChartResponse{
		X:      r.X,
		Y:      r.Y,
		Agg:    string(agg),
		Labels: series.Labels,
		Values: series.Values,
	}, nil
}

func (s *AnalyticsServiceImpl) Overview(ctx context.Context, userID domain.UserID) (*dto.OverviewResponse, error) {
	totals, err := s.Files.Totals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("file totals: %w", err)
	}
	today, err := s.Files.CountSince(ctx, userID, startOfDay(s.clock()))
	if err != nil {
		return nil, fmt.Errorf("files today: %w", err)
	}
	byType, err := s.Files.CountByMimeType(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("files by type: %w", err)
	}

	out := &dto.OverviewResponse{
		TotalFiles:  totals.Count,
		TotalSizeMB: round2(float64(totals.TotalSize) / (1024 * 1024)),
		FilesToday:  today,
		FilesByType: make(map[string]int64, len(byType)),
	}
	for _, m := range byType {
		key := m.MimeType
		if key == "" {
			key = "unknown"
		}
		out.FilesByType[key] += m.Count
	}
	return out, nil
}

func (s *AnalyticsServiceImpl) RecentFiles(ctx context.Context, userID domain.UserID) (*dto.RecentFilesResponse, error) {
	files, err := s.Files.List(ctx, userID, recentFilesLimit)
	if err != nil {
		return nil, fmt.Errorf("recent files: %w", err)
	}
	out := &dto.RecentFilesResponse{RecentFiles: make([]dto.RecentFile, 0, len(files))}
	for _, f := range files {
		out.RecentFiles = append(out.RecentFiles, dto.RecentFile{
			ID:         f.ID,
			Name:       f.OriginalName,
			SizeKB:     round2(float64(f.FileSize) / 1024),
			Type:       f.MimeType,
			UploadedAt: f.UploadedAt,
		})
	}
	return out, nil
}

func (s *AnalyticsServiceImpl) FileAnalytics(ctx context.Context, userID domain.UserID, fileID domain.FileID) (*dto.FileAnalyticsResponse, error) {
	f, err := s.Files.Get(ctx, userID, fileID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrFileNotFound
		}
		return nil, fmt.Errorf("load file: %w", err)
	}
	if !f.IsCSV() {
		return nil, &domain.NotCSVError{Filename: f.OriginalName}
	}

	frame, err := s.loadFrame(ctx, f.StorageKey)
	if err != nil {
		return nil, err
	}
	sum := frame.Summarize(sampleRows)
	return &dto.FileAnalyticsResponse{
		Filename:       f.OriginalName,
		TotalRows:      sum.TotalRows,
		TotalColumns:   sum.TotalColumns,
		NumericColumns: sum.NumericColumns,
		TextColumns:    sum.TextColumns,
		MissingData:    sum.MissingData,
		SampleData:     sum.Sample,
		Columns:        sum.Columns,
	}, nil
}

// UploadTrends counts uploads per UTC day from the start of the day a week ago.
func (s *AnalyticsServiceImpl) UploadTrends(ctx context.Context, userID domain.UserID) (*dto.UploadTrendsResponse, error) {
	since := startOfDay(s.clock()).AddDate(0, 0, -trendDays)
	files, err := s.Files.ListSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("upload trends: %w", err)
	}

	out := &dto.UploadTrendsResponse{UploadTrends: []dto.UploadTrend{}}
	for _, f := range files {
		day := f.UploadedAt.UTC().Format(time.DateOnly)
		if n := len(out.UploadTrends); n > 0 && out.UploadTrends[n-1].Date == day {
			out.UploadTrends[n-1].Count++
			continue
		}
		out.UploadTrends = append(out.UploadTrends, dto.UploadTrend{Date: day, Count: 1})
	}
	return out, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
