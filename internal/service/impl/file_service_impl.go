package impl

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"tablevault/internal/domain"
	"tablevault/internal/dto"
	"tablevault/internal/observability/metrics"
	"tablevault/internal/observability/middleware"
	"tablevault/internal/store"
	"tablevault/internal/tabular"

	"github.com/google/uuid"
)

const DefaultMaxUploadBytes = 32 << 20

type fileStore interface {
	Create(ctx context.Context, file *domain.File) error
	Get(ctx context.Context, userID domain.UserID, id domain.FileID) (*domain.File, error)
	List(ctx context.Context, userID domain.UserID, limit int) ([]domain.File, error)
}

type csvStore interface {
	Create(ctx context.Context, f *domain.CSVFile) error
	GetByTable(ctx context.Context, userID domain.UserID, table string) (*domain.CSVFile, error)
	List(ctx context.Context, userID domain.UserID) ([]domain.CSVFile, error)
}

type FileServiceImpl struct {
	Files          fileStore
	CSV            csvStore
	Blobs          store.BlobStore
	MaxUploadBytes int64

	now func() time.Time
}

func NewFileServiceImpl(st *store.Store, blobs store.BlobStore, maxUploadBytes int64) *FileServiceImpl {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &FileServiceImpl{
		Files:          st.Files(),
		CSV:            st.CSVFiles(),
		Blobs:          blobs,
		MaxUploadBytes: maxUploadBytes,
		now:            time.Now,
	}
}

func (s *FileServiceImpl) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

func (s *FileServiceImpl) checkPayload(filename string, data []byte) error {
	if strings.TrimSpace(filename) == "" || len(data) == 0 {
		return domain.ErrInvalidRequest
	}
	if s.MaxUploadBytes > 0 && int64(len(data)) > s.MaxUploadBytes {
		return domain.ErrPayloadTooLarge
	}
	return nil
}

func (s *FileServiceImpl) Upload(ctx context.Context, userID domain.UserID, filename, mimeType string, data []byte) (_ *dto.UploadResponse, err error) {
	result := "success"
	defer func() {
		if err != nil {
			result = "failure"
		}
		metrics.FilesUploadedTotal.WithLabelValues("file", result).Inc()
	}()

	if err := s.checkPayload(filename, data); err != nil {
		return nil, err
	}
	original := cleanFilename(filename)
	if mimeType == "" {
		mimeType = guessMimeType(original)
	}

	now := s.clock()
	id := uuid.NewString()
	key := store.StorageKey(userID, now, id)
	if err := s.Blobs.Put(ctx, key, mimeType, data); err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}

	f := &domain.File{
		UserID:       userID,
		Filename:     id + "_" + original,
		OriginalName: original,
		StorageKey:   key,
		FileSize:     int64(len(data)),
		MimeType:     mimeType,
		UploadedAt:   now,
	}
	if err := s.Files.Create(ctx, f); err != nil {
		s.discardBlob(ctx, key)
		return nil, fmt.Errorf("store file metadata: %w", err)
	}

	middleware.Logger(ctx).Info("file uploaded", "user_id", userID, "file_id", f.ID, "size", f.FileSize)
	return &dto.UploadResponse{FileID: f.ID, Filename: f.Filename}, nil
}

func (s *FileServiceImpl) List(ctx context.Context, userID domain.UserID) (*dto.FileListResponse, error) {
	files, err := s.Files.List(ctx, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	out := &dto.FileListResponse{Files: make([]dto.FileInfo, 0, len(files))}
	for _, f := range files {
		out.Files = append(out.Files, dto.FileInfo{
			FileID:     f.ID,
			Filename:   f.OriginalName,
			FileSize:   f.FileSize,
			MimeType:   f.MimeType,
			UploadedAt: f.UploadedAt,
		})
	}
	return out, nil
}

func (s *FileServiceImpl) Get(ctx context.Context, userID domain.UserID, fileID domain.FileID) (*domain.File, []byte, error) {
	f, err := s.Files.Get(ctx, userID, fileID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, nil, domain.ErrFileNotFound
		}
		return nil, nil, fmt.Errorf("load file: %w", err)
	}
	data, err := s.Blobs.Get(ctx, f.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("load blob %s: %w", f.StorageKey, err)
	}
	return f, data, nil
}

func (s *FileServiceImpl) UploadCSV(ctx context.Context, userID domain.UserID, table, filename string, data []byte) (_ *dto.CSVUploadResponse, err error) {
	result := "success"
	defer func() {
		if err != nil {
			result = "failure"
		}
		metrics.FilesUploadedTotal.WithLabelValues("csv", result).Inc()
	}()

	table = strings.TrimSpace(table)
	if table == "" {
		return nil, domain.ErrInvalidRequest
	}
	if err := s.checkPayload(filename, data); err != nil {
		return nil, err
	}
	frame, err := tabular.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCSV, err)
	}

	if _, err := s.CSV.GetByTable(ctx, userID, table); err == nil {
		return nil, domain.ErrTableExists
	} else if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup table: %w", err)
	}

	now := s.clock()
	original := cleanFilename(filename)
	key := store.StorageKey(userID, now, uuid.NewString())
	if err := s.Blobs.Put(ctx, key, "text/csv", data); err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}

	columns := frame.Columns()
	rec := &domain.CSVFile{
		UserID:     userID,
		Table:      table,
		Filename:   original,
		StorageKey: key,
		Metadata: domain.CSVMetadata{
			TableName:   table,
			ColumnNames: columns,
			Filename:    original,
			CreatedAt:   now,
		},
		UploadedAt: now,
	}
	if err := s.CSV.Create(ctx, rec); err != nil {
		s.discardBlob(ctx, key)
		if errors.Is(err, store.ErrDuplicate) {
			return nil, domain.ErrTableExists
		}
		return nil, fmt.Errorf("store csv metadata: %w", err)
	}

	middleware.Logger(ctx).Info("csv table stored", "user_id", userID, "table", table, "rows", frame.Len())
	return &dto.CSVUploadResponse{FileID: rec.ID, TableName: table, ColumnNames: columns}, nil
}

func (s *FileServiceImpl) ListTables(ctx context.Context, userID domain.UserID) (*dto.CSVTableListResponse, error) {
	tables, err := s.CSV.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	out := &dto.CSVTableListResponse{Tables: make([]dto.CSVTableInfo, 0, len(tables))}
	for _, t := range tables {
		out.Tables = append(out.Tables, dto.CSVTableInfo{
			TableName:   t.Table,
			Filename:    t.Filename,
			ColumnNames: t.Metadata.ColumnNames,
			UploadedAt:  t.UploadedAt,
		})
	}
	return out, nil
}

// discardBlob removes an orphaned blob after a failed metadata write.
func (s *FileServiceImpl) discardBlob(ctx context.Context, key string) {
	if err := s.Blobs.Delete(ctx, key); err != nil {
		middleware.Logger(ctx).Warn("orphaned blob not removed", "storage_key", key, "error", err)
	}
}

// cleanFilename strips any directory part a client sent along with the name.
func cleanFilename(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := path.Base(name)
	if base == "." || base == "/" {
		return "upload"
	}
	return base
}

func guessMimeType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".csv" {
		return "text/csv"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
