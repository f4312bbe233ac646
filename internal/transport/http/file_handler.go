package http

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"tablevault/internal/domain"
	"tablevault/internal/dto"
	"tablevault/internal/service"

	"github.com/go-chi/chi/v5"
)

// room for multipart boundaries and form fields on top of the file itself
const multipartOverhead = 1 << 20

type fileHandler struct {
	files          service.FileService
	analytics      service.AnalyticsService
	maxUploadBytes int64
}

type multipartFile struct {
	name        string
	contentType string
	data        []byte
}

// readUpload pulls the "file" part out of a multipart request, enforcing the
// upload limit while reading.
func (h *fileHandler) readUpload(w http.ResponseWriter, r *http.Request) (*multipartFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, domain.ErrPayloadTooLarge
		}
		return nil, fmt.Errorf("%w: expected multipart form data", domain.ErrInvalidRequest)
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: missing file field", domain.ErrInvalidRequest)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > h.maxUploadBytes {
		return nil, domain.ErrPayloadTooLarge
	}
	return &multipartFile{
		name:        hdr.Filename,
		contentType: hdr.Header.Get("Content-Type"),
		data:        data,
	}, nil
}

func (h *fileHandler) upload(w http.ResponseWriter, r *http.Request) {
	sub := mustSubject(r)
	up, err := h.readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.files.Upload(r.Context(), sub.UserID, up.name, up.contentType, up.data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *fileHandler) list(w http.ResponseWriter, r *http.Request) {
	sub := mustSubject(r)
	res, err := h.files.List(r.Context(), sub.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *fileHandler) download(w http.ResponseWriter, r *http.Request) {
	sub := mustSubject(r)
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	f, data, err := h.files.Get(r.Context(), sub.UserID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ct := f.MimeType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.OriginalName}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *fileHandler) uploadCSV(w http.ResponseWriter, r *http.Request) {
	sub := mustSubject(r)
	up, err := h.readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	table := strings.TrimSpace(r.FormValue("table_name"))
	if table == "" {
		writeDetail(w, http.StatusUnprocessableEntity, []domain.FieldError{{Field: "table_name", Message: "field required"}})
		return
	}
	res, err := h.files.UploadCSV(r.Context(), sub.UserID, table, up.name, up.data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *fileHandler) listTables(w http.ResponseWriter, r *http.Request) {
	sub := mustSubject(r)
	res, err := h.files.ListTables(r.Context(), sub.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *fileHandler) schema(w http.ResponseWriter, r *http.Request) {
	sub := mustSubject(r)
	res, err := h.analytics.Schema(r.Context(), sub.UserID, chi.URLParam(r, "table"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *fileHandler) rows(w http.ResponseWriter, r *http.Request) {
	sub := mustSubject(r)
	page, ok := queryInt(w, r, "page", 1)
	if !ok {
		return
	}
	size, ok := queryInt(w, r, "page_size", 0)
	if !ok {
		return
	}
	res, err := h.analytics.Rows(r.Context(), sub.UserID, chi.URLParam(r, "table"), page, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *fileHandler) chart(w http.ResponseWriter, r *http.Request) {
	sub := mustSubject(r)
	limit, ok := queryInt(w, r, "limit", 0)
	if !ok {
		return
	}
	q := r.URL.Query()
	req := dto.ChartRequest{X: q.Get("x"), Y: q.Get("y"), Agg: q.Get("agg"), Limit: limit}
	res, err := h.analytics.Chart(r.Context(), sub.UserID, chi.URLParam(r, "table"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *fileHandler) overview(w http.ResponseWriter, r *http.Request) {
	sub := mustSubject(r)
	res, err := h.analytics.Overview(r.Context(), sub.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *fileHandler) recentFiles(w http.ResponseWriter, r *http.Request) {
	sub := mustSubject(r)
	res, err := h.analytics.RecentFiles(r.Context(), sub.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *fileHandler) fileAnalytics(w http.ResponseWriter, r *http.Request) {
	sub := mustSubject(r)
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.analytics.FileAnalytics(r.Context(), sub.UserID, id)
	if err != nil {
		var notCSV *domain.NotCSVError
		if errors.As(err, &notCSV) {
			writeJSON(w, http.StatusOK, dto.NotCSVResponse{Error: "File is not a CSV", Filename: notCSV.Filename})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *fileHandler) uploadTrends(w http.ResponseWriter, r *http.Request) {
	sub := mustSubject(r)
	res, err := h.analytics.UploadTrends(r.Context(), sub.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (domain.FileID, bool) {
	n, err := strconv.ParseUint(chi.URLParam(r, name), 10, 32)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, []domain.FieldError{{Field: name, Message: "value is not a valid integer"}})
		return 0, false
	}
	return domain.FileID(n), true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, []domain.FieldError{{Field: name, Message: "value is not a valid integer"}})
		return 0, false
	}
	return n, true
}
