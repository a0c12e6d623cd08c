package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/cbam-tracker/constants"
	"github.com/joseph-ayodele/cbam-tracker/internal/common"
	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
	"github.com/joseph-ayodele/cbam-tracker/internal/export"
	"github.com/joseph-ayodele/cbam-tracker/internal/pipeline"
	"github.com/joseph-ayodele/cbam-tracker/internal/repository"
	"github.com/joseph-ayodele/cbam-tracker/internal/session"
)

const uploadField = "files"

type summaryView struct {
	Items        int     `json:"items"`
	WeightTonnes float64 `json:"weight_tonnes"`
	TaxLocal     int64   `json:"tax_local"`
	TaxReference float64 `json:"tax_reference"`
}

type batchResponse struct {
	Batch   *session.Batch `json:"batch"`
	Summary summaryView    `json:"summary"`
}

func newBatchResponse(b *session.Batch) batchResponse {
	resp := batchResponse{Batch: b}
	if b != nil {
		sum := export.Summarize(b.Items)
		resp.Summary = summaryView(sum)
	}
	return resp
}

// handleUpload analyzes every image in the multipart "files" field and makes
// the result the session's batch. The upload is refused up front when the
// account has fewer credits than files.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, sess session.Session) {
	log := common.LoggerFromContext(r.Context(), s.logger)
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.MaxUploadMB)<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, r, common.InvalidArgumentErrorf("invalid multipart upload: %v", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		writeError(w, r, common.InvalidArgumentErrorf("no files in field %q", uploadField))
		return
	}
	for _, fh := range headers {
		if _, ok := constants.MimeForExt(filepath.Ext(fh.Filename)); !ok {
			writeError(w, r, common.InvalidArgumentErrorf("unsupported file type: %s", fh.Filename))
			return
		}
	}

	acct, err := s.Accounts.Lookup(r.Context(), sess.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if acct.Credits < len(headers) {
		log.Warn("batch.upload.insufficient_credits", "credits", acct.Credits, "files", len(headers))
		writeError(w, r, common.NewAppError("INSUFFICIENT_CREDITS",
			fmt.Sprintf("insufficient credits: have %d, need %d", acct.Credits, len(headers)),
			common.ErrInsufficientCredits))
		return
	}

	uploads := make([]pipeline.Upload, 0, len(headers))
	for _, fh := range headers {
		up, err := readUpload(fh)
		if err != nil {
			writeError(w, r, err)
			return
		}
		uploads = append(uploads, up)
	}

	log.Info("batch.upload.start", "files", len(uploads))
	items := s.Analyzer.AnalyzeBatch(r.Context(), uploads, sess.Company, nil)
	batch, err := s.Sessions.ReplaceBatch(sess.Token, items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.History.Record(r.Context(), sess.Username, batch.ID, batch.Items); err != nil {
		log.Warn("batch.history.record_failed", "batch_id", batch.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, newBatchResponse(&batch))
}

func readUpload(fh *multipart.FileHeader) (pipeline.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return pipeline.Upload{}, common.InvalidArgumentErrorf("open %s: %v", fh.Filename, err)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return pipeline.Upload{}, common.InvalidArgumentErrorf("read %s: %v", fh.Filename, err)
	}
	mimeType, _ := constants.MimeForExt(filepath.Ext(fh.Filename))
	return pipeline.Upload{Filename: filepath.Base(fh.Filename), MIMEType: mimeType, Data: data}, nil
}

func (s *Server) handleGetBatch(w http.ResponseWriter, _ *http.Request, sess session.Session) {
	writeJSON(w, http.StatusOK, newBatchResponse(sess.Batch))
}

func (s *Server) handleClearBatch(w http.ResponseWriter, r *http.Request, sess session.Session) {
	if err := s.Sessions.ClearBatch(sess.Token); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCorrectItem applies a user edit to one line and recomputes it.
func (s *Server) handleCorrectItem(w http.ResponseWriter, r *http.Request, sess session.Session) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, r, common.InvalidArgumentErrorf("item index must be an integer"))
		return
	}
	var c pipeline.Correction
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, r, err)
		return
	}
	v := common.NewValidator().
		Field("item_name", c.ItemName, common.MaxLength(maxNameLen)).
		Field("material", c.Material, common.MaxLength(maxNameLen)).
		Field("hs_code", c.HSCode, common.HSCode)
	if err := common.ValidateAndReturnError(v); err != nil {
		writeError(w, r, err)
		return
	}
	if sess.Batch == nil {
		writeError(w, r, common.NotFoundError("no batch in session"))
		return
	}
	if index < 0 || index >= len(sess.Batch.Items) {
		writeError(w, r, common.InvalidArgumentErrorf("item index %d out of range [0,%d)", index, len(sess.Batch.Items)))
		return
	}

	// recompute outside the session lock; the table fetch may hit the network
	updated := s.Analyzer.Recompute(r.Context(), sess.Batch.Items[index], c)
	stale := false
	item, err := s.Sessions.UpdateItem(sess.Token, index, func(cur entity.LineItem) entity.LineItem {
		if cur.ID != updated.ID {
			stale = true
			return cur
		}
		return updated
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if stale {
		writeError(w, r, common.NewAppError("CONFLICT", "batch was replaced; reload and retry", common.ErrInvalidInput))
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, sess session.Session) {
	if sess.Batch == nil || len(sess.Batch.Items) == 0 {
		writeError(w, r, common.NotFoundError("no analyzed items to export"))
		return
	}
	now := s.now()
	b, err := s.Reports.BuildReport(r.Context(), export.ReportInput{
		Company: sess.Company,
		Date:    now,
		Items:   sess.Batch.Items,
	})
	if err != nil {
		writeError(w, r, common.InternalErrorf("build report: %v", err))
		return
	}
	if b == nil {
		writeError(w, r, common.NotFoundError("no analyzed items to export"))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.ReportFileName(now)))
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

type historyResponse struct {
	Enabled bool                  `json:"enabled"`
	Entries []entity.HistoryEntry `json:"entries"`
}

// handleHistory lists past lines for the caller. Dates are YYYY-MM-DD and
// inclusive; a from without a to runs through today.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, sess session.Session) {
	q := r.URL.Query()
	from, err := parseDay(q.Get("from"))
	if err != nil {
		writeError(w, r, common.InvalidArgumentError("from must be YYYY-MM-DD"))
		return
	}
	to, err := parseDay(q.Get("to"))
	if err != nil {
		writeError(w, r, common.InvalidArgumentError("to must be YYYY-MM-DD"))
		return
	}
	if from != nil && to == nil {
		today := s.now().UTC()
		d := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
		to = &d
	}
	if to != nil {
		end := to.Add(24*time.Hour - time.Nanosecond)
		to = &end
	}
	limit := 0
	if l := strings.TrimSpace(q.Get("limit")); l != "" {
		if limit, err = strconv.Atoi(l); err != nil || limit < 0 {
			writeError(w, r, common.InvalidArgumentError("limit must be a non-negative integer"))
			return
		}
	}

	entries, err := s.History.List(r.Context(), sess.Username, from, to, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []entity.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Enabled: repository.IsEnabled(s.History), Entries: entries})
}

func parseDay(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
