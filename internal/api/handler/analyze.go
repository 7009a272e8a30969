package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kiranshivaraju/findoc/internal/analysis"
	mw "github.com/kiranshivaraju/findoc/internal/api/middleware"
	"github.com/kiranshivaraju/findoc/internal/api/response"
	"github.com/kiranshivaraju/findoc/pkg/models"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before spilling to temp files.
const multipartMemory = 8 << 20

// Submitter accepts an upload and dispatches the analysis.
type Submitter interface {
	Submit(ctx context.Context, up analysis.Upload) (*analysis.Submission, error)
}

type analyzeResponse struct {
	Status     string           `json:"status"`
	AnalysisID int64            `json:"analysis_id"`
	FileID     int64            `json:"file_id"`
	Query      string           `json:"query"`
	Ticket     string           `json:"ticket,omitempty"`
	Message    string           `json:"message,omitempty"`
	Analysis   *models.Analysis `json:"analysis,omitempty"`
	QueuedAt   *time.Time       `json:"queued_at,omitempty"`
}

// NewAnalyzeHandler returns an http.HandlerFunc for POST /analyze.
func NewAnalyzeHandler(svc Submitter, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// leave room for the other form fields around the file part
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+multipartMemory)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeError(w, r, fmt.Errorf("%w (%d bytes)", errUploadTooBig, maxUploadBytes))
				return
			}
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest,
				"Expected a multipart/form-data body with a file field", nil)
			return
		}
		defer r.MultipartForm.RemoveAll() //nolint:errcheck

		file, header, err := r.FormFile("file")
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "file is required", nil)
			return
		}
		defer file.Close()

		if header.Size > maxUploadBytes {
			writeError(w, r, fmt.Errorf("%w (%d bytes)", errUploadTooBig, maxUploadBytes))
			return
		}

		userID, err := optionalID(r.FormValue("user_id"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "user_id must be a positive integer", nil)
			return
		}

		sub, err := svc.Submit(r.Context(), analysis.Upload{
			Body:         file,
			Filename:     header.Filename,
			ContentType:  header.Header.Get("Content-Type"),
			Query:        r.FormValue("query"),
			AnalysisType: r.FormValue("analysis_type"),
			UserID:       userID,
			ClientIP:     mw.ClientIP(r),
			UserAgent:    r.UserAgent(),
		})
		if err != nil {
			if sub != nil && sub.Analysis != nil {
				// the job exists and was recorded as failed on the synchronous path
				details := map[string]any{
					"analysis_id": sub.Analysis.ID,
					"status":      sub.Analysis.Status,
				}
				if sub.Analysis.ErrorKind != nil {
					details["error_kind"] = *sub.Analysis.ErrorKind
				}
				response.Error(w, http.StatusInternalServerError, response.CodeAnalysisFailed,
					"Error processing financial document", details)
				return
			}
			writeError(w, r, err)
			return
		}

		resp := analyzeResponse{
			AnalysisID: sub.Analysis.ID,
			FileID:     sub.File.ID,
			Query:      sub.Analysis.Query,
		}
		if sub.Mode == analysis.ModeQueued {
			resp.Status = "queued"
			resp.Ticket = sub.Ticket
			resp.Message = fmt.Sprintf("Analysis queued. Poll GET /analyses/%d for the result.", sub.Analysis.ID)
			resp.QueuedAt = &sub.Analysis.CreatedAt
			response.Accepted(w, resp)
			return
		}

		resp.Status = sub.Analysis.Status
		resp.Analysis = sub.Analysis
		response.JSON(w, resp)
	}
}
