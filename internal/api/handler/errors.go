package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/findoc/internal/api/response"
	"github.com/kiranshivaraju/findoc/internal/documents"
	"github.com/kiranshivaraju/findoc/internal/store"
)

var (
	errBadID        = errors.New("id must be a positive integer")
	errBadPaging    = errors.New("skip must be >= 0 and limit between 1 and 1000")
	errUploadTooBig = errors.New("upload exceeds the maximum size")
)

// writeError maps domain errors onto the error envelope. Anything not
// recognised is logged and reported as a 500 without internals.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, documents.ErrUnsupportedType):
		response.Error(w, http.StatusBadRequest, response.CodeUnsupportedFileType, "Only PDF files are supported", nil)
	case errors.Is(err, documents.ErrEmptyFile):
		response.Error(w, http.StatusBadRequest, response.CodeEmptyFile, "Uploaded file is empty", nil)
	case errors.Is(err, errUploadTooBig):
		response.Error(w, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge, err.Error(), nil)
	case errors.Is(err, errBadID), errors.Is(err, errBadPaging):
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, err.Error(), nil)
	case errors.Is(err, store.ErrValidation):
		response.Error(w, http.StatusBadRequest, response.CodeValidation, err.Error(), nil)
	case errors.Is(err, store.ErrInvalidReference):
		response.Error(w, http.StatusBadRequest, response.CodeInvalidReference, "Referenced user or file does not exist", nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, response.CodeNotFound, "Resource not found", nil)
	case errors.Is(err, store.ErrDuplicateKey):
		response.Error(w, http.StatusConflict, response.CodeDuplicate, "Resource already exists", nil)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Internal(w)
	}
}
