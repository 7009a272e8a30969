// Package response writes the API's JSON envelopes: {data}, {data, meta} for
// listings and {error} for failures.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Code is the machine-readable error.code of a failure envelope.
type Code string

const (
	CodeInvalidRequest      Code = "INVALID_REQUEST"
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeUnsupportedFileType Code = "UNSUPPORTED_FILE_TYPE"
	CodeEmptyFile           Code = "EMPTY_FILE"
	CodeFileTooLarge        Code = "FILE_TOO_LARGE"
	CodeInvalidReference    Code = "INVALID_REFERENCE"
	CodeNotFound            Code = "RESOURCE_NOT_FOUND"
	CodeDuplicate           Code = "DUPLICATE_RESOURCE"
	CodeRateLimited         Code = "RATE_LIMIT_EXCEEDED"
	CodeAnalysisFailed      Code = "ANALYSIS_FAILED"
	CodeDegraded            Code = "DEGRADED"
	CodeNotImplemented      Code = "NOT_IMPLEMENTED"
	CodeInternal            Code = "INTERNAL_ERROR"
)

type errorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// PaginationMeta describes an offset page of a listing.
type PaginationMeta struct {
	Skip    int  `json:"skip"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

// Page builds the meta for a page of returned rows out of total, starting at skip.
func Page(skip, limit, returned, total int) PaginationMeta {
	return PaginationMeta{Skip: skip, Limit: limit, Total: total, HasNext: skip+returned < total}
}

func JSON(w http.ResponseWriter, data any) {
	write(w, http.StatusOK, map[string]any{"data": data})
}

func Created(w http.ResponseWriter, data any) {
	write(w, http.StatusCreated, map[string]any{"data": data})
}

// Accepted is used for analyses handed to the queue.
func Accepted(w http.ResponseWriter, data any) {
	write(w, http.StatusAccepted, map[string]any{"data": data})
}

func Collection(w http.ResponseWriter, data any, meta PaginationMeta) {
	write(w, http.StatusOK, map[string]any{"data": data, "meta": meta})
}

func Error(w http.ResponseWriter, status int, code Code, message string, details any) {
	write(w, status, map[string]any{"error": errorBody{Code: code, Message: message, Details: details}})
}

// Internal hides the cause of an unexpected failure from the client.
func Internal(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, CodeInternal, "An unexpected error occurred", nil)
}

func write(w http.ResponseWriter, status int, v map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "status", status, "error", err)
	}
}
