package models

import (
	"time"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Failure kinds recorded on failed analyses.
const (
	ErrorKindPipeline       = "pipeline"
	ErrorKindTimeout        = "timeout"
	ErrorKindInfrastructure = "infrastructure"
)

const (
	DefaultAnalysisType = "comprehensive"
	MaxQueryLength      = 1000
)

// DefaultQuery is used when an upload arrives with a blank query.
const DefaultQuery = "Provide a comprehensive analysis of this financial document including key metrics, trends, investment outlook, and risk assessment"

// Analysis tracks one document analysis job. POST /analyze creates it in pending;
// the worker (or the synchronous fallback) moves it through processing to a terminal state.
type Analysis struct {
	ID              int64          `db:"id"               json:"id"`
	Query           string         `db:"query"            json:"query"`
	Status          string         `db:"status"           json:"status"`
	AnalysisType    string         `db:"analysis_type"    json:"analysis_type"`
	ResultSummary   *string        `db:"result_summary"   json:"result_summary,omitempty"`
	DetailedResults map[string]any `db:"detailed_results" json:"detailed_results,omitempty"`
	ErrorMessage    *string        `db:"error_message"    json:"error_message,omitempty"`
	ErrorKind       *string        `db:"error_kind"       json:"error_kind,omitempty"`
	FileID          *int64         `db:"file_id"          json:"file_id,omitempty"`
	UserID          *int64         `db:"user_id"          json:"user_id,omitempty"`
	CreatedAt       time.Time      `db:"created_at"       json:"created_at"`
	StartedAt       *time.Time     `db:"started_at"       json:"started_at,omitempty"`
	CompletedAt     *time.Time     `db:"completed_at"     json:"completed_at,omitempty"`
}

// IsTerminal reports whether the analysis has finished, successfully or not.
func (a *Analysis) IsTerminal() bool {
	return a.Status == JobStatusCompleted || a.Status == JobStatusFailed
}
