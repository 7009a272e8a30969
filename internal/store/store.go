package store

import (
	"context"
	"errors"

	"github.com/kiranshivaraju/findoc/pkg/models"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrDuplicateKey      = errors.New("duplicate key violation")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidReference  = errors.New("referenced resource does not exist")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateAnalysis(ctx context.Context, in NewAnalysis) (*models.Analysis, error)
	GetAnalysis(ctx context.Context, id int64) (*models.Analysis, error)
	ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]*models.Analysis, int, error)
	UpdateAnalysisStatus(ctx context.Context, id int64, status string, opts ...AnalysisUpdateOption) (*models.Analysis, error)

	CreateFile(ctx context.Context, in NewFile) (*models.File, error)
	GetFile(ctx context.Context, id int64) (*models.File, error)
	ListFiles(ctx context.Context, offset, limit int) ([]*models.File, int, error)
	MarkFileProcessed(ctx context.Context, id int64) error
	SoftDeleteFile(ctx context.Context, id int64) error

	CreateUser(ctx context.Context, in NewUser) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

type NewAnalysis struct {
	Query        string
	AnalysisType string
	FileID       *int64
	UserID       *int64
}

// AnalysisFilter selects a page of analyses. Limit is clamped to [1, MaxListLimit].
type AnalysisFilter struct {
	Offset int
	Limit  int
	UserID *int64
}

type NewFile struct {
	Filename         string
	OriginalFilename string
	StoragePath      string
	SizeBytes        int64
	ContentType      string
	Checksum         string
	ClientIP         string
	UserAgent        string
}

type NewUser struct {
	Email       string
	DisplayName string
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// AnalysisUpdate carries the optional fields of a status change.
type AnalysisUpdate struct {
	ResultSummary   *string
	DetailedResults map[string]any
	ErrorKind       *string
	ErrorMessage    *string
}

type AnalysisUpdateOption func(*AnalysisUpdate)

// ResolveUpdate applies opts to an empty AnalysisUpdate.
func ResolveUpdate(opts ...AnalysisUpdateOption) *AnalysisUpdate {
	u := &AnalysisUpdate{}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// WithResult attaches the outcome of a completed analysis.
func WithResult(summary string, details map[string]any) AnalysisUpdateOption {
	return func(p *AnalysisUpdate) {
		p.ResultSummary = &summary
		p.DetailedResults = details
	}
}

// WithFailure attaches the failure kind and message of a failed analysis.
func WithFailure(kind, message string) AnalysisUpdateOption {
	return func(p *AnalysisUpdate) {
		p.ErrorKind = &kind
		p.ErrorMessage = &message
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
