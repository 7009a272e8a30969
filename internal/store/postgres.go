package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/findoc/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Analyses ---

const analysisColumns = `id, query, status, analysis_type, result_summary, detailed_results,
	error_message, error_kind, file_id, user_id, created_at, started_at, completed_at`

// Listings never carry the (potentially large) detailed results.
const analysisListColumns = `id, query, status, analysis_type, result_summary, NULL::jsonb,
	error_message, error_kind, file_id, user_id, created_at, started_at, completed_at`

func scanAnalysis(row pgx.Row) (*models.Analysis, error) {
	var a models.Analysis
	err := row.Scan(&a.ID, &a.Query, &a.Status, &a.AnalysisType, &a.ResultSummary, &a.DetailedResults,
		&a.ErrorMessage, &a.ErrorKind, &a.FileID, &a.UserID, &a.CreatedAt, &a.StartedAt, &a.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) CreateAnalysis(ctx context.Context, in NewAnalysis) (*models.Analysis, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrValidation)
	}
	if utf8.RuneCountInString(in.Query) > models.MaxQueryLength {
		return nil, fmt.Errorf("%w: query exceeds %d characters", ErrValidation, models.MaxQueryLength)
	}
	analysisType := in.AnalysisType
	if analysisType == "" {
		analysisType = models.DefaultAnalysisType
	}

	a, err := scanAnalysis(s.pool.QueryRow(ctx,
		`INSERT INTO analyses (query, status, analysis_type, file_id, user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+analysisColumns,
		in.Query, models.JobStatusPending, analysisType, in.FileID, in.UserID, time.Now().UTC()))
	if err != nil {
		if isForeignKeyError(err) {
			return nil, ErrInvalidReference
		}
		return nil, fmt.Errorf("create analysis: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, id int64) (*models.Analysis, error) {
	a, err := scanAnalysis(s.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]*models.Analysis, int, error) {
	where := "TRUE"
	args := []any{}
	argIdx := 1

	if filter.UserID != nil {
		where = fmt.Sprintf("user_id = $%d", argIdx)
		args = append(args, *filter.UserID)
		argIdx++
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM analyses WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count analyses: %w", err)
	}

	dataQuery := fmt.Sprintf(
		`SELECT %s FROM analyses WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		analysisListColumns, where, argIdx, argIdx+1)
	args = append(args, normalizeLimit(filter.Limit), normalizeOffset(filter.Offset))

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	analyses := []*models.Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan analysis: %w", err)
		}
		analyses = append(analyses, a)
	}
	return analyses, total, rows.Err()
}

var validTransitions = map[string][]string{
	models.JobStatusPending:    {models.JobStatusProcessing},
	models.JobStatusProcessing: {models.JobStatusCompleted, models.JobStatusFailed},
}

// CanTransition reports whether an analysis may move from one status to another.
func CanTransition(from, to string) bool {
	return slices.Contains(validTransitions[from], to)
}

// UpdateAnalysisStatus moves an analysis to status inside a single transaction.
// The row is locked while the transition and the per-status field rules are checked.
func (s *PostgresStore) UpdateAnalysisStatus(ctx context.Context, id int64, status string, opts ...AnalysisUpdateOption) (*models.Analysis, error) {
	params := ResolveUpdate(opts...)
	if err := params.ValidateFor(status); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var currentStatus string
	err = tx.QueryRow(ctx, `SELECT status FROM analyses WHERE id = $1 FOR UPDATE`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis status: %w", err)
	}

	if !CanTransition(currentStatus, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, status)
	}

	now := time.Now().UTC()
	query := `UPDATE analyses SET status = $2`
	args := []any{id, status}
	argIdx := 3

	if status == models.JobStatusProcessing {
		query += fmt.Sprintf(", started_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.ResultSummary != nil {
		query += fmt.Sprintf(", result_summary = $%d", argIdx)
		args = append(args, *params.ResultSummary)
		argIdx++
	}
	if params.DetailedResults != nil {
		query += fmt.Sprintf(", detailed_results = $%d", argIdx)
		args = append(args, params.DetailedResults)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d, error_kind = $%d", argIdx, argIdx+1)
		args = append(args, *params.ErrorMessage, *params.ErrorKind)
	}

	query += " WHERE id = $1 RETURNING " + analysisColumns

	a, err := scanAnalysis(tx.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("update analysis status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit status update: %w", err)
	}
	return a, nil
}

// ValidateFor enforces which fields may accompany a move to status.
func (p *AnalysisUpdate) ValidateFor(status string) error {
	hasResult := p.ResultSummary != nil || p.DetailedResults != nil
	hasFailure := p.ErrorMessage != nil

	switch status {
	case models.JobStatusProcessing:
		if hasResult || hasFailure {
			return fmt.Errorf("%w: processing carries no result or error", ErrValidation)
		}
	case models.JobStatusCompleted:
		if hasFailure {
			return fmt.Errorf("%w: completed analysis cannot carry an error", ErrValidation)
		}
		if p.ResultSummary == nil || strings.TrimSpace(*p.ResultSummary) == "" {
			return fmt.Errorf("%w: completed analysis requires a result summary", ErrValidation)
		}
	case models.JobStatusFailed:
		if hasResult {
			return fmt.Errorf("%w: failed analysis cannot carry a result", ErrValidation)
		}
		if p.ErrorMessage == nil || strings.TrimSpace(*p.ErrorMessage) == "" {
			return fmt.Errorf("%w: failed analysis requires an error message", ErrValidation)
		}
		if p.ErrorKind == nil || *p.ErrorKind == "" {
			return fmt.Errorf("%w: failed analysis requires an error kind", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
	return nil
}

// --- Files ---

const fileColumns = `id, filename, original_filename, storage_path, size_bytes, content_type, checksum,
	client_ip, user_agent, is_processed, is_deleted, uploaded_at, processed_at`

func scanFile(row pgx.Row) (*models.File, error) {
	var f models.File
	err := row.Scan(&f.ID, &f.Filename, &f.OriginalFilename, &f.StoragePath, &f.SizeBytes, &f.ContentType,
		&f.Checksum, &f.ClientIP, &f.UserAgent, &f.IsProcessed, &f.IsDeleted, &f.UploadedAt, &f.ProcessedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *PostgresStore) CreateFile(ctx context.Context, in NewFile) (*models.File, error) {
	if in.Filename == "" || in.StoragePath == "" {
		return nil, fmt.Errorf("%w: filename and storage path are required", ErrValidation)
	}
	if in.SizeBytes <= 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrValidation)
	}
	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}

	f, err := scanFile(s.pool.QueryRow(ctx,
		`INSERT INTO files (filename, original_filename, storage_path, size_bytes, content_type, checksum,
		                    client_ip, user_agent, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+fileColumns,
		in.Filename, in.OriginalFilename, in.StoragePath, in.SizeBytes, contentType, in.Checksum,
		nullable(in.ClientIP), nullable(in.UserAgent), time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) GetFile(ctx context.Context, id int64) (*models.File, error) {
	f, err := scanFile(s.pool.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = $1 AND is_deleted = FALSE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) ListFiles(ctx context.Context, offset, limit int) ([]*models.File, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM files WHERE is_deleted = FALSE`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count files: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+fileColumns+` FROM files WHERE is_deleted = FALSE
		 ORDER BY uploaded_at DESC, id DESC LIMIT $1 OFFSET $2`,
		normalizeLimit(limit), normalizeOffset(offset))
	if err != nil {
		return nil, 0, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files := []*models.File{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, total, rows.Err()
}

func (s *PostgresStore) MarkFileProcessed(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE files SET is_processed = TRUE, processed_at = COALESCE(processed_at, $2) WHERE id = $1`,
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark file processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SoftDeleteFile(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE files SET is_deleted = TRUE WHERE id = $1 AND is_deleted = FALSE`, id)
	if err != nil {
		return fmt.Errorf("soft delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, in NewUser) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrValidation)
	}

	var u models.User
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (email, display_name, created_at) VALUES ($1, $2, $3)
		 RETURNING id, email, display_name, is_active, created_at`,
		email, strings.TrimSpace(in.DisplayName), time.Now().UTC(),
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, display_name, is_active, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}
