package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/findoc/internal/store"
	"github.com/kiranshivaraju/findoc/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a store.
func setupTestDB(t *testing.T) (*store.PostgresStore, string) {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("findoc_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return store.NewPostgresStore(pool), connStr
}

func newFile(name string) store.NewFile {
	return store.NewFile{
		Filename:         name,
		OriginalFilename: "report.pdf",
		StoragePath:      "data/" + name,
		SizeBytes:        2048,
		ContentType:      "application/pdf",
		Checksum:         strings.Repeat("ab", 32),
		ClientIP:         "127.0.0.1",
	}
}

func createProcessing(t *testing.T, s *store.PostgresStore) *models.Analysis {
	t.Helper()
	ctx := context.Background()
	a, err := s.CreateAnalysis(ctx, store.NewAnalysis{Query: "Analyze revenue"})
	require.NoError(t, err)
	a, err = s.UpdateAnalysisStatus(ctx, a.ID, models.JobStatusProcessing)
	require.NoError(t, err)
	return a
}

// --- Migration Tests ---

func TestMigrations_VersionAndRollback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	_, connStr := setupTestDB(t)

	version, dirty, err := store.MigrationVersion(connStr, migrationsDir())
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)
	assert.False(t, dirty)

	require.NoError(t, store.RollbackMigrations(connStr, migrationsDir(), 1))
	version, _, err = store.MigrationVersion(connStr, migrationsDir())
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))
}

// --- Analysis Tests ---

func TestAnalysis_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, _ := setupTestDB(t)
	ctx := context.Background()

	created, err := s.CreateAnalysis(ctx, store.NewAnalysis{Query: "Analyze Q2 revenue"})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, models.JobStatusPending, created.Status)
	assert.Equal(t, models.DefaultAnalysisType, created.AnalysisType)
	assert.Nil(t, created.StartedAt)
	assert.Nil(t, created.CompletedAt)

	got, err := s.GetAnalysis(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Analyze Q2 revenue", got.Query)
}

func TestAnalysis_CreateEmptyQuery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, _ := setupTestDB(t)

	_, err := s.CreateAnalysis(context.Background(), store.NewAnalysis{Query: "   "})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestAnalysis_CreateWithMissingFile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, _ := setupTestDB(t)
	missing := int64(999)

	_, err := s.CreateAnalysis(context.Background(), store.NewAnalysis{Query: "q", FileID: &missing})
	assert.ErrorIs(t, err, store.ErrInvalidReference)
}

func TestAnalysis_CreateWithFileAndUser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, _ := setupTestDB(t)
	ctx := context.Background()

	f, err := s.CreateFile(ctx, newFile("financial_document_a.pdf"))
	require.NoError(t, err)
	u, err := s.CreateUser(ctx, store.NewUser{Email: "Analyst@Example.com", DisplayName: "Analyst"})
	require.NoError(t, err)

	a, err := s.CreateAnalysis(ctx, store.NewAnalysis{Query: "q", FileID: &f.ID, UserID: &u.ID})
	require.NoError(t, err)
	require.NotNil(t, a.FileID)
	require.NotNil(t, a.UserID)
	assert.Equal(t, f.ID, *a.FileID)
	assert.Equal(t, u.ID, *a.UserID)
}

func TestAnalysis_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, _ := setupTestDB(t)

	_, err := s.GetAnalysis(context.Background(), 424242)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAnalysis_ListNewestFirstWithPagination(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, _ := setupTestDB(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		a, err := s.CreateAnalysis(ctx, store.NewAnalysis{Query: "q"})
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}

	page, total, err := s.ListAnalyses(ctx, store.AnalysisFilter{Offset: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, ids[3], page[0].ID)
	assert.Equal(t, ids[2], page[1].ID)
}

func TestAnalysis_ListByUser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, _ := setupTestDB(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, store.NewUser{Email: "a@example.com"})
	require.NoError(t, err)
	_, err = s.CreateAnalysis(ctx, store.NewAnalysis{Query: "mine", UserID: &u.ID})
	require.NoError(t, err)
	_, err = s.CreateAnalysis(ctx, store.NewAnalysis{Query: "anonymous"})
	require.NoError(t, err)

	list, total, err := s.ListAnalyses(ctx, store.AnalysisFilter{UserID: &u.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "mine", list[0].Query)
}

func TestAnalysis_ListOmitsDetailedResults(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, _ := setupTestDB(t)
	ctx := context.Background()

	a := createProcessing(t, s)
	_, err := s.UpdateAnalysisStatus(ctx, a.ID, models.JobStatusCompleted,
		store.WithResult("done", map[string]any{"analysis_result": "text"}))
	require.NoError(t, err)

	list, _, err := s.ListAnalyses(ctx, store.AnalysisFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].DetailedResults)
	require.NotNil(t, list[0].ResultSummary)
	assert.Equal(t, "done", *list[0].ResultSummary)
}

func TestAnalysis_PendingToProcessing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, _ := setupTestDB(t)

	a := createProcessing(t, s)
	assert.Equal(t, models.JobStatusProcessing, a.Status)
	assert.NotNil(t, a.StartedAt)
	assert.Nil(t, a.CompletedAt)
}

func TestAnalysis_ProcessingToCompleted(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, _ := setupTestDB(t)
	ctx := context.Background()
	a := createProcessing(t, s)

	details := map[string]any{
		"analysis_result":     "Revenue grew.",
		"components_analyzed": []any{"document_verification"},
	}
	updated, err := s.UpdateAnalysisStatus(ctx, a.ID, models.JobStatusCompleted, store.WithResult("summary", details))
	require.NoError(t, err)

	got, err := s.GetAnalysis(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, a.StartedAt.Unix(), got.StartedAt.Unix())
	require.NotNil(t, got.ResultSummary)
	assert.Equal(t, "summary", *got.ResultSummary)
	assert.Equal(t, "Revenue grew.", got.DetailedResults["analysis_result"])
	assert.Nil(t, got.ErrorMessage)
	assert.Equal(t, updated.CompletedAt.Unix(), got.CompletedAt.Unix())
}

func TestAnalysis_ProcessingToFailed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, _ := setupTestDB(t)
	ctx := context.Background()
	a := createProcessing(t, s)

	_, err := s.UpdateAnalysisStatus(ctx, a.ID, models.JobStatusFailed,
		store.WithFailure(models.ErrorKindTimeout, "analysis exceeded 10m0s"))
	require.NoError(t, err)

	got, err := s.GetAnalysis(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "analysis exceeded 10m0s", *got.ErrorMessage)
	require.NotNil(t, got.ErrorKind)
	assert.Equal(t, models.ErrorKindTimeout, *got.ErrorKind)
	assert.Nil(t, got.ResultSummary)
}

func TestAnalysis_InvalidTransitions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, _ := setupTestDB(t)
	ctx := context.Background()

	pending, err := s.CreateAnalysis(ctx, store.NewAnalysis{Query: "q"})
	require.NoError(t, err)
	_, err = s.UpdateAnalysisStatus(ctx, pending.ID, models.JobStatusCompleted, store.WithResult("s", nil))
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	done := createProcessing(t, s)
	_, err = s.UpdateAnalysisStatus(ctx, done.ID, models.JobStatusFailed, store.WithFailure(models.ErrorKindPipeline, "boom"))
	require.NoError(t, err)

	_, err = s.UpdateAnalysisStatus(ctx, done.ID, models.JobStatusProcessing)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
	_, err = s.UpdateAnalysisStatus(ctx, done.ID, models.JobStatusCompleted, store.WithResult("s", nil))
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	got, err := s.GetAnalysis(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
}

func TestAnalysis_FieldRules(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, _ := setupTestDB(t)
	ctx := context.Background()
	a := createProcessing(t, s)

	_, err := s.UpdateAnalysisStatus(ctx, a.ID, models.JobStatusCompleted)
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = s.UpdateAnalysisStatus(ctx, a.ID, models.JobStatusFailed, store.WithFailure(models.ErrorKindPipeline, ""))
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = s.UpdateAnalysisStatus(ctx, a.ID, models.JobStatusCompleted,
		store.WithResult("s", nil), store.WithFailure(models.ErrorKindPipeline, "x"))
	assert.ErrorIs(t, err, store.ErrValidation)

	got, err := s.GetAnalysis(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, got.Status)
}

func TestAnalysis_UpdateStatusNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, _ := setupTestDB(t)

	_, err := s.UpdateAnalysisStatus(context.Background(), 424242, models.JobStatusProcessing)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- File Tests ---

func TestFile_CreateGetAndMarkProcessed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, _ := setupTestDB(t)
	ctx := context.Background()

	f, err := s.CreateFile(ctx, newFile("financial_document_b.pdf"))
	require.NoError(t, err)
	assert.False(t, f.IsProcessed)
	require.NotNil(t, f.ClientIP)
	assert.Nil(t, f.UserAgent)

	require.NoError(t, s.MarkFileProcessed(ctx, f.ID))

	got, err := s.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, got.IsProcessed)
	assert.NotNil(t, got.ProcessedAt)
}

func TestFile_CreateRejectsEmpty(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, _ := setupTestDB(t)

	in := newFile("financial_document_c.pdf")
	in.SizeBytes = 0
	_, err := s.CreateFile(context.Background(), in)
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestFile_SoftDeleteHidesFromListing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, _ := setupTestDB(t)
	ctx := context.Background()

	keep, err := s.CreateFile(ctx, newFile("financial_document_keep.pdf"))
	require.NoError(t, err)
	gone, err := s.CreateFile(ctx, newFile("financial_document_gone.pdf"))
	require.NoError(t, err)

	a, err := s.CreateAnalysis(ctx, store.NewAnalysis{Query: "q", FileID: &gone.ID})
	require.NoError(t, err)

	require.NoError(t, s.SoftDeleteFile(ctx, gone.ID))
	assert.ErrorIs(t, s.SoftDeleteFile(ctx, gone.ID), store.ErrNotFound)

	files, total, err := s.ListFiles(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, files, 1)
	assert.Equal(t, keep.ID, files[0].ID)

	_, err = s.GetFile(ctx, gone.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// the analysis still points at its soft-deleted file
	got, err := s.GetAnalysis(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.FileID)
	assert.Equal(t, gone.ID, *got.FileID)
}

// --- User Tests ---

func TestUser_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, _ := setupTestDB(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, store.NewUser{Email: " Analyst@Example.com ", DisplayName: "Analyst"})
	require.NoError(t, err)
	assert.Equal(t, "analyst@example.com", u.Email)
	assert.True(t, u.IsActive)

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.GetUser(ctx, 424242)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUser_DuplicateEmail(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, _ := setupTestDB(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, store.NewUser{Email: "dup@example.com"})
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, store.NewUser{Email: "DUP@example.com"})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

// --- Ping Test ---

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s, _ := setupTestDB(t)

	assert.NoError(t, s.Ping(context.Background()))
}
