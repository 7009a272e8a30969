// Package storetest provides an in-memory store.Store for unit tests of the
// packages built on top of the store.
package storetest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/findoc/internal/store"
	"github.com/kiranshivaraju/findoc/pkg/models"
)

// Memory mirrors the Postgres store's transition and field rules.
// Set Err to make every call fail with it.
type Memory struct {
	mu       sync.Mutex
	analyses map[int64]*models.Analysis
	files    map[int64]*models.File
	users    map[int64]*models.User
	history  map[int64][]string
	nextID   int64
	clock    time.Time

	Err error
}

func New() *Memory {
	return &Memory{
		analyses: map[int64]*models.Analysis{},
		files:    map[int64]*models.File{},
		users:    map[int64]*models.User{},
		history:  map[int64][]string{},
		clock:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick returns strictly increasing timestamps so ordering is deterministic.
func (m *Memory) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) Ping(context.Context) error { return m.Err }

func (m *Memory) CreateAnalysis(_ context.Context, in store.NewAnalysis) (*models.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", store.ErrValidation)
	}
	if utf8.RuneCountInString(in.Query) > models.MaxQueryLength {
		return nil, fmt.Errorf("%w: query exceeds %d characters", store.ErrValidation, models.MaxQueryLength)
	}
	if in.FileID != nil {
		if _, ok := m.files[*in.FileID]; !ok {
			return nil, store.ErrInvalidReference
		}
	}
	if in.UserID != nil {
		if _, ok := m.users[*in.UserID]; !ok {
			return nil, store.ErrInvalidReference
		}
	}
	typ := in.AnalysisType
	if typ == "" {
		typ = models.DefaultAnalysisType
	}
	a := &models.Analysis{
		ID:           m.id(),
		Query:        in.Query,
		Status:       models.JobStatusPending,
		AnalysisType: typ,
		FileID:       in.FileID,
		UserID:       in.UserID,
		CreatedAt:    m.tick(),
	}
	m.analyses[a.ID] = a
	m.history[a.ID] = []string{models.JobStatusPending}
	return cloneAnalysis(a), nil
}

func (m *Memory) GetAnalysis(_ context.Context, id int64) (*models.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	a, ok := m.analyses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneAnalysis(a), nil
}

func (m *Memory) ListAnalyses(_ context.Context, filter store.AnalysisFilter) ([]*models.Analysis, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, 0, m.Err
	}
	var all []*models.Analysis
	for _, a := range m.analyses {
		if filter.UserID != nil && (a.UserID == nil || *a.UserID != *filter.UserID) {
			continue
		}
		cp := cloneAnalysis(a)
		cp.DetailedResults = nil
		all = append(all, cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	return page(all, filter.Offset, filter.Limit), len(all), nil
}

func (m *Memory) UpdateAnalysisStatus(_ context.Context, id int64, status string, opts ...store.AnalysisUpdateOption) (*models.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	u := store.ResolveUpdate(opts...)
	if err := u.ValidateFor(status); err != nil {
		return nil, err
	}
	a, ok := m.analyses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !store.CanTransition(a.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, a.Status, status)
	}

	now := m.tick()
	a.Status = status
	switch status {
	case models.JobStatusProcessing:
		a.StartedAt = &now
	case models.JobStatusCompleted:
		a.CompletedAt = &now
		a.ResultSummary = u.ResultSummary
		a.DetailedResults = u.DetailedResults
	case models.JobStatusFailed:
		a.CompletedAt = &now
		a.ErrorMessage = u.ErrorMessage
		a.ErrorKind = u.ErrorKind
	}
	m.history[id] = append(m.history[id], status)
	return cloneAnalysis(a), nil
}

func (m *Memory) CreateFile(_ context.Context, in store.NewFile) (*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	f := &models.File{
		ID:               m.id(),
		Filename:         in.Filename,
		OriginalFilename: in.OriginalFilename,
		StoragePath:      in.StoragePath,
		SizeBytes:        in.SizeBytes,
		ContentType:      in.ContentType,
		Checksum:         in.Checksum,
		ClientIP:         optional(in.ClientIP),
		UserAgent:        optional(in.UserAgent),
		UploadedAt:       m.tick(),
	}
	m.files[f.ID] = f
	cp := *f
	return &cp, nil
}

func (m *Memory) GetFile(_ context.Context, id int64) (*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	f, ok := m.files[id]
	if !ok || f.IsDeleted {
		return nil, store.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *Memory) ListFiles(_ context.Context, offset, limit int) ([]*models.File, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, 0, m.Err
	}
	var all []*models.File
	for _, f := range m.files {
		if f.IsDeleted {
			continue
		}
		cp := *f
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].UploadedAt.Equal(all[j].UploadedAt) {
			return all[i].UploadedAt.After(all[j].UploadedAt)
		}
		return all[i].ID > all[j].ID
	})
	return page(all, offset, limit), len(all), nil
}

func (m *Memory) MarkFileProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	f, ok := m.files[id]
	if !ok {
		return store.ErrNotFound
	}
	if f.ProcessedAt == nil {
		now := m.tick()
		f.ProcessedAt = &now
	}
	f.IsProcessed = true
	return nil
}

func (m *Memory) SoftDeleteFile(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	f, ok := m.files[id]
	if !ok || f.IsDeleted {
		return store.ErrNotFound
	}
	f.IsDeleted = true
	return nil
}

func (m *Memory) CreateUser(_ context.Context, in store.NewUser) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", store.ErrValidation)
	}
	for _, u := range m.users {
		if u.Email == email {
			return nil, store.ErrDuplicateKey
		}
	}
	u := &models.User{
		ID:          m.id(),
		Email:       email,
		DisplayName: strings.TrimSpace(in.DisplayName),
		IsActive:    true,
		CreatedAt:   m.tick(),
	}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *Memory) GetUser(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// History returns every status the analysis has been in, oldest first.
func (m *Memory) History(id int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.history[id])
}

func (m *Memory) AnalysisCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.analyses)
}

// File returns the raw record including soft-deleted rows.
func (m *Memory) File(id int64) (models.File, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return models.File{}, false
	}
	return *f, true
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	limit = min(limit, store.MaxListLimit)
	if offset >= len(items) {
		return []T{}
	}
	return items[offset:min(offset+limit, len(items))]
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func cloneAnalysis(a *models.Analysis) *models.Analysis {
	cp := *a
	return &cp
}

var _ store.Store = (*Memory)(nil)
