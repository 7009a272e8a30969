package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps uploads on the local filesystem under dir.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Save(ctx context.Context, r io.Reader, suggestedName string) (Document, error) {
	body, err := prepare(r, suggestedName)
	if err != nil {
		return Document{}, err
	}

	name := StoredName()
	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return Document{}, fmt.Errorf("create document: %w", err)
	}

	cr := newChecksumReader(body)
	_, copyErr := io.Copy(f, cr)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return Document{}, fmt.Errorf("write document: %w", err)
	}

	return Document{Ref: path, Name: name, Size: cr.n, Checksum: cr.Sum()}, nil
}

func (s *LocalStore) Open(_ context.Context, ref string) (string, func(), error) {
	if err := s.within(ref); err != nil {
		return "", nil, err
	}
	if _, err := os.Stat(ref); err != nil {
		return "", nil, fmt.Errorf("open document: %w", err)
	}
	return ref, func() {}, nil
}

func (s *LocalStore) Delete(_ context.Context, ref string) {
	if ref == "" {
		return
	}
	if err := s.within(ref); err != nil {
		slog.Warn("refusing to delete document", "ref", ref, "error", err)
		return
	}
	if err := os.Remove(ref); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to delete document", "ref", ref, "error", err)
	}
}

// within rejects refs that resolve to s.dir itself or anywhere outside it.
func (s *LocalStore) within(ref string) error {
	dir, err := filepath.Abs(s.dir)
	if err != nil {
		return fmt.Errorf("resolve upload dir: %w", err)
	}
	path, err := filepath.Abs(ref)
	if err != nil {
		return fmt.Errorf("resolve document ref: %w", err)
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s", ErrOutsideStore, ref)
	}
	return nil
}
