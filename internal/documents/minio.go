package documents

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kiranshivaraju/findoc/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore keeps uploads in an object storage bucket so the API and worker
// processes need no shared volume.
type MinioStore struct {
	client *minio.Client
	bucket string
	tmpDir string
}

func NewMinioStore(cfg config.MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioStore{client: client, bucket: cfg.Bucket, tmpDir: os.TempDir()}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// Save spools the upload to a temp file first so the object is written with a
// known size and checksum.
func (s *MinioStore) Save(ctx context.Context, r io.Reader, suggestedName string) (Document, error) {
	body, err := prepare(r, suggestedName)
	if err != nil {
		return Document{}, err
	}

	spool, err := os.CreateTemp(s.tmpDir, "findoc-upload-*.pdf")
	if err != nil {
		return Document{}, fmt.Errorf("spool upload: %w", err)
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	cr := newChecksumReader(body)
	if _, err := io.Copy(spool, cr); err != nil {
		return Document{}, fmt.Errorf("spool upload: %w", err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return Document{}, fmt.Errorf("rewind upload: %w", err)
	}

	name := StoredName()
	_, err = s.client.PutObject(ctx, s.bucket, name, spool, cr.n, minio.PutObjectOptions{
		ContentType: "application/pdf",
	})
	if err != nil {
		return Document{}, fmt.Errorf("upload document: %w", err)
	}

	return Document{Ref: name, Name: name, Size: cr.n, Checksum: cr.Sum()}, nil
}

// Open downloads the object to a temp file; release removes the temp file.
func (s *MinioStore) Open(ctx context.Context, ref string) (string, func(), error) {
	f, err := os.CreateTemp(s.tmpDir, "findoc-doc-*.pdf")
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	f.Close()

	release := func() { os.Remove(path) }
	if err := s.client.FGetObject(ctx, s.bucket, ref, path, minio.GetObjectOptions{}); err != nil {
		release()
		return "", nil, fmt.Errorf("download document: %w", err)
	}
	return path, release, nil
}

func (s *MinioStore) Delete(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	// RemoveObject succeeds for keys that do not exist.
	if err := s.client.RemoveObject(ctx, s.bucket, ref, minio.RemoveObjectOptions{}); err != nil {
		slog.Warn("failed to delete document", "ref", ref, "bucket", s.bucket, "error", err)
	}
}
