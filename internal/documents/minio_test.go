package documents_test

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/kiranshivaraju/findoc/internal/config"
	"github.com/kiranshivaraju/findoc/internal/documents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupMinio(t *testing.T) *documents.MinioStore {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Cmd:          []string{"server", "/data"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "minioadmin",
			"MINIO_ROOT_PASSWORD": "minioadmin",
		},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	endpoint, err := container.PortEndpoint(ctx, "9000/tcp", "")
	require.NoError(t, err)

	s, err := documents.NewMinioStore(config.MinioConfig{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "findoc-test",
	})
	require.NoError(t, err)
	require.NoError(t, s.EnsureBucket(ctx))
	return s
}

func TestMinioStore_ValidationHappensBeforeUpload(t *testing.T) {
	s, err := documents.NewMinioStore(config.MinioConfig{
		Endpoint:  "127.0.0.1:1",
		AccessKey: "k",
		SecretKey: "s",
		Bucket:    "b",
	})
	require.NoError(t, err)

	_, err = s.Save(context.Background(), bytes.NewReader(nil), "empty.pdf")
	assert.ErrorIs(t, err, documents.ErrEmptyFile)

	_, err = s.Save(context.Background(), bytes.NewReader([]byte("x")), "sheet.xlsx")
	assert.ErrorIs(t, err, documents.ErrUnsupportedType)
}

func TestMinioStore_SaveOpenDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := setupMinio(t)
	ctx := context.Background()

	content := []byte("%PDF-1.7 object storage body")
	doc, err := s.Save(ctx, bytes.NewReader(content), "annual-report.pdf")
	require.NoError(t, err)
	assert.Equal(t, doc.Name, doc.Ref)
	assert.Equal(t, int64(len(content)), doc.Size)

	path, release, err := s.Open(ctx, doc.Ref)
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	release()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	s.Delete(ctx, doc.Ref)
	_, _, err = s.Open(ctx, doc.Ref)
	assert.Error(t, err)
}
