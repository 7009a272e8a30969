// Package documents stores uploaded financial documents for the lifetime of
// one analysis. Bytes are transient: callers delete them once the analysis
// reaches a terminal state or the upload is rejected.
package documents

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrUnsupportedType = errors.New("only PDF files are supported")
	ErrEmptyFile       = errors.New("uploaded file is empty")
	// ErrOutsideStore rejects a local ref that does not resolve under the
	// upload directory.
	ErrOutsideStore = errors.New("document ref is outside the upload directory")
)

// SupportedFormats lists the accepted upload extensions.
var SupportedFormats = []string{"PDF"}

const storedNamePrefix = "financial_document_"

// Document describes a stored upload.
type Document struct {
	Ref      string
	Name     string
	Size     int64
	Checksum string
}

// Store persists uploads and hands them back as local files for the pipeline.
type Store interface {
	Save(ctx context.Context, r io.Reader, suggestedName string) (Document, error)
	// Open returns a local path for ref. release must be called when the caller
	// is done with the path.
	Open(ctx context.Context, ref string) (path string, release func(), err error)
	// Delete removes ref. Missing files are not an error; failures are logged.
	Delete(ctx context.Context, ref string)
}

// ValidateName rejects anything that is not a .pdf by extension. Content is
// not sniffed.
func ValidateName(name string) error {
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return ErrUnsupportedType
	}
	return nil
}

// StoredName returns a collision-free name that never echoes the client's filename.
func StoredName() string {
	return storedNamePrefix + uuid.NewString() + ".pdf"
}

// prepare validates the name and makes sure r carries at least one byte.
// The returned reader yields all of r's content.
func prepare(r io.Reader, suggestedName string) (io.Reader, error) {
	if err := ValidateName(suggestedName); err != nil {
		return nil, err
	}
	br := bufio.NewReader(r)
	if _, err := br.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		return nil, err
	}
	return br, nil
}

type checksumReader struct {
	r io.Reader
	h hash.Hash
	n int64
}

func newChecksumReader(r io.Reader) *checksumReader {
	h, _ := blake2b.New256(nil) // only errors for oversized keys
	return &checksumReader{r: r, h: h}
}

func (c *checksumReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.h.Write(p[:n])
		c.n += int64(n)
	}
	return n, err
}

func (c *checksumReader) Sum() string {
	return hex.EncodeToString(c.h.Sum(nil))
}
