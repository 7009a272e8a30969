package pipeline

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrUnreadableDocument = errors.New("document could not be read")

var reBlankLines = regexp.MustCompile(`\n{2,}`)

// DocumentReader extracts the text of a document on local disk.
type DocumentReader func(path string) (string, error)

// ReadPDF returns the plain text of every page with runs of blank lines
// collapsed. The pdf library panics on some malformed inputs; those surface
// as ErrUnreadableDocument.
func ReadPDF(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: malformed pdf: %v", ErrUnreadableDocument, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(CollapseBlankLines(pageText))
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String()), nil
}

func CollapseBlankLines(s string) string {
	return reBlankLines.ReplaceAllString(s, "\n")
}
