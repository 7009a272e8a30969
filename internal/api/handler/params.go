package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/findoc/internal/store"
)

func pathID(r *http.Request, name string) (int64, error) {
	return parseID(chi.URLParam(r, name))
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadID
	}
	return id, nil
}

// optionalID parses an id that may be absent. Blank yields nil.
func optionalID(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := parseID(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// paging reads skip/limit. Defaults are skip=0, limit=100.
func paging(r *http.Request) (skip, limit int, err error) {
	q := r.URL.Query()
	skip, limit = 0, store.DefaultListLimit
	if v := q.Get("skip"); v != "" {
		if skip, err = strconv.Atoi(v); err != nil || skip < 0 {
			return 0, 0, errBadPaging
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 || limit > store.MaxListLimit {
			return 0, 0, errBadPaging
		}
	}
	return skip, limit, nil
}
