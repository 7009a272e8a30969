package handler

import (
	"net/http"

	"github.com/kiranshivaraju/findoc/internal/api/response"
	"github.com/kiranshivaraju/findoc/internal/store"
)

func NewListFilesHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		skip, limit, err := paging(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		files, total, err := s.ListFiles(r.Context(), skip, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Collection(w, files, response.Page(skip, limit, len(files), total))
	}
}

func NewGetFileHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		f, err := s.GetFile(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, f)
	}
}

// NewDeleteFileHandler soft-deletes a file record. Analyses referencing it
// are left untouched.
func NewDeleteFileHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := s.SoftDeleteFile(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, map[string]any{"id": id, "deleted": true})
	}
}
