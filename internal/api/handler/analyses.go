package handler

import (
	"net/http"

	"github.com/kiranshivaraju/findoc/internal/api/response"
	"github.com/kiranshivaraju/findoc/internal/store"
)

// NewListAnalysesHandler returns an http.HandlerFunc for GET /analyses.
// Items carry metadata only; detailed_results is omitted.
func NewListAnalysesHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		skip, limit, err := paging(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		userID, err := optionalID(r.URL.Query().Get("user_id"))
		if err != nil {
			writeError(w, r, err)
			return
		}

		items, total, err := s.ListAnalyses(r.Context(), store.AnalysisFilter{
			Offset: skip,
			Limit:  limit,
			UserID: userID,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		for _, a := range items {
			a.DetailedResults = nil
		}
		response.Collection(w, items, response.Page(skip, limit, len(items), total))
	}
}

// NewGetAnalysisHandler returns an http.HandlerFunc for GET /analyses/{id}.
func NewGetAnalysisHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		a, err := s.GetAnalysis(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, a)
	}
}
