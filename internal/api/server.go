// Package api exposes the scheduling service over HTTP and MCP.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/versekeeper/versekeeper/internal/scheduler"
	"github.com/versekeeper/versekeeper/internal/sm2"
	"github.com/versekeeper/versekeeper/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds everything the handlers need.
type Deps struct {
	Service *scheduler.Service
	// Tokens maps bearer tokens to owner ids.
	Tokens map[string]string
	Logger *zap.Logger
}

// NewHandler builds the HTTP router. Everything under /api/v1 requires a
// bearer token; /health does not.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuth(deps.Tokens))

		r.Post("/reviews", handleSubmitReview(deps))
		r.Post("/streak", handleUpdateStreak(deps))
		r.Get("/verses/due", handleDueVerses(deps))
		r.Post("/verses", handleCreateVerse(deps))
		r.Get("/verses", handleListVerses(deps))
		r.Get("/verses/{id}", handleGetVerse(deps))
	})

	return r
}

type reviewRequest struct {
	VerseID          string `json:"verse_id"`
	Quality          int    `json:"quality"`
	TimeSpentSeconds int    `json:"time_spent_seconds"`
}

func handleSubmitReview(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req reviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, codeValidation, "invalid request body: %v", err)
			return
		}

		res, err := deps.Service.SubmitReview(r.Context(), ownerID(r), req.VerseID, sm2.Quality(req.Quality), req.TimeSpentSeconds)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleUpdateStreak(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.Service.UpdateStreak(r.Context(), ownerID(r))
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleDueVerses(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters := scheduler.DueFilters{
			Language: r.URL.Query().Get("language"),
			ShowAll:  r.URL.Query().Get("show_all") == "true",
		}
		var err error
		if filters.Limit, err = queryInt(r, "limit"); err != nil {
			httpError(w, http.StatusBadRequest, codeValidation, "limit must be an integer")
			return
		}
		if filters.Offset, err = queryInt(r, "offset"); err != nil {
			httpError(w, http.StatusBadRequest, codeValidation, "offset must be an integer")
			return
		}

		res, err := deps.Service.DueVerses(r.Context(), ownerID(r), filters)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type createVerseRequest struct {
	Reference string `json:"reference"`
	Text      string `json:"text"`
	Language  string `json:"language"`
}

func handleCreateVerse(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req createVerseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, codeValidation, "invalid request body: %v", err)
			return
		}

		verse, err := deps.Service.CreateVerse(r.Context(), ownerID(r), req.Reference, req.Text, req.Language)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, verse)
	}
}

func handleListVerses(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		verses, err := deps.Service.ListVerses(r.Context(), ownerID(r), r.URL.Query().Get("language"))
		if err != nil {
			serviceError(w, err)
			return
		}
		if verses == nil {
			verses = []storage.MemoryVerse{}
		}
		writeJSON(w, http.StatusOK, verses)
	}
}

func handleGetVerse(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		verse, err := deps.Service.GetVerse(r.Context(), ownerID(r), chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, verse)
	}
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, key string) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
