package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"git.home.luguber.info/inful/pmeyes/internal/catalog"
	ferrors "git.home.luguber.info/inful/pmeyes/internal/foundation/errors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func (s *Server) handleArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("tag") != "":
		writeJSON(w, http.StatusOK, s.catalog.ByTag(q.Get("tag")))
	case q.Has("folder"):
		writeJSON(w, http.StatusOK, s.catalog.ByFolder(q.Get("folder")))
	default:
		writeJSON(w, http.StatusOK, s.catalog.All())
	}
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	a, err := s.catalog.BySlug(slug)
	if errors.Is(err, catalog.ErrNotFound) {
		s.errors.WriteErrorResponse(w, r, ferrors.NotFoundError("article not found").WithCause(err).
			WithContext("slug", slug).Build())
		return
	}
	if err != nil {
		s.errors.WriteErrorResponse(w, r, ferrors.FileSystemError("cannot read article").WithCause(err).
			WithContext("slug", slug).Build())
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleSearch accepts q, folder and repeated or comma separated tag values.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var tags []string
	for _, v := range q["tag"] {
		for t := range strings.SplitSeq(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}
	writeJSON(w, http.StatusOK, s.catalog.Search(catalog.Filters{
		Query:  q.Get("q"),
		Tags:   tags,
		Folder: q.Get("folder"),
	}))
}

func (s *Server) handleTags(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Tags())
}

func (s *Server) handleFolders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Folders())
}

func (s *Server) handleTree(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.FolderTree())
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.errors.WriteErrorResponse(w, r, ferrors.ValidationError("limit must be a non-negative integer").
				WithContext("limit", raw).Build())
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.catalog.Related(chi.URLParam(r, "slug"), limit))
}

func (s *Server) handleLocales(w http.ResponseWriter, r *http.Request) {
	b := s.locales.Load()
	if b == nil {
		s.errors.WriteErrorResponse(w, r, ferrors.NotFoundError("locales not generated").Build())
		return
	}
	writeJSON(w, http.StatusOK, b.Languages())
}

// handleLocale serves the best matching catalog for {lang}. The value
// "auto" negotiates from the Accept-Language header.
func (s *Server) handleLocale(w http.ResponseWriter, r *http.Request) {
	b := s.locales.Load()
	if b == nil {
		s.errors.WriteErrorResponse(w, r, ferrors.NotFoundError("locales not generated").Build())
		return
	}
	lang := chi.URLParam(r, "lang")
	if lang == "auto" {
		lang = r.Header.Get("Accept-Language")
	}
	c := b.Catalog(lang)
	w.Header().Set("Content-Language", c.Language())
	writeJSON(w, http.StatusOK, c.Messages())
}
