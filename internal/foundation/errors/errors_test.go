package errors

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSentinel = stderrors.New("sentinel")

func TestBuilder(t *testing.T) {
	err := ContentError("duplicate slug").
		WithCause(errSentinel).
		WithContext("slug", "hello").
		Build()

	assert.Equal(t, CategoryContent, err.Category())
	assert.True(t, err.IsFatal())
	assert.Equal(t, "[content:fatal] duplicate slug: sentinel", err.Error())
	assert.True(t, stderrors.Is(err, errSentinel))

	slug, ok := err.Context().GetString("slug")
	require.True(t, ok)
	assert.Equal(t, "hello", slug)
}

func TestWithContextDoesNotMutateOriginal(t *testing.T) {
	base := AssetError("copy failed").Build()
	derived := base.WithContext("asset", "a.png")

	_, ok := base.Context().Get("asset")
	assert.False(t, ok)
	v, ok := derived.Context().GetString("asset")
	assert.True(t, ok)
	assert.Equal(t, "a.png", v)
}

func TestAsClassifiedThroughWrapping(t *testing.T) {
	inner := ConfigError("bad config").Build()
	wrapped := fmt.Errorf("loading: %w", inner)

	got, ok := AsClassified(wrapped)
	require.True(t, ok)
	assert.Same(t, inner, got)
	assert.True(t, HasCategory(wrapped, CategoryConfig))
	assert.Equal(t, CategoryInternal, GetCategory(stderrors.New("plain")))
}

func TestCategoryHelpers(t *testing.T) {
	cases := []struct {
		b        *ErrorBuilder
		category ErrorCategory
		fatal    bool
	}{
		{ContentError("x"), CategoryContent, true},
		{LocaleError("x"), CategoryLocale, true},
		{RuntimeError("x"), CategoryRuntime, true},
		{FileSystemError("x"), CategoryFileSystem, false},
		{AssetError("x"), CategoryAsset, false},
		{ImageError("x"), CategoryImage, false},
		{GitError("x"), CategoryGit, false},
		{NetworkError("x"), CategoryNetwork, false},
		{StoreError("x"), CategoryStore, false},
	}
	for _, tc := range cases {
		err := tc.b.Build()
		assert.Equal(t, tc.category, err.Category())
		assert.Equal(t, tc.fatal, err.IsFatal(), string(tc.category))
	}

	warn := AssetError("skipped").WithCause(errSentinel).Warning().Build()
	assert.Equal(t, SeverityWarning, warn.Severity())
	assert.ErrorIs(t, warn, errSentinel)
}

func TestContextMerge(t *testing.T) {
	a := ErrorContext{}.Set("k", "a").Set("shared", 1)
	b := ErrorContext{}.Set("shared", 2)
	merged := a.Merge(b)
	v, _ := merged.Get("shared")
	assert.Equal(t, 2, v)
	assert.Len(t, merged, 2)
}

func TestCLIErrorAdapter(t *testing.T) {
	var out bytes.Buffer
	a := NewCLIErrorAdapter(false, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	a.out = &out

	assert.Equal(t, 0, a.HandleError(nil))
	assert.Empty(t, out.String())

	err := ContentError("duplicate slug").
		WithContext("slug", "hello").
		WithContext("files", []string{"a.md", "b/a.md"}).
		Build()
	assert.Equal(t, 1, a.HandleError(err))
	assert.Equal(t, "Error: duplicate slug\n  files: [a.md b/a.md]\n  slug: hello\n", out.String())

	assert.Equal(t, 1, a.ExitCodeFor(stderrors.New("boom")))
	assert.Equal(t, "Error: boom", a.FormatError(stderrors.New("boom")))
}

func TestCLIErrorAdapterVerbose(t *testing.T) {
	a := NewCLIErrorAdapter(true, nil)
	err := LocaleError("read base locale").WithCause(errSentinel).Build()
	assert.Equal(t, "Error: [locale:fatal] read base locale: sentinel", a.FormatError(err))
}

func TestHTTPErrorAdapter(t *testing.T) {
	a := NewHTTPErrorAdapter(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	cases := []struct {
		err    error
		status int
	}{
		{NotFoundError("article not found").Build(), http.StatusNotFound},
		{ValidationError("bad query").Build(), http.StatusBadRequest},
		{RuntimeError("catalog not loaded").Build(), http.StatusServiceUnavailable},
		{stderrors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/articles/x", nil)
		a.WriteErrorResponse(rec, req, tc.err)
		assert.Equal(t, tc.status, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	}

	resp := a.FormatErrorResponse(NotFoundError("article not found").WithContext("slug", "x").Build())
	assert.Equal(t, "not_found", resp.Code)
	assert.Equal(t, "x", resp.Details["slug"])
}
