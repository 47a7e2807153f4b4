// Package git reads per-file commit metadata from the repository that holds
// the content root.
package git

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/pmeyes/internal/logfields"
)

// FileInfo is the last commit touching a file.
type FileInfo struct {
	UpdatedAt time.Time
	Author    string
	Commit    string
}

// Reader resolves FileInfo for files inside one working tree. A Reader for a
// directory outside any repository is valid and returns zero values.
type Reader struct {
	mu   sync.Mutex
	repo *git.Repository
	root string
	memo map[string]FileInfo
}

// Open locates the repository containing dir, searching parent directories.
func Open(dir string) (*Reader, error) {
	r := &Reader{memo: map[string]FileInfo{}}

	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		slog.Debug("Content root is not inside a git repository", logfields.Path(dir))
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repository for %s: %w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	root, err := filepath.EvalSymlinks(wt.Filesystem.Root())
	if err != nil {
		return nil, fmt.Errorf("resolve worktree root: %w", err)
	}
	r.repo = repo
	r.root = root
	return r, nil
}

// Enabled reports whether a repository was found.
func (r *Reader) Enabled() bool { return r.repo != nil }

// Lookup returns the most recent commit that touched path. Untracked files and
// repositories without commits yield a zero FileInfo and no error.
func (r *Reader) Lookup(path string) (FileInfo, error) {
	if r.repo == nil {
		return FileInfo{}, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return FileInfo{}, err
	}
	rel = filepath.ToSlash(rel)

	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.memo[rel]; ok {
		return info, nil
	}

	iter, err := r.repo.Log(&git.LogOptions{FileName: &rel})
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return FileInfo{}, nil
	}
	if err != nil {
		return FileInfo{}, fmt.Errorf("git log %s: %w", rel, err)
	}
	defer iter.Close()

	var info FileInfo
	c, err := iter.Next()
	if err == nil {
		info = FileInfo{
			UpdatedAt: c.Author.When,
			Author:    c.Author.Name,
			Commit:    c.Hash.String(),
		}
	}
	r.memo[rel] = info
	return info, nil
}
