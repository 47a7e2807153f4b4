// Package docs discovers markdown articles under the content root.
package docs

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/pmeyes/internal/logfields"
)

var (
	// ErrSourceRootUnreadable indicates the content root could not be listed.
	ErrSourceRootUnreadable = errors.New("content root unreadable")

	// ErrDirWalkFailed indicates a subdirectory of the content root could not be listed.
	ErrDirWalkFailed = errors.New("content directory walk failed")
)

// SourceFile is one markdown article discovered under the content root.
type SourceFile struct {
	Path         string // Filesystem path (root joined with RelativePath)
	RelativePath string // Slash-separated path relative to the content root
	Folder       string // Slash-separated directory relative to the root, "" at root level
	Name         string // File name without extension
	Extension    string
}

// Dir returns the directory holding the file.
func (f SourceFile) Dir() string {
	return filepath.Dir(f.Path)
}

// Scanner walks a content root for markdown files.
type Scanner struct {
	root     string
	reserved []string
}

// NewScanner creates a scanner. Files whose base name matches a reserved name
// (case-insensitively) are excluded at every level.
func NewScanner(root string, reserved []string) *Scanner {
	return &Scanner{root: root, reserved: reserved}
}

// Root returns the content root.
func (s *Scanner) Root() string { return s.root }

// Scan returns markdown files depth-first in directory read order, which
// os.ReadDir guarantees to be sorted by name. Hidden entries are skipped.
func (s *Scanner) Scan() ([]SourceFile, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceRootUnreadable, s.root, err)
	}

	var files []SourceFile
	if err := s.walk(entries, "", &files); err != nil {
		return nil, err
	}
	slog.Debug("Scanned content root", logfields.Path(s.root), logfields.Count(len(files)))
	return files, nil
}

func (s *Scanner) walk(entries []os.DirEntry, rel string, out *[]SourceFile) error {
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		childRel := path.Join(rel, name)

		if entry.IsDir() {
			dir := filepath.Join(s.root, filepath.FromSlash(childRel))
			children, err := os.ReadDir(dir)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrDirWalkFailed, childRel, err)
			}
			if err := s.walk(children, childRel, out); err != nil {
				return err
			}
			continue
		}

		if !entry.Type().IsRegular() || !IsMarkdownFile(name) || s.isReserved(name) {
			continue
		}
		ext := filepath.Ext(name)
		*out = append(*out, SourceFile{
			Path:         filepath.Join(s.root, filepath.FromSlash(childRel)),
			RelativePath: childRel,
			Folder:       rel,
			Name:         strings.TrimSuffix(name, ext),
			Extension:    ext,
		})
	}
	return nil
}

func (s *Scanner) isReserved(name string) bool {
	for _, r := range s.reserved {
		if strings.EqualFold(name, r) {
			return true
		}
	}
	return false
}

// IsMarkdownFile checks if a file name carries a markdown extension.
func IsMarkdownFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".md" || ext == ".markdown" || ext == ".mdown" || ext == ".mkd"
}
