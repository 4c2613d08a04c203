// Package scanner finds the source files and directories to analyze.
package scanner

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

type FileInfo struct {
	Path string
	Size int64
}

// Scanner walks directory trees. Hidden, vendor and testdata directories
// below the root are skipped.
type Scanner struct {
	extensions []string
}

// New returns a scanner selecting files with one of extensions, or every
// file when none is given.
func New(extensions ...string) *Scanner {
	return &Scanner{extensions: extensions}
}

// Files returns the selected files under root in lexical order.
func (s *Scanner) Files(root string) ([]FileInfo, error) {
	var files []FileInfo
	err := s.walk(root, func(path string, d fs.DirEntry) error {
		if d.IsDir() || !s.isTargetFile(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, FileInfo{Path: path, Size: info.Size()})
		return nil
	})
	return files, err
}

// Dirs returns root and every directory below it that is not skipped.
func (s *Scanner) Dirs(root string) ([]string, error) {
	var dirs []string
	err := s.walk(root, func(path string, d fs.DirEntry) error {
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs, err
}

func (s *Scanner) walk(root string, fn func(string, fs.DirEntry) error) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root && SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		return fn(path, d)
	})
	if err != nil {
		return fmt.Errorf("error walking %s: %w", root, err)
	}
	return nil
}

// SkipDir reports whether a directory named name is never analyzed.
func SkipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "vendor" || name == "testdata"
}

func (s *Scanner) isTargetFile(path string) bool {
	if len(s.extensions) == 0 {
		return true
	}
	return slices.Contains(s.extensions, filepath.Ext(path))
}
