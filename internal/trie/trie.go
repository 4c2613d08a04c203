// Package trie matches file paths against a set of ignored path fragments.
//
// Fragments are stored segment by segment in an arena: nodes live in one
// slice and refer to their children by index, so a set of many ignored
// paths costs a single growing allocation.
package trie

import (
	"path/filepath"
	"sort"
	"strings"
)

// NodeIndex is the position of a node in the arena.
type NodeIndex int

const root NodeIndex = 0

type arenaNode struct {
	children map[string]NodeIndex
	// isEnd marks the last segment of an inserted fragment.
	isEnd bool
}

// PathSet is a set of path fragments. A path matches when one of the
// fragments occurs in it as a run of whole segments.
type PathSet struct {
	nodes []arenaNode
	size  int
}

// New returns an empty set.
func New() *PathSet {
	s := &PathSet{nodes: make([]arenaNode, 0, 64)}
	s.newNode()
	return s
}

func (s *PathSet) newNode() NodeIndex {
	idx := NodeIndex(len(s.nodes))
	s.nodes = append(s.nodes, arenaNode{children: make(map[string]NodeIndex)})
	return idx
}

// Segments splits a cleaned path on separators, dropping empty and "." parts.
func Segments(path string) []string {
	parts := strings.Split(filepath.ToSlash(filepath.Clean(path)), "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" && p != "." {
			out = append(out, p)
		}
	}
	return out
}

// Insert adds the fragment path. Empty fragments are ignored.
func (s *PathSet) Insert(path string) {
	segments := Segments(path)
	if len(segments) == 0 {
		return
	}

	current := root
	for _, part := range segments {
		child, ok := s.nodes[current].children[part]
		if !ok {
			child = s.newNode()
			s.nodes[current].children[part] = child
		}
		current = child
	}
	if !s.nodes[current].isEnd {
		s.nodes[current].isEnd = true
		s.size++
	}
}

// Len returns the number of distinct fragments.
func (s *PathSet) Len() int {
	return s.size
}

// Match reports whether path contains one of the fragments.
func (s *PathSet) Match(path string) bool {
	if s == nil || s.size == 0 {
		return false
	}
	segments := Segments(path)
	for start := range segments {
		if s.matchFrom(segments[start:]) {
			return true
		}
	}
	return false
}

func (s *PathSet) matchFrom(segments []string) bool {
	current := root
	for _, part := range segments {
		child, ok := s.nodes[current].children[part]
		if !ok {
			return false
		}
		if s.nodes[child].isEnd {
			return true
		}
		current = child
	}
	return false
}

// String lists the fragments in sorted order.
func (s *PathSet) String() string {
	var out []string
	s.collect(root, nil, &out)
	sort.Strings(out)
	return strings.Join(out, ", ")
}

func (s *PathSet) collect(idx NodeIndex, prefix []string, out *[]string) {
	node := s.nodes[idx]
	if node.isEnd {
		*out = append(*out, strings.Join(prefix, "/"))
	}
	for key, child := range node.children {
		s.collect(child, append(prefix[:len(prefix):len(prefix)], key), out)
	}
}
