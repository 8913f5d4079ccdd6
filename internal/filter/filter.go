// Package filter decides which save-directory paths count as save activity.
//
// Patterns use rsync-style globs: "*" stays inside one path segment, "**"
// crosses segments, a trailing "/" matches directories only, and a pattern
// containing "/" is anchored at the watched root. A pattern without "/"
// matches the basename at any depth.
package filter

import "fmt"

// Set is an include/exclude filter. A path passes when no exclude pattern
// matches it and, if any include patterns exist, at least one does.
type Set struct {
	include []*pattern
	exclude []*pattern
}

// New compiles include and exclude patterns into a Set.
func New(include, exclude []string) (*Set, error) {
	s := &Set{}
	for _, p := range include {
		if err := s.AddInclude(p); err != nil {
			return nil, err
		}
	}
	for _, p := range exclude {
		if err := s.AddExclude(p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Set) AddInclude(glob string) error {
	p, err := compile(glob)
	if err != nil {
		return fmt.Errorf("include %q: %w", glob, err)
	}
	s.include = append(s.include, p)
	return nil
}

func (s *Set) AddExclude(glob string) error {
	p, err := compile(glob)
	if err != nil {
		return fmt.Errorf("exclude %q: %w", glob, err)
	}
	s.exclude = append(s.exclude, p)
	return nil
}

// Empty reports whether the set passes everything.
func (s *Set) Empty() bool {
	return s == nil || (len(s.include) == 0 && len(s.exclude) == 0)
}

// Match reports whether relPath passes the filter. relPath is slash
// separated and relative to the watched root. A pattern matching any parent
// directory of relPath also matches relPath, so "backup/" excludes
// everything below backup. A nil Set matches everything.
func (s *Set) Match(relPath string, isDir bool) bool {
	if s == nil {
		return true
	}
	if matchAny(s.exclude, relPath, isDir) {
		return false
	}
	if len(s.include) == 0 {
		return true
	}
	return matchAny(s.include, relPath, isDir)
}

func matchAny(patterns []*pattern, relPath string, isDir bool) bool {
	for _, p := range patterns {
		if p.match(relPath, isDir) {
			return true
		}
	}
	for i := len(relPath) - 1; i > 0; i-- {
		if relPath[i] != '/' {
			continue
		}
		for _, p := range patterns {
			if p.match(relPath[:i], true) {
				return true
			}
		}
	}
	return false
}
