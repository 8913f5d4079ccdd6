package filter

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadFile adds rules from a filter file. Each non-blank line is
// "+ pattern" (include) or "- pattern" (exclude); lines starting with "#"
// are comments, and a bare pattern is an include.
func (s *Set) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open filter file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		add := s.AddInclude
		if rest, ok := strings.CutPrefix(text, "- "); ok {
			add, text = s.AddExclude, strings.TrimSpace(rest)
		} else if rest, ok := strings.CutPrefix(text, "+ "); ok {
			text = strings.TrimSpace(rest)
		}

		if err := add(text); err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
	}
	return sc.Err()
}
