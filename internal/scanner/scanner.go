// Package scanner discovers files to index under a root directory,
// applying the indexing config's exclude globs, include-extension list,
// and max file size.
package scanner

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Options configures a Walk call.
type Options struct {
	Exclude           []string
	IncludeExtensions []string
	MaxFileSize       int64
}

// File is one discovered file, relative to the scan root.
type File struct {
	Path string // relative to root, forward-slash separated
	Abs  string
	Size int64
}

// Walk discovers files under root, skipping anything matched by an
// Exclude glob, filtered to IncludeExtensions, and dropping files larger
// than MaxFileSize (0 = unbounded).
func Walk(root string, opts Options) ([]File, error) {
	matcher := newGlobMatcher(opts.Exclude)
	extSet := make(map[string]bool, len(opts.IncludeExtensions))
	for _, e := range opts.IncludeExtensions {
		extSet[strings.ToLower(e)] = true
	}

	var files []File
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if info.IsDir() {
			if matcher.matchDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if matcher.match(rel) {
			return nil
		}
		if len(extSet) > 0 && !extSet[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if opts.MaxFileSize > 0 && info.Size() > opts.MaxFileSize {
			return nil
		}

		files = append(files, File{Path: rel, Abs: path, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// globMatcher compiles a set of doublestar-style glob patterns
// ("**/node_modules/**", "*.min.js") into regexes. This is a flat
// exclude-list matcher, not a .gitignore parser: no negation, no
// directory-discovery semantics.
type globMatcher struct {
	mu       sync.Mutex
	patterns []*regexp.Regexp
}

func newGlobMatcher(patterns []string) *globMatcher {
	m := &globMatcher{}
	for _, p := range patterns {
		m.patterns = append(m.patterns, regexp.MustCompile("^"+globToRegex(p)+"$"))
	}
	return m
}

func (m *globMatcher) match(relPath string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, re := range m.patterns {
		if re.MatchString(relPath) {
			return true
		}
	}
	return false
}

// matchDir additionally tries the path with a trailing slash, so
// "**/node_modules/**" excludes the node_modules directory itself, not
// just its contents.
func (m *globMatcher) matchDir(relPath string) bool {
	return m.match(relPath) || m.match(relPath+"/")
}

func globToRegex(pattern string) string {
	var b strings.Builder
	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					b.WriteString("(?:.*/)?")
					i += 3
					continue
				}
				b.WriteString(".*")
				i += 2
				continue
			}
			b.WriteString("[^/]*")
			i++
		case '?':
			b.WriteString("[^/]")
			i++
		case '.':
			b.WriteString(`\.`)
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}
