// Package matcher evaluates glob-style include and exclude patterns against
// absolute, slash-separated paths.
//
// A pattern is matched according to its shape:
//
//   - no "/": against the final path segment ("*.conf" matches /etc/app.conf)
//   - leading "/": against the full path; a pattern with no wildcards also
//     matches everything beneath it ("/proc" matches /proc/1/status)
//   - relative with "**": against the full path, as if prefixed with "**/"
//   - relative with "/": against the trailing segments of the path
//     ("*/tmp/*" matches /etc/tmp/app.conf)
//
// Exclusion always takes precedence over inclusion.
package matcher

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// ErrInvalidPattern is returned when a pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid pattern")

type shape int

const (
	shapeBase shape = iota
	shapeAbsolute
	shapeDeep
	shapeTail
)

// Pattern is a compiled glob pattern.
type Pattern struct {
	raw      string
	shape    shape
	g        glob.Glob
	segments int
	// prefix is set for absolute patterns without wildcards.
	prefix string
}

// Compile compiles a single pattern.
func Compile(pattern string) (*Pattern, error) {
	trimmed := strings.TrimSpace(pattern)
	if trimmed != "/" {
		trimmed = strings.TrimSuffix(trimmed, "/")
	}
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}

	p := &Pattern{raw: pattern}
	expr := trimmed

	switch {
	case strings.HasPrefix(trimmed, "/"):
		p.shape = shapeAbsolute
		if !hasMeta(trimmed) {
			p.prefix = path.Clean(trimmed)
		}
	case !strings.Contains(trimmed, "/"):
		p.shape = shapeBase
	case strings.Contains(trimmed, "**"):
		p.shape = shapeDeep
		expr = "**/" + trimmed
	default:
		p.shape = shapeTail
		p.segments = strings.Count(trimmed, "/") + 1
	}

	g, err := glob.Compile(expr, '/')
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, pattern, err)
	}
	p.g = g

	return p, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// Validate reports whether pattern compiles.
func Validate(pattern string) error {
	_, err := Compile(pattern)
	return err
}

// String returns the pattern as written.
func (p *Pattern) String() string {
	return p.raw
}

// Match reports whether the pattern matches path.
func (p *Pattern) Match(name string) bool {
	switch p.shape {
	case shapeBase:
		return p.g.Match(path.Base(name))
	case shapeAbsolute:
		if p.prefix != "" {
			return name == p.prefix || p.prefix == "/" || strings.HasPrefix(name, p.prefix+"/")
		}
		return p.g.Match(name)
	case shapeDeep:
		return p.g.Match(name)
	default:
		tail, ok := lastSegments(name, p.segments)
		return ok && p.g.Match(tail)
	}
}

func lastSegments(name string, n int) (string, bool) {
	name = strings.TrimSuffix(name, "/")
	idx := len(name)
	for range n {
		idx = strings.LastIndexByte(name[:idx], '/')
		if idx < 0 {
			// A relative path with exactly n segments still qualifies.
			if strings.Count(name, "/") == n-1 && !strings.HasPrefix(name, "/") {
				return name, true
			}
			return "", false
		}
	}
	return name[idx+1:], true
}

func hasMeta(s string) bool {
	return strings.ContainsAny(s, `*?[{\`)
}

// QuoteMeta escapes glob metacharacters so the result matches s literally.
func QuoteMeta(s string) string {
	return glob.QuoteMeta(s)
}

// Set is a list of compiled patterns that matches when any member matches.
type Set []*Pattern

// CompileSet compiles every pattern, failing on the first invalid one.
func CompileSet(patterns []string) (Set, error) {
	set := make(Set, 0, len(patterns))
	for _, raw := range patterns {
		p, err := Compile(raw)
		if err != nil {
			return nil, err
		}
		set = append(set, p)
	}
	return set, nil
}

// Match reports whether any pattern in the set matches path.
func (s Set) Match(name string) bool {
	for _, p := range s {
		if p.Match(name) {
			return true
		}
	}
	return false
}

// Strings returns the patterns as written.
func (s Set) Strings() []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = p.raw
	}
	return out
}

// Matches reports whether path matches any of patterns. Invalid patterns
// never match; use CompileSet to surface them.
func Matches(name string, patterns []string) bool {
	for _, raw := range patterns {
		p, err := Compile(raw)
		if err != nil {
			continue
		}
		if p.Match(name) {
			return true
		}
	}
	return false
}

// Rules pairs include and exclude sets.
type Rules struct {
	include Set
	exclude Set
}

// NewRules compiles include and exclude patterns into a rule set.
func NewRules(include, exclude []string) (*Rules, error) {
	inc, err := CompileSet(include)
	if err != nil {
		return nil, fmt.Errorf("include: %w", err)
	}
	exc, err := CompileSet(exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude: %w", err)
	}
	return &Rules{include: inc, exclude: exc}, nil
}

// Included reports whether path passes the rule set: it matches an include
// pattern (or there are none) and matches no exclude pattern.
func (r *Rules) Included(name string) bool {
	if r.exclude.Match(name) {
		return false
	}
	return len(r.include) == 0 || r.include.Match(name)
}

// Excluded reports whether path matches an exclude pattern.
func (r *Rules) Excluded(name string) bool {
	return r.exclude.Match(name)
}
