// Package pathset reduces sets of slash-separated paths to their maximal
// ancestors.
package pathset

import (
	"path"
	"sort"
	"strings"
)

// IsWithin reports whether child equals parent or lies beneath it.
func IsWithin(child, parent string) bool {
	if child == parent || parent == "/" {
		return true
	}
	return strings.HasPrefix(child, strings.TrimSuffix(parent, "/")+"/")
}

// Reduce cleans paths, drops duplicates and removes every path that lies
// beneath another path in the set. The result is sorted. Ancestors always
// sort before their descendants, so one pass suffices.
func Reduce(paths []string) []string {
	cleaned := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		c := path.Clean(p)
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		cleaned = append(cleaned, c)
	}

	sort.Strings(cleaned)

	kept := make(map[string]struct{}, len(cleaned))
	out := make([]string, 0, len(cleaned))
	for _, p := range cleaned {
		if hasAncestor(p, kept) {
			continue
		}
		kept[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func hasAncestor(p string, set map[string]struct{}) bool {
	for {
		parent := path.Dir(p)
		if parent == p {
			return false
		}
		if _, ok := set[parent]; ok {
			return true
		}
		p = parent
	}
}

// Parents returns the parent directory of every path, reduced.
func Parents(paths []string) []string {
	dirs := make([]string, 0, len(paths))
	for _, p := range paths {
		dirs = append(dirs, path.Dir(path.Clean(p)))
	}
	return Reduce(dirs)
}
