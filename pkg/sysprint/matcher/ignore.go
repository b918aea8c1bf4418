package matcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	gitignore "github.com/denormal/go-gitignore"
)

// DefaultIgnoreFile is the per-root ignore file name.
const DefaultIgnoreFile = ".sysprintignore"

// Ignore applies a gitignore-syntax file found at the top of a scan root.
// A nil *Ignore ignores nothing.
type Ignore struct {
	root string
	gi   gitignore.GitIgnore
}

// LoadIgnore reads root/name. It returns (nil, nil) when the file does not
// exist.
func LoadIgnore(root, name string) (*Ignore, error) {
	if name == "" {
		return nil, nil
	}

	file := filepath.Join(root, name)
	f, err := os.Open(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var parseErr error
	gi := gitignore.New(f, root, func(e gitignore.Error) bool {
		if parseErr == nil {
			parseErr = e
		}
		return true
	})
	if parseErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPattern, file, parseErr)
	}
	if gi == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPattern, file)
	}

	return &Ignore{root: root, gi: gi}, nil
}

// Root returns the directory the ignore file applies to.
func (i *Ignore) Root() string {
	if i == nil {
		return ""
	}
	return i.root
}

// Ignored reports whether the absolute path is ignored.
func (i *Ignore) Ignored(name string, isDir bool) bool {
	if i == nil || name == i.root {
		return false
	}
	rel, err := filepath.Rel(i.root, name)
	if err != nil || rel == "." || rel == ".." || filepath.IsAbs(rel) || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator) {
		return false
	}
	m := i.gi.Relative(filepath.ToSlash(rel), isDir)
	return m != nil && m.Ignore()
}
