// Package scope decides whether a path referenced by a tool call lies
// outside the active project's root directory.
package scope

import (
	"os"
	"path/filepath"
	"strings"
)

// Outside reports whether refPath resolves outside projectRoot. Both
// paths are canonicalized (absolute, cleaned, symlinks resolved where
// the filesystem allows) before comparison, so relative traversal and
// symlink chains cannot produce false negatives. An empty refPath means
// the tool performs no file access and is never a violation.
func Outside(projectRoot, refPath string) bool {
	if refPath == "" || projectRoot == "" {
		return false
	}

	root := canonical(projectRoot)
	ref := refPath
	if !filepath.IsAbs(ref) {
		ref = filepath.Join(projectRoot, ref)
	}
	ref = canonical(ref)

	if ref == root {
		return false
	}
	return !strings.HasPrefix(ref, root+string(filepath.Separator))
}

// canonical returns the cleaned absolute path with symlinks resolved.
// For paths that do not exist yet (a file about to be written), the
// deepest existing ancestor is resolved and the remainder re-joined.
func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	abs = filepath.Clean(abs)

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}

	dir, rest := abs, ""
	for dir != string(filepath.Separator) && dir != "." {
		parent := filepath.Dir(dir)
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = parent
		if _, err := os.Lstat(dir); err == nil {
			if resolved, err := filepath.EvalSymlinks(dir); err == nil {
				return filepath.Join(resolved, rest)
			}
			break
		}
	}
	return abs
}

// RefPath extracts the filesystem path a tool call references, if any.
// Tools without file access (shell commands, web fetches) return "".
func RefPath(toolInput map[string]any) string {
	for _, key := range []string{"file_path", "path", "notebook_path"} {
		if s, ok := toolInput[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
