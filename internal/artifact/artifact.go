// Package artifact loads the code under review with per-file and total size
// bounds, and computes a stable content hash for caching.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// MaxFileBytes bounds how much of a single file is included.
	MaxFileBytes = 64 * 1024
	// MaxTotalBytes bounds the whole artifact set.
	MaxTotalBytes = 512 * 1024
)

// skipDirs are directory names never worth reviewing.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".idea":        true,
	"dist":         true,
	"build":        true,
}

// File is one bounded artifact file.
type File struct {
	Path    string // relative to the artifact root
	Content string
}

// Set is the loaded artifact: an ordered, bounded set of files.
type Set struct {
	Root  string
	Files []File
}

// Empty reports whether the set contains no reviewable content.
func (s *Set) Empty() bool { return s == nil || len(s.Files) == 0 }

// Hash returns a stable hex digest over paths and contents.
func (s *Set) Hash() string {
	h := sha256.New()
	for _, f := range s.Files {
		h.Write([]byte(f.Path))
		h.Write([]byte{0})
		h.Write([]byte(f.Content))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Render formats the set for inclusion in a prompt.
func (s *Set) Render() string {
	var sb strings.Builder
	for _, f := range s.Files {
		sb.WriteString("=== ")
		sb.WriteString(f.Path)
		sb.WriteString(" ===\n")
		sb.WriteString(f.Content)
		if !strings.HasSuffix(f.Content, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FileContext returns up to maxBytes of a file's content, for building debate
// case descriptions. Returns "" if the file is not in the set.
func (s *Set) FileContext(path string, maxBytes int) string {
	for _, f := range s.Files {
		if f.Path == path {
			if len(f.Content) > maxBytes {
				return f.Content[:maxBytes]
			}
			return f.Content
		}
	}
	return ""
}

// Load reads the artifact at target, which may be a single file or a
// directory walked recursively. Files are sorted by path, truncated to
// MaxFileBytes each, and collection stops once MaxTotalBytes is reached.
func Load(target string) (*Set, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("stat artifact target: %w", err)
	}

	set := &Set{Root: target}

	if !info.IsDir() {
		content, err := readBounded(target)
		if err != nil {
			return nil, err
		}
		set.Files = append(set.Files, File{Path: filepath.Base(target), Content: content})
		return set, nil
	}

	var paths []string
	err = filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !reviewable(d.Name()) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk artifact: %w", err)
	}
	sort.Strings(paths)

	total := 0
	for _, path := range paths {
		if total >= MaxTotalBytes {
			break
		}
		content, err := readBounded(path)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(target, path)
		if err != nil {
			rel = path
		}
		set.Files = append(set.Files, File{Path: rel, Content: content})
		total += len(content)
	}

	return set, nil
}

// reviewable filters to source-like text files by extension.
func reviewable(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".go", ".py", ".js", ".ts", ".tsx", ".jsx", ".java", ".rb", ".rs",
		".c", ".h", ".cpp", ".hpp", ".cs", ".php", ".swift", ".kt", ".scala",
		".sql", ".sh", ".yaml", ".yml", ".toml", ".json", ".md":
		return true
	default:
		return false
	}
}

func readBounded(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read artifact file %s: %w", path, err)
	}
	if len(data) > MaxFileBytes {
		data = data[:MaxFileBytes]
	}
	return string(data), nil
}
