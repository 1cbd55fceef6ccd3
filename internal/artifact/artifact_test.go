package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func TestLoad_SingleFile(t *testing.T) {
	root := writeTree(t, map[string]string{"main.go": "package main\n"})

	set, err := Load(filepath.Join(root, "main.go"))
	require.NoError(t, err)

	require.Len(t, set.Files, 1)
	assert.Equal(t, "main.go", set.Files[0].Path)
	assert.Equal(t, "package main\n", set.Files[0].Content)
	assert.False(t, set.Empty())
}

func TestLoad_DirectorySortedAndFiltered(t *testing.T) {
	root := writeTree(t, map[string]string{
		"b.go":                "package b\n",
		"a.go":                "package a\n",
		"sub/c.py":            "print('c')\n",
		"image.png":           "\x89PNG",
		"node_modules/x.js":   "skip me",
		".git/config":         "skip me",
		"vendor/dep/dep.go":   "skip me",
		"dist/bundle.js":      "skip me",
		"README.md":           "# readme\n",
	})

	set, err := Load(root)
	require.NoError(t, err)

	var paths []string
	for _, f := range set.Files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"README.md", "a.go", "b.go", filepath.Join("sub", "c.py")}, paths)
}

func TestLoad_MissingTarget(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stat artifact target")
}

func TestLoad_TruncatesLargeFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"big.go": strings.Repeat("x", MaxFileBytes+100),
	})

	set, err := Load(root)
	require.NoError(t, err)

	require.Len(t, set.Files, 1)
	assert.Len(t, set.Files[0].Content, MaxFileBytes)
}

func TestHash_StableAndContentSensitive(t *testing.T) {
	a := &Set{Files: []File{{Path: "x.go", Content: "one"}}}
	b := &Set{Files: []File{{Path: "x.go", Content: "one"}}}
	c := &Set{Files: []File{{Path: "x.go", Content: "two"}}}

	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), c.Hash())
}

func TestRender_LabelsEachFile(t *testing.T) {
	set := &Set{Files: []File{
		{Path: "a.go", Content: "package a"},
		{Path: "b.go", Content: "package b\n"},
	}}

	out := set.Render()
	assert.Contains(t, out, "=== a.go ===\npackage a\n")
	assert.Contains(t, out, "=== b.go ===\npackage b\n")
}

func TestFileContext_Bounded(t *testing.T) {
	set := &Set{Files: []File{{Path: "a.go", Content: "0123456789"}}}

	assert.Equal(t, "01234", set.FileContext("a.go", 5))
	assert.Equal(t, "0123456789", set.FileContext("a.go", 100))
	assert.Equal(t, "", set.FileContext("missing.go", 100))
}

func TestEmpty_NilAndZeroSets(t *testing.T) {
	var nilSet *Set
	assert.True(t, nilSet.Empty())
	assert.True(t, (&Set{}).Empty())
}
