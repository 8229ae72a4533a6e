package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("export {}\n"), 0o644))
}

func TestScanIncludesAndExcludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "app.ts"))
	writeFile(t, filepath.Join(dir, "src", "app.test.ts"))
	writeFile(t, filepath.Join(dir, "src", "notes.md"))
	writeFile(t, filepath.Join(dir, "node_modules", "dep", "index.js"))

	s, err := New([]string{"*.ts", "*.js"}, []string{"node_modules"}, []string{"*.test.ts"})
	require.NoError(t, err)

	res, err := s.Scan([]string{dir})
	require.NoError(t, err)

	require.Len(t, res.Files, 1)
	assert.Equal(t, filepath.Join(dir, "src", "app.ts"), res.Files[0])
}

func TestScanDeduplicatesRoots(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.js"))

	s, err := New([]string{"*.js"}, nil, nil)
	require.NoError(t, err)

	res, err := s.Scan([]string{dir, dir + string(os.PathSeparator)})
	require.NoError(t, err)
	assert.Len(t, res.Files, 1)
}

func TestScanRejectsBadPattern(t *testing.T) {
	_, err := New([]string{"[unclosed"}, nil, nil)
	require.Error(t, err)
}

func TestMatcherSharedRules(t *testing.T) {
	m, err := NewMatcher([]string{"*.ts"}, []string{"node_modules"}, []string{"*.test.ts"})
	require.NoError(t, err)

	assert.True(t, m.IncludesFile(filepath.Join("src", "app.ts")))
	assert.False(t, m.IncludesFile(filepath.Join("src", "app.test.ts")))
	assert.False(t, m.IncludesFile("notes.md"))
	assert.True(t, m.ExcludesDir(filepath.Join("pkg", "node_modules")))
	assert.False(t, m.ExcludesDir("src"))
}

func TestMatcherEmptyIncludeAdmitsAll(t *testing.T) {
	m, err := NewMatcher(nil, nil, []string{"*.min.js"})
	require.NoError(t, err)

	assert.True(t, m.IncludesFile("anything.txt"))
	assert.False(t, m.IncludesFile("bundle.min.js"))
}
