package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_GetPut(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "nested", "test.txt")
	testContent := "hello world"

	ls := NewLocalStorage(tmpDir)
	ctx := context.Background()

	uri := "file://" + testFile
	require.NoError(t, ls.Put(ctx, uri, strings.NewReader(testContent)))
	assert.FileExists(t, testFile)

	reader, err := ls.Get(ctx, uri)
	require.NoError(t, err)
	defer reader.Close()

	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, testContent, string(content))
}

func TestLocalStorage_ConfinedToRoot(t *testing.T) {
	root := t.TempDir()
	ls := NewLocalStorage(root)
	ctx := context.Background()

	_, err := ls.Get(ctx, "file:///etc/passwd")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "outside")

	_, err = ls.Get(ctx, "file://"+root+"/../escape.txt")
	assert.Error(t, err)

	err = ls.Put(ctx, "https://example.com/x", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestLocalStorage_Exists(t *testing.T) {
	tmpDir := t.TempDir()
	existingFile := filepath.Join(tmpDir, "existing.txt")
	require.NoError(t, os.WriteFile(existingFile, []byte("test"), 0o644))

	ls := NewLocalStorage("")
	ctx := context.Background()

	exists, err := ls.Exists(ctx, "file://"+existingFile)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = ls.Exists(ctx, "file://"+filepath.Join(tmpDir, "nonexistent.txt"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStorage_Delete(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "delete-me.txt")
	require.NoError(t, os.WriteFile(testFile, []byte("test"), 0o644))

	ls := NewLocalStorage(tmpDir)
	ctx := context.Background()

	require.NoError(t, ls.Delete(ctx, "file://"+testFile))
	assert.NoFileExists(t, testFile)

	// Deleting again is fine.
	assert.NoError(t, ls.Delete(ctx, "file://"+testFile))
}
