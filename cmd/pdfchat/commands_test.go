package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/pdfchat-server/internal/ingest/pdftest"
)

func offlineEnv(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("PDFCHAT_CONFIG", "")
	t.Setenv("UPLOAD_DIR", filepath.Join(root, "uploads"))
	t.Setenv("VECTORDB_DIR", filepath.Join(root, "vectorDB"))
	t.Setenv("VECTOR_BACKEND", "local")
	t.Setenv("LOCK_BACKEND", "local")
	t.Setenv("EMBEDDING_PROVIDER", "hash")
	t.Setenv("SYNTHESIS_PROVIDER", "extractive")
	t.Setenv("LOG_LEVEL", "error")
	return root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandsRoundTrip(t *testing.T) {
	root := offlineEnv(t)
	file := filepath.Join(root, "lighthouse.pdf")
	require.NoError(t, os.WriteFile(file, pdftest.Build("The lighthouse keeper lights the lamp at dusk."), 0o644))

	out, err := execute(t, "upload", file)
	require.NoError(t, err, out)
	assert.Contains(t, out, "lighthouse")

	out, err = execute(t, "list")
	require.NoError(t, err)
	assert.Equal(t, "lighthouse\n", out)

	out, err = execute(t, "ask", "lighthouse", "when", "is", "the", "lamp", "lit")
	require.NoError(t, err)
	assert.Contains(t, out, "lights the lamp at dusk")

	out, err = execute(t, "delete", "lighthouse")
	require.NoError(t, err)
	assert.Contains(t, out, "Document 'lighthouse' deleted successfully")

	_, err = execute(t, "delete", "lighthouse")
	assert.Error(t, err)
}

func TestUploadReportsFailures(t *testing.T) {
	root := offlineEnv(t)
	notes := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("plain text"), 0o644))

	out, err := execute(t, "upload", notes)
	assert.Error(t, err)
	assert.Contains(t, out, "notes.txt")
}

func TestClearRequiresConfirmation(t *testing.T) {
	offlineEnv(t)

	_, err := execute(t, "clear")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	out, err := execute(t, "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "All uploaded data cleared successfully")
}
