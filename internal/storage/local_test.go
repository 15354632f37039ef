package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/stmtnorm/internal/core"
)

func newTestLocal(t *testing.T) (*Local, string) {
	t.Helper()
	root := t.TempDir()
	l, err := NewLocal(
		filepath.Join(root, "in"),
		filepath.Join(root, "out"),
		filepath.Join(root, "archive"),
	)
	require.NoError(t, err)
	return l, root
}

func TestLocal_ListInputs(t *testing.T) {
	l, root := newTestLocal(t)
	in := filepath.Join(root, "in")

	for _, name := range []string{"b.csv", "a.xlsx", ".hidden.csv", "upload.csv.part"} {
		require.NoError(t, os.WriteFile(filepath.Join(in, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(in, "nested"), 0o755))

	names, err := l.ListInputs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.xlsx", "b.csv"}, names)
}

func TestLocal_ReadInput(t *testing.T) {
	l, root := newTestLocal(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "in", "s.csv"), []byte("data"), 0o644))

	data, err := l.ReadInput(context.Background(), "s.csv")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	_, err = l.ReadInput(context.Background(), "missing.csv")
	assert.ErrorIs(t, err, core.ErrInputNotFound)

	_, err = l.ReadInput(context.Background(), "../escape.csv")
	assert.Error(t, err)
}

func TestLocal_WriteAndRemoveOutput(t *testing.T) {
	l, root := newTestLocal(t)
	ctx := context.Background()

	path, err := l.WriteOutput(ctx, "normalized_s.csv", []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "out", "normalized_s.csv"), path)

	// A second write replaces the first.
	_, err = l.WriteOutput(ctx, "normalized_s.csv", []byte("v2"))
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))

	require.NoError(t, l.RemoveOutput(ctx, path))
	assert.NoFileExists(t, path)

	// Removing twice is fine.
	require.NoError(t, l.RemoveOutput(ctx, path))

	assert.Error(t, l.RemoveOutput(ctx, filepath.Join(root, "in", "x.csv")))
}

func TestLocal_ArchiveInput(t *testing.T) {
	l, root := newTestLocal(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(root, "in", "s.csv"), []byte("data"), 0o644))

	dest, err := l.ArchiveInput(ctx, "s.csv", "processed/20260102T030405.000000000Z_s.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "archive", "processed", "20260102T030405.000000000Z_s.csv"), dest)
	assert.FileExists(t, dest)
	assert.NoFileExists(t, filepath.Join(root, "in", "s.csv"))

	_, err = l.ArchiveInput(ctx, "s.csv", "processed/again_s.csv")
	assert.ErrorIs(t, err, core.ErrInputNotFound)

	_, err = l.ArchiveInput(ctx, "s.csv", "../../outside.csv")
	assert.Error(t, err)
}

func TestLocal_WriteArchiveNote(t *testing.T) {
	l, root := newTestLocal(t)

	dest, err := l.WriteArchiveNote(context.Background(), "quarantined/x_s.csv.json", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "archive", "quarantined", "x_s.csv.json"), dest)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))
}

func TestCopyAndRemove(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.csv")
	dest := filepath.Join(dir, "dest.csv")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	require.NoError(t, copyAndRemove(src, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
	assert.NoFileExists(t, src)
}

func TestGCS_Prefixes(t *testing.T) {
	g := NewGCS(nil, "bank", GCSPrefixes{Input: "/incoming/", Output: "normalized", Archive: ""})
	assert.Equal(t, "incoming/", g.prefixes.Input)
	assert.Equal(t, "normalized/", g.prefixes.Output)
	assert.Equal(t, "", g.prefixes.Archive)
	assert.Equal(t, "gs://bank/normalized/x.csv", g.uri("normalized/x.csv"))

	err := g.RemoveOutput(context.Background(), "gs://other/normalized/x.csv")
	assert.Error(t, err)
}
