// Package storage implements core.FileStore over a local directory tree and
// over Google Cloud Storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/JonMunkholm/stmtnorm/internal/core"
)

// partialSuffixes mark files still being written by an uploader.
var partialSuffixes = []string{".part", ".tmp", ".crdownload", ".partial"}

// Local keeps inputs, outputs and the archive in three directories.
type Local struct {
	inputDir   string
	outputDir  string
	archiveDir string
}

// NewLocal creates the three directories if needed.
func NewLocal(inputDir, outputDir, archiveDir string) (*Local, error) {
	for _, dir := range []string{inputDir, outputDir, archiveDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create %s: %w", dir, err)
		}
	}
	return &Local{inputDir: inputDir, outputDir: outputDir, archiveDir: archiveDir}, nil
}

// ListInputs returns the regular files directly inside the input directory,
// sorted by name. Hidden files and partial uploads are ignored.
func (l *Local) ListInputs(ctx context.Context) ([]string, error) {
	dirents, err := os.ReadDir(l.inputDir)
	if err != nil {
		return nil, fmt.Errorf("storage: list inputs: %w", err)
	}

	var names []string
	for _, d := range dirents {
		if !d.Type().IsRegular() || skipInput(d.Name()) {
			continue
		}
		names = append(names, d.Name())
	}
	sort.Strings(names)
	return names, ctx.Err()
}

func skipInput(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	lower := strings.ToLower(name)
	for _, s := range partialSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

func (l *Local) ReadInput(ctx context.Context, name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(l.inputDir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("storage: %s: %w", name, core.ErrInputNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read input: %w", err)
	}
	return data, ctx.Err()
}

// WriteOutput atomically replaces <output dir>/<name>.
func (l *Local) WriteOutput(_ context.Context, name string, data []byte) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	dest := filepath.Join(l.outputDir, name)
	if err := writeAtomic(dest, data); err != nil {
		return "", fmt.Errorf("storage: write output: %w", err)
	}
	return dest, nil
}

// RemoveOutput deletes an output previously returned by WriteOutput.
func (l *Local) RemoveOutput(_ context.Context, path string) error {
	if !within(l.outputDir, path) {
		return fmt.Errorf("storage: %q is not in the output directory", path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: remove output: %w", err)
	}
	return nil
}

// ArchiveInput moves an input into the archive. Renames across file systems
// fall back to copy and delete.
func (l *Local) ArchiveInput(_ context.Context, name, archivedName string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	src := filepath.Join(l.inputDir, name)
	dest := filepath.Join(l.archiveDir, filepath.FromSlash(archivedName))
	if !within(l.archiveDir, dest) {
		return "", fmt.Errorf("storage: archive name %q escapes the archive", archivedName)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("storage: archive dir: %w", err)
	}

	err := os.Rename(src, dest)
	if errors.Is(err, syscall.EXDEV) {
		err = copyAndRemove(src, dest)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("storage: %s: %w", name, core.ErrInputNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("storage: archive input: %w", err)
	}
	return dest, nil
}

func (l *Local) WriteArchiveNote(_ context.Context, noteName string, data []byte) (string, error) {
	dest := filepath.Join(l.archiveDir, filepath.FromSlash(noteName))
	if !within(l.archiveDir, dest) {
		return "", fmt.Errorf("storage: note name %q escapes the archive", noteName)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("storage: archive dir: %w", err)
	}
	if err := writeAtomic(dest, data); err != nil {
		return "", fmt.Errorf("storage: write archive note: %w", err)
	}
	return dest, nil
}

func checkName(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("storage: invalid file name %q", name)
	}
	return nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

// writeAtomic writes to a temp file in the target directory and renames it
// over dest so readers never see a partial file.
func writeAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".write-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

func copyAndRemove(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dest), ".archive-*")
	if err != nil {
		return err
	}
	defer os.Remove(out.Name())

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Rename(out.Name(), dest); err != nil {
		return err
	}
	return os.Remove(src)
}
