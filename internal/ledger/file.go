package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/stmtnorm/internal/core"
)

// FileLedger stores each entry as <dir>/<fingerprint>.json.
//
// Append writes the document to a temporary file and hard-links it into
// place. link(2) refuses to replace an existing name, which makes the
// existence check and the write one atomic step across processes sharing
// the directory.
type FileLedger struct {
	dir string
}

// NewFileLedger opens (creating if needed) a ledger directory.
func NewFileLedger(dir string) (*FileLedger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create dir: %w", err)
	}
	return &FileLedger{dir: dir}, nil
}

func (l *FileLedger) path(fingerprint string) string {
	return filepath.Join(l.dir, fingerprint+".json")
}

func (l *FileLedger) Lookup(ctx context.Context, fingerprint string) (core.LedgerEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.LedgerEntry{}, false, err
	}
	if !fingerprintRegex.MatchString(fingerprint) {
		return core.LedgerEntry{}, false, nil
	}
	return l.read(l.path(fingerprint))
}

func (l *FileLedger) read(path string) (core.LedgerEntry, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return core.LedgerEntry{}, false, nil
	}
	if err != nil {
		return core.LedgerEntry{}, false, fmt.Errorf("ledger: read %s: %w", filepath.Base(path), err)
	}
	var e core.LedgerEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return core.LedgerEntry{}, false, fmt.Errorf("ledger: decode %s: %w", filepath.Base(path), err)
	}
	return e, true, nil
}

func (l *FileLedger) Append(ctx context.Context, entry core.LedgerEntry) (core.LedgerEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.LedgerEntry{}, false, err
	}
	if err := validate(entry); err != nil {
		return core.LedgerEntry{}, false, err
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return core.LedgerEntry{}, false, fmt.Errorf("ledger: encode: %w", err)
	}

	tmp, err := os.CreateTemp(l.dir, ".append-*")
	if err != nil {
		return core.LedgerEntry{}, false, fmt.Errorf("ledger: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return core.LedgerEntry{}, false, fmt.Errorf("ledger: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return core.LedgerEntry{}, false, fmt.Errorf("ledger: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return core.LedgerEntry{}, false, fmt.Errorf("ledger: close: %w", err)
	}

	final := l.path(entry.Fingerprint)
	if err := os.Link(tmpName, final); err != nil {
		if errors.Is(err, fs.ErrExist) {
			existing, ok, rerr := l.read(final)
			if rerr != nil {
				return core.LedgerEntry{}, false, rerr
			}
			if !ok {
				return core.LedgerEntry{}, false, fmt.Errorf("ledger: entry %s vanished", entry.Fingerprint)
			}
			return existing, false, nil
		}
		return core.LedgerEntry{}, false, fmt.Errorf("ledger: link: %w", err)
	}
	return entry, true, nil
}

func (l *FileLedger) List(ctx context.Context) ([]core.LedgerEntry, error) {
	dirents, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}

	var out []core.LedgerEntry
	for _, d := range dirents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		e, ok, err := l.read(filepath.Join(l.dir, name))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}
