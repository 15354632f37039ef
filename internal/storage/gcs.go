package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/JonMunkholm/stmtnorm/internal/core"
)

// GCSPrefixes locate the three areas inside one bucket.
type GCSPrefixes struct {
	Input   string
	Output  string
	Archive string
}

// GCS keeps inputs, outputs and the archive under prefixes of one bucket.
// Returned paths are gs:// URIs.
type GCS struct {
	client   *storage.Client
	bucket   string
	prefixes GCSPrefixes
}

// NewGCS wraps an existing client. The caller owns the client.
func NewGCS(client *storage.Client, bucket string, prefixes GCSPrefixes) *GCS {
	return &GCS{
		client: client,
		bucket: bucket,
		prefixes: GCSPrefixes{
			Input:   dirPrefix(prefixes.Input),
			Output:  dirPrefix(prefixes.Output),
			Archive: dirPrefix(prefixes.Archive),
		},
	}
}

func dirPrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

func (g *GCS) uri(object string) string {
	return "gs://" + g.bucket + "/" + object
}

func (g *GCS) object(name string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(name)
}

// ListInputs lists objects directly under the input prefix.
func (g *GCS) ListInputs(ctx context.Context) ([]string, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{
		Prefix:    g.prefixes.Input,
		Delimiter: "/",
	})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("storage: list gs://%s/%s: %w", g.bucket, g.prefixes.Input, err)
		}
		if attrs.Prefix != "" {
			continue // sub-"directory"
		}
		name := strings.TrimPrefix(attrs.Name, g.prefixes.Input)
		if name == "" || skipInput(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (g *GCS) ReadInput(ctx context.Context, name string) ([]byte, error) {
	rc, err := g.object(g.prefixes.Input + name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("storage: %s: %w", name, core.ErrInputNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}

func (g *GCS) write(ctx context.Context, object, contentType string, data []byte) error {
	w := g.object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	// Close finalizes the upload
	return w.Close()
}

func (g *GCS) WriteOutput(ctx context.Context, name string, data []byte) (string, error) {
	object := g.prefixes.Output + name
	if err := g.write(ctx, object, "text/csv; charset=utf-8", data); err != nil {
		return "", fmt.Errorf("storage: write output %s: %w", name, err)
	}
	return g.uri(object), nil
}

// RemoveOutput deletes an output by the URI WriteOutput returned.
func (g *GCS) RemoveOutput(ctx context.Context, uri string) error {
	object, ok := strings.CutPrefix(uri, "gs://"+g.bucket+"/")
	if !ok || !strings.HasPrefix(object, g.prefixes.Output) {
		return fmt.Errorf("storage: %q is not an output of this bucket", uri)
	}
	err := g.object(object).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("storage: remove output: %w", err)
	}
	return nil
}

// ArchiveInput copies the input under the archive prefix and deletes the
// original. GCS has no rename.
func (g *GCS) ArchiveInput(ctx context.Context, name, archivedName string) (string, error) {
	src := g.object(g.prefixes.Input + name)
	dstName := g.prefixes.Archive + path.Clean(archivedName)
	dst := g.object(dstName)

	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return "", fmt.Errorf("storage: %s: %w", name, core.ErrInputNotFound)
		}
		return "", fmt.Errorf("storage: archive copy %s: %w", name, err)
	}
	if err := src.Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return "", fmt.Errorf("storage: archive delete %s: %w", name, err)
	}
	return g.uri(dstName), nil
}

func (g *GCS) WriteArchiveNote(ctx context.Context, noteName string, data []byte) (string, error) {
	object := g.prefixes.Archive + path.Clean(noteName)
	if err := g.write(ctx, object, "application/json", data); err != nil {
		return "", fmt.Errorf("storage: write archive note: %w", err)
	}
	return g.uri(object), nil
}
