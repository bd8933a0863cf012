// Package archive retains uploaded CSV pairs in Google Cloud Storage when a
// bucket is configured. Retention is best-effort and never blocks a merge.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// Archiver stores an uploaded header/items file pair.
type Archiver interface {
	ArchivePair(ctx context.Context, sessionID string, headerCSV, itemsCSV []byte) (string, error)
}

// GCSArchiver writes file pairs to a GCS bucket. It assumes Application
// Default Credentials are configured.
type GCSArchiver struct {
	bucket string
}

// NewGCSArchiver creates an archiver for the given bucket.
func NewGCSArchiver(bucket string) *GCSArchiver {
	return &GCSArchiver{bucket: bucket}
}

// ArchivePair uploads both CSVs under uploads/<date>/<session>/ and returns
// the GCS URI prefix they were stored under.
func (a *GCSArchiver) ArchivePair(ctx context.Context, sessionID string, headerCSV, itemsCSV []byte) (string, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("archive.ArchivePair: create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	prefix := fmt.Sprintf("uploads/%s/%s", time.Now().Format("2006/01/02"), sessionID)

	objects := map[string][]byte{
		path.Join(prefix, "cabecalho.csv"): headerCSV,
		path.Join(prefix, "itens.csv"):     itemsCSV,
	}

	bkt := client.Bucket(a.bucket)
	for name, data := range objects {
		w := bkt.Object(name).NewWriter(ctx)
		w.ContentType = "text/csv"
		if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
			_ = w.Close()
			return "", fmt.Errorf("archive.ArchivePair: copy %s: %w", name, err)
		}
		if err := w.Close(); err != nil {
			return "", fmt.Errorf("archive.ArchivePair: finalize %s: %w", name, err)
		}
	}

	return fmt.Sprintf("gs://%s/%s", a.bucket, prefix), nil
}

// Fetch downloads the bytes at the given GCS URI, e.g. for re-running a merge
// against an archived pair from the CLI.
func Fetch(ctx context.Context, gcsURI string) ([]byte, error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return nil, fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}

	trimmed := strings.TrimPrefix(gcsURI, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive.Fetch: creating storage client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(parts[0]).Object(parts[1]).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive.Fetch: reading object %s: %w", gcsURI, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("archive.Fetch: reading bytes: %w", err)
	}

	return data, nil
}

var _ Archiver = (*GCSArchiver)(nil)
