package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS stores audio in a Google Cloud Storage bucket. URIs use the gs://
// form the speech recognizer reads directly.
type GCS struct {
	client    *gcs.Client
	bucket    string
	workDir   string
	signedTTL time.Duration
}

// NewGCS creates a bucket-scoped store. credentialsFile may be empty to use
// application default credentials.
func NewGCS(ctx context.Context, bucket, workDir, credentialsFile string, signedTTL time.Duration) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("gcs: bucket is required")
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("gcs work dir: %w", err)
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, workDir: workDir, signedTTL: signedTTL}, nil
}

// Close releases the client.
func (s *GCS) Close() error {
	return s.client.Close()
}

func (s *GCS) uri(path string) string {
	return "gs://" + s.bucket + "/" + path
}

// ObjectPath strips gs://<bucket>/ from uri.
func (s *GCS) ObjectPath(uri string) (string, error) {
	prefix := "gs://" + s.bucket + "/"
	if !strings.HasPrefix(uri, prefix) || len(uri) == len(prefix) {
		return "", fmt.Errorf("gcs: uri %q is not in bucket %s", uri, s.bucket)
	}
	return strings.TrimPrefix(uri, prefix), nil
}

// Download streams the object to localName in the work directory.
func (s *GCS) Download(ctx context.Context, uri, localName string) (string, error) {
	path, err := s.ObjectPath(uri)
	if err != nil {
		return "", err
	}
	r, err := s.client.Bucket(s.bucket).Object(path).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return "", fmt.Errorf("%w: %s", ErrObjectNotFound, uri)
		}
		return "", fmt.Errorf("gcs read %s: %w", uri, err)
	}
	defer r.Close()

	localPath := filepath.Join(s.workDir, localName)
	f, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", localPath, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(localPath)
		return "", fmt.Errorf("gcs download %s: %w", uri, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return localPath, nil
}

// UploadFile uploads localPath to path in the bucket.
func (s *GCS) UploadFile(ctx context.Context, path, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()
	return s.upload(ctx, path, f)
}

// UploadBytes uploads data to path in the bucket.
func (s *GCS) UploadBytes(ctx context.Context, path string, data []byte) (string, error) {
	return s.upload(ctx, path, bytes.NewReader(data))
}

func (s *GCS) upload(ctx context.Context, path string, src io.Reader) (string, error) {
	// Cancelling the writer context abandons the upload; Close would commit
	// the partial object.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(path).NewWriter(wctx)
	w.ContentType = TypeByExtension(path)
	if err := copyObject(w, src, cancel); err != nil {
		return "", fmt.Errorf("gcs write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs finalize %s: %w", path, err)
	}
	return s.uri(path), nil
}

// copyObject copies src into an object writer, calling abort instead of
// finishing the object when the copy fails.
func copyObject(w io.Writer, src io.Reader, abort context.CancelFunc) error {
	if _, err := io.Copy(w, src); err != nil {
		abort()
		return err
	}
	return nil
}

// SignedURL returns a V4 signed URL for method, valid for the configured TTL.
func (s *GCS) SignedURL(ctx context.Context, path, mimetype, method string) (string, error) {
	opts := &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  method,
		Expires: time.Now().Add(s.signedTTL),
	}
	if method == "PUT" && mimetype != "" {
		opts.ContentType = mimetype
	}
	u, err := s.client.Bucket(s.bucket).SignedURL(path, opts)
	if err != nil {
		return "", fmt.Errorf("gcs sign %s: %w", path, err)
	}
	return u, nil
}

// ContentType returns the stored object content type.
func (s *GCS) ContentType(ctx context.Context, path string) (string, error) {
	attrs, err := s.client.Bucket(s.bucket).Object(path).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return "", fmt.Errorf("%w: %s", ErrObjectNotFound, path)
		}
		return "", fmt.Errorf("gcs attrs %s: %w", path, err)
	}
	return attrs.ContentType, nil
}
