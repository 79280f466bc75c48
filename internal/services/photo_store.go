package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/civichub/backend/internal/models"
)

// PhotoStore is the object storage boundary: Upload returns a durable,
// retrievable URL. Delete is only used to compensate a failed submission.
type PhotoStore interface {
	Upload(ctx context.Context, r io.Reader, mimeType string) (string, error)
	Delete(ctx context.Context, photoURL string) error
}

// LocalPhotoStore writes photos under UploadDir and serves them from
// BaseURL + "/uploads/".
type LocalPhotoStore struct {
	uploadDir string
	baseURL   string
}

func NewLocalPhotoStore(uploadDir, baseURL string) (*LocalPhotoStore, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, err
	}
	return &LocalPhotoStore{uploadDir: uploadDir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalPhotoStore) Upload(ctx context.Context, r io.Reader, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	filename := uuid.New().String() + models.PhotoExtension(mimeType)
	filePath := filepath.Join(s.uploadDir, filename)

	dst, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(dst, r); err != nil {
		dst.Close()
		os.Remove(filePath)
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(filePath)
		return "", fmt.Errorf("failed to sync file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(filePath)
		return "", err
	}

	return s.baseURL + "/uploads/" + filename, nil
}

func (s *LocalPhotoStore) Delete(ctx context.Context, photoURL string) error {
	name := path.Base(photoURL)
	if name == "" || name == "." || name == "/" {
		return ErrNotFound
	}
	err := os.Remove(filepath.Join(s.uploadDir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// GCSPhotoStore writes photos into a Firebase Storage bucket and returns
// token-protected download URLs.
type GCSPhotoStore struct {
	gcs    *storage.Client
	bucket string
	prefix string
}

func NewGCSPhotoStore(ctx context.Context, bucket string) (*GCSPhotoStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("photo store: storage client: %w", err)
	}
	return &GCSPhotoStore{gcs: client, bucket: bucket, prefix: "civichub_issues/"}, nil
}

func (s *GCSPhotoStore) Close() error {
	return s.gcs.Close()
}

func (s *GCSPhotoStore) Upload(ctx context.Context, r io.Reader, mimeType string) (string, error) {
	name := s.prefix + uuid.New().String() + models.PhotoExtension(mimeType)
	token := uuid.New().String()

	w := s.gcs.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = mimeType
	w.Metadata = map[string]string{
		"firebaseStorageDownloadTokens": token,
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", fmt.Errorf("gcs write %s: %w", name, err)
	}
	// The object is committed only once Close returns nil.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs commit %s: %w", name, err)
	}

	return firebaseDownloadURL(s.bucket, name, token), nil
}

func (s *GCSPhotoStore) Delete(ctx context.Context, photoURL string) error {
	name, err := objectNameFromDownloadURL(photoURL)
	if err != nil {
		return err
	}
	err = s.gcs.Bucket(s.bucket).Object(name).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

func firebaseDownloadURL(bucket, objectName, token string) string {
	return fmt.Sprintf(
		"https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket,
		url.PathEscape(objectName),
		url.QueryEscape(token),
	)
}

// objectNameFromDownloadURL reverses firebaseDownloadURL.
func objectNameFromDownloadURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	escaped := u.EscapedPath()
	i := strings.Index(escaped, "/o/")
	if i < 0 {
		return "", fmt.Errorf("not a storage download url: %s", raw)
	}
	return url.PathUnescape(escaped[i+len("/o/"):])
}
