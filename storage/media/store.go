// Package mediastore keeps uploaded images on the local disk and serves them under a public URL prefix.
package mediastore

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/klunity/klunity/core"
)

var (
	// errors
	ErrUnsupportedType = errors.New("only jpeg, png, gif and webp images are accepted")
	ErrTooLarge        = errors.New("file is too large")

	imageExts = map[string]string{
		"image/jpeg": ".jpg",
		"image/png":  ".png",
		"image/gif":  ".gif",
		"image/webp": ".webp",
	}
)

type Store struct {
	dir     string
	baseURL string
	maxSize int64
}

func NewStore(conf *core.Config) (*Store, error) {
	if err := os.MkdirAll(conf.MediaDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating media dir")
	}
	return &Store{
		dir:     conf.MediaDir,
		baseURL: strings.TrimSuffix(conf.MediaBaseURL, "/"),
		maxSize: conf.MaxUploadSize,
	}, nil
}

// Dir is the root directory of the stored files.
func (s *Store) Dir() string { return s.dir }

// SaveImage stores the image read from r under folder and returns its public URL.
// The content type is sniffed; the client supplied name is ignored.
func (s *Store) SaveImage(r io.Reader, folder, field string) (string, error) {
	content, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return "", errors.Wrap(err, "reading upload")
	}
	if int64(len(content)) > s.maxSize {
		return "", core.NewValidationError(ErrTooLarge, core.FieldError{Field: field, Error: ErrTooLarge.Error()})
	}
	ext, ok := imageExts[http.DetectContentType(content)]
	if !ok {
		return "", core.NewValidationError(ErrUnsupportedType, core.FieldError{Field: field, Error: ErrUnsupportedType.Error()})
	}

	name := uuid.NewString() + ext
	dir := filepath.Join(s.dir, folder)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating media folder")
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", errors.Wrap(err, "creating media file")
	}
	if _, err = io.Copy(f, bytes.NewReader(content)); err != nil {
		_ = f.Close()
		return "", errors.Wrap(err, "writing media file")
	}
	if err = f.Close(); err != nil {
		return "", errors.Wrap(err, "closing media file")
	}
	return path.Join(s.baseURL, folder, name), nil
}

// Delete removes the file behind url. URLs outside the store are ignored.
func (s *Store) Delete(url string) error {
	rel := strings.TrimPrefix(url, s.baseURL+"/")
	if url == "" || rel == url || strings.Contains(rel, "..") {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(rel)))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing media file")
	}
	return nil
}
