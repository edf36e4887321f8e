package upload

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrInvalidFilename = errors.New("invalid upload filename")

// Uploader keeps image files in one flat directory.
type Uploader struct {
	dir string
}

func NewUploader(dir string) (*Uploader, error) {
	if dir == "" {
		return nil, errors.New("upload directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create upload directory")
	}
	return &Uploader{dir: dir}, nil
}

func (u *Uploader) TargetDir() string { return u.dir }

// Path joins a stored filename with the upload directory.
func (u *Uploader) Path(filename string) string {
	return filepath.Join(u.dir, filename)
}

// Upload writes the content of img under a new unique filename and returns it.
func (u *Uploader) Upload(img Image) (string, error) {
	src, err := img.Open()
	if err != nil {
		return "", errors.Wrap(err, "open upload")
	}
	defer src.Close()

	name := uuid.NewString() + strings.ToLower(filepath.Ext(img.OriginalName()))
	dst, err := os.OpenFile(u.Path(name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", errors.Wrap(err, "create image file")
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = os.Remove(dst.Name())
		return "", errors.Wrap(err, "write image file")
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", errors.Wrap(err, "close image file")
	}
	return name, nil
}

// Remove deletes a stored file. A missing file is not an error.
func (u *Uploader) Remove(filename string) error {
	if filename == "" {
		return nil
	}
	if filename != filepath.Base(filename) || filename == "." || filename == ".." {
		return errors.Wrapf(ErrInvalidFilename, "%q", filename)
	}
	if err := os.Remove(u.Path(filename)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove image file")
	}
	return nil
}

// Exists reports whether filename is present in the upload directory.
func (u *Uploader) Exists(filename string) bool {
	if filename == "" {
		return false
	}
	_, err := os.Stat(u.Path(filename))
	return err == nil
}
