package upload

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"io"
	"mime/multipart"
	"path/filepath"

	"github.com/pkg/errors"
)

// Kind tells which phase an Image is in.
type Kind uint8

const (
	Empty Kind = iota
	Uploaded
	Stored
	Resolved
)

func (k Kind) String() string {
	switch k {
	case Uploaded:
		return "uploaded"
	case Stored:
		return "stored"
	case Resolved:
		return "resolved"
	default:
		return "empty"
	}
}

// ErrUploadNotStored is returned when an unsaved upload reaches the database driver.
var ErrUploadNotStored = errors.New("image upload was not stored before write")

// Image is the value of an entity's image field. The zero value is Empty.
//
//	Uploaded: bytes waiting to be written (OriginalName, Open)
//	Stored:   a filename relative to the upload directory
//	Resolved: a full path inside the upload directory
type Image struct {
	kind Kind
	name string // original name for Uploaded, filename for Stored
	path string
	open func() (io.ReadCloser, error)
}

// NewUpload wraps a multipart file received by a form.
func NewUpload(fh *multipart.FileHeader) Image {
	return Image{
		kind: Uploaded,
		name: fh.Filename,
		open: func() (io.ReadCloser, error) { return fh.Open() },
	}
}

// NewUploadBytes wraps in-memory content under an original filename.
func NewUploadBytes(originalName string, content []byte) Image {
	return Image{
		kind: Uploaded,
		name: originalName,
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(content)), nil
		},
	}
}

// NewStored returns a persisted filename. An empty name gives Empty.
func NewStored(filename string) Image {
	if filename == "" {
		return Image{}
	}
	return Image{kind: Stored, name: filename}
}

// NewResolved returns a handle to a file at path.
func NewResolved(path string) Image {
	if path == "" {
		return Image{}
	}
	return Image{kind: Resolved, path: path}
}

func (i Image) Kind() Kind     { return i.kind }
func (i Image) IsEmpty() bool  { return i.kind == Empty }
func (i Image) IsUpload() bool { return i.kind == Uploaded }

// OriginalName is the client-side filename of an upload.
func (i Image) OriginalName() string {
	if i.kind != Uploaded {
		return ""
	}
	return i.name
}

// Open reads the content of an upload.
func (i Image) Open() (io.ReadCloser, error) {
	if i.kind != Uploaded || i.open == nil {
		return nil, errors.Errorf("image is %s, not an upload", i.kind)
	}
	return i.open()
}

// Filename is the name of the file inside the upload directory, if any.
func (i Image) Filename() string {
	switch i.kind {
	case Stored:
		return i.name
	case Resolved:
		return filepath.Base(i.path)
	default:
		return ""
	}
}

// Path is the resolved location on disk.
func (i Image) Path() string {
	if i.kind != Resolved {
		return ""
	}
	return i.path
}

// Value stores the filename. Uploads must be stored by the synchronizer first.
func (i Image) Value() (driver.Value, error) {
	if i.kind == Uploaded {
		return nil, ErrUploadNotStored
	}
	return i.Filename(), nil
}

func (i *Image) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Image{}
	case string:
		*i = NewStored(v)
	case []byte:
		*i = NewStored(string(v))
	default:
		return errors.Errorf("cannot scan %T into image", src)
	}
	return nil
}

func (i Image) MarshalJSON() ([]byte, error) {
	if name := i.Filename(); name != "" {
		return json.Marshal(name)
	}
	return []byte("null"), nil
}

// ImageHolder is implemented by entities that own an image file.
type ImageHolder interface {
	GetImage() Image
	SetImage(Image)
}
