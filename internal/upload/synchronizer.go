package upload

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// FieldName is the struct field of an ImageHolder that holds the image.
const FieldName = "Image"

// Files is the storage the Synchronizer writes to. *Uploader implements it.
type Files interface {
	Upload(img Image) (string, error)
	Remove(filename string) error
	Path(filename string) string
}

// Synchronizer keeps the image file of an ImageHolder in step with its database row.
// Each method is called by the store at one point of its write or read path.
type Synchronizer struct {
	files Files
	log   zerolog.Logger
}

func NewSynchronizer(files Files, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		files: files,
		log:   logger.With().Str("component", "image-sync").Logger(),
	}
}

// BeforeInsert stores a pending upload and replaces it with the generated filename.
func (s *Synchronizer) BeforeInsert(entity any) error {
	holder, ok := entity.(ImageHolder)
	if !ok {
		return nil
	}
	return s.store(holder)
}

// BeforeRemove deletes the file owned by entity. The caller decides whether an
// error should stop the removal.
func (s *Synchronizer) BeforeRemove(entity any) error {
	holder, ok := entity.(ImageHolder)
	if !ok {
		return nil
	}
	name := holder.GetImage().Filename()
	if name == "" {
		return nil
	}
	if err := s.files.Remove(name); err != nil {
		return errors.Wrapf(err, "remove image %s", name)
	}
	s.log.Debug().Str("file", name).Msg("image removed")
	return nil
}

// BeforeUpdate handles a changed image column. An absent new value keeps the old
// image; anything else replaces the old file.
func (s *Synchronizer) BeforeUpdate(entity any, changed []string, oldImage, newImage Image) error {
	holder, replaced, ok := s.replacement(entity, changed, oldImage, newImage)
	if !ok {
		return nil
	}
	s.RemoveReplaced(replaced)
	holder.SetImage(newImage)
	return s.store(holder)
}

// StageUpdate does what BeforeUpdate does except deleting the old file. It returns
// the name of that file; the caller removes it with RemoveReplaced once the row
// no longer refers to it.
func (s *Synchronizer) StageUpdate(entity any, changed []string, oldImage, newImage Image) (string, error) {
	holder, replaced, ok := s.replacement(entity, changed, oldImage, newImage)
	if !ok {
		return "", nil
	}
	holder.SetImage(newImage)
	if err := s.store(holder); err != nil {
		return "", err
	}
	return replaced, nil
}

// RemoveReplaced deletes the file of an image that an update replaced. A failure
// leaves an unreferenced file behind and is only logged.
func (s *Synchronizer) RemoveReplaced(name string) {
	if name == "" {
		return
	}
	if err := s.files.Remove(name); err != nil {
		s.log.Warn().Err(err).Str("file", name).Msg("failed to remove replaced image")
		return
	}
	s.log.Debug().Str("file", name).Msg("replaced image removed")
}

// replacement reports whether an update replaces the image of entity and which file
// it replaces. An absent new value is resolved here by restoring the old one.
func (s *Synchronizer) replacement(entity any, changed []string, oldImage, newImage Image) (ImageHolder, string, bool) {
	holder, ok := entity.(ImageHolder)
	if !ok || !slices.Contains(changed, FieldName) {
		return nil, "", false
	}
	if newImage.IsEmpty() {
		holder.SetImage(oldImage)
		return nil, "", false
	}
	replaced := oldImage.Filename()
	if replaced == newImage.Filename() {
		replaced = ""
	}
	return holder, replaced, true
}

// AfterLoad turns a stored filename into a handle inside the upload directory.
func (s *Synchronizer) AfterLoad(entity any) {
	holder, ok := entity.(ImageHolder)
	if !ok {
		return
	}
	img := holder.GetImage()
	if img.Kind() != Stored || img.Filename() == "" {
		return
	}
	holder.SetImage(NewResolved(s.files.Path(img.Filename())))
}

func (s *Synchronizer) store(holder ImageHolder) error {
	img := holder.GetImage()
	if !img.IsUpload() {
		return nil
	}
	name, err := s.files.Upload(img)
	if err != nil {
		return errors.Wrapf(err, "store upload %q", img.OriginalName())
	}
	holder.SetImage(NewStored(name))
	s.log.Debug().Str("file", name).Str("original", img.OriginalName()).Msg("image stored")
	return nil
}

// Discard removes a file written for a write that was rolled back.
func (s *Synchronizer) Discard(filename string) error {
	return s.files.Remove(filename)
}
