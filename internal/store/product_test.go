package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog/internal/config"
	"catalog/internal/db"
	"catalog/internal/models"
	"catalog/internal/upload"
)

func setupTestStore(t *testing.T) (*ProductStore, *upload.Uploader) {
	t.Helper()
	uploader, err := upload.NewUploader(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	sync := upload.NewSynchronizer(uploader, zerolog.Nop())
	gdb, err := db.Open(
		config.Database{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "catalog.db")},
		zerolog.Nop(),
		upload.NewPlugin(sync, zerolog.Nop()),
	)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewProductStore(gdb), uploader
}

func newProduct(name, image string) *models.Product {
	p := &models.Product{
		Name:        name,
		Price:       decimal.RequireFromString("19.99"),
		Description: "a " + name,
	}
	if image != "" {
		p.Image = upload.NewUploadBytes(image, []byte("content of "+image))
	}
	return p
}

func uploadedFiles(t *testing.T, u *upload.Uploader) []string {
	t.Helper()
	entries, err := os.ReadDir(u.TargetDir())
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestProductStore_Create(t *testing.T) {
	s, uploader := setupTestStore(t)
	ctx := context.Background()

	p := newProduct("lamp", "lamp.png")
	require.NoError(t, s.Create(ctx, p))

	assert.NotZero(t, p.ID)
	require.Equal(t, upload.Stored, p.Image.Kind())
	b, err := os.ReadFile(uploader.Path(p.Image.Filename()))
	require.NoError(t, err)
	assert.Equal(t, "content of lamp.png", string(b))
}

func TestProductStore_CreateWithoutImage(t *testing.T) {
	s, uploader := setupTestStore(t)
	ctx := context.Background()

	p := newProduct("chair", "")
	require.NoError(t, s.Create(ctx, p))

	found, err := s.Find(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, found.Image.IsEmpty())
	assert.Empty(t, uploadedFiles(t, uploader))
}

func TestProductStore_FindResolvesImage(t *testing.T) {
	s, uploader := setupTestStore(t)
	ctx := context.Background()

	p := newProduct("lamp", "lamp.png")
	require.NoError(t, s.Create(ctx, p))

	found, err := s.Find(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "lamp", found.Name)
	assert.True(t, decimal.RequireFromString("19.99").Equal(found.Price))
	require.Equal(t, upload.Resolved, found.Image.Kind())
	assert.Equal(t, uploader.Path(p.Image.Filename()), found.Image.Path())

	_, err = s.Find(ctx, p.ID+100)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestProductStore_List(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newProduct("first", "a.png")))
	require.NoError(t, s.Create(ctx, newProduct("second", "")))

	items, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "second", items[0].Name)
	assert.True(t, items[0].Image.IsEmpty())
	assert.Equal(t, upload.Resolved, items[1].Image.Kind())
}

func TestProductStore_Update(t *testing.T) {
	t.Run("Without new image keeps file", func(t *testing.T) {
		s, uploader := setupTestStore(t)
		ctx := context.Background()
		p := newProduct("lamp", "lamp.png")
		require.NoError(t, s.Create(ctx, p))
		original := p.Image.Filename()

		found, err := s.Find(ctx, p.ID)
		require.NoError(t, err)
		found.Name = "desk lamp"
		found.Image = upload.Image{}
		require.NoError(t, s.Update(ctx, found))

		reloaded, err := s.Find(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "desk lamp", reloaded.Name)
		assert.Equal(t, original, reloaded.Image.Filename())
		assert.True(t, uploader.Exists(original))
	})

	t.Run("Loaded image is unchanged", func(t *testing.T) {
		s, uploader := setupTestStore(t)
		ctx := context.Background()
		p := newProduct("lamp", "lamp.png")
		require.NoError(t, s.Create(ctx, p))

		found, err := s.Find(ctx, p.ID)
		require.NoError(t, err)
		found.Description = "brighter"
		require.NoError(t, s.Update(ctx, found))

		assert.Equal(t, []string{p.Image.Filename()}, uploadedFiles(t, uploader))
	})

	t.Run("New image replaces file", func(t *testing.T) {
		s, uploader := setupTestStore(t)
		ctx := context.Background()
		p := newProduct("lamp", "lamp.png")
		require.NoError(t, s.Create(ctx, p))
		original := p.Image.Filename()

		found, err := s.Find(ctx, p.ID)
		require.NoError(t, err)
		found.Image = upload.NewUploadBytes("lamp2.jpg", []byte("new lamp"))
		require.NoError(t, s.Update(ctx, found))

		replaced := found.Image.Filename()
		assert.NotEqual(t, original, replaced)
		assert.False(t, uploader.Exists(original))
		assert.Equal(t, []string{replaced}, uploadedFiles(t, uploader))

		reloaded, err := s.Find(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, replaced, reloaded.Image.Filename())
	})

	t.Run("Unknown product", func(t *testing.T) {
		s, uploader := setupTestStore(t)
		p := newProduct("ghost", "ghost.png")
		p.ID = 42

		assert.ErrorIs(t, s.Update(context.Background(), p), ErrProductNotFound)
		assert.Empty(t, uploadedFiles(t, uploader))
	})

	t.Run("Failed update keeps old file", func(t *testing.T) {
		s, uploader := setupTestStore(t)
		ctx := context.Background()
		p := newProduct("lamp", "lamp.png")
		require.NoError(t, s.Create(ctx, p))
		original := p.Image.Filename()
		require.NoError(t, s.db.Exec(
			`CREATE TRIGGER products_frozen BEFORE UPDATE ON products BEGIN SELECT RAISE(ABORT, 'frozen'); END`,
		).Error)

		found, err := s.Find(ctx, p.ID)
		require.NoError(t, err)
		found.Image = upload.NewUploadBytes("lamp2.jpg", []byte("new lamp"))
		require.ErrorContains(t, s.Update(ctx, found), "frozen")

		reloaded, err := s.Find(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, original, reloaded.Image.Filename())
		assert.Equal(t, []string{original}, uploadedFiles(t, uploader))
	})
}

func TestProductStore_Delete(t *testing.T) {
	s, uploader := setupTestStore(t)
	ctx := context.Background()
	p := newProduct("lamp", "lamp.png")
	require.NoError(t, s.Create(ctx, p))

	found, err := s.Find(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, found))

	assert.Empty(t, uploadedFiles(t, uploader))
	_, err = s.Find(ctx, p.ID)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestProductStore_DeleteWithMissingFile(t *testing.T) {
	s, uploader := setupTestStore(t)
	ctx := context.Background()
	p := newProduct("lamp", "lamp.png")
	require.NoError(t, s.Create(ctx, p))
	require.NoError(t, os.Remove(uploader.Path(p.Image.Filename())))

	found, err := s.Find(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, found))

	_, err = s.Find(ctx, p.ID)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestProductStore_FailedInsertDiscardsFile(t *testing.T) {
	s, uploader := setupTestStore(t)
	ctx := context.Background()
	p := newProduct("lamp", "lamp.png")
	require.NoError(t, s.Create(ctx, p))

	dup := newProduct("copy", "copy.png")
	dup.ID = p.ID
	require.Error(t, s.Create(ctx, dup))

	assert.Equal(t, []string{p.Image.Filename()}, uploadedFiles(t, uploader))
}

func TestProductStore_FailedUploadAbortsInsert(t *testing.T) {
	s, uploader := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, os.RemoveAll(uploader.TargetDir()))

	require.Error(t, s.Create(ctx, newProduct("lamp", "lamp.png")))

	items, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}
