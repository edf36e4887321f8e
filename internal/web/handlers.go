package web

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"catalog/internal/models"
	"catalog/internal/store"
	"catalog/internal/upload"
)

type ViewData map[string]any

// Products is the persistence the handlers need. *store.ProductStore implements it.
type Products interface {
	List(ctx context.Context) ([]models.Product, error)
	Find(ctx context.Context, id uint) (*models.Product, error)
	Create(ctx context.Context, p *models.Product) error
	Update(ctx context.Context, p *models.Product) error
	Delete(ctx context.Context, p *models.Product) error
	Ping(ctx context.Context) error
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}

type handler struct {
	products  Products
	maxUpload int64
	log       zerolog.Logger
}

type productForm struct {
	Name        string `form:"name" binding:"required,max=255"`
	Price       string `form:"price" binding:"required"`
	Description string `form:"description"`
}

func (f productForm) view() ViewData {
	return ViewData{"Name": f.Name, "Price": f.Price, "Description": f.Description}
}

// withFlash добавляет flash-сообщения из сессии
func withFlash(c *gin.Context, data ViewData) ViewData {
	if data == nil {
		data = ViewData{}
	}
	sess := sessions.Default(c)
	if flashes := sess.Flashes(); len(flashes) > 0 {
		data["Flashes"] = flashes
		_ = sess.Save()
	}
	return data
}

func addFlash(c *gin.Context, msg string) {
	sess := sessions.Default(c)
	sess.AddFlash(msg)
	_ = sess.Save()
}

func (h *handler) health(c *gin.Context) {
	if err := h.products.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "db": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *handler) listJSON(c *gin.Context) {
	items, err := h.products.List(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list products")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *handler) index(c *gin.Context) {
	items, err := h.products.List(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list products")
		c.String(http.StatusInternalServerError, "failed to load products")
		return
	}
	c.HTML(http.StatusOK, "index.tmpl", withFlash(c, ViewData{"Items": items}))
}

func (h *handler) newForm(c *gin.Context) {
	c.HTML(http.StatusOK, "form.tmpl", withFlash(c, ViewData{"Mode": "create", "Title": "New product", "Form": ViewData{}}))
}

func (h *handler) create(c *gin.Context) {
	var form productForm
	item := &models.Product{}
	if msg := h.bind(c, &form, item); msg != "" {
		c.HTML(http.StatusBadRequest, "form.tmpl", withFlash(c, ViewData{
			"Mode": "create", "Title": "New product", "Error": msg, "Form": form.view(),
		}))
		return
	}

	if err := h.products.Create(c.Request.Context(), item); err != nil {
		h.log.Error().Err(err).Msg("create product")
		c.HTML(http.StatusInternalServerError, "form.tmpl", withFlash(c, ViewData{
			"Mode": "create", "Title": "New product", "Error": "Could not save the product", "Form": form.view(),
		}))
		return
	}
	addFlash(c, fmt.Sprintf("Product %q created", item.Name))
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *handler) editForm(c *gin.Context) {
	item, ok := h.load(c)
	if !ok {
		return
	}
	c.HTML(http.StatusOK, "form.tmpl", withFlash(c, ViewData{
		"Mode": "edit", "Title": item.Name, "Item": item,
		"Form": ViewData{
			"Name": item.Name, "Price": item.Price.StringFixed(2), "Description": item.Description,
		},
	}))
}

func (h *handler) update(c *gin.Context) {
	item, ok := h.load(c)
	if !ok {
		return
	}

	var form productForm
	if msg := h.bind(c, &form, item); msg != "" {
		c.HTML(http.StatusBadRequest, "form.tmpl", withFlash(c, ViewData{
			"Mode": "edit", "Title": item.Name, "Error": msg, "Item": item, "Form": form.view(),
		}))
		return
	}

	if err := h.products.Update(c.Request.Context(), item); err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			c.String(http.StatusNotFound, "Not found")
			return
		}
		h.log.Error().Err(err).Uint("id", item.ID).Msg("update product")
		c.HTML(http.StatusInternalServerError, "form.tmpl", withFlash(c, ViewData{
			"Mode": "edit", "Title": item.Name, "Error": "Could not save the product", "Item": item, "Form": form.view(),
		}))
		return
	}
	addFlash(c, "Product updated")
	c.Redirect(http.StatusSeeOther, fmt.Sprintf("/product/%d/edit", item.ID))
}

func (h *handler) delete(c *gin.Context) {
	item, ok := h.load(c)
	if !ok {
		return
	}
	if err := h.products.Delete(c.Request.Context(), item); err != nil && !errors.Is(err, store.ErrProductNotFound) {
		h.log.Error().Err(err).Uint("id", item.ID).Msg("delete product")
		c.String(http.StatusInternalServerError, "Could not delete the product")
		return
	}
	addFlash(c, fmt.Sprintf("Product %q deleted", item.Name))
	c.Redirect(http.StatusSeeOther, "/")
}

// load finds the product named by the :id route parameter and writes a 404 when it
// does not exist.
func (h *handler) load(c *gin.Context) (*models.Product, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.String(http.StatusNotFound, "Not found")
		return nil, false
	}
	item, err := h.products.Find(c.Request.Context(), uint(id))
	if errors.Is(err, store.ErrProductNotFound) {
		c.String(http.StatusNotFound, "Not found")
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Uint64("id", id).Msg("find product")
		c.String(http.StatusInternalServerError, "Could not load the product")
		return nil, false
	}
	return item, true
}

// bind fills item from the submitted form and returns a message for the user when
// the input is invalid. Without a file the image is left Empty, which keeps the
// stored image on update.
func (h *handler) bind(c *gin.Context, form *productForm, item *models.Product) string {
	if err := c.ShouldBind(form); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Sprintf("Image is larger than %d bytes", h.maxUpload)
		}
		return "Fill name and price"
	}
	form.Name = strings.TrimSpace(form.Name)
	form.Description = strings.TrimSpace(form.Description)
	if form.Name == "" {
		return "Fill name and price"
	}

	price, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(form.Price), ",", "."))
	if err != nil || price.IsNegative() {
		return "Price must be a number, zero or more"
	}

	fh, err := c.FormFile("image")
	if err != nil {
		// файл не выбран — не ошибка
		fh = nil
	}
	if fh != nil {
		if msg := h.checkImage(fh); msg != "" {
			return msg
		}
	}

	item.Name = form.Name
	item.Price = price.Round(2)
	item.Description = form.Description
	if fh != nil {
		item.Image = upload.NewUpload(fh)
	} else {
		item.Image = upload.Image{}
	}
	return ""
}

func (h *handler) checkImage(fh *multipart.FileHeader) string {
	if !imageExts[strings.ToLower(filepath.Ext(fh.Filename))] {
		return "Unsupported image format"
	}
	if h.maxUpload > 0 && fh.Size > h.maxUpload {
		return fmt.Sprintf("Image is larger than %d bytes", h.maxUpload)
	}
	return ""
}
