package web

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// formHeadroom is the room left in a request body for the form fields around the image.
const formHeadroom = 1 << 20

//go:embed views/*.tmpl
var views embed.FS

type Options struct {
	Products      Products
	UploadDir     string
	SessionSecret string
	MaxUploadSize int64
	Logger        zerolog.Logger
}

func NewRouter(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(opts.Logger), gin.CustomRecovery(handlePanics(opts.Logger)))
	r.MaxMultipartMemory = opts.MaxUploadSize
	if opts.MaxUploadSize > 0 {
		r.Use(limitBody(opts.MaxUploadSize + formHeadroom))
	}

	// раздача загруженных картинок
	r.Static("/uploads", opts.UploadDir)

	// sessions (только для flash-сообщений)
	store := cookie.NewStore([]byte(opts.SessionSecret))
	store.Options(sessions.Options{Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("catalog_session", store))

	// templates
	r.SetHTMLTemplate(template.Must(template.New("").Funcs(template.FuncMap{
		"price": func(d decimal.Decimal) string { return d.StringFixed(2) },
	}).ParseFS(views, "views/*.tmpl")))

	h := &handler{products: opts.Products, maxUpload: opts.MaxUploadSize, log: opts.Logger}

	r.GET("/health", h.health)
	r.GET("/products", h.listJSON)
	r.GET("/", h.index)

	r.GET("/product/new", h.newForm)
	r.POST("/product/new", h.create)
	r.GET("/product/:id/edit", h.editForm)
	r.POST("/product/:id/edit", h.update)
	r.POST("/product/:id/delete", h.delete)
	r.DELETE("/product/:id", h.delete)

	return r
}
