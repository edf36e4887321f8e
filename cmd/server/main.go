package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"catalog/internal/config"
	mydb "catalog/internal/db"
	"catalog/internal/store"
	"catalog/internal/upload"
	"catalog/internal/web"
)

const shutdownTimeout = 5 * time.Second

func main() {
	app := &cli.App{
		Name:  "catalog",
		Usage: "product catalog with image uploads",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: ".env files to load before reading the environment",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "create or update database tables",
				Action: migrate,
			},
		},
		DefaultCommand: "serve",
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("catalog failed")
	}
}

func setup(c *cli.Context) (*config.Config, *upload.Uploader, *gorm.DB, error) {
	cfg, err := config.Load(c.StringSlice("env-file")...)
	if err != nil {
		return nil, nil, nil, err
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	uploader, err := upload.NewUploader(cfg.Upload.Dir)
	if err != nil {
		return nil, nil, nil, err
	}
	sync := upload.NewSynchronizer(uploader, log.Logger)
	db, err := mydb.Open(cfg.Database, log.Logger, upload.NewPlugin(sync, log.Logger))
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, uploader, db, nil
}

func migrate(c *cli.Context) error {
	_, _, db, err := setup(c)
	if err != nil {
		return err
	}
	sqlDB, _ := db.DB()
	defer sqlDB.Close()

	if err := mydb.Migrate(db); err != nil {
		return err
	}
	log.Info().Msg("migrations applied")
	return nil
}

func serve(c *cli.Context) error {
	cfg, uploader, db, err := setup(c)
	if err != nil {
		return err
	}
	sqlDB, _ := db.DB()
	defer sqlDB.Close()

	if err := mydb.Migrate(db); err != nil {
		return err
	}

	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	r := web.NewRouter(web.Options{
		Products:      store.NewProductStore(db),
		UploadDir:     uploader.TargetDir(),
		SessionSecret: cfg.SessionSecret,
		MaxUploadSize: cfg.Upload.MaxSize,
		Logger:        log.Logger,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("uploads", uploader.TargetDir()).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
