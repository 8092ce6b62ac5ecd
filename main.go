// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariebrainware/kinesio-turnos/config"
	"github.com/ariebrainware/kinesio-turnos/endpoint"
	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/ariebrainware/kinesio-turnos/notifier"
	"github.com/ariebrainware/kinesio-turnos/util"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "kinesio-turnos",
		Usage: "appointment management for physiotherapy clinics",
		Before: func(*cli.Context) error {
			cfg := config.LoadConfig()
			util.SetupLogger(cfg.AppEnv)
			util.SetJWTSecret(cfg.JWTSecret)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "start the HTTP API",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "with-notifier", Usage: "also run the WhatsApp dispatcher in this process"},
					&cli.BoolFlag{Name: "migrate", Value: true, Usage: "auto-migrate the schema on startup"},
				},
				Action: runServe,
			},
			{
				Name:   "notifier",
				Usage:  "run the WhatsApp reminder dispatcher",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "once", Usage: "dispatch due notifications once and exit"}},
				Action: runNotifier,
			},
			{
				Name:   "migrate",
				Usage:  "create or update the database schema and seed roles",
				Action: runMigrate,
			},
			{
				Name:  "seed",
				Usage: "seed roles and the default specialty catalog of every organization",
				Action: func(*cli.Context) error {
					db, err := openDatabase(true)
					if err != nil {
						return err
					}
					return seedOrganizations(db)
				},
			},
			{
				Name:  "geoip-download",
				Usage: "download a GeoIP2 city database",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Required: true, EnvVars: []string{"GEOIP_DB_URL"}},
					&cli.StringFlag{Name: "dest", EnvVars: []string{"GEOIP_DB_PATH"}, Value: "data/GeoLite2-City.mmdb"},
				},
				Action: runGeoIPDownload,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("command failed")
	}
}

func openDatabase(migrate bool) (*gorm.DB, error) {
	db, err := config.ConnectDatabase()
	if err != nil {
		return nil, err
	}
	if !migrate {
		return db, nil
	}
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	if err := model.SeedRoles(db); err != nil {
		return nil, fmt.Errorf("seed roles: %w", err)
	}
	return db, nil
}

func closeDatabase(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func runMigrate(*cli.Context) error {
	db, err := openDatabase(true)
	if err != nil {
		return err
	}
	defer closeDatabase(db)
	logrus.Info("Schema up to date")
	return nil
}

func seedOrganizations(db *gorm.DB) error {
	defer closeDatabase(db)
	var orgs []model.Organization
	if err := db.Find(&orgs).Error; err != nil {
		return err
	}
	for _, org := range orgs {
		if err := model.SeedSpecialties(db, org.ID); err != nil {
			return err
		}
	}
	logrus.WithField("organizations", len(orgs)).Info("Specialties seeded")
	return nil
}

func newDispatcher(db *gorm.DB) (*notifier.Dispatcher, error) {
	cfg := config.LoadConfig()
	if cfg.WhatsAppBaseURL == "" {
		return nil, errors.New("WHATSAPP_BASE_URL is not set")
	}
	client := notifier.NewClient(cfg.WhatsAppBaseURL, cfg.WhatsAppToken, cfg.WhatsAppSendPath)
	return notifier.NewDispatcher(db, client, cfg.NotifierInterval, cfg.NotifierBatchSize), nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runNotifier(c *cli.Context) error {
	db, err := openDatabase(false)
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	d, err := newDispatcher(db)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(c.Context)
	defer stop()

	if c.Bool("once") {
		stats, err := d.RunOnce(ctx)
		if err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{"sent": stats.Sent, "failed": stats.Failed}).Info("Dispatch finished")
		return nil
	}
	logrus.WithField("interval", d.Interval).Info("Notifier started")
	return d.Run(ctx)
}

func runServe(c *cli.Context) error {
	cfg := config.LoadConfig()

	db, err := openDatabase(c.Bool("migrate"))
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	util.SetSecurityLoggerDB(db)
	util.InitUserCacheFromEnv()
	if err := util.RegisterValidators(); err != nil {
		return fmt.Errorf("register validators: %w", err)
	}
	if err := util.InitGeoIP(cfg.GeoIPDBPath); err != nil {
		logrus.WithError(err).Warn("GeoIP disabled")
	}
	defer util.CloseGeoIP()
	if _, err := config.ConnectRedis(); err != nil {
		logrus.WithError(err).Warn("Redis unavailable, continuing without cache")
	}
	defer config.CloseRedis()

	var dispatcher *notifier.Dispatcher
	if c.Bool("with-notifier") {
		if dispatcher, err = newDispatcher(db); err != nil {
			return err
		}
	}

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())
	endpoint.RegisterRoutes(router, db)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signalContext(c.Context)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logrus.WithFields(logrus.Fields{"addr": srv.Addr, "env": cfg.AppEnv}).Infof("Starting %s", cfg.AppName)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logrus.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if dispatcher != nil {
		g.Go(func() error { return dispatcher.Run(ctx) })
	}

	err = g.Wait()
	logrus.Info("Server shutdown complete")
	return err
}

func runGeoIPDownload(c *cli.Context) error {
	ctx, stop := signalContext(c.Context)
	defer stop()

	path, err := util.DownloadGeoIP(ctx, c.String("url"), c.String("dest"))
	if err != nil {
		return fmt.Errorf("download geoip database: %w", err)
	}
	if err := util.ValidateGeoIP(path); err != nil {
		return fmt.Errorf("downloaded file is not a valid GeoIP database: %w", err)
	}
	logrus.WithField("path", path).Info("GeoIP database ready")
	return nil
}
