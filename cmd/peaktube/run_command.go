package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/artur/peaktube/internal/acquire"
	"github.com/artur/peaktube/internal/api"
	"github.com/artur/peaktube/internal/bot"
	"github.com/artur/peaktube/internal/database/repository"
	"github.com/artur/peaktube/internal/downloader"
	"github.com/artur/peaktube/internal/handler"
	"github.com/artur/peaktube/internal/links"
	"github.com/artur/peaktube/internal/logging"
	"github.com/artur/peaktube/internal/pipeline"
	"github.com/artur/peaktube/internal/postprocess"
	"github.com/artur/peaktube/internal/quota"
)

var log = logging.For("main")

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot and the link redirect server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), ctx)
		},
	}
}

func runBot(parent context.Context, c *commandContext) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if cfg.Telegram.Token == "" {
		return errors.New("telegram.token is not set")
	}
	if parent == nil {
		parent = context.Background()
	}

	lock, err := acquireInstanceLock(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if err := os.MkdirAll(cfg.Downloads.Dir, 0o755); err != nil {
		return fmt.Errorf("create downloads dir: %w", err)
	}

	db, err := c.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	userRepo := repository.NewUserRepository(db.DB)
	quotaRepo := repository.NewQuotaRepository(db.DB)
	linkRepo := repository.NewLinkRepository(db.DB)
	deliveryRepo := repository.NewDeliveryRepository(db.DB)

	quotaStore := quota.NewStore(quotaRepo)
	linkService := links.NewService(linkRepo, cfg.Links.TTL, cfg.Links.BaseURL)

	ytdlp := downloader.NewYtdlpDownloader(cfg.Ytdlp.Path, cfg.FFmpeg.Path)
	primary, err := downloader.New(cfg.Extractor.Primary, ytdlp)
	if err != nil {
		return err
	}

	engine := acquire.NewEngine(primary, ytdlp, linkService, acquire.Options{
		WorkDir:          filepath.Join(cfg.Downloads.Dir, "work"),
		ProgressInterval: cfg.Progress.Interval,
		OnState: func(resourceID string, s acquire.State) {
			log.WithField("resource_id", resourceID).Debugf("Engine state: %s", s)
		},
	})
	if err := os.MkdirAll(filepath.Join(cfg.Downloads.Dir, "work"), 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	processor := postprocess.NewProcessor(postprocess.NewFFmpeg(cfg.FFmpeg.Path), ytdlp, cfg.PostProcess.AudioBitrate)

	payments := pipeline.NewAtomicFlag(cfg.Payments.Enabled)
	c.loader.OnChange(func(enabled bool) {
		if payments.Enabled() != enabled {
			log.WithField("enabled", enabled).Info("Payments flag changed")
		}
		payments.Set(enabled)
	})

	orchestrator := pipeline.New(quotaStore, engine, processor, linkService, deliveryRepo, payments)

	runCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	linkService.StartSweeper(runCtx, cfg.Links.SweepInterval)

	var srv *http.Server
	if cfg.Server.Enabled {
		srv = &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           api.NewRouter(linkService, db, cfg.Server.Debug),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.WithField("addr", cfg.Server.Addr).Info("Starting link server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Link server stopped")
				stop()
			}
		}()
	}

	b, err := bot.New(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}
	b.RegisterHandler(handler.NewStartHandler(userRepo, quotaStore, orchestrator))
	b.RegisterHandler(handler.NewYouTubeHandler(orchestrator))

	log.WithFields(logrus.Fields{
		"extractor": primary.Name(),
		"payments":  cfg.Payments.Enabled,
	}).Info("Starting peaktube")

	b.Run(runCtx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Link server shutdown")
		}
	}
	return nil
}
