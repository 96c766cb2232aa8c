package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/whisperclip/internal/audio"
	"github.com/chaz8081/whisperclip/internal/backend"
	"github.com/chaz8081/whisperclip/internal/config"
	"github.com/chaz8081/whisperclip/internal/control"
	"github.com/chaz8081/whisperclip/internal/dbusctl"
	"github.com/chaz8081/whisperclip/internal/hotkey"
	"github.com/chaz8081/whisperclip/internal/inject"
	"github.com/chaz8081/whisperclip/internal/models"
	"github.com/chaz8081/whisperclip/internal/notify"
	"github.com/chaz8081/whisperclip/internal/secret"
	"github.com/chaz8081/whisperclip/internal/session"
	"github.com/chaz8081/whisperclip/internal/settings"
	"github.com/chaz8081/whisperclip/internal/storage"
	"github.com/chaz8081/whisperclip/internal/transcribe"
	"github.com/chaz8081/whisperclip/internal/web"
)

// masterKeyFile holds the key that seals stored API credentials.
const masterKeyFile = "master.key"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the dictation daemon",
	Args:  cobra.NoArgs,
	RunE:  runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logStartup(logger, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(filepath.Join(cfg.DataDir, storage.FileName))
	if err != nil {
		return err
	}
	defer db.Close()

	sealer, err := secret.LoadOrCreate(filepath.Join(cfg.DataDir, masterKeyFile))
	if err != nil {
		return err
	}

	settingsStore := settings.NewStore(db, sealer, settings.FromEnv(os.LookupEnv))
	initial, err := settingsStore.Init()
	if err != nil {
		return err
	}

	modelStore := models.NewStore(cfg.ModelsPath())

	recorder, err := audio.NewRecorder(cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.MaxAudio())
	if err != nil {
		return fmt.Errorf("initialize audio recorder: %w", err)
	}
	defer recorder.Close()

	events := session.NewEventBus(512)
	ctl, err := session.New(session.Options{
		Capture: recorder,
		Models:  modelStore,
		Transcribers: backend.Factory{
			Models:  modelStore,
			Engine:  transcribe.NewWhisperCLI(cfg.Whisper.Binary, cfg.Whisper.Language),
			Timeout: cfg.Remote.Timeout,
		},
		Settings:        settingsStore,
		History:         db,
		Events:          events,
		Logger:          logger,
		Initial:         initial,
		MinAudio:        cfg.MinAudio(),
		DownloadTimeout: cfg.Download.Timeout,
	})
	if err != nil {
		return err
	}
	defer ctl.Close()

	surface := control.New(ctl, logger)

	method, err := inject.ParseMethod(cfg.Inject.Method)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	injectEvents, unsubInject := events.Subscribe(32)
	defer unsubInject()
	g.Go(func() error {
		inject.NewInjector(method, nil).Run(gctx, injectEvents, logger)
		return nil
	})

	notifyEvents, unsubNotify := events.Subscribe(32)
	defer unsubNotify()
	g.Go(func() error {
		notify.New(nil, cfg.SoundNotification, logger).Run(gctx, notifyEvents)
		return nil
	})

	if cfg.DBus.Enabled {
		g.Go(func() error {
			err := dbusctl.Serve(gctx, surface, events, logger)
			if errors.Is(err, dbusctl.ErrNameTaken) {
				return fmt.Errorf("another whisperclip is already running: %w", err)
			}
			if err != nil {
				// Hotkey and web control still work without a session bus.
				logger.Warn("D-Bus control surface unavailable", "error", err)
			}
			return nil
		})
	}

	if cfg.Web.Enabled {
		g.Go(func() error {
			srv := web.NewServer(surface, events, db, logger)
			return srv.ListenAndServe(gctx, cfg.Web.Addr)
		})
	}

	if cfg.Hotkey.Enabled {
		mode, err := hotkey.ParseMode(cfg.Hotkey.Mode)
		if err != nil {
			return err
		}
		listener := hotkey.NewListener(cfg.Hotkey.Keys, cfg.Hotkey.CancelKeys, mode)
		// The listener is never stopped: gohook's C cleanup can crash, and
		// the OS reclaims the hook on process exit.
		go listener.Start()
		g.Go(func() error {
			hotkey.Drive(gctx, listener.Events(), surface, logger)
			return nil
		})
		logger.Info("hotkey ready", "keys", strings.Join(cfg.Hotkey.Keys, "+"), "mode", mode)
	}

	// Fetch the model for a local backend that has not been downloaded yet.
	if active := ctl.Active(); active.IsLocal() && !modelStore.IsPresent(active.Size) {
		if err := surface.SelectLocalSize(active.Label()); err != nil {
			logger.Warn("initial model download not started", "backend", active.Label(), "error", err)
		}
	}

	logger.Info("ready", "backend", ctl.Active().Label())

	err = g.Wait()
	if ctx.Err() != nil {
		logger.Info("shutting down")
	}
	return err
}

func logStartup(logger *slog.Logger, cfg *config.Config) {
	logger.Info("starting whisperclip",
		"data_dir", cfg.DataDir,
		"models_dir", cfg.ModelsPath(),
		"audio", fmt.Sprintf("%dHz/%dch", cfg.Audio.SampleRate, cfg.Audio.Channels),
		"inject", cfg.Inject.Method,
		"dbus", cfg.DBus.Enabled,
		"web", cfg.Web.Enabled,
	)
}
