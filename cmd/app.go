package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/MimeLyc/movie-dubber/internal/alignment"
	"github.com/MimeLyc/movie-dubber/internal/audiocache"
	"github.com/MimeLyc/movie-dubber/internal/audiofile"
	"github.com/MimeLyc/movie-dubber/internal/backend"
	"github.com/MimeLyc/movie-dubber/internal/config"
	"github.com/MimeLyc/movie-dubber/internal/dubbing"
	"github.com/MimeLyc/movie-dubber/internal/generation"
	"github.com/MimeLyc/movie-dubber/internal/httpapi"
	"github.com/MimeLyc/movie-dubber/internal/persistence"
	"github.com/MimeLyc/movie-dubber/internal/player"
	"github.com/MimeLyc/movie-dubber/internal/relay"
	"github.com/MimeLyc/movie-dubber/internal/subtitle"
	"github.com/MimeLyc/movie-dubber/internal/video"
	"github.com/MimeLyc/movie-dubber/pkg/icron"
	"github.com/MimeLyc/movie-dubber/pkg/log"
)

const pruneJob = "audio cache prune"

// app is one running engine: storage, the page bridge, the controller and
// the HTTP surface.
type app struct {
	cfg  *config.Config
	lock *flock.Flock

	store      *persistence.SQLiteStore
	audio      *audiocache.Cache
	hub        *relay.Hub
	queue      *generation.Queue
	controller *dubbing.Controller
	server     *httpapi.Server
	scheduler  *icron.Scheduler
}

func newApp(ctx context.Context, cfg *config.Config, uiDir string) (*app, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	lock := flock.New(filepath.Join(cfg.Storage.DataDir, "dubd.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another dubd instance is using %s", cfg.Storage.DataDir)
	}

	a := &app{cfg: cfg, lock: lock}
	if err := a.build(ctx, uiDir); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context, uiDir string) error {
	cfg := a.cfg

	// without the database the engine still runs: state lives in memory and
	// clips come from the network only
	store, storeErr := persistence.NewSQLiteStore(cfg.Storage.DBPath)
	var state stateStore = store
	if storeErr != nil {
		log.Error("storage unavailable, running without persistence: %v", storeErr)
		state = persistence.NewMemoryStore()
	} else {
		a.store = store
	}
	a.audio = audiocache.Open(func() (audiocache.Store, error) {
		if storeErr != nil {
			return nil, storeErr
		}
		return store, nil
	})

	client, err := backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout,
		Retries: cfg.Backend.Retries,
	})
	if err != nil {
		return err
	}

	settings, err := config.NewPlaybackSettingsStore(ctx, state)
	if err != nil {
		return fmt.Errorf("load playback settings: %w", err)
	}

	a.hub = relay.NewHub(cfg.Sync.MessageTimeout)
	files := audiofile.NewManager(audiofile.MP3Decoder{}, a.audio, client)
	voices := player.New(a.hub, player.Config{
		FadeOut:         cfg.Player.FadeOut,
		ReplayThreshold: cfg.Player.ReplayThreshold,
		MinGain:         cfg.Player.MinFadeGain,
		MaxVoices:       cfg.Player.MaxVoices,
		MaxMultiplier:   cfg.Player.MaxVolumeMultiplier,
	})

	var controller *dubbing.Controller
	a.queue = generation.NewQueue(client, generation.Config{
		MaxRetries:  cfg.Generation.MaxRetries,
		BaseBackoff: cfg.Generation.BaseBackoff,
		Workers:     cfg.Generation.Workers,
	}, generation.WithResultHandler(func(result generation.Result) {
		if controller != nil {
			controller.OnGenerationResult(result)
		}
	}))

	controller = dubbing.NewController(dubbing.Dependencies{
		Document:    a.hub,
		Finder:      video.NewFinder(a.hub, cfg.Sync.MessageTimeout),
		Loader:      subtitle.NewLoader(client, state),
		Files:       files,
		Player:      voices,
		Generator:   a.queue,
		Settings:    settings,
		Aligner:     alignment.NewAssistant(a.hub, client, alignment.DefaultConfig()),
		Broadcaster: a.hub,
	}, dubbing.Config{
		TickInterval:           cfg.Sync.TickInterval,
		PrefetchWindow:         cfg.Sync.PrefetchWindow,
		GenerationWindow:       cfg.Sync.GenerationWindow,
		GenerationScanInterval: cfg.Sync.GenerationScanInterval,
		DefaultLanguage:        cfg.Sync.DefaultLanguage,
	})
	a.controller = controller

	a.server = httpapi.NewServer(a.hub, controller,
		httpapi.WithAllowedOrigins(cfg.HTTP.AllowedOrigins),
		httpapi.WithSettings(settings),
		httpapi.WithGenerationQueue(a.queue),
		httpapi.WithCatalog(client),
		httpapi.WithUI(uiDir, uiDir != ""),
	)

	a.scheduler = icron.New()
	if a.store == nil {
		return nil
	}
	return a.scheduler.Add(pruneJob, cfg.Storage.MaintenanceCron, a.pruneAudio)
}

// stateStore is what settings and the subtitle text cache need from storage.
type stateStore interface {
	config.StateStore
	subtitle.TextCache
}

// pruneAudio drops cached clips that were not used within the retention window.
func (a *app) pruneAudio(ctx context.Context) error {
	removed, err := a.store.PruneAudio(ctx, time.Now().Add(-a.cfg.Storage.AudioRetention()))
	if err != nil {
		return err
	}
	count, size, err := a.store.AudioStats(ctx)
	if err != nil {
		return err
	}
	log.Info("pruned %d cached clips, %d left (%d bytes)", removed, count, size)
	return nil
}

func (a *app) run(ctx context.Context) error {
	defer a.close()

	a.queue.Start()
	a.scheduler.Start()

	go func() {
		if err := a.controller.Resume(ctx); err != nil {
			log.Warn("could not resume the previous dubbing session: %v", err)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening on %s", a.cfg.HTTP.Addr)
		serveErr <- a.server.ListenAndServe(a.cfg.HTTP.Addr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown: %v", err)
	}
	return nil
}

func (a *app) close() {
	if a.controller != nil {
		a.controller.Close()
	}
	if a.queue != nil {
		a.queue.Stop()
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Warn("close store: %v", err)
		}
	}
	if err := a.lock.Unlock(); err != nil {
		log.Warn("release lock: %v", err)
	}
}
