package media

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/splice/internal/logging"
)

// Watcher ingests media files dropped into a directory. Each new file is
// probed after it has been quiet for the debounce delay, so partially
// copied files are not picked up.
type Watcher struct {
	dir      string
	registry *Registry
	prober   *Prober
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	seen    map[string]struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewWatcher starts watching dir. Files already present are ingested
// immediately.
func NewWatcher(logger zerolog.Logger, dir string, reg *Registry, prober *Prober, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		dir:      dir,
		registry: reg,
		prober:   prober,
		logger:   logging.WithComponent(logger, "watcher").With().Str("dir", dir).Logger(),
		watcher:  fsw,
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
		seen:     make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.Close()
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.ingest(filepath.Join(dir, e.Name()))
		}
	}

	w.wg.Add(1)
	go w.run()

	return w, nil
}

// Close stops the watcher and cancels pending ingests.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.cancel()

		w.mu.Lock()
		for path, t := range w.pending {
			t.Stop()
			delete(w.pending, path)
		}
		w.mu.Unlock()

		w.closeErr = w.watcher.Close()
		w.wg.Wait()
	})
	return w.closeErr
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.schedule(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("watcher error")
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Watcher) schedule(path string) {
	if _, ok := KindFromPath(path); !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctx.Err() != nil {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.ingest(path)
	})
}

func (w *Watcher) ingest(path string) {
	if _, ok := KindFromPath(path); !ok {
		return
	}

	w.mu.Lock()
	if _, dup := w.seen[path]; dup {
		w.mu.Unlock()
		return
	}
	w.seen[path] = struct{}{}
	w.mu.Unlock()

	asset, err := IngestFile(w.ctx, w.registry, w.prober, path)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", path).Msg("ingest failed")
		w.mu.Lock()
		delete(w.seen, path)
		w.mu.Unlock()
		return
	}

	w.logger.Info().
		Str("asset", asset.ID).
		Str("kind", string(asset.Kind)).
		Str("name", asset.DisplayName).
		Dur("duration", asset.Duration).
		Msg("asset ingested")
}
