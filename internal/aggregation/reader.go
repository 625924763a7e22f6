package aggregation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrNotComputed means no aggregation run has produced an artifact yet.
var ErrNotComputed = errors.New("metrics not yet computed")

// Reader serves the latest artifact bytes verbatim.
type Reader struct {
	path   string
	logger *zap.Logger

	mu       sync.RWMutex
	cached   []byte
	gen      uint64
	watching bool
}

// NewReader returns a reader for the artifact at path.
func NewReader(path string, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{path: filepath.Clean(path), logger: logger}
}

// Latest returns the artifact contents, or ErrNotComputed if it does not exist.
// Bytes are cached only while Watch is running to invalidate them.
func (r *Reader) Latest(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	if r.cached != nil {
		data := r.cached
		r.mu.RUnlock()
		return data, nil
	}
	gen := r.gen
	r.mu.RUnlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotComputed
		}
		return nil, fmt.Errorf("read metrics artifact: %w", err)
	}

	r.mu.Lock()
	if r.watching && r.gen == gen {
		r.cached = data
	}
	r.mu.Unlock()
	return data, nil
}

// Invalidate drops the cached artifact.
func (r *Reader) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.gen++
	r.mu.Unlock()
}

// Watch observes the artifact directory and invalidates the cache whenever
// the artifact changes. It blocks until ctx is done.
func (r *Reader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	r.mu.Lock()
	r.watching = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.watching = false
		r.mu.Unlock()
		r.Invalidate()
	}()

	r.logger.Info("watching metrics artifact", zap.String("path", r.path))
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			r.Invalidate()
			r.logger.Debug("metrics artifact changed", zap.String("op", event.Op.String()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.Invalidate()
			r.logger.Warn("metrics watcher error", zap.Error(err))
		}
	}
}
