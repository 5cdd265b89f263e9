package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/avatls/internal/config"
	"github.com/vyrodovalexey/avatls/internal/observability"
	"github.com/vyrodovalexey/avatls/internal/tlsconfig"
	avatls "github.com/vyrodovalexey/avatls/internal/tls"
)

const fileStoreName = "file"

// WithDebounceDelay sets how long the file store waits after the last
// change event before reloading. Non-positive values keep the default.
func WithDebounceDelay(delay time.Duration) Option {
	return func(o *options) {
		if delay > 0 {
			o.debounce = delay
		}
	}
}

// WithReloadCallback sets a function called after every reload attempt
// triggered by Watch, with the reload error if any.
func WithReloadCallback(fn func(error)) Option {
	return func(o *options) {
		o.onReload = fn
	}
}

// ParseDocument substitutes environment variables in data and parses it as
// a YAML Document.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal([]byte(config.SubstituteEnvVars(string(data))), &doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return doc, nil
}

// FileStore serves named configurations from a YAML file. A failed reload
// keeps serving the last good document.
type FileStore struct {
	path string
	opts options
	data *Static

	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewFileStore loads path and returns a store serving it.
func NewFileStore(path string, opts ...Option) (*FileStore, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	s := &FileStore{
		path: absPath,
		opts: newOptions(opts),
		data: &Static{},
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the absolute path of the served file.
func (s *FileStore) Path() string {
	return s.path
}

// Reload reads and parses the file again.
func (s *FileStore) Reload() error {
	data, err := os.ReadFile(s.path) //nolint:gosec // path is validated via filepath.Abs
	if err != nil {
		return fmt.Errorf("failed to read store file %s: %w", s.path, err)
	}

	doc, err := ParseDocument(data)
	if err != nil {
		return fmt.Errorf("store file %s: %w", s.path, err)
	}

	s.data.Replace(doc)
	s.opts.logger.Info("tls configuration store loaded",
		observability.String("path", s.path),
		observability.Int("aliases", len(doc.Aliases)),
	)
	return nil
}

// GetProperties returns the bag for alias and dir from the current document.
func (s *FileStore) GetProperties(ctx context.Context, alias string, dir tlsconfig.Direction) (tlsconfig.Properties, error) {
	p, err := s.data.GetProperties(ctx, alias, dir)
	s.record(p)
	return p, err
}

// GetDefaultProperties returns the default bag from the current document.
func (s *FileStore) GetDefaultProperties(ctx context.Context) (tlsconfig.Properties, error) {
	p, err := s.data.GetDefaultProperties(ctx)
	s.record(p)
	return p, err
}

func (s *FileStore) record(p tlsconfig.Properties) {
	if p == nil {
		s.opts.metrics.RecordStoreOperation(fileStoreName, avatls.StoreMiss)
		return
	}
	s.opts.metrics.RecordStoreOperation(fileStoreName, avatls.StoreHit)
}

// Watch reloads the file whenever it changes until ctx is done or the store
// is closed. The parent directory is watched so that editors replacing the
// file are noticed.
func (s *FileStore) Watch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		_ = w.Close()
		return err
	}

	s.watcher = w
	s.stopCh = make(chan struct{})
	s.stoppedCh = make(chan struct{})

	s.opts.logger.Info("started watching tls configuration store",
		observability.String("path", s.path),
	)

	go s.watch(ctx, w, s.stopCh, s.stoppedCh)
	return nil
}

func (s *FileStore) watch(ctx context.Context, w *fsnotify.Watcher, stopCh <-chan struct{}, stoppedCh chan<- struct{}) {
	defer close(stoppedCh)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			s.opts.logger.Info("store watcher stopped due to context cancellation")
			return

		case <-stopCh:
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(s.opts.debounce)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			debounceCh = nil
			err := s.Reload()
			if err != nil {
				s.opts.logger.Error("failed to reload tls configuration store",
					observability.String("path", s.path),
					observability.Error(err),
				)
			}
			if s.opts.onReload != nil {
				s.opts.onReload(err)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.opts.logger.Error("store watcher error", observability.Error(err))
		}
	}
}

// Close stops watching, if Watch was called.
func (s *FileStore) Close() error {
	s.mu.Lock()
	w, stopCh, stoppedCh := s.watcher, s.stopCh, s.stoppedCh
	s.watcher = nil
	s.mu.Unlock()

	if w == nil {
		return nil
	}
	close(stopCh)
	<-stoppedCh
	return w.Close()
}
