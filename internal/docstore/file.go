package docstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/integrationgw/internal/observability"
)

// defaultDebounceDelay coalesces editor write bursts into one reload.
const defaultDebounceDelay = 100 * time.Millisecond

// documentFile is the on-disk layout read by LoadDocuments.
type documentFile struct {
	Configurations []Document `yaml:"configurations"`
}

// LoadDocuments reads configuration documents from a YAML file:
//
//	configurations:
//	  - name: IntegrationServices
//	    value:
//	      - name: CORREIOS
//	        address: https://example.org/cep/{cep}
func LoadDocuments(path string) ([]Document, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read documents file %s: %w", path, err)
	}

	var f documentFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse documents file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(f.Configurations))
	for i, doc := range f.Configurations {
		if doc.Name == "" {
			return nil, fmt.Errorf("documents file %s: entry %d has no name", path, i)
		}
		if seen[doc.Name] {
			return nil, fmt.Errorf("documents file %s: duplicate document %q", path, doc.Name)
		}
		seen[doc.Name] = true
	}

	return f.Configurations, nil
}

// FileStore serves documents loaded from a YAML file. Audit records are
// kept in memory only. With watching enabled the file is reloaded whenever
// it changes; a reload that fails keeps the previous documents.
type FileStore struct {
	*MemoryStore

	path          string
	logger        observability.Logger
	debounceDelay time.Duration
	onReload      func(error)

	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	stoppedCh chan struct{}
	closeOnce sync.Once
}

var _ Store = (*FileStore)(nil)

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithFileLogger sets the logger.
func WithFileLogger(logger observability.Logger) FileOption {
	return func(s *FileStore) {
		s.logger = logger
	}
}

// WithDebounceDelay sets how long the watcher waits for writes to settle.
func WithDebounceDelay(delay time.Duration) FileOption {
	return func(s *FileStore) {
		s.debounceDelay = delay
	}
}

// WithReloadCallback registers fn to run after every reload attempt with
// its error, nil on success.
func WithReloadCallback(fn func(error)) FileOption {
	return func(s *FileStore) {
		s.onReload = fn
	}
}

// NewFileStore loads path and, when watch is set, starts watching it.
func NewFileStore(path string, watch bool, opts ...FileOption) (*FileStore, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	docs, err := LoadDocuments(absPath)
	if err != nil {
		return nil, err
	}

	s := &FileStore{
		MemoryStore:   NewMemoryStore(docs...),
		path:          absPath,
		logger:        observability.NopLogger(),
		debounceDelay: defaultDebounceDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(observability.Component("docstore.file"))

	s.logger.Info("document file loaded",
		observability.String("path", absPath),
		observability.Int("documents", len(docs)))

	if watch {
		if err := s.startWatching(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *FileStore) startWatching() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory so that atomic renames by editors are seen.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", s.path, err)
	}

	s.watcher = w
	s.stopCh = make(chan struct{})
	s.stoppedCh = make(chan struct{})
	go s.watch()

	return nil
}

func (s *FileStore) watch() {
	defer close(s.stoppedCh)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-s.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(s.debounceDelay)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			debounceCh = nil
			s.reload()

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("document file watcher error", observability.Error(err))
		}
	}
}

func (s *FileStore) reload() {
	docs, err := LoadDocuments(s.path)
	if err != nil {
		s.logger.Error("document file reload failed, keeping previous documents",
			observability.String("path", s.path),
			observability.Error(err))
	} else {
		s.Replace(docs)
		s.logger.Info("document file reloaded",
			observability.String("path", s.path),
			observability.Int("documents", len(docs)))
	}

	if s.onReload != nil {
		s.onReload(err)
	}
}

// PutDocument implements Store. Documents written at runtime live in memory
// and are discarded by the next reload.
func (s *FileStore) PutDocument(ctx context.Context, doc *Document) error {
	return s.MemoryStore.PutDocument(ctx, doc)
}

// Ping implements Store.
func (s *FileStore) Ping(context.Context) error {
	if _, err := os.Stat(s.path); err != nil {
		return fmt.Errorf("document file unavailable: %w", err)
	}
	return nil
}

// Close stops the watcher.
func (s *FileStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.watcher == nil {
			return
		}
		close(s.stopCh)
		<-s.stoppedCh
		err = s.watcher.Close()
	})
	return err
}
