package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"courier/internal/domain"
)

// FileStore keeps the session in a JSON file readable only by the agent user.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the session file path.
func (s *FileStore) Path() string { return s.path }

// Load implements Store.
func (s *FileStore) Load(context.Context) (*domain.AuthCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("read credential file: %w", err)
	}

	var cred domain.AuthCredential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("decode credential file: %w", err)
	}
	if cred.AccessToken == "" {
		return nil, ErrNoCredential
	}
	return &cred, nil
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(_ context.Context, cred *domain.AuthCredential) error {
	if cred == nil || cred.AccessToken == "" {
		return errors.New("refusing to save an empty credential")
	}
	FillExpiry(cred)

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("create temp credential file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write credential: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod credential: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credential: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

// Clear implements Store.
func (s *FileStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}

// Watcher reports session presence edges when the credential file is created
// or removed by another process (for example a UI shell logging the driver out).
type Watcher struct {
	store    *FileStore
	logger   zerolog.Logger
	onChange func(present bool)
	ready    chan struct{}
	once     sync.Once
}

// NewWatcher creates a watcher calling onChange on every presence edge.
func NewWatcher(store *FileStore, logger zerolog.Logger, onChange func(present bool)) *Watcher {
	return &Watcher{store: store, logger: logger, onChange: onChange, ready: make(chan struct{})}
}

// Ready is closed once the first Serve call is watching the directory.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Serve watches until ctx is done.
func (w *Watcher) Serve(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.store.Path())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	present := w.present(ctx)
	w.once.Do(func() { close(w.ready) })
	name := filepath.Clean(w.store.Path())

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			now := w.present(ctx)
			if now == present {
				continue
			}
			present = now
			w.logger.Info().Bool("present", present).Str("op", event.Op.String()).Msg("[CREDENTIALS] Session file changed")
			w.onChange(present)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("[CREDENTIALS] Watcher error")
		}
	}
}

func (w *Watcher) String() string { return "credential-watcher" }

func (w *Watcher) present(ctx context.Context) bool {
	_, err := w.store.Load(ctx)
	return err == nil
}
