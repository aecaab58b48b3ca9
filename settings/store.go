package settings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ErrUnknownKey is returned by Get and Set for paths that name no setting.
var ErrUnknownKey = errors.New("settings: unknown key")

// DefaultPath returns $XDG_CONFIG_HOME/oxbot/config.yaml, falling back to
// the platform config directory.
func DefaultPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		if dir, err = os.UserConfigDir(); err != nil {
			return "", fmt.Errorf("locate config directory: %w", err)
		}
	}
	return filepath.Join(dir, "oxbot", "config.yaml"), nil
}

// Store loads, edits and saves a settings file.
type Store struct {
	path     string
	logger   *slog.Logger
	debounce time.Duration

	mu sync.RWMutex
	// doc is the file as written, merged over the defaults, with ${VAR}
	// references intact. settings is doc with the environment applied.
	doc      map[string]any
	settings Settings
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDebounce sets how long Watch waits for writes to settle.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// Open creates a store for path and loads it. A missing file yields the
// defaults.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings path is required")
	}
	s := &Store{
		path:     path,
		logger:   slog.New(slog.DiscardHandler),
		debounce: 250 * time.Millisecond,
		settings: Defaults(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the settings file location.
func (s *Store) Path() string { return s.path }

// Settings returns a copy of the current settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Features returns the feature toggles.
func (s *Store) Features() Features {
	return s.Settings().Features
}

// Load rereads the file, merging it over the defaults. ${VAR} references
// are expanded from the environment into the runtime settings only; Save
// writes them back unexpanded.
func (s *Store) Load() error {
	base, err := toRaw(Defaults())
	if err != nil {
		return err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.doc = base
		s.settings = Defaults()
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}

	raw, err := parseRaw(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}
	doc := mergeMaps(base, raw)
	settings, err := resolve(doc)
	if err != nil {
		return fmt.Errorf("invalid settings in %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.doc = doc
	s.settings = settings
	s.mu.Unlock()
	return nil
}

// Save writes the settings as loaded or edited, with ${VAR} references
// intact. The file is replaced atomically and is readable only by the owner
// since it may hold credentials.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := yaml.Marshal(s.doc)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save settings: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("save settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Update applies fn to a copy of the stored document and keeps the result if
// it validates. fn sees ${VAR} references unexpanded.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fromRaw(copyMap(s.doc))
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	fn(&next)
	doc, err := toRaw(next)
	if err != nil {
		return err
	}
	settings, err := resolve(doc)
	if err != nil {
		return err
	}
	s.doc = doc
	s.settings = settings
	return nil
}

// Get returns the value at a dotted path such as "features.auto_run".
func (s *Store) Get(path string) (any, error) {
	raw, err := toRaw(s.Settings())
	if err != nil {
		return nil, err
	}
	var cur any = raw
	for _, key := range splitPath(path) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKey, path)
		}
		if cur, ok = m[key]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKey, path)
		}
	}
	return cur, nil
}

// Set parses value as a YAML scalar and stores it at a dotted path. The
// result must still validate.
func (s *Store) Set(path, value string) error {
	keys := splitPath(path)
	if len(keys) == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownKey, path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	raw := copyMap(s.doc)

	m := raw
	for _, key := range keys[:len(keys)-1] {
		next, ok := m[key].(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownKey, path)
		}
		m = next
	}
	last := keys[len(keys)-1]
	if existing, ok := m[last]; ok {
		if _, isMap := existing.(map[string]any); isMap {
			return fmt.Errorf("settings: %s is a section, not a value", path)
		}
	}
	m[last] = parseScalar(value)

	settings, err := resolve(raw)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %s", ErrUnknownKey, path)
		}
		return fmt.Errorf("settings: %s: %w", path, err)
	}
	s.doc = raw
	s.settings = settings
	return nil
}

// Watch reloads the file whenever it changes and calls fn with the new
// settings. It returns once the watcher is running; the watcher stops when
// ctx is done. Reload errors are logged and the previous settings kept.
func (s *Store) Watch(ctx context.Context, fn func(Settings)) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("watch settings: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch settings: %w", err)
	}
	// Watch the directory: editors and Save replace the file by rename.
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch settings: %w", err)
	}

	go s.watchLoop(ctx, watcher, fn)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, fn func(Settings)) {
	defer watcher.Close()
	name := filepath.Clean(s.path)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("settings watcher error", "error", err)
		case <-fire:
			fire = nil
			if err := s.Load(); err != nil {
				s.logger.Warn("settings reload failed, keeping previous settings", "path", s.path, "error", err)
				continue
			}
			s.logger.Info("settings reloaded", "path", s.path)
			if fn != nil {
				fn(s.Settings())
			}
		}
	}
}

func splitPath(path string) []string {
	path = strings.Trim(strings.TrimSpace(path), ".")
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// parseScalar interprets value the way YAML would, so "true" becomes a bool
// and "42" an int. Anything that is not a scalar stays a string.
func parseScalar(value string) any {
	var v any
	if err := yaml.Unmarshal([]byte(value), &v); err != nil {
		return value
	}
	switch v.(type) {
	case nil, map[string]any, []any:
		return value
	}
	return v
}

func parseRaw(data []byte) (map[string]any, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("expected a single YAML document")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func toRaw(s Settings) (map[string]any, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return raw, nil
}

func fromRaw(raw map[string]any) (Settings, error) {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return Settings{}, err
	}
	var s Settings
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// resolve expands ${VAR} references in doc and decodes the result.
func resolve(doc map[string]any) (Settings, error) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return Settings{}, fmt.Errorf("encode settings: %w", err)
	}
	raw, err := parseRaw([]byte(os.ExpandEnv(string(data))))
	if err != nil {
		return Settings{}, err
	}
	settings, err := fromRaw(raw)
	if err != nil {
		return Settings{}, err
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for key, value := range src {
		if m, ok := value.(map[string]any); ok {
			value = copyMap(m)
		}
		dst[key] = value
	}
	return dst
}

func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		if valueMap, ok := value.(map[string]any); ok {
			if existing, ok := dst[key].(map[string]any); ok {
				dst[key] = mergeMaps(existing, valueMap)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}
