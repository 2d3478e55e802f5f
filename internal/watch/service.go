package watch

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// Debounce is the per-path coalescing window (default: 1s).
	Debounce time.Duration

	// Buffer is the capacity of the event channel (default: 64).
	Buffer int

	// Logger is used for structured logging.
	Logger *slog.Logger
}

// Service is the fsnotify-backed notifier. It owns the debouncer and emits
// coalesced raw events for paths inside registered scopes only.
type Service struct {
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	logger    *slog.Logger

	events chan RawEvent
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup

	mu     sync.RWMutex
	scopes []scope

	closeOnce sync.Once
	closeErr  error
}

type scope struct {
	path      string
	dir       bool
	recursive bool
}

// contains reports whether p lies inside the scope. Recursive scopes cover
// the whole subtree, a plain directory covers its direct entries and a file
// covers only itself.
func (s scope) contains(p string) bool {
	if p == s.path {
		return true
	}

	switch {
	case s.recursive:
		return strings.HasPrefix(p, s.path+string(filepath.Separator))
	case s.dir:
		return filepath.Dir(p) == s.path
	default:
		return false
	}
}

// NewService creates the underlying fsnotify watcher and starts forwarding.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	s := &Service{
		fsw:    fsw,
		logger: opts.Logger,
		events: make(chan RawEvent, opts.Buffer),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}
	s.debouncer = NewDebouncer(opts.Debounce, s.send)

	s.wg.Add(1)

	go s.forward()

	return s, nil
}

// Add starts watching path. Directories are watched recursively when
// recursive is set. A file is watched through its parent directory so that
// editors replacing it atomically keep producing events; events for sibling
// entries are filtered out. Add fails when path does not exist.
func (s *Service) Add(path string, recursive bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return err
	}

	sc := scope{path: abs, dir: info.IsDir(), recursive: recursive && info.IsDir()}

	switch {
	case sc.recursive:
		err = s.addRecursive(abs)
	case sc.dir:
		err = s.fsw.Add(abs)
	default:
		err = s.fsw.Add(filepath.Dir(abs))
	}

	if err != nil {
		return err
	}

	s.mu.Lock()
	s.scopes = append(s.scopes, sc)
	s.mu.Unlock()

	s.logger.Debug("watching", slog.String("path", abs), slog.Bool("recursive", sc.recursive))

	return nil
}

// Events returns the channel of debounced raw events. It is closed by Close.
func (s *Service) Events() <-chan RawEvent { return s.events }

// Errors returns the channel of notifier errors. It is closed by Close.
func (s *Service) Errors() <-chan error { return s.errors }

// WatchList returns the directories currently registered with fsnotify.
func (s *Service) WatchList() []string { return s.fsw.WatchList() }

// Close stops the notifier, drops pending events and closes both channels.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.fsw.Close()
		s.wg.Wait()
		s.debouncer.Stop()
		close(s.events)
		close(s.errors)
	})

	return s.closeErr
}

func (s *Service) forward() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return

		case event, ok := <-s.fsw.Events:
			if !ok {
				return
			}

			s.handle(event)

		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}

			select {
			case s.errors <- err:
			case <-s.done:
				return
			}
		}
	}
}

func (s *Service) handle(event fsnotify.Event) {
	ev := fromFsnotify(event)

	// A directory created inside a recursive scope is watched too.
	if ev.Op == OpCreate && s.inRecursiveScope(ev.Path) {
		if info, err := os.Stat(ev.Path); err == nil && info.IsDir() {
			if err := s.addRecursive(ev.Path); err != nil {
				s.logger.Warn("watching new directory failed",
					slog.String("path", ev.Path), slog.String("error", err.Error()))
			}
		}
	}

	if !s.inScope(ev.Path) {
		s.debouncer.Foreign(ev)
		return
	}

	s.debouncer.Trigger(ev)
}

func (s *Service) send(ev RawEvent) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Service) inScope(p string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sc := range s.scopes {
		if sc.contains(p) {
			return true
		}
	}

	return false
}

func (s *Service) inRecursiveScope(p string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sc := range s.scopes {
		if sc.recursive && sc.contains(p) {
			return true
		}
	}

	return false
}

// addRecursive walks root and adds all directories to the watcher. A
// symlinked root is walked through its target while the watches keep the
// path under root, so events carry the names the caller registered.
func (s *Service) addRecursive(root string) error {
	target, err := filepath.EvalSymlinks(root)
	if err != nil {
		return err
	}

	added := 0

	err = filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(target, path)
		if err != nil {
			return err
		}

		if err := s.fsw.Add(filepath.Join(root, rel)); err != nil {
			return err
		}

		added++

		return nil
	})
	if err != nil {
		return err
	}

	if added == 0 {
		return fmt.Errorf("no directory to watch under %s", root)
	}

	return nil
}
