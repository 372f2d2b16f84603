package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Nomadcxx/embress/internal/coordinator"
	"github.com/Nomadcxx/embress/internal/database"
	"github.com/Nomadcxx/embress/internal/logging"
	"github.com/Nomadcxx/embress/internal/media"
	"github.com/Nomadcxx/embress/internal/pathcmp"
)

// Scanner runs sub-path scans.
type Scanner interface {
	Scan(ctx context.Context, req coordinator.ScanRequest) (*coordinator.ScanResult, error)
}

// ScanTrigger collects events per show directory and scans that directory
// once it has been quiet for the debounce period. A busy coordinator
// pushes the scan back by another debounce period.
type ScanTrigger struct {
	scanner  Scanner
	layout   media.Layout
	ext      media.Extensions
	debounce time.Duration
	logger   *logging.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	written map[string]time.Time
	closed  bool
	wg      sync.WaitGroup
}

// TriggerConfig configures a ScanTrigger.
type TriggerConfig struct {
	Scanner    Scanner
	Layout     media.Layout
	Extensions media.Extensions
	Debounce   time.Duration
	Logger     *logging.Logger
}

// NewScanTrigger creates a ScanTrigger.
func NewScanTrigger(cfg TriggerConfig) *ScanTrigger {
	t := &ScanTrigger{
		scanner:  cfg.Scanner,
		layout:   cfg.Layout,
		ext:      cfg.Extensions,
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
		pending:  make(map[string]*time.Timer),
		written:  make(map[string]time.Time),
	}
	if t.debounce <= 0 {
		t.debounce = 10 * time.Second
	}
	if t.logger == nil {
		t.logger = logging.Nop()
	}
	return t
}

// writeWindow is how long events for paths passed to IgnoreWrites are dropped.
const writeWindow = 5 * time.Minute

// IgnoreWrites drops events for paths (and their directories) that a run is
// about to create, so renames and restores do not trigger another scan.
func (t *ScanTrigger) IgnoreWrites(paths []string) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for p, until := range t.written {
		if now.After(until) {
			delete(t.written, p)
		}
	}
	for _, p := range paths {
		t.written[pathcmp.Normalize(p)] = now.Add(writeWindow)
		t.written[pathcmp.Normalize(filepath.Dir(p))] = now.Add(writeWindow)
	}
}

func (t *ScanTrigger) selfWritten(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	until, ok := t.written[pathcmp.Normalize(path)]
	return ok && time.Now().Before(until)
}

// IsMediaFile reports whether path has an extension the classifier handles.
func (t *ScanTrigger) IsMediaFile(path string) bool {
	return t.ext.Known(filepath.Ext(path))
}

// HandleFileEvent schedules a scan of the show directory containing the
// event's path. Deletes, paths outside a show directory and paths a run
// just wrote are ignored.
func (t *ScanTrigger) HandleFileEvent(event FileEvent) error {
	if event.Type == EventDelete || isHidden(event.Path) || t.selfWritten(event.Path) {
		return nil
	}
	dir := event.Path
	if t.IsMediaFile(event.Path) {
		dir = filepath.Dir(event.Path)
	}
	loc, ok := t.layout.Locate(dir)
	if !ok {
		return nil
	}
	t.schedule(loc.ShowDir)
	return nil
}

func (t *ScanTrigger) schedule(showDir string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	if timer, exists := t.pending[showDir]; exists {
		timer.Stop()
		delete(t.pending, showDir)
	}
	t.pending[showDir] = time.AfterFunc(t.debounce, func() {
		t.fire(showDir)
	})
}

// Pending returns the show directories waiting for their debounce to expire.
func (t *ScanTrigger) Pending() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	dirs := make([]string, 0, len(t.pending))
	for dir := range t.pending {
		dirs = append(dirs, dir)
	}
	return dirs
}

func (t *ScanTrigger) fire(showDir string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	delete(t.pending, showDir)
	t.wg.Add(1)
	t.mu.Unlock()
	defer t.wg.Done()

	res, err := t.scanner.Scan(context.Background(), coordinator.ScanRequest{
		Trigger: database.TriggerWatch,
		Path:    showDir,
	})
	switch {
	case errors.Is(err, coordinator.ErrBusy):
		t.logger.Debug("watcher", "Coordinator busy, retrying later", logging.F("path", showDir))
		t.schedule(showDir)
	case err != nil:
		t.logger.Error("watcher", "Triggered scan failed", err, logging.F("path", showDir))
	default:
		t.logger.Info("watcher", "Triggered scan finished",
			logging.F("path", showDir),
			logging.F("outcome", string(res.Outcome)),
			logging.F("applied", len(res.Applied)),
			logging.F("unrenamed", len(res.Unrenamed)))
	}
}

// Shutdown stops pending timers and waits for a triggered scan in progress.
func (t *ScanTrigger) Shutdown() {
	t.mu.Lock()
	t.closed = true
	for dir, timer := range t.pending {
		timer.Stop()
		delete(t.pending, dir)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

// WatchRoots returns the library section directories to watch: every
// visible directory directly under the library root.
func WatchRoots(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var roots []string
	for _, e := range entries {
		if e.IsDir() && !isHidden(e.Name()) {
			roots = append(roots, filepath.Join(root, e.Name()))
		}
	}
	return roots, nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
