// Package scanner walks a library subtree and turns classification results
// into a plan of pending operations.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Nomadcxx/embress/internal/logging"
	"github.com/Nomadcxx/embress/internal/media"
	"github.com/Nomadcxx/embress/internal/pathcmp"
	"github.com/Nomadcxx/embress/internal/transfer"
	"golang.org/x/sync/errgroup"
)

// ErrOutsideRoot is returned when a scan scope is not inside the library root.
var ErrOutsideRoot = errors.New("path is outside the library root")

// DefaultWorkers is the number of directories read in parallel.
const DefaultWorkers = 4

// Warning is a scan-level problem that did not stop the walk.
type Warning struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

// Plan is the result of a scan. Operations is ordered by execution phase
// and then by path.
type Plan struct {
	Root       string                 `json:"root"`
	Scope      string                 `json:"scope"`
	Operations []media.ClassifiedFile `json:"operations"`
	Unrenamed  []media.ClassifiedFile `json:"unrenamed"`
	Kinds      map[media.Kind]int     `json:"kinds"`
	Files      int                    `json:"files"`
	Correct    int                    `json:"correct"`
	Skipped    int                    `json:"skipped"`
	Ignored    int                    `json:"ignored"`
	Warnings   []Warning              `json:"warnings,omitempty"`
	Duration   time.Duration          `json:"duration"`
}

// OperationCounts returns the number of pending operations of each type.
func (p *Plan) OperationCounts() map[media.Operation]int {
	counts := make(map[media.Operation]int)
	for _, cf := range p.Operations {
		counts[cf.Operation]++
	}
	return counts
}

// Empty reports whether the plan has nothing to apply.
func (p *Plan) Empty() bool {
	return len(p.Operations) == 0
}

// Config holds scanner settings.
type Config struct {
	FS      *transfer.FS
	Workers int
	Logger  *logging.Logger
}

// Scanner produces plans. It holds no per-scan state and may be shared.
type Scanner struct {
	fs      *transfer.FS
	workers int
	logger  *logging.Logger
}

// New creates a Scanner.
func New(cfg Config) *Scanner {
	s := &Scanner{fs: cfg.FS, workers: cfg.Workers, logger: cfg.Logger}
	if s.fs == nil {
		s.fs = transfer.New(transfer.DefaultTimeout)
	}
	if s.workers <= 0 {
		s.workers = DefaultWorkers
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	return s
}

// ResolveScope validates a scan scope against root. An empty scope means
// the whole library.
func ResolveScope(root, scope string) (string, error) {
	root = pathcmp.Clean(root)
	if strings.TrimSpace(scope) == "" {
		return root, nil
	}
	if !filepath.IsAbs(scope) {
		scope = filepath.Join(root, scope)
	}
	scope = pathcmp.Clean(scope)
	if !pathcmp.Within(scope, root) {
		return "", fmt.Errorf("%s: %w", scope, ErrOutsideRoot)
	}
	return scope, nil
}

type dirResult struct {
	files   []media.ClassifiedFile
	subdirs []string
	warning *Warning
}

// Scan walks scope (the library root or a path inside it) and classifies
// every regular file. Directories are read level by level with up to
// Workers reads in flight. Unreadable directories become warnings. The
// walk stops between directories when ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, c *media.Classifier, scope string) (*Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	root := c.Root()
	scope, err := ResolveScope(root, scope)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Root: root, Scope: scope, Kinds: make(map[media.Kind]int)}

	info, err := s.fs.Stat(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", scope, err)
	}

	// Conflicts are resolved across the whole show so that a sub-path scan
	// plans exactly what a full scan would for the same files.
	dir := scope
	if !info.IsDir() {
		dir = filepath.Dir(scope)
	}
	var files []media.ClassifiedFile
	switch show, located := c.ShowDir(dir); {
	case located:
		files, plan.Warnings, err = s.walk(ctx, c, show)
	case !info.IsDir():
		files, err = s.scanFile(ctx, c, scope)
	default:
		files, plan.Warnings, err = s.walk(ctx, c, scope)
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		for _, w := range plan.Warnings {
			if pathcmp.Equal(w.Path, dir) {
				return nil, fmt.Errorf("scan %s: %s", scope, w.Error)
			}
		}
	}

	resolveConflicts(files)
	plan.Warnings = warningsIn(plan.Warnings, scope)
	plan.add(filesIn(files, scope, info.IsDir()))
	plan.Duration = time.Since(start)

	s.logger.Info("scanner", "Scan complete",
		logging.F("scope", scope),
		logging.F("files", plan.Files),
		logging.F("operations", len(plan.Operations)),
		logging.F("unrenamed", len(plan.Unrenamed)),
		logging.F("warnings", len(plan.Warnings)),
		logging.F("duration_ms", plan.Duration.Milliseconds()))
	return plan, nil
}

// scanFile classifies a file that lies outside any show directory together
// with its siblings.
func (s *Scanner) scanFile(ctx context.Context, c *media.Classifier, path string) ([]media.ClassifiedFile, error) {
	res, err := s.readDir(ctx, c, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	if res.warning != nil {
		return nil, fmt.Errorf("scan %s: %s", path, res.warning.Error)
	}
	return res.files, nil
}

// filesIn keeps the results that belong to scope. A file scope keeps the
// file and anything paired with it.
func filesIn(files []media.ClassifiedFile, scope string, isDir bool) []media.ClassifiedFile {
	var kept []media.ClassifiedFile
	for _, cf := range files {
		switch {
		case isDir && pathcmp.Within(cf.Path, scope):
		case !isDir && (pathcmp.Equal(cf.Path, scope) || (cf.Video != "" && pathcmp.Equal(cf.Video, scope))):
		default:
			continue
		}
		kept = append(kept, cf)
	}
	return kept
}

func warningsIn(warnings []Warning, scope string) []Warning {
	var kept []Warning
	for _, w := range warnings {
		if pathcmp.Within(w.Path, scope) {
			kept = append(kept, w)
		}
	}
	return kept
}

func (s *Scanner) walk(ctx context.Context, c *media.Classifier, scope string) ([]media.ClassifiedFile, []Warning, error) {
	var (
		files    []media.ClassifiedFile
		warnings []Warning
		mu       sync.Mutex
	)

	level := []string{scope}
	for len(level) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.workers)

		var next []string
		for _, dir := range level {
			dir := dir
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, err := s.readDir(gctx, c, dir)
				if err != nil {
					return err
				}
				mu.Lock()
				defer mu.Unlock()
				files = append(files, res.files...)
				next = append(next, res.subdirs...)
				if res.warning != nil {
					warnings = append(warnings, *res.warning)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
		sort.Strings(next)
		level = next
	}

	sort.Slice(warnings, func(i, j int) bool { return warnings[i].Path < warnings[j].Path })
	return files, warnings, nil
}

// readDir lists and classifies one directory. Only cancellation is
// returned as an error; filesystem failures become a warning.
func (s *Scanner) readDir(ctx context.Context, c *media.Classifier, dir string) (dirResult, error) {
	entries, err := s.fs.ReadDir(ctx, dir)
	if err != nil {
		if ctx.Err() != nil {
			return dirResult{}, ctx.Err()
		}
		s.logger.Warn("scanner", "Directory inaccessible during scan",
			logging.F("path", dir),
			logging.F("error", err.Error()))
		return dirResult{warning: &Warning{
			Path:   dir,
			Reason: transfer.ErrorReason(err),
			Error:  err.Error(),
		}}, nil
	}

	var (
		res   dirResult
		names []string
	)
	wl := c.Whitelist()
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(dir, name)
		switch {
		case e.IsDir():
			if strings.HasPrefix(name, ".") || wl.IsExcluded(path) {
				continue
			}
			res.subdirs = append(res.subdirs, path)
		case e.Type().IsRegular():
			names = append(names, name)
		case e.Type()&os.ModeSymlink != 0:
			s.logger.Debug("scanner", "Skipping symlink", logging.F("path", path))
		}
	}

	if len(names) > 0 {
		res.files = c.ClassifyDir(dir, names)
	}
	return res, nil
}

// resolveConflicts demotes pending files that would land on the same
// target as another file in the plan, or on a file already correctly
// named. Sidecars and nfo files follow their demoted video.
func resolveConflicts(files []media.ClassifiedFile) {
	claims := make(map[string][]int)
	occupied := make(map[string]string)
	for i, cf := range files {
		switch cf.Status {
		case media.StatusPending:
			if cf.Target != "" {
				key := pathcmp.Normalize(cf.Target)
				claims[key] = append(claims[key], i)
			}
		case media.StatusCorrect:
			occupied[pathcmp.Normalize(cf.Path)] = cf.Path
		}
	}

	demoted := make(map[string]bool)
	for key, idx := range claims {
		if holder, ok := occupied[key]; ok {
			for _, i := range idx {
				demote(&files[i], fmt.Sprintf("target already exists: %s", holder))
				demoted[files[i].Path] = true
			}
			continue
		}
		if len(idx) < 2 {
			continue
		}
		for _, i := range idx {
			demote(&files[i], fmt.Sprintf("%d files map to %s", len(idx), files[i].Target))
			demoted[files[i].Path] = true
		}
	}
	if len(demoted) == 0 {
		return
	}

	for i := range files {
		cf := &files[i]
		if cf.Video == "" || !demoted[cf.Video] || cf.Status != media.StatusPending {
			continue
		}
		if cf.Kind == media.KindNFO {
			cf.Status, cf.Operation, cf.Reason = media.StatusIgnored, 0, "video left in place"
			continue
		}
		demote(cf, "paired video is unrenamed")
	}
}

func demote(cf *media.ClassifiedFile, reason string) {
	cf.Status = media.StatusUnrenamed
	cf.Target = ""
	cf.Reason = reason
}

func (p *Plan) add(files []media.ClassifiedFile) {
	for _, cf := range files {
		p.Files++
		p.Kinds[cf.Kind]++
		switch cf.Status {
		case media.StatusPending:
			p.Operations = append(p.Operations, cf)
		case media.StatusUnrenamed:
			p.Unrenamed = append(p.Unrenamed, cf)
		case media.StatusCorrect:
			p.Correct++
		case media.StatusSkipped:
			p.Skipped++
		default:
			p.Ignored++
		}
	}

	sort.SliceStable(p.Operations, func(i, j int) bool {
		a, b := p.Operations[i], p.Operations[j]
		if a.Operation.Phase() != b.Operation.Phase() {
			return a.Operation.Phase() < b.Operation.Phase()
		}
		return a.Path < b.Path
	})
	sort.Slice(p.Unrenamed, func(i, j int) bool { return p.Unrenamed[i].Path < p.Unrenamed[j].Path })
}
