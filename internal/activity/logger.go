// Package activity keeps an append-only JSONL audit trail of every
// filesystem operation attempted, including the ones that failed.
package activity

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Phase tells whether an entry came from applying a plan or undoing it.
type Phase string

const (
	PhaseApply    Phase = "apply"
	PhaseRollback Phase = "rollback"
)

// Entry is one attempted filesystem operation, successful or not.
type Entry struct {
	Timestamp  time.Time `json:"ts"`
	RunID      string    `json:"run_id,omitempty"`
	Phase      Phase     `json:"phase"`
	Action     string    `json:"action"`
	Source     string    `json:"source"`
	Target     string    `json:"target,omitempty"`
	Show       string    `json:"show,omitempty"`
	MediaType  string    `json:"media_type,omitempty"`
	Season     string    `json:"season,omitempty"`
	RecordID   int64     `json:"record_id,omitempty"`
	Success    bool      `json:"success"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Error      string    `json:"error,omitempty"`
}

const (
	filePrefix = "activity-"
	fileSuffix = ".jsonl"
	dayLayout  = "2006-01-02"
)

// Logger writes one JSONL file per day. Entries of a run that crosses
// midnight are split across two files.
type Logger struct {
	mu      sync.Mutex
	logDir  string
	file    *os.File
	fileDay string
}

// NewLogger writes daily JSONL files to logDir.
func NewLogger(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, err
	}
	return &Logger{logDir: logDir}, nil
}

func fileName(day string) string {
	return filePrefix + day + fileSuffix
}

// dayOf parses the date out of an activity file name.
func dayOf(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return time.Time{}, false
	}
	day, err := time.Parse(dayLayout, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// Log appends entry to today's file. A nil Logger discards the entry.
func (l *Logger) Log(entry Entry) error {
	if l == nil {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if day := entry.Timestamp.Format(dayLayout); day != l.fileDay || l.file == nil {
		if err := l.openDay(day); err != nil {
			return err
		}
	}
	_, err = l.file.Write(append(line, '\n'))
	return err
}

func (l *Logger) openDay(day string) error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	f, err := os.OpenFile(filepath.Join(l.logDir, fileName(day)), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	l.file, l.fileDay = f, day
	return nil
}

// Close closes the current day's file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// PruneOld deletes the files of days older than retentionDays.
func (l *Logger) PruneOld(retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	days, err := l.days()
	if err != nil {
		return err
	}
	var errs []error
	for _, name := range days {
		if day, _ := dayOf(name); day.Before(cutoff) {
			if err := os.Remove(filepath.Join(l.logDir, name)); err != nil && !os.IsNotExist(err) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// days lists activity file names, newest day first.
func (l *Logger) days() ([]string, error) {
	entries, err := os.ReadDir(l.logDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if _, ok := dayOf(e.Name()); ok && !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// GetLogDir returns the directory holding the daily files.
func (l *Logger) GetLogDir() string {
	return l.logDir
}

// Query selects audit entries. Zero fields match everything.
type Query struct {
	RunID      string
	Phase      Phase
	FailedOnly bool
	// Limit caps the result; zero means 100.
	Limit int
}

func (q Query) matches(e Entry) bool {
	switch {
	case q.RunID != "" && e.RunID != q.RunID:
		return false
	case q.Phase != "" && e.Phase != q.Phase:
		return false
	case q.FailedOnly && e.Success:
		return false
	}
	return true
}

// Recent returns the newest entries matching q, newest first. Unreadable
// files and malformed lines are skipped.
func (l *Logger) Recent(q Query) ([]Entry, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	days, err := l.days()
	if err != nil {
		return nil, err
	}

	var results []Entry
	for _, name := range days {
		entries, err := readDay(filepath.Join(l.logDir, name), q)
		if err != nil {
			continue
		}
		for i := len(entries) - 1; i >= 0; i-- {
			results = append(results, entries[i])
			if len(results) == q.Limit {
				return results, nil
			}
		}
	}
	return results, nil
}

// readDay returns the matching entries of one file in file order.
func readDay(path string, q Query) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var e Entry
		if json.Unmarshal(sc.Bytes(), &e) != nil || !q.matches(e) {
			continue
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}
