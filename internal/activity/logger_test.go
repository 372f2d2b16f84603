package activity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	tmpDir := t.TempDir()
	logDir := filepath.Join(tmpDir, "activity")

	logger, err := NewLogger(logDir)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.GetLogDir() != logDir {
		t.Errorf("expected log dir %s, got %s", logDir, logger.GetLogDir())
	}
	if _, err := os.Stat(logDir); err != nil {
		t.Errorf("log dir not created: %v", err)
	}
}

func TestLogEntry(t *testing.T) {
	logger, err := NewLogger(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()

	entry := Entry{
		RunID:      "run-1",
		Phase:      PhaseApply,
		Action:     "rename",
		Source:     "/lib/tv/Show/Show.S01E01.mkv",
		Target:     "/lib/tv/Show/Season 1/Show - S01E01.mkv",
		Show:       "Show",
		MediaType:  "tv",
		Season:     "Season 1",
		Success:    false,
		Reason:     "destination_exists",
		DurationMs: 4,
		Error:      "destination already exists",
	}

	if err := logger.Log(entry); err != nil {
		t.Fatalf("failed to log entry: %v", err)
	}

	entries, _ := os.ReadDir(logger.GetLogDir())

	var logFile string
	for _, f := range entries {
		if !f.IsDir() && strings.HasSuffix(f.Name(), ".jsonl") {
			logFile = filepath.Join(logger.GetLogDir(), f.Name())
			break
		}
	}

	if logFile == "" {
		t.Fatal("no log file found")
	}

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	var logged Entry
	if err := json.Unmarshal(content, &logged); err != nil {
		t.Fatalf("failed to parse logged entry: %v", err)
	}

	if logged.Action != entry.Action {
		t.Errorf("expected action %s, got %s", entry.Action, logged.Action)
	}
	if logged.Reason != "destination_exists" || logged.Success {
		t.Errorf("failure not preserved: %+v", logged)
	}
	if logged.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestGetRecentEntriesNewestFirst(t *testing.T) {
	logger, err := NewLogger(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()

	for _, action := range []string{"rename", "subtitle_rename", "nfo_delete"} {
		if err := logger.Log(Entry{Phase: PhaseApply, Action: action, Success: true}); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := logger.Recent(Query{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recent))
	}
	if recent[0].Action != "nfo_delete" || recent[1].Action != "subtitle_rename" {
		t.Errorf("unexpected order: %s, %s", recent[0].Action, recent[1].Action)
	}
}

func TestRecentFiltersByRunPhaseAndFailure(t *testing.T) {
	logger, err := NewLogger(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()

	yesterday := time.Now().AddDate(0, 0, -1)
	logged := []Entry{
		{Timestamp: yesterday, RunID: "run-1", Phase: PhaseApply, Action: "rename", Success: true},
		{RunID: "run-1", Phase: PhaseApply, Action: "subtitle_rename", Reason: "destination_exists"},
		{RunID: "run-2", Phase: PhaseApply, Action: "rename", Success: true},
		{RunID: "run-1", Phase: PhaseRollback, Action: "rename", Success: true},
	}
	for _, e := range logged {
		if err := logger.Log(e); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(logger.GetLogDir(), fileName(time.Now().AddDate(0, 0, -2).Format(dayLayout))), []byte("not json\n"), 0644)

	run1, err := logger.Recent(Query{RunID: "run-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(run1) != 3 {
		t.Fatalf("expected 3 entries for run-1 across two days, got %d", len(run1))
	}
	if run1[0].Phase != PhaseRollback || run1[2].Timestamp.Day() != yesterday.Day() {
		t.Errorf("unexpected order: %+v", run1)
	}

	applied, _ := logger.Recent(Query{RunID: "run-1", Phase: PhaseApply})
	if len(applied) != 2 {
		t.Errorf("expected 2 apply entries, got %d", len(applied))
	}

	failed, _ := logger.Recent(Query{FailedOnly: true})
	if len(failed) != 1 || failed[0].Reason != "destination_exists" {
		t.Errorf("unexpected failures: %+v", failed)
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	var logger *Logger
	if err := logger.Log(Entry{Action: "rename"}); err != nil {
		t.Errorf("nil logger returned %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("nil logger close returned %v", err)
	}
}

func TestPruneOld(t *testing.T) {
	logger, err := NewLogger(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()

	oldDate := time.Now().AddDate(0, 0, -10)
	oldFile := filepath.Join(logger.GetLogDir(), "activity-"+oldDate.Format("2006-01-02")+".jsonl")
	if err := os.WriteFile(oldFile, []byte("test"), 0644); err != nil {
		t.Fatal(err)
	}

	recentDate := time.Now()
	recentFile := filepath.Join(logger.GetLogDir(), "activity-"+recentDate.Format("2006-01-02")+".jsonl")
	if err := os.WriteFile(recentFile, []byte("test"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := logger.PruneOld(7); err != nil {
		t.Fatalf("failed to prune old logs: %v", err)
	}

	_, oldErr := os.Stat(oldFile)
	_, recentErr := os.Stat(recentFile)

	if !os.IsNotExist(oldErr) {
		t.Error("old file should have been pruned")
	}

	if recentErr != nil {
		t.Error("recent file should still exist: ", recentErr)
	}
}
