package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Nomadcxx/embress/internal/activity"
	"github.com/Nomadcxx/embress/internal/coordinator"
	"github.com/Nomadcxx/embress/internal/database"
	"github.com/Nomadcxx/embress/internal/rules"
	"github.com/Nomadcxx/embress/internal/scanner"
	"github.com/Nomadcxx/embress/internal/whitelist"
)

// HealthCheck is open to unauthenticated callers.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetStatus returns the coordinator state and the last run.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.coord.Status(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetStats returns store-wide counters.
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.coord.Stats(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type scanRequest struct {
	Path string `json:"path"`
}

// StartScan runs a full library scan and returns when it finishes.
func (s *Server) StartScan(w http.ResponseWriter, r *http.Request) {
	s.runScan(w, r, coordinator.ScanRequest{Trigger: database.TriggerManual})
}

// StartPathScan scans one directory or file inside the library.
func (s *Server) StartPathScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := parseJSONBody(r, &req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "path is required")
		return
	}
	s.runScan(w, r, coordinator.ScanRequest{Trigger: database.TriggerSubPath, Path: req.Path})
}

func (s *Server) runScan(w http.ResponseWriter, r *http.Request, req coordinator.ScanRequest) {
	res, err := s.coord.Scan(r.Context(), req)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PreviewScan returns the plan a scan would apply.
func (s *Server) PreviewScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := parseJSONBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	plan, err := s.coord.Preview(r.Context(), req.Path)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// CancelScan stops the running scan or rollback between operations.
func (s *Server) CancelScan(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": s.coord.Cancel()})
}

type seasonRollbackRequest struct {
	MediaType string `json:"media_type"`
	Show      string `json:"show"`
	Season    string `json:"season"`
}

// RollbackSeason reverses the active records of one season.
func (s *Server) RollbackSeason(w http.ResponseWriter, r *http.Request) {
	var req seasonRollbackRequest
	if err := parseJSONBody(r, &req); err != nil || req.Show == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "show is required")
		return
	}
	res, err := s.coord.RollbackSeason(r.Context(), database.SeasonQuery{
		MediaType: req.MediaType,
		Show:      req.Show,
		Season:    req.Season,
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RollbackRun reverses the active records of one run.
func (s *Server) RollbackRun(w http.ResponseWriter, r *http.Request) {
	res, err := s.coord.RollbackRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type schedulerState struct {
	Enabled bool `json:"enabled"`
}

// GetScheduler returns the scheduler switch and timing.
func (s *Server) GetScheduler(w http.ResponseWriter, r *http.Request) {
	st, err := s.coord.Status(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"enabled":   st.SchedulerEnabled,
		"interval":  st.Interval,
		"scheduler": st.Scheduler,
	})
}

// SetScheduler toggles scheduled scans.
func (s *Server) SetScheduler(w http.ResponseWriter, r *http.Request) {
	var req schedulerState
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.coord.SetSchedulerEnabled(r.Context(), req.Enabled); err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schedulerState{Enabled: s.coord.SchedulerEnabled()})
}

// ListWhitelist returns every whitelist entry.
func (s *Server) ListWhitelist(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.coord.Whitelist().Entries()))
}

// AddWhitelist whitelists one path.
func (s *Server) AddWhitelist(w http.ResponseWriter, r *http.Request) {
	var entry whitelist.Entry
	if err := parseJSONBody(r, &entry); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	added, err := s.coord.Whitelist().Add(r.Context(), entry)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_entry", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

type batchRequest struct {
	Entries []whitelist.Entry `json:"entries"`
}

// AddWhitelistBatch whitelists several paths; either all are saved or none.
func (s *Server) AddWhitelistBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := parseJSONBody(r, &req); err != nil || len(req.Entries) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "entries are required")
		return
	}
	added, err := s.coord.Whitelist().AddBatch(r.Context(), req.Entries)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_entry", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

// RemoveWhitelist deletes the entry named by ?path=.
func (s *Server) RemoveWhitelist(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "path is required")
		return
	}
	removed, err := s.coord.Whitelist().Remove(r.Context(), path)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "not_found", "path is not whitelisted")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

// GetRules returns the active rule set.
func (s *Server) GetRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Rules())
}

// PutRules replaces the rule set. Nothing changes if any pattern is invalid.
func (s *Server) PutRules(w http.ResponseWriter, r *http.Request) {
	var set rules.Set
	if err := parseJSONBody(r, &set); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.coord.UpdateRules(r.Context(), set); err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.coord.Rules())
}

// ValidateRules checks a rule set without saving it.
func (s *Server) ValidateRules(w http.ResponseWriter, r *http.Request) {
	var set rules.Set
	if err := parseJSONBody(r, &set); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := rules.Validate(set); err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

// ListRuns returns run history, newest first.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := database.RunFilter{}
	filter.ChangesOnly, _ = strconv.ParseBool(q.Get("changes_only"))
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive number")
			return
		}
		filter.Limit = n
	}
	runs, err := s.db.ListRuns(r.Context(), filter)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(runs))
}

// GetRun returns one run.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.db.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetRunRecords returns the change records of one run.
func (s *Server) GetRunRecords(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.db.GetRun(r.Context(), id); err != nil {
		s.writeFailure(w, err)
		return
	}
	records, err := s.db.RecordsForRun(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(records))
}

// ListShows returns every show with recorded changes.
func (s *Server) ListShows(w http.ResponseWriter, r *http.Request) {
	shows, err := s.db.ListShows(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(shows))
}

// GetShowRecords returns a show's records grouped by season or by type.
func (s *Server) GetShowRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	show := q.Get("show")
	if show == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "show is required")
		return
	}
	by, err := database.ParseGroupBy(q.Get("group"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	records, err := s.db.RecordsForShow(r.Context(), q.Get("media_type"), show)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"show":   show,
		"group":  by,
		"groups": nonNil(database.GroupRecords(records, by)),
	})
}

// ListUnrenamed returns the triage queue.
func (s *Server) ListUnrenamed(w http.ResponseWriter, r *http.Request) {
	files, err := s.db.ListUnrenamed(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(files))
}

// GetActivity returns recent audit entries, newest first, optionally
// narrowed by ?run_id=, ?phase= and ?failed=true.
func (s *Server) GetActivity(w http.ResponseWriter, r *http.Request) {
	if s.activity == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	params := r.URL.Query()
	q := activity.Query{
		RunID: params.Get("run_id"),
		Phase: activity.Phase(params.Get("phase")),
		Limit: 100,
	}
	q.FailedOnly, _ = strconv.ParseBool(params.Get("failed"))
	if n, err := strconv.Atoi(params.Get("limit")); err == nil && n > 0 {
		q.Limit = n
	}
	entries, err := s.activity.Recent(q)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

// writeFailure maps domain errors to status codes.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	var patternErr *rules.PatternError
	switch {
	case errors.Is(err, coordinator.ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]string{
			"outcome": string(coordinator.OutcomeBusy),
			"code":    "busy",
			"message": err.Error(),
		})
	case errors.As(err, &patternErr):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"code":    "invalid_pattern",
			"message": err.Error(),
			"list":    patternErr.List,
			"index":   patternErr.Index,
			"pattern": patternErr.Pattern,
		})
	case errors.Is(err, scanner.ErrOutsideRoot):
		writeError(w, http.StatusBadRequest, "outside_root", err.Error())
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		s.logger.Error("api", "Request failed", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

// parseJSONBody is a helper to parse JSON request body
func parseJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
