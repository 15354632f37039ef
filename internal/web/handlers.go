package web

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/stmtnorm/internal/core"
)

var fingerprintRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)

// runResponse is the body of POST /api/runs.
type runResponse struct {
	core.BatchResult
	Summary map[core.OutcomeStatus]int `json:"summary"`
}

func summarize(res core.BatchResult) map[core.OutcomeStatus]int {
	out := make(map[core.OutcomeStatus]int, 4)
	for _, st := range []core.OutcomeStatus{
		core.StatusNormalized,
		core.StatusQuarantined,
		core.StatusAlreadyProcessed,
		core.StatusFailed,
	} {
		out[st] = res.Count(st)
	}
	return out
}

// handleRun processes everything currently in the input location and
// answers with the per-file outcomes once the batch is done.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	slot, err := s.limiter.Acquire(core.ContextWithTrigger(r.Context(), core.TriggerHTTP))
	if err != nil {
		if errors.Is(err, core.ErrTooManyRuns) {
			w.Header().Set("Retry-After", "5")
		}
		s.respondError(w, r, err, statusFor(err))
		return
	}
	defer slot.Release()

	ctx, cancel := context.WithTimeout(runContext(r), s.cfg.Trigger.RunTimeout)
	defer cancel()

	res, err := s.service.RunOnce(ctx)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	w.Header().Set("X-Run-ID", res.RunID)
	writeJSON(w, http.StatusOK, runResponse{BatchResult: res, Summary: summarize(res)})
}

// handleListLedger returns ledger entries, newest first, optionally
// filtered by ?status= and capped by ?limit=.
func (s *Server) handleListLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.Ledger().List(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	status := core.OutcomeStatus(r.URL.Query().Get("status"))
	limit := parseIntParam(r, "limit", 0)

	out := make([]core.LedgerEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if status != "" && entries[i].Status != status {
			continue
		}
		out = append(out, entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": out,
		"count":   len(out),
	})
}

func (s *Server) handleLedgerEntry(w http.ResponseWriter, r *http.Request) {
	fp := chi.URLParam(r, "fingerprint")
	if !fingerprintRegex.MatchString(fp) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "fingerprint must be 64 lowercase hex characters",
			Code:  "HTTP400",
		})
		return
	}

	entry, ok, err := s.service.Ledger().Lookup(r.Context(), fp)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "fingerprint not in ledger", Code: "HTTP404"})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"runs":   s.limiter.Status(),
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleLedgerPage(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.Ledger().List(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ledgerPage(entries, s.limiter.Status()).Render(r.Context(), w); err != nil {
		s.logger.Error("render ledger page", "error", err)
	}
}

// parseIntParam parses a positive integer query parameter with a default.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
