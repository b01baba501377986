package server

import (
	"errors"
	"net/http"
)

func (s *Server) runSync(w http.ResponseWriter, r *http.Request) {
	if !s.syncSemaphore.TryAcquire(1) {
		s.writeJSONError(w, r, http.StatusTooManyRequests, errors.New("a sync pass is already running"))
		return
	}
	defer s.syncSemaphore.Release(1)

	entries := s.store.Distros()
	if err := s.store.Validate(s.catalog); err != nil {
		s.requestLogger(r).Warnf("configuration has invalid entries: %v", err)
	}

	reqLogger := s.requestLogger(r)
	reqLogger.Warnf("starting sync pass for %d configured distros...", len(entries))
	report := s.syncer.Run(r.Context(), entries, s.config.TargetPath)

	s.lastReportMu.Lock()
	s.lastReport = &report
	s.lastReportMu.Unlock()

	// upstream may have moved on, drop cached releases
	s.invalidateByPrefix(s.getCacheKeyPrefixForDistro(""))
	s.writeJSON(w, &report)
}

func (s *Server) getLastSync(w http.ResponseWriter, r *http.Request) {
	s.lastReportMu.Lock()
	report := s.lastReport
	s.lastReportMu.Unlock()
	if report == nil {
		s.writeJSONError(w, r, http.StatusNotFound, errors.New("no sync pass has run yet"))
		return
	}
	s.writeJSON(w, report)
}
