package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/usb-isoupdater/isoupdater/internal/distro"
	"github.com/usb-isoupdater/isoupdater/internal/metrics"
	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
)

func (s *Server) listDistros(w http.ResponseWriter, r *http.Request) {
	res := s.catalog.Infos()
	s.setInCache(r.Context(), s.getCacheKeyFromRequest(r), res)
	s.writeJSON(w, res)
}

func (s *Server) findDistro(w http.ResponseWriter, r *http.Request) *distro.Variant {
	configKey := chi.URLParam(r, "distro")
	if configKey == "" {
		s.writeJSONError(w, r, http.StatusBadRequest, fmt.Errorf("distro is missing"))
		return nil
	}
	v, err := s.catalog.Find(configKey)
	if err != nil {
		s.writeJSONError(w, r, http.StatusNotFound, err)
		return nil
	}
	return v
}

func (s *Server) getDistro(w http.ResponseWriter, r *http.Request) {
	v := s.findDistro(w, r)
	if v == nil {
		return
	}
	res := v.Info()
	s.setInCache(r.Context(), s.getCacheKeyFromRequest(r), res)
	s.writeJSON(w, res)
}

// releaseErrorStatus maps resolver failures to HTTP status codes.
func releaseErrorStatus(err error) int {
	switch {
	case errors.Is(err, catalog.ErrUnsupportedArchitecture):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrReleaseNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrAmbiguousRelease):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrTransport), errors.Is(err, catalog.ErrManifestUnreachable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) getRelease(w http.ResponseWriter, r *http.Request) {
	v := s.findDistro(w, r)
	if v == nil {
		return
	}
	arch := chi.URLParam(r, "arch")
	resolved, err := s.source.Resolve(r.Context(), v, arch, "")
	if err != nil {
		s.writeJSONError(w, r, releaseErrorStatus(err), err)
		return
	}
	res := resolved.Release()
	s.setInCache(r.Context(), s.getCacheKeyFromRequest(r), res)
	s.writeJSON(w, res)
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, &catalog.Configuration{
		Distros: s.store.Distros(),
		USB:     s.store.USBDevice(),
	})
}

func (s *Server) getMetrics(w http.ResponseWriter, r *http.Request) {
	values, err := metrics.Snapshot()
	if err != nil {
		s.writeJSONError(w, r, http.StatusInternalServerError, err, "metrics are not available")
		return
	}
	s.writeJSON(w, values)
}
