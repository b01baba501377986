package server

import (
	"errors"
	"net/http"

	"github.com/usb-isoupdater/isoupdater/internal/usb"
	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
)

func (s *Server) getUSBDevice(w http.ResponseWriter, r *http.Request) {
	configured := s.store.USBDevice()
	if configured == nil {
		s.writeJSONError(w, r, http.StatusNotFound, errors.New("no USB device configured"))
		return
	}
	device, err := s.devices.Resolve(*configured)
	if err == nil {
		s.writeJSON(w, &device)
		return
	}

	var ambiguous *usb.AmbiguousDeviceError
	switch {
	case errors.As(err, &ambiguous):
		s.requestLogger(r).Warn(err)
		s.writeJSONStatus(w, http.StatusConflict, &catalog.AmbiguousDeviceResponse{
			Error:      err.Error(),
			Candidates: ambiguous.Candidates,
		})
	case errors.Is(err, catalog.ErrDeviceNotFound):
		s.writeJSONError(w, r, http.StatusNotFound, err)
	default:
		s.writeJSONError(w, r, http.StatusInternalServerError, err, "could not enumerate USB devices")
	}
}
