package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
)

func (s *Server) setContentTypeJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
}

func (s *Server) writeJSON(w http.ResponseWriter, d any) {
	s.writeJSONStatus(w, http.StatusOK, d)
}

func (s *Server) writeJSONStatus(w http.ResponseWriter, statusCode int, d any) {
	s.setContentTypeJSON(w)
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	if err := json.NewEncoder(w).Encode(d); err != nil {
		s.log.Error(err)
	}
}

// writeJSONError logs err with its failure reason and replies with
// {"error": ...}. alternativeMessage replaces the error text sent to the client.
func (s *Server) writeJSONError(w http.ResponseWriter, r *http.Request, statusCode int, err error, alternativeMessage ...string) {
	errMsg := err.Error()
	s.requestLogger(r).WithFields(logrus.Fields{
		LogFieldStatus: statusCode,
		LogFieldReason: catalog.ReasonOf(err),
	}).Errorf("error: %s", errMsg)

	if len(alternativeMessage) > 0 {
		errMsg = strings.Join(alternativeMessage, " ")
	}
	s.writeJSONStatus(w, statusCode, map[string]string{"error": errMsg})
}

func (s *Server) requestLogger(r *http.Request) *logrus.Entry {
	return s.log.WithFields(logrus.Fields{
		LogFieldRequestID: middleware.GetReqID(r.Context()),
		LogFieldHTTPRequest: map[string]any{
			"requestMethod": r.Method,
			"requestUrl":    r.URL.EscapedPath(),
		},
	})
}
