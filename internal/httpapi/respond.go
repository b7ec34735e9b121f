package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/Simplici0/quotewizard/internal/apperr"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInput:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError answers with msg. Client errors also carry the error detail; server errors are
// logged and the detail withheld.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	resp := errorResponse{Error: msg, Kind: string(kind)}
	if status < http.StatusInternalServerError {
		resp.Error = msg + ": " + err.Error()
	} else {
		s.log.Error(msg, zap.String("path", r.URL.Path), zap.String("host", r.Host), zap.Error(err))
	}
	writeJSON(w, status, resp)
}
