package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/patidost/listing-service/internal/chat"
	"github.com/patidost/listing-service/internal/listing/domain"
	"github.com/patidost/listing-service/internal/session"
)

type problem struct {
	Error     string   `json:"error"`
	Fields    []string `json:"fields,omitempty"`
	Retryable bool     `json:"retryable,omitempty"`
}

func statusOf(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrOwnListing),
		errors.Is(err, session.ErrWeakPassword):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrInvalidCredentials), errors.Is(err, session.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, chat.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrListingNotFound), errors.Is(err, chat.ErrChatNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= 500 {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	var fields []string
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		fields = verr.Fields
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, problem{Error: msg, Fields: fields, Retryable: domain.IsRetryable(err)})
}

func writeProblem(w http.ResponseWriter, status int, msg string, fields []string) {
	writeJSON(w, status, problem{Error: msg, Fields: fields})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
