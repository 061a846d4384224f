package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/patidost/listing-service/internal/session"
)

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	identity, err := h.deps.Sessions.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(identity, true))
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	identity, err := h.deps.Sessions.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if errors.Is(err, session.ErrConfirmationRequired) {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "confirmation_required"})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(identity, true))
}

func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	identity := h.deps.Sessions.Current()
	if identity == nil {
		writeProblem(w, http.StatusUnauthorized, "no active session", nil)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(identity, false))
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Sessions.SignOut(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpdateProfile takes multipart fields display_name, city and an
// optional avatar file.
func (h *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.deps.MaxUploadBytes); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid multipart form", nil)
		return
	}
	avatar, err := formImage(r, "avatar")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, err.Error(), []string{"avatar"})
		return
	}
	identity, err := h.deps.Sessions.UpdateProfile(r.Context(), r.FormValue("display_name"), r.FormValue("city"), avatar)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(identity, false))
}
