package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/patidost/listing-service/internal/listing/domain"
)

func (h *Handler) HandleStartChat(w http.ResponseWriter, r *http.Request) {
	id, ok := listingID(w, r)
	if !ok {
		return
	}
	listing, found := h.deps.Listings.Get(id)
	if !found {
		h.writeError(w, r, domain.ErrListingNotFound)
		return
	}
	c, err := h.deps.Chats.StartChat(r.Context(), listing)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	userID, _ := UserIDFromContext(r.Context())
	writeJSON(w, http.StatusOK, toChatResponse(c, userID))
}

func (h *Handler) HandleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.deps.Chats.Conversations(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	userID, _ := UserIDFromContext(r.Context())
	out := make([]chatResponse, 0, len(chats))
	for _, c := range chats {
		out = append(out, toChatResponse(c, userID))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleUnread(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"unread": h.deps.Unread.Total()})
}

func (h *Handler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.deps.Chats.Messages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	msg, err := h.deps.Chats.Send(r.Context(), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageResponse(msg))
}

func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Chats.MarkRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
