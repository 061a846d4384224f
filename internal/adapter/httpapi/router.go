// Package httpapi is the local HTTP surface of the service: session
// handling, the cached listing views, listing writes and chats.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/patidost/listing-service/internal/chat"
	"github.com/patidost/listing-service/internal/listing/cache"
	"github.com/patidost/listing-service/internal/listing/domain"
	"github.com/patidost/listing-service/internal/listing/usecase"
	"github.com/patidost/listing-service/internal/platform/logger"
	"github.com/patidost/listing-service/internal/session"
)

type SessionService interface {
	Current() *session.Identity
	SignIn(ctx context.Context, email, password string) (*session.Identity, error)
	SignUp(ctx context.Context, email, password, displayName string) (*session.Identity, error)
	SignOut(ctx context.Context) error
	UpdateProfile(ctx context.Context, displayName, city string, avatar *domain.Image) (*session.Identity, error)
}

type ListingView interface {
	Select(f cache.Filter) []*domain.Listing
	Get(id int64) (*domain.Listing, bool)
	Refresh(ctx context.Context)
	Active() bool
}

type ListingWriter interface {
	Create(ctx context.Context, draft domain.Draft, progress usecase.Progress) (*domain.Listing, error)
	Update(ctx context.Context, id int64, patch domain.Patch) error
	Delete(ctx context.Context, listing *domain.Listing) error
	GetListingByID(ctx context.Context, id int64) (*domain.Listing, error)
}

type ChatService interface {
	StartChat(ctx context.Context, listing *domain.Listing) (*chat.Chat, error)
	Send(ctx context.Context, chatID, text string) (*chat.Message, error)
	MarkRead(ctx context.Context, chatID string) error
	Conversations(ctx context.Context) ([]*chat.Chat, error)
	Messages(ctx context.Context, chatID string) ([]*chat.Message, error)
}

type UnreadCounter interface {
	Total() int
}

type AlertSource interface {
	Recent() []cache.Alert
}

type ReadinessChecker interface {
	CheckReady(ctx context.Context) error
}

type Deps struct {
	Sessions       SessionService
	Verifier       *session.TokenVerifier
	Listings       ListingView
	Mutations      ListingWriter
	Chats          ChatService
	Unread         UnreadCounter
	Alerts         AlertSource
	Readiness      ReadinessChecker
	Metrics        http.Handler
	MaxUploadBytes int64
}

type Handler struct {
	deps   Deps
	logger *logger.Logger
}

func NewRouter(deps Deps, log *logger.Logger) http.Handler {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 32 << 20
	}
	h := &Handler{deps: deps, logger: log.Named("HTTP")}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogger(h.logger))

	r.Get("/healthz", h.HandleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Post("/api/session/login", h.HandleLogin)
	r.Post("/api/session/register", h.HandleRegister)

	r.Group(func(r chi.Router) {
		r.Use(SessionAuth(deps.Verifier, deps.Sessions, h.logger))

		r.Get("/api/session", h.HandleGetSession)
		r.Post("/api/session/logout", h.HandleLogout)
		r.Patch("/api/session/profile", h.HandleUpdateProfile)

		r.Get("/api/listings", h.HandleListListings)
		r.Post("/api/listings", h.HandleCreateListing)
		r.Post("/api/listings/refresh", h.HandleRefreshListings)
		r.Get("/api/listings/{id}", h.HandleGetListing)
		r.Patch("/api/listings/{id}", h.HandleUpdateListing)
		r.Delete("/api/listings/{id}", h.HandleDeleteListing)
		r.Post("/api/listings/{id}/chat", h.HandleStartChat)
		r.Get("/api/alerts", h.HandleAlerts)

		r.Get("/api/chats", h.HandleListChats)
		r.Get("/api/chats/unread", h.HandleUnread)
		r.Get("/api/chats/{id}/messages", h.HandleListMessages)
		r.Post("/api/chats/{id}/messages", h.HandleSendMessage)
		r.Post("/api/chats/{id}/read", h.HandleMarkRead)
	})
	return r
}

// HandleHealth reports 503 when the remote store cannot be reached. An
// inactive cache is not a failure; nobody may be signed in.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":       "ok",
		"cache_active": h.deps.Listings.Active(),
		"time":         time.Now().UTC(),
	}
	if h.deps.Readiness != nil {
		if err := h.deps.Readiness.CheckReady(r.Context()); err != nil {
			h.logger.Warn("HandleHealth: store not ready", "error", err)
			body["status"] = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	writeJSON(w, http.StatusOK, body)
}
