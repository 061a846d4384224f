package chat

import (
	"context"
	"strings"
	"time"

	"github.com/patidost/listing-service/internal/listing/domain"
	"github.com/patidost/listing-service/internal/platform/logger"
	"github.com/patidost/listing-service/internal/session"
)

const DefaultMessageLimit = 100

// IdentityProvider is implemented by *session.Manager.
type IdentityProvider interface {
	Current() *session.Identity
}

type Service struct {
	repo     Repository
	identity IdentityProvider
	logger   *logger.Logger
}

func NewService(repo Repository, identity IdentityProvider, log *logger.Logger) *Service {
	return &Service{repo: repo, identity: identity, logger: log.Named("ChatService")}
}

// StartChat opens, or finds, the conversation between the current user and
// the owner of listing.
func (s *Service) StartChat(ctx context.Context, listing *domain.Listing) (*Chat, error) {
	me, err := s.currentUser()
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, domain.ErrListingNotFound
	}
	if listing.OwnerID == me {
		return nil, ErrOwnListing
	}
	c, err := s.repo.CreateOrGet(ctx, Pair(me, listing.OwnerID))
	if err != nil {
		s.logger.Error("ChatService.StartChat: failed to open chat", "user_id", me, "owner_id", listing.OwnerID, "error", err)
		return nil, err
	}
	s.logger.Info("ChatService.StartChat: chat ready", "chat_id", c.ID, "listing_id", listing.ID)
	return c, nil
}

func (s *Service) Send(ctx context.Context, chatID, text string) (*Message, error) {
	me, err := s.currentUser()
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	msg := &Message{ChatID: chatID, SenderID: me, Text: text, CreatedAt: time.Now().UTC()}
	if err := s.repo.AddMessage(ctx, msg); err != nil {
		s.logger.Error("ChatService.Send: failed to store message", "chat_id", chatID, "error", err)
		return nil, err
	}
	return msg, nil
}

// MarkRead clears the current user's unread counter of chatID.
func (s *Service) MarkRead(ctx context.Context, chatID string) error {
	me, err := s.currentUser()
	if err != nil {
		return err
	}
	c, err := s.repo.FindByID(ctx, chatID)
	if err != nil {
		return err
	}
	if !c.Has(me) {
		return ErrNotParticipant
	}
	if c.UnreadFor(me) == 0 {
		return nil
	}
	return s.repo.ResetUnread(ctx, chatID, me)
}

func (s *Service) Conversations(ctx context.Context) ([]*Chat, error) {
	me, err := s.currentUser()
	if err != nil {
		return nil, err
	}
	chats, err := s.repo.ListForUser(ctx, me)
	if err != nil {
		return nil, err
	}
	SortByActivity(chats)
	return chats, nil
}

// Messages returns the newest messages of chatID first.
func (s *Service) Messages(ctx context.Context, chatID string) ([]*Message, error) {
	me, err := s.currentUser()
	if err != nil {
		return nil, err
	}
	c, err := s.repo.FindByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !c.Has(me) {
		return nil, ErrNotParticipant
	}
	return s.repo.Messages(ctx, chatID, DefaultMessageLimit)
}

func (s *Service) TotalUnread(ctx context.Context) (int, error) {
	me, err := s.currentUser()
	if err != nil {
		return 0, err
	}
	chats, err := s.repo.ListForUser(ctx, me)
	if err != nil {
		return 0, err
	}
	return TotalUnread(chats, me), nil
}

func (s *Service) currentUser() (string, error) {
	identity := s.identity.Current()
	if identity == nil {
		return "", domain.ErrUnauthorized
	}
	return identity.UserID, nil
}
