// Package chat holds the conversations users open about a listing and the
// per-user unread counters kept on each conversation.
package chat

import (
	"context"
	"errors"
	"sort"
	"time"
)

var (
	ErrChatNotFound   = errors.New("chat not found")
	ErrNotParticipant = errors.New("user is not a participant of this chat")
	ErrOwnListing     = errors.New("cannot start a chat about your own listing")
	ErrEmptyMessage   = errors.New("message text is empty")
)

// Chat is one conversation between exactly two users. Unread holds, per
// participant, the messages that participant has not seen yet.
type Chat struct {
	ID            string
	Users         []string
	LastMessage   string
	LastTimestamp time.Time
	Unread        map[string]int
	CreatedAt     time.Time
}

// Other returns the participant that is not userID.
func (c *Chat) Other(userID string) string {
	for _, u := range c.Users {
		if u != userID {
			return u
		}
	}
	return ""
}

func (c *Chat) Has(userID string) bool {
	for _, u := range c.Users {
		if u == userID {
			return true
		}
	}
	return false
}

func (c *Chat) UnreadFor(userID string) int {
	return c.Unread[userID]
}

type Message struct {
	ID        string
	ChatID    string
	SenderID  string
	Text      string
	CreatedAt time.Time
}

// Pair returns the two users in a fixed order so that a conversation is found
// whoever starts it.
func Pair(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// TotalUnread sums the counters of userID over chats.
func TotalUnread(chats []*Chat, userID string) int {
	total := 0
	for _, c := range chats {
		total += c.UnreadFor(userID)
	}
	return total
}

// SortByActivity orders chats by their last message, newest first.
func SortByActivity(chats []*Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].LastTimestamp.After(chats[j].LastTimestamp)
	})
}

type Repository interface {
	CreateOrGet(ctx context.Context, users [2]string) (*Chat, error)
	FindByID(ctx context.Context, id string) (*Chat, error)
	ListForUser(ctx context.Context, userID string) ([]*Chat, error)
	// AddMessage stores msg, updates the chat summary and increments the
	// counter of every participant except the sender.
	AddMessage(ctx context.Context, msg *Message) error
	// ResetUnread sets userID's counter to zero if it is not already.
	ResetUnread(ctx context.Context, chatID, userID string) error
	Messages(ctx context.Context, chatID string, limit int) ([]*Message, error)
}
