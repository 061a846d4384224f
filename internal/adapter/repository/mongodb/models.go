package mongodb

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/patidost/listing-service/internal/chat"
)

// chatDocument is one conversation. PairKey is the ordered pair of users and
// carries the unique index, so concurrent starts end up in the same chat.
type chatDocument struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	PairKey       string             `bson:"pair_key"`
	Users         []string           `bson:"users"`
	LastMessage   string             `bson:"last_message"`
	LastTimestamp time.Time          `bson:"last_timestamp"`
	ReadStatus    map[string]int     `bson:"read_status"`
	CreatedAt     time.Time          `bson:"created_at"`
}

type messageDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	ChatID    primitive.ObjectID `bson:"chat_id"`
	SenderID  string             `bson:"sender_id"`
	Text      string             `bson:"text"`
	CreatedAt time.Time          `bson:"created_at"`
}

func pairKey(users [2]string) string {
	return users[0] + "|" + users[1]
}

func toDomainChat(doc *chatDocument) *chat.Chat {
	if doc == nil {
		return nil
	}
	unread := make(map[string]int, len(doc.ReadStatus))
	for k, v := range doc.ReadStatus {
		unread[k] = v
	}
	return &chat.Chat{
		ID:            doc.ID.Hex(),
		Users:         append([]string(nil), doc.Users...),
		LastMessage:   doc.LastMessage,
		LastTimestamp: doc.LastTimestamp,
		Unread:        unread,
		CreatedAt:     doc.CreatedAt,
	}
}

func toDomainChats(docs []*chatDocument) []*chat.Chat {
	out := make([]*chat.Chat, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDomainChat(d))
	}
	return out
}

func toDomainMessage(doc *messageDocument) *chat.Message {
	return &chat.Message{
		ID:        doc.ID.Hex(),
		ChatID:    doc.ChatID.Hex(),
		SenderID:  doc.SenderID,
		Text:      doc.Text,
		CreatedAt: doc.CreatedAt,
	}
}
