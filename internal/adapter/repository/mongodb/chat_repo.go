package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/patidost/listing-service/internal/chat"
	"github.com/patidost/listing-service/internal/listing/domain"
	"github.com/patidost/listing-service/internal/platform/logger"
)

const (
	ChatsCollection    = "chats"
	MessagesCollection = "messages"
)

type ChatRepository struct {
	chats    *mongo.Collection
	messages *mongo.Collection
	logger   *logger.Logger
}

func NewChatRepository(db *mongo.Database, log *logger.Logger) *ChatRepository {
	return &ChatRepository{
		chats:    db.Collection(ChatsCollection),
		messages: db.Collection(MessagesCollection),
		logger:   log.Named("ChatRepository"),
	}
}

// EnsureIndexes creates the indexes the queries rely on. It is safe to call
// on every start.
func (r *ChatRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.chats.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "pair_key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "users", Value: 1}, {Key: "last_timestamp", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create chat indexes: %w", err)
	}
	_, err = r.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}
	return nil
}

func (r *ChatRepository) CreateOrGet(ctx context.Context, users [2]string) (*chat.Chat, error) {
	r.logger.Debug("ChatRepository.CreateOrGet: opening chat", "users", users[:])
	now := time.Now().UTC()
	// pair_key comes from the filter on insert
	update := bson.M{"$setOnInsert": bson.M{
		"users":          users[:],
		"last_message":   "",
		"last_timestamp": now,
		"read_status":    bson.M{users[0]: 0, users[1]: 0},
		"created_at":     now,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc chatDocument
	err := r.chats.FindOneAndUpdate(ctx, bson.M{"pair_key": pairKey(users)}, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// lost the upsert race; the other writer created it
		err = r.chats.FindOne(ctx, bson.M{"pair_key": pairKey(users)}).Decode(&doc)
	}
	if err != nil {
		r.logger.Error("ChatRepository.CreateOrGet: upsert failed", "users", users[:], "error", err)
		return nil, classify(err)
	}
	return toDomainChat(&doc), nil
}

func (r *ChatRepository) FindByID(ctx context.Context, id string) (*chat.Chat, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, chat.ErrChatNotFound
	}
	var doc chatDocument
	if err := r.chats.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, chat.ErrChatNotFound
		}
		return nil, classify(err)
	}
	return toDomainChat(&doc), nil
}

func (r *ChatRepository) ListForUser(ctx context.Context, userID string) ([]*chat.Chat, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "last_timestamp", Value: -1}})
	cursor, err := r.chats.Find(ctx, bson.M{"users": userID}, findOptions)
	if err != nil {
		r.logger.Error("ChatRepository.ListForUser: Find failed", "user_id", userID, "error", err)
		return nil, classify(err)
	}
	defer cursor.Close(ctx)

	var docs []*chatDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify(err)
	}
	return toDomainChats(docs), nil
}

// AddMessage stores msg and bumps the unread counter of the recipient.
func (r *ChatRepository) AddMessage(ctx context.Context, msg *chat.Message) error {
	oid, err := primitive.ObjectIDFromHex(msg.ChatID)
	if err != nil {
		return chat.ErrChatNotFound
	}

	current, err := r.FindByID(ctx, msg.ChatID)
	if err != nil {
		return err
	}
	if !current.Has(msg.SenderID) {
		return chat.ErrNotParticipant
	}

	doc := &messageDocument{ChatID: oid, SenderID: msg.SenderID, Text: msg.Text, CreatedAt: msg.CreatedAt}
	res, err := r.messages.InsertOne(ctx, doc)
	if err != nil {
		r.logger.Error("ChatRepository.AddMessage: InsertOne failed", "chat_id", msg.ChatID, "error", err)
		return classify(err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		msg.ID = id.Hex()
	}

	update := bson.M{
		"$set": bson.M{"last_message": msg.Text, "last_timestamp": msg.CreatedAt},
		"$inc": bson.M{"read_status." + current.Other(msg.SenderID): 1},
	}
	result, err := r.chats.UpdateOne(ctx, bson.M{"_id": oid, "users": msg.SenderID}, update)
	if err != nil {
		r.logger.Error("ChatRepository.AddMessage: chat summary not updated", "chat_id", msg.ChatID, "error", err)
		return classify(err)
	}
	if result.MatchedCount == 0 {
		return chat.ErrNotParticipant
	}
	return nil
}

// ResetUnread only writes when the counter is above zero.
func (r *ChatRepository) ResetUnread(ctx context.Context, chatID, userID string) error {
	oid, err := primitive.ObjectIDFromHex(chatID)
	if err != nil {
		return chat.ErrChatNotFound
	}
	key := "read_status." + userID
	_, err = r.chats.UpdateOne(ctx,
		bson.M{"_id": oid, "users": userID, key: bson.M{"$gt": 0}},
		bson.M{"$set": bson.M{key: 0}},
	)
	if err != nil {
		return classify(err)
	}
	return nil
}

// Messages returns up to limit messages of chatID, newest first.
func (r *ChatRepository) Messages(ctx context.Context, chatID string, limit int) ([]*chat.Message, error) {
	oid, err := primitive.ObjectIDFromHex(chatID)
	if err != nil {
		return nil, chat.ErrChatNotFound
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		findOptions.SetLimit(int64(limit))
	}
	cursor, err := r.messages.Find(ctx, bson.M{"chat_id": oid}, findOptions)
	if err != nil {
		return nil, classify(err)
	}
	defer cursor.Close(ctx)

	var docs []*messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify(err)
	}
	out := make([]*chat.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDomainMessage(d))
	}
	return out, nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) && serverErr.HasErrorCode(13) { // Unauthorized
		return fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	return err
}
