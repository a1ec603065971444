package chatstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"atelier-service/internal/models"
	"atelier-service/internal/util"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const collectionName = "chat_conversations"

var ErrNotFound = errors.New("conversation not found")

// Store keeps chat conversations, one document per session
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Connect opens a pooled MongoDB client and ensures the collection indexes.
func Connect(uri, database string) (*Store, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongodb uri is empty")
	}

	clientOptions := options.Client().ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(10).
		SetConnectTimeout(5 * time.Second).
		SetSocketTimeout(10 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelPing()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := &Store{client: client, coll: client.Database(database).Collection(collectionName)}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	util.GetLogger().Info("Connected to MongoDB", zap.String("database", database))
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sessionId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create chat indexes: %w", err)
	}
	return nil
}

// Ping checks the connection for readiness probes
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Create inserts a new conversation
func (s *Store) Create(ctx context.Context, conv *models.ChatConversation) error {
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	if conv.Messages == nil {
		conv.Messages = []models.ChatMessage{}
	}
	if conv.Status == "" {
		conv.Status = models.ChatStatusActive
	}

	res, err := s.coll.InsertOne(ctx, conv)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		conv.ID = id
	}
	return nil
}

// Get loads a conversation by session id
func (s *Store) Get(ctx context.Context, sessionID string) (*models.ChatConversation, error) {
	var conv models.ChatConversation
	err := s.coll.FindOne(ctx, bson.M{"sessionId": sessionID}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return &conv, nil
}

// AppendMessages pushes messages onto an active conversation
func (s *Store) AppendMessages(ctx context.Context, sessionID string, msgs ...models.ChatMessage) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"sessionId": sessionID, "status": models.ChatStatusActive},
		bson.M{
			"$push": bson.M{"messages": bson.M{"$each": msgs}},
			"$set":  bson.M{"updatedAt": time.Now()},
		})
	if err != nil {
		return fmt.Errorf("failed to append messages: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("active session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// AddRecommendations records product ids suggested in the conversation
func (s *Store) AddRecommendations(ctx context.Context, sessionID string, productIDs []int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"sessionId": sessionID},
		bson.M{"$addToSet": bson.M{"recommendations": bson.M{"$each": productIDs}}})
	return err
}

// End closes a conversation and stores the satisfaction score
func (s *Store) End(ctx context.Context, sessionID string, satisfaction int) (*models.ChatConversation, error) {
	now := time.Now()
	set := bson.M{"status": models.ChatStatusEnded, "endedAt": now, "updatedAt": now}
	if satisfaction > 0 {
		set["satisfaction"] = satisfaction
	}

	var conv models.ChatConversation
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"sessionId": sessionID, "status": models.ChatStatusActive},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("active session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to end conversation: %w", err)
	}
	return &conv, nil
}
