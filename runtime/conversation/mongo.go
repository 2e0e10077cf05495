package conversation

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/clue/health"

	"github.com/agentgraph/engine/apierror"
	"github.com/agentgraph/engine/runtime/graphruntime"
)

const (
	defaultConversationsCollection = "conversations"
	defaultMessagesCollection      = "conversation_messages"
	defaultOpTimeout               = 5 * time.Second
	mongoClientName                = "conversation-mongo"
)

// MongoOptions configures the MongoDB-backed Store.
type MongoOptions struct {
	Client                  *mongo.Client
	Database                string
	ConversationsCollection string
	MessagesCollection      string
	Timeout                 time.Duration
}

// MongoStore implements Store against MongoDB. It also satisfies
// health.Pinger so it can be wired into a liveness check alongside the
// engine's other Mongo-backed stores.
type MongoStore struct {
	mongo         *mongo.Client
	conversations *mongo.Collection
	messages      *mongo.Collection
	timeout       time.Duration
}

var _ Store = (*MongoStore)(nil)
var _ health.Pinger = (*MongoStore)(nil)

// NewMongoStore builds a MongoStore and ensures its indexes exist.
func NewMongoStore(ctx context.Context, opts MongoOptions) (*MongoStore, error) {
	if opts.Client == nil {
		return nil, errors.New("conversation: mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("conversation: database name is required")
	}
	conversationsName := opts.ConversationsCollection
	if conversationsName == "" {
		conversationsName = defaultConversationsCollection
	}
	messagesName := opts.MessagesCollection
	if messagesName == "" {
		messagesName = defaultMessagesCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	db := opts.Client.Database(opts.Database)
	conversations := db.Collection(conversationsName)
	messages := db.Collection(messagesName)

	indexCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ensureIndexes(indexCtx, conversations, messages); err != nil {
		return nil, err
	}

	return &MongoStore{
		mongo: opts.Client, conversations: conversations, messages: messages, timeout: timeout,
	}, nil
}

func (s *MongoStore) Name() string { return mongoClientName }

func (s *MongoStore) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.mongo.Ping(ctx, readpref.Primary())
}

type conversationDocument struct {
	ThreadID    string         `bson:"_id"`
	OwnerUserID string         `bson:"owner_user_id"`
	Title       string         `bson:"title"`
	Metadata    map[string]any `bson:"metadata,omitempty"`
	CreatedAt   time.Time      `bson:"created_at"`
	UpdatedAt   time.Time      `bson:"updated_at"`
}

type messageDocument struct {
	ThreadID  string                  `bson:"thread_id"`
	Role      string                  `bson:"role"`
	Content   string                  `bson:"content"`
	ToolCalls []graphruntime.ToolCall `bson:"tool_calls,omitempty"`
	Metadata  map[string]any          `bson:"metadata,omitempty"`
	CreatedAt time.Time               `bson:"created_at"`
}

func (s *MongoStore) GetOrCreate(ctx context.Context, threadID, owner, seedMessage string, metadata map[string]any) (string, Conversation, error) {
	if threadID == "" {
		threadID = bson.NewObjectID().Hex()
	}
	if existing, err := s.GetConversation(ctx, threadID); err == nil {
		return threadID, existing, nil
	} else if apierror.KindOf(err) != apierror.KindNotFound {
		return "", Conversation{}, err
	}

	now := time.Now().UTC()
	ctxT, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"_id": threadID}
	// Idempotent insert: a concurrent GetOrCreate for the same thread id
	// must never overwrite a conversation another caller just created.
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":           threadID,
			"owner_user_id": owner,
			"title":         deriveTitle(seedMessage),
			"metadata":      metadata,
			"created_at":    now,
			"updated_at":    now,
		},
	}
	if _, err := s.conversations.UpdateOne(ctxT, filter, update, options.UpdateOne().SetUpsert(true)); err != nil {
		return "", Conversation{}, apierror.TransientInfra("conversation.get_or_create", err)
	}

	c, err := s.GetConversation(ctx, threadID)
	if err != nil {
		return "", Conversation{}, err
	}
	return threadID, c, nil
}

func (s *MongoStore) GetConversation(ctx context.Context, threadID string) (Conversation, error) {
	ctxT, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc conversationDocument
	if err := s.conversations.FindOne(ctxT, bson.M{"_id": threadID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Conversation{}, apierror.NotFound("conversation.get", "conversation not found")
		}
		return Conversation{}, apierror.TransientInfra("conversation.get", err)
	}
	return Conversation{
		ThreadID: doc.ThreadID, OwnerUserID: doc.OwnerUserID, Title: doc.Title,
		Metadata: doc.Metadata, CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (s *MongoStore) AppendUserMessage(ctx context.Context, threadID, content string, metadata map[string]any) error {
	ctxT, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.messages.InsertOne(ctxT, messageDocument{
		ThreadID: threadID, Role: "user", Content: content,
		Metadata: metadata, CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return apierror.TransientInfra("conversation.append_user_message", err)
	}
	return nil
}

func (s *MongoStore) AppendAssistantMessage(ctx context.Context, threadID string, msgs []graphruntime.Message) (bool, error) {
	last, ok := lastAssistantMessage(msgs)
	if !ok {
		return false, nil
	}
	now := time.Now().UTC()
	var metadata map[string]any
	if len(last.ToolCalls) > 0 {
		metadata = map[string]any{"tool_calls": last.ToolCalls}
	}

	ctxT, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.messages.InsertOne(ctxT, messageDocument{
		ThreadID: threadID, Role: "assistant", Content: last.Content,
		ToolCalls: last.ToolCalls, Metadata: metadata, CreatedAt: now,
	}); err != nil {
		return false, apierror.TransientInfra("conversation.append_assistant_message", err)
	}

	if _, err := s.conversations.UpdateOne(ctxT, bson.M{"_id": threadID},
		bson.M{"$set": bson.M{"updated_at": now}}); err != nil {
		return false, apierror.TransientInfra("conversation.append_assistant_message", err)
	}
	return true, nil
}

func (s *MongoStore) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	ctxT, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.messages.Find(ctxT, bson.M{"thread_id": threadID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, apierror.TransientInfra("conversation.list_messages", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apierror.TransientInfra("conversation.list_messages", err)
	}
	out := make([]Message, len(docs))
	for i, d := range docs {
		out[i] = Message{
			ThreadID: d.ThreadID, Role: d.Role, Content: d.Content,
			ToolCalls: d.ToolCalls, Metadata: d.Metadata, CreatedAt: d.CreatedAt,
		}
	}
	return out, nil
}

func (s *MongoStore) SetInterruptMarker(ctx context.Context, threadID, graphID string) error {
	return s.updateMetadataField(ctx, threadID, metadataInterruptedGraphID, graphID)
}

func (s *MongoStore) ClearInterruptMarker(ctx context.Context, threadID string) error {
	ctxT, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.conversations.UpdateOne(ctxT, bson.M{"_id": threadID},
		bson.M{"$unset": bson.M{"metadata." + metadataInterruptedGraphID: ""}})
	if err != nil {
		return apierror.TransientInfra("conversation.clear_interrupt_marker", err)
	}
	return nil
}

func (s *MongoStore) updateMetadataField(ctx context.Context, threadID, field string, value any) error {
	ctxT, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.conversations.UpdateOne(ctxT, bson.M{"_id": threadID},
		bson.M{"$set": bson.M{"metadata." + field: value}})
	if err != nil {
		return apierror.TransientInfra("conversation.set_interrupt_marker", err)
	}
	return nil
}

func (s *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}

func ensureIndexes(ctx context.Context, conversations, messages *mongo.Collection) error {
	if _, err := messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "thread_id", Value: 1}, {Key: "created_at", Value: 1}},
	}); err != nil {
		return err
	}
	if _, err := conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner_user_id", Value: 1}},
	}); err != nil {
		return err
	}
	return nil
}
