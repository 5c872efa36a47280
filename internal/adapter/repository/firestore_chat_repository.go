package repository

import (
	"context"
	stderrors "errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"chatsync/internal/domain/entity"
	"chatsync/internal/domain/repository"
	"chatsync/internal/infrastructure/livequery"
	"chatsync/pkg/errors"
	"chatsync/pkg/logger"
)

const (
	chatsCollection    = "chats"
	messagesCollection = "messages"

	// Firestore caps a transaction at 500 writes.
	maxBatchWrites = 500
)

// messageDoc is the stored shape of a message. The body is flattened into
// the "message" field and decoded back by "type".
type messageDoc struct {
	SenderID   string    `firestore:"senderId"`
	ReceiverID string    `firestore:"receiverId"`
	SenderName string    `firestore:"senderName"`
	Message    string    `firestore:"message"`
	Type       string    `firestore:"type"`
	Status     string    `firestore:"status"`
	Timestamp  time.Time `firestore:"timestamp"`
}

type firestoreChatRepository struct {
	client *firestore.Client
}

func NewFirestoreChatRepository(client *firestore.Client) repository.ChatRepository {
	return &firestoreChatRepository{
		client: client,
	}
}

func (r *firestoreChatRepository) messages(conversationID string) *firestore.CollectionRef {
	return r.client.Collection(chatsCollection).Doc(conversationID).Collection(messagesCollection)
}

func (r *firestoreChatRepository) EnsureConversation(ctx context.Context, id string, participants []string) error {
	_, err := r.client.Collection(chatsCollection).Doc(id).Create(ctx, map[string]interface{}{
		"participants": participants,
		"lastMessage":  "",
		"createdAt":    firestore.ServerTimestamp,
		"updatedAt":    firestore.ServerTimestamp,
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return storeError("Failed to create conversation", err)
	}
	return nil
}

func (r *firestoreChatRepository) GetConversation(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.client.Collection(chatsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, storeError("Failed to get conversation", err)
	}
	return conversationFromDoc(doc)
}

func (r *firestoreChatRepository) conversationsQuery(userID string) firestore.Query {
	return r.client.Collection(chatsCollection).Where("participants", "array-contains", userID)
}

func (r *firestoreChatRepository) ListConversations(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	iter := r.conversationsQuery(userID).Documents(ctx)
	defer iter.Stop()
	return collectConversations(iter)
}

func (r *firestoreChatRepository) UpdateConversationSummary(ctx context.Context, id, preview string) error {
	_, err := r.client.Collection(chatsCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "lastMessage", Value: preview},
		{Path: "lastMessageTime", Value: firestore.ServerTimestamp},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Conversation", err)
		}
		return storeError("Failed to update conversation", err)
	}
	return nil
}

func (r *firestoreChatRepository) CreateMessage(ctx context.Context, message *entity.Message) error {
	if message.ConversationID == "" {
		return errors.BadRequest("Message has no conversation", nil)
	}

	ref := r.messages(message.ConversationID).NewDoc()
	result, err := ref.Create(ctx, map[string]interface{}{
		"senderId":   message.SenderID,
		"receiverId": message.ReceiverID,
		"senderName": message.SenderName,
		"message":    message.Body.Encode(),
		"type":       string(message.Body.Kind),
		"status":     string(entity.MessageStatusSent),
		"timestamp":  firestore.ServerTimestamp,
	})
	if err != nil {
		return storeError("Failed to send message", err)
	}

	message.ID = ref.ID
	message.Status = entity.MessageStatusSent
	message.CreatedAt = result.UpdateTime
	message.Seq = result.UpdateTime.UnixNano()
	return nil
}

func (r *firestoreChatRepository) messagesQuery(conversationID string) firestore.Query {
	return r.messages(conversationID).OrderBy("timestamp", firestore.Asc)
}

func (r *firestoreChatRepository) ListMessages(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	iter := r.messagesQuery(conversationID).Documents(ctx)
	defer iter.Stop()
	return collectMessages(conversationID, iter)
}

// MarkMessagesRead runs one transaction per 500 refs. Messages already read
// are left untouched so a status never moves backwards.
func (r *firestoreChatRepository) MarkMessagesRead(ctx context.Context, refs []entity.MessageRef) (int, error) {
	total := 0
	for start := 0; start < len(refs); start += maxBatchWrites {
		end := start + maxBatchWrites
		if end > len(refs) {
			end = len(refs)
		}

		docRefs := make([]*firestore.DocumentRef, 0, end-start)
		for _, ref := range refs[start:end] {
			docRefs = append(docRefs, r.messages(ref.ConversationID).Doc(ref.MessageID))
		}

		changed := 0
		err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			changed = 0
			snaps, err := tx.GetAll(docRefs)
			if err != nil {
				return err
			}
			for _, snap := range snaps {
				if !snap.Exists() {
					continue
				}
				current, err := snap.DataAt("status")
				if err != nil {
					continue
				}
				s, _ := current.(string)
				if !entity.MessageStatus(s).CanAdvanceTo(entity.MessageStatusRead) {
					continue
				}
				if err := tx.Update(snap.Ref, []firestore.Update{
					{Path: "status", Value: string(entity.MessageStatusRead)},
				}); err != nil {
					return err
				}
				changed++
			}
			return nil
		})
		if err != nil {
			return total, storeError("Failed to mark messages as read", err)
		}
		total += changed
	}
	return total, nil
}

func (r *firestoreChatRepository) WatchMessages(ctx context.Context, conversationID string, onChange func([]*entity.Message), onError func(error)) (repository.Subscription, error) {
	query := r.messagesQuery(conversationID)
	source := func(ctx context.Context, emit func([]*entity.Message)) error {
		return watchQuery(ctx, query, func(iter *firestore.DocumentIterator) error {
			messages, err := collectMessages(conversationID, iter)
			if err != nil {
				return err
			}
			emit(messages)
			return nil
		})
	}
	return livequery.Watch(ctx, source, onChange, onError), nil
}

func (r *firestoreChatRepository) WatchConversations(ctx context.Context, userID string, onChange func([]*entity.Conversation), onError func(error)) (repository.Subscription, error) {
	query := r.conversationsQuery(userID)
	source := func(ctx context.Context, emit func([]*entity.Conversation)) error {
		return watchQuery(ctx, query, func(iter *firestore.DocumentIterator) error {
			conversations, err := collectConversations(iter)
			if err != nil {
				return err
			}
			emit(conversations)
			return nil
		})
	}
	return livequery.Watch(ctx, source, onChange, onError), nil
}

// watchQuery feeds every snapshot of query to handle until ctx is cancelled.
func watchQuery(ctx context.Context, query firestore.Query, handle func(*firestore.DocumentIterator) error) error {
	snapshots := query.Snapshots(ctx)
	defer snapshots.Stop()

	for {
		snap, err := snapshots.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return nil
			}
			logger.Warn("Live query stopped: %v", err)
			return storeError("Live query failed", err)
		}
		if err := handle(snap.Documents); err != nil {
			return err
		}
	}
}

func collectConversations(iter *firestore.DocumentIterator) ([]*entity.Conversation, error) {
	conversations := make([]*entity.Conversation, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, storeError("Failed to list conversations", err)
		}

		conversation, err := conversationFromDoc(doc)
		if err != nil {
			logger.Warn("Skipping conversation %s: %v", doc.Ref.ID, err)
			continue
		}
		conversations = append(conversations, conversation)
	}

	entity.SortConversations(conversations)
	return conversations, nil
}

func collectMessages(conversationID string, iter *firestore.DocumentIterator) ([]*entity.Message, error) {
	messages := make([]*entity.Message, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, storeError("Failed to list messages", err)
		}

		var d messageDoc
		if err := doc.DataTo(&d); err != nil {
			logger.Warn("Skipping message %s/%s: %v", conversationID, doc.Ref.ID, err)
			continue
		}

		messages = append(messages, &entity.Message{
			ID:             doc.Ref.ID,
			ConversationID: conversationID,
			SenderID:       d.SenderID,
			ReceiverID:     d.ReceiverID,
			SenderName:     d.SenderName,
			Body:           entity.DecodeMessageBody(d.Type, d.Message),
			Status:         entity.MessageStatus(d.Status),
			CreatedAt:      d.Timestamp,
			Seq:            doc.CreateTime.UnixNano(),
		})
	}

	entity.SortMessages(messages)
	return messages, nil
}

func conversationFromDoc(doc *firestore.DocumentSnapshot) (*entity.Conversation, error) {
	var conversation entity.Conversation
	if err := doc.DataTo(&conversation); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}
	conversation.ID = doc.Ref.ID
	return &conversation, nil
}

// storeError maps transport failures onto the connectivity part of the
// error taxonomy.
func storeError(message string, err error) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}

	switch status.Code(err) {
	case codes.Unavailable:
		return errors.Unavailable(message, err)
	case codes.DeadlineExceeded:
		return errors.Timeout(message, err)
	case codes.NotFound:
		return errors.NotFound("Document", err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Timeout(message, err)
	}
	return errors.Internal(message, err)
}
