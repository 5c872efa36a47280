package entity

import "time"

// Notification is a derived view of one unread message addressed to the
// current user. It is never persisted.
type Notification struct {
	MessageID        string      `json:"id"`
	ConversationID   string      `json:"chat_id"`
	SenderID         string      `json:"sender_id"`
	SenderName       string      `json:"sender_name"`
	Preview          string      `json:"message"`
	Kind             MessageKind `json:"type"`
	Timestamp        time.Time   `json:"timestamp"`
	OtherParticipant string      `json:"other_participant"`
}

func (n Notification) Ref() MessageRef {
	return MessageRef{ConversationID: n.ConversationID, MessageID: n.MessageID}
}
