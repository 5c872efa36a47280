package entity

import (
	"encoding/json"
	"sort"
	"time"
)

type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindPhoto MessageKind = "photo"
	MessageKindFile  MessageKind = "file"
)

func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindPhoto, MessageKindFile:
		return true
	}
	return false
}

// MessageStatus only ever moves forward: sent -> delivered -> read.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

func (s MessageStatus) rank() int {
	switch s {
	case MessageStatusSent:
		return 1
	case MessageStatusDelivered:
		return 2
	case MessageStatusRead:
		return 3
	}
	return 0
}

func (s MessageStatus) Valid() bool {
	return s.rank() > 0
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
func (s MessageStatus) CanAdvanceTo(next MessageStatus) bool {
	return next.Valid() && next.rank() > s.rank()
}

// Attachment is the payload of photo and file messages.
type Attachment struct {
	URL          string `json:"url"`
	FileName     string `json:"fileName,omitempty"`
	FileType     string `json:"fileType,omitempty"`
	FileSize     int64  `json:"fileSize,omitempty"`
	Format       string `json:"format,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	PublicID     string `json:"publicId,omitempty"`
	ResourceType string `json:"resourceType,omitempty"`
}

// MessageBody is a tagged union: Text is set for text messages, Attachment
// for photo and file messages.
type MessageBody struct {
	Kind       MessageKind `json:"kind"`
	Text       string      `json:"text,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

func TextBody(text string) MessageBody {
	return MessageBody{Kind: MessageKindText, Text: text}
}

func PhotoBody(a Attachment) MessageBody {
	return MessageBody{Kind: MessageKindPhoto, Attachment: &a}
}

func FileBody(a Attachment) MessageBody {
	return MessageBody{Kind: MessageKindFile, Attachment: &a}
}

var fileTypeEmoji = map[string]string{
	"image":        "🖼️",
	"video":        "🎬",
	"audio":        "🎵",
	"pdf":          "📄",
	"document":     "📝",
	"spreadsheet":  "📊",
	"presentation": "📊",
	"text":         "📃",
	"archive":      "🗜️",
}

// Preview is the conversation-list text for this body.
func (b MessageBody) Preview() string {
	switch b.Kind {
	case MessageKindPhoto:
		return "📷 Photo"
	case MessageKindFile:
		if b.Attachment == nil || b.Attachment.FileName == "" {
			return "📎 File"
		}
		emoji, ok := fileTypeEmoji[b.Attachment.FileType]
		if !ok {
			emoji = "📎"
		}
		return emoji + " " + b.Attachment.FileName
	default:
		return b.Text
	}
}

// Encode flattens the body into the stored "message" field: plain text for
// text messages, attachment JSON otherwise.
func (b MessageBody) Encode() string {
	if b.Kind == MessageKindText || b.Attachment == nil {
		return b.Text
	}
	raw, err := json.Marshal(b.Attachment)
	if err != nil {
		return b.Attachment.URL
	}
	return string(raw)
}

// DecodeMessageBody is the inverse of Encode. Unknown kinds decode as text;
// attachment payloads that are not JSON are taken as a bare URL.
func DecodeMessageBody(kind string, raw string) MessageBody {
	k := MessageKind(kind)
	if k != MessageKindPhoto && k != MessageKindFile {
		return TextBody(raw)
	}

	var a Attachment
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		a = Attachment{URL: raw}
	}
	return MessageBody{Kind: k, Attachment: &a}
}

type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	ReceiverID     string        `json:"receiver_id"`
	SenderName     string        `json:"sender_name"`
	Body           MessageBody   `json:"body"`
	Status         MessageStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	// Seq is the store's insertion order, used to break timestamp ties.
	Seq int64 `json:"-"`
}

func (m *Message) Clone() *Message {
	c := *m
	if m.Body.Attachment != nil {
		a := *m.Body.Attachment
		c.Body.Attachment = &a
	}
	return &c
}

// IsUnreadFor reports whether m is addressed to userID and not yet read.
func (m *Message) IsUnreadFor(userID string) bool {
	return m.ReceiverID == userID && m.Status != MessageStatusRead
}

func (m *Message) Ref() MessageRef {
	return MessageRef{ConversationID: m.ConversationID, MessageID: m.ID}
}

// SortMessages orders ascending by timestamp, then insertion order.
func SortMessages(messages []*Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		a, b := messages[i], messages[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Seq < b.Seq
	})
}

type MessageRef struct {
	ConversationID string `json:"chat_id"`
	MessageID      string `json:"message_id"`
}
