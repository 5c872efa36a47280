package websocket

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"chatsync/internal/domain/entity"
	"chatsync/pkg/errors"
)

// WebSocket Message Types
const (
	// Client to server
	MessageTypePing                     = "ping"
	MessageTypeOpenChat                 = "open_chat"
	MessageTypeCloseChat                = "close_chat"
	MessageTypeSendMessage              = "send_message"
	MessageTypeMarkRead                 = "mark_read"
	MessageTypeMarkNotificationRead     = "mark_notification_read"
	MessageTypeMarkAllNotificationsRead = "mark_all_notifications_read"

	// Server to client
	MessageTypePong          = "pong"
	MessageTypeChatState     = "chat_state"
	MessageTypeChatList      = "chat_list"
	MessageTypeNotifications = "notifications"
	MessageTypeError         = "error"
)

// WSMessage is the envelope of every frame in both directions.
type WSMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
}

type OpenChatData struct {
	Target string `json:"target" validate:"required,email"`
}

type SendMessageData struct {
	Kind       string             `json:"kind" validate:"omitempty,oneof=text photo file"`
	Text       string             `json:"text"`
	Attachment *entity.Attachment `json:"attachment,omitempty"`
	SenderName string             `json:"sender_name"`
}

// Body converts the frame into a message body. An empty kind means text.
func (d SendMessageData) Body() entity.MessageBody {
	kind := entity.MessageKind(d.Kind)
	if kind == "" {
		kind = entity.MessageKindText
	}
	return entity.MessageBody{Kind: kind, Text: d.Text, Attachment: d.Attachment}
}

type MarkNotificationReadData struct {
	MessageID string `json:"message_id" validate:"required"`
	ChatID    string `json:"chat_id" validate:"required"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var validate = validator.New()

// DecodeMessage parses an inbound frame.
func DecodeMessage(raw []byte) (WSMessage, error) {
	var msg WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return WSMessage{}, errors.BadRequest("Invalid message format", err)
	}
	if msg.Type == "" {
		return WSMessage{}, errors.BadRequest("Message type is required", nil)
	}
	return msg, nil
}

// Bind decodes the payload into v and validates it.
func (m WSMessage) Bind(v interface{}) error {
	if len(m.Data) == 0 {
		return errors.BadRequest("Missing data for "+m.Type, nil)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.BadRequest("Invalid data for "+m.Type, err)
	}
	if err := validate.Struct(v); err != nil {
		return errors.BadRequest("Invalid data for "+m.Type, err)
	}
	return nil
}

// EncodeMessage builds an outbound frame.
func EncodeMessage(msgType string, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSMessage{
		Type:      msgType,
		Data:      payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// ErrorPayload renders err the way the HTTP layer does: AppErrors keep their
// code and message, anything else is an internal error.
func ErrorPayload(err error) ErrorData {
	if appErr, ok := errors.AsAppError(err); ok {
		return ErrorData{Code: appErr.Code, Message: appErr.Message}
	}
	return ErrorData{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}
}
