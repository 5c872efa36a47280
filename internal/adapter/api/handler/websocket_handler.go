package handler

import (
	"context"
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"chatsync/internal/adapter/api/middleware"
	ws "chatsync/internal/infrastructure/websocket"
	"chatsync/internal/usecase"
	"chatsync/pkg/errors"
	"chatsync/pkg/logger"
	"chatsync/pkg/response"
)

type WebSocketHandler struct {
	ctx         context.Context
	wsManager   *ws.Manager
	tokens      usecase.TokenVerifier
	chatUseCase *usecase.ChatUseCase
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewWebSocketHandler builds the handler. Sessions live until their
// connection closes or ctx ends.
func NewWebSocketHandler(ctx context.Context, wsManager *ws.Manager, tokens usecase.TokenVerifier, chatUseCase *usecase.ChatUseCase) *WebSocketHandler {
	return &WebSocketHandler{
		ctx:         ctx,
		wsManager:   wsManager,
		tokens:      tokens,
		chatUseCase: chatUseCase,
	}
}

// HandleWebSocket authenticates with ?token= (browsers cannot set headers on
// WebSocket requests) or a bearer header, then serves one UserSession over
// the upgraded connection.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		token, _ = middleware.BearerToken(c.Request().Header.Get("Authorization"))
	}
	if token == "" {
		return response.Error(c, errors.Unauthorized("Authentication required", nil))
	}

	claims, err := h.tokens.VerifyToken(token)
	if err != nil {
		return response.Error(c, err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		logger.Warn("WebSocket: Upgrade for %s failed: %v", claims.Subject, err)
		return nil
	}

	client := ws.NewClient(claims.Subject, conn)
	peer := &wsPeer{client: client, name: claims.Name, ctx: h.ctx}
	go client.WritePump()

	session, err := h.chatUseCase.StartSession(h.ctx, claims.Subject, peer)
	if err != nil {
		logger.Error("WebSocket: Failed to start session for %s: %v", claims.Subject, err)
		client.SendError(err)
		client.Close()
		return nil
	}
	peer.session = session

	h.wsManager.Register(client)

	go func() {
		client.ReadPump(peer.dispatch)
		session.Close()
		h.wsManager.Unregister(client)
	}()

	return nil
}

// wsPeer forwards session state to one connection and executes its commands.
type wsPeer struct {
	client  *ws.Client
	session *usecase.UserSession
	name    string
	ctx     context.Context
}

func (p *wsPeer) ChatStateChanged(state usecase.ChatSessionState) {
	p.client.SendMessage(ws.MessageTypeChatState, state)
}

func (p *wsPeer) ChatListChanged(summaries []usecase.ConversationSummary) {
	p.client.SendMessage(ws.MessageTypeChatList, summaries)
}

func (p *wsPeer) NotificationsChanged(feed usecase.NotificationFeed) {
	p.client.SendMessage(ws.MessageTypeNotifications, feed)
}

func (p *wsPeer) SessionError(stage string, err error) {
	logger.Debug("WebSocket: %s error for %s: %v", stage, p.client.UserID, err)
	p.client.SendError(err)
}

func (p *wsPeer) dispatch(raw []byte) {
	msg, err := ws.DecodeMessage(raw)
	if err == nil {
		err = p.handle(msg)
	}
	if err != nil {
		p.client.SendError(err)
	}
}

func (p *wsPeer) handle(msg ws.WSMessage) error {
	switch msg.Type {
	case ws.MessageTypePing:
		p.client.SendMessage(ws.MessageTypePong, map[string]string{"status": "alive"})
		return nil

	case ws.MessageTypeOpenChat:
		var data ws.OpenChatData
		if err := msg.Bind(&data); err != nil {
			return err
		}
		return p.session.Chat.Open(p.ctx, data.Target)

	case ws.MessageTypeCloseChat:
		p.session.Chat.Close()
		return nil

	case ws.MessageTypeSendMessage:
		var data ws.SendMessageData
		if err := msg.Bind(&data); err != nil {
			return err
		}
		senderName := data.SenderName
		if senderName == "" {
			senderName = p.name
		}
		_, err := p.session.Chat.Send(p.ctx, data.Body(), senderName)
		return err

	case ws.MessageTypeMarkRead:
		_, err := p.session.Chat.MarkAsRead(p.ctx)
		return err

	case ws.MessageTypeMarkNotificationRead:
		var data ws.MarkNotificationReadData
		if err := msg.Bind(&data); err != nil {
			return err
		}
		return p.session.Notifications.MarkOneAsRead(p.ctx, data.MessageID, data.ChatID)

	case ws.MessageTypeMarkAllNotificationsRead:
		_, err := p.session.Notifications.MarkAllAsRead(p.ctx)
		return err

	default:
		logger.Debug("WebSocket: Unknown message type '%s' from %s", msg.Type, p.client.UserID)
		return errors.BadRequest("Unknown message type: "+msg.Type, nil)
	}
}
