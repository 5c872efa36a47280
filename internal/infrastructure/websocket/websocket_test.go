package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "chatsync/pkg/errors"
)

type frame struct {
	kind int
	data []byte
}

// fakeConn feeds inbound frames from a channel and records writes.
type fakeConn struct {
	inbound chan []byte

	mu      sync.Mutex
	written []frame
	closed  bool
	closeCh chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16), closeCh: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg, ok := <-c.inbound:
		if !ok {
			return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
		}
		return websocket.TextMessage, msg, nil
	case <-c.closeCh:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(kind int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("use of closed connection")
	}
	c.written = append(c.written, frame{kind: kind, data: data})
	return nil
}

func (c *fakeConn) SetReadLimit(int64) {}
func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetPongHandler(func(appData string) error) {}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closeCh)
	}
	return nil
}

func (c *fakeConn) frames() []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]frame(nil), c.written...)
}

func decodeFrame(t *testing.T, f frame) WSMessage {
	t.Helper()
	var msg WSMessage
	require.NoError(t, json.Unmarshal(f.data, &msg))
	return msg
}

func TestDecodeMessage(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type":"open_chat","data":{"target":"b@x.com"}}`))
	require.NoError(t, err)
	assert.Equal(t, MessageTypeOpenChat, msg.Type)

	var data OpenChatData
	require.NoError(t, msg.Bind(&data))
	assert.Equal(t, "b@x.com", data.Target)

	_, err = DecodeMessage([]byte(`not json`))
	assert.True(t, apperrors.Is(err, "BAD_REQUEST"))

	_, err = DecodeMessage([]byte(`{"data":{}}`))
	assert.True(t, apperrors.Is(err, "BAD_REQUEST"))
}

func TestBindValidates(t *testing.T) {
	msg := WSMessage{Type: MessageTypeOpenChat, Data: json.RawMessage(`{"target":"not-an-email"}`)}
	assert.True(t, apperrors.Is(msg.Bind(&OpenChatData{}), "BAD_REQUEST"))

	msg = WSMessage{Type: MessageTypeOpenChat}
	assert.True(t, apperrors.Is(msg.Bind(&OpenChatData{}), "BAD_REQUEST"))

	msg = WSMessage{Type: MessageTypeSendMessage, Data: json.RawMessage(`{"kind":"video"}`)}
	assert.True(t, apperrors.Is(msg.Bind(&SendMessageData{}), "BAD_REQUEST"))

	msg = WSMessage{Type: MessageTypeMarkNotificationRead, Data: json.RawMessage(`{"message_id":"m1"}`)}
	assert.True(t, apperrors.Is(msg.Bind(&MarkNotificationReadData{}), "BAD_REQUEST"))
}

func TestSendMessageDataBody(t *testing.T) {
	body := SendMessageData{Text: "hi"}.Body()
	assert.Equal(t, "text", string(body.Kind))
	assert.Equal(t, "hi", body.Text)
}

func TestEncodeMessageAndErrorPayload(t *testing.T) {
	raw, err := EncodeMessage(MessageTypeError, ErrorPayload(apperrors.Timeout("Failed to initialize chat", nil)))
	require.NoError(t, err)

	var msg WSMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, MessageTypeError, msg.Type)
	assert.NotEmpty(t, msg.Timestamp)
	assert.JSONEq(t, `{"code":"TIMEOUT","message":"Failed to initialize chat"}`, string(msg.Data))

	assert.Equal(t, "INTERNAL_ERROR", ErrorPayload(errors.New("boom")).Code)
}

func TestClient_PumpsFramesInOrder(t *testing.T) {
	conn := newFakeConn()
	client := NewClient("a@x.com", conn)

	var mu sync.Mutex
	var received []string
	readDone := make(chan struct{})
	go func() {
		client.ReadPump(func(raw []byte) {
			mu.Lock()
			received = append(received, string(raw))
			mu.Unlock()
		})
		close(readDone)
	}()
	writeDone := make(chan struct{})
	go func() {
		client.WritePump()
		close(writeDone)
	}()

	conn.inbound <- []byte("one")
	conn.inbound <- []byte("two")
	require.True(t, client.SendMessage(MessageTypePong, map[string]string{"status": "alive"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"one", "two"}, received)

	require.Eventually(t, func() bool { return len(conn.frames()) >= 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, MessageTypePong, decodeFrame(t, conn.frames()[0]).Type)

	close(conn.inbound)
	<-readDone
	<-writeDone

	assert.True(t, client.Closed())
	assert.False(t, client.SendMessage(MessageTypePong, nil))
}

func TestClient_FullBufferClosesClient(t *testing.T) {
	client := NewClient("a@x.com", newFakeConn())
	for i := 0; i < sendBufferSize; i++ {
		require.True(t, client.Send([]byte("x")))
	}
	assert.False(t, client.Send([]byte("overflow")))
	assert.True(t, client.Closed())
}

type presenceEvent struct {
	user   string
	online bool
}

func TestManager_PresenceTransitions(t *testing.T) {
	var mu sync.Mutex
	var events []presenceEvent
	m := NewManager(func(user string, online bool) {
		mu.Lock()
		events = append(events, presenceEvent{user, online})
		mu.Unlock()
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	first := NewClient("a@x.com", newFakeConn())
	second := NewClient("a@x.com", newFakeConn())

	m.Register(first)
	m.Register(second)
	require.Eventually(t, func() bool { return m.Connections("a@x.com") == 2 }, time.Second, 5*time.Millisecond)

	m.Unregister(first)
	m.Unregister(first)
	require.Eventually(t, func() bool { return m.Connections("a@x.com") == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, first.Closed())

	m.Unregister(second)
	require.Eventually(t, func() bool { return m.Count() == 0 }, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []presenceEvent{{"a@x.com", true}, {"a@x.com", false}}, events)
}

func TestManager_DisconnectUser(t *testing.T) {
	m := NewManager(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	a := NewClient("a@x.com", newFakeConn())
	b := NewClient("b@x.com", newFakeConn())
	m.Register(a)
	m.Register(b)
	require.Eventually(t, func() bool { return m.Count() == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, m.DisconnectUser("a@x.com"))
	assert.True(t, a.Closed())
	assert.False(t, b.Closed())
}

func TestManager_StopClosesClients(t *testing.T) {
	m := NewManager(nil)
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)

	client := NewClient("a@x.com", newFakeConn())
	m.Register(client)
	require.Eventually(t, func() bool { return m.Count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, client.Closed, time.Second, 5*time.Millisecond)

	late := NewClient("b@x.com", newFakeConn())
	m.Register(late)
	assert.True(t, late.Closed())
	m.Unregister(late)
}
