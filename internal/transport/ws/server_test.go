package ws

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sachinggsingh/synceditor-relay/internal/auth"
	"github.com/sachinggsingh/synceditor-relay/internal/registry"
)

// stubVerifier accepts any token except "expired".
type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, token string) (auth.Identity, error) {
	if token == "" {
		return auth.Identity{}, &auth.AuthError{Reason: "authentication required"}
	}
	if token == "expired" {
		return auth.Identity{}, &auth.AuthError{Reason: "invalid or expired token"}
	}
	return auth.Identity{Subject: "user_" + token, SessionID: "sess_" + token}, nil
}

type gatewayFixture struct {
	reg *registry.Registry
	srv *httptest.Server
}

func newGateway(t *testing.T, maxMembers int) *gatewayFixture {
	t.Helper()
	reg := registry.New(maxMembers)
	router := registry.NewRouter(reg)
	gw := NewServer(reg, router, stubVerifier{}, "")

	srv := httptest.NewServer(http.HandlerFunc(gw.HandleWS))
	t.Cleanup(srv.Close)
	return &gatewayFixture{reg: reg, srv: srv}
}

func (f *gatewayFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "?access_token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, evtType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Message{Type: evtType, Payload: raw}))
}

func recvEvent(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func recvTyped[T any](t *testing.T, conn *websocket.Conn, wantType string) T {
	t.Helper()
	msg := recvEvent(t, conn)
	require.Equal(t, wantType, msg.Type, "payload: %s", msg.Payload)
	var p T
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	return p
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("expected no event, but received one")
	}
	netErr, ok := err.(net.Error)
	require.True(t, ok && netErr.Timeout(), "unexpected read error: %v", err)
}

func join(t *testing.T, conn *websocket.Conn, roomID, username string) UserJoinedPayload {
	t.Helper()
	send(t, conn, EvtJoin, JoinPayload{RoomID: roomID, Username: username})
	return recvTyped[UserJoinedPayload](t, conn, EvtUserJoined)
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	f := newGateway(t, 5)
	base := "ws" + strings.TrimPrefix(f.srv.URL, "http")

	for _, token := range []string{"", "expired"} {
		_, resp, err := websocket.DefaultDialer.Dial(base+"?access_token="+token, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestJoinBroadcastAndDisconnect(t *testing.T) {
	f := newGateway(t, 5)

	a := f.dial(t, "alice")
	joinedA := join(t, a, "r1", "Ann")
	require.Len(t, joinedA.Clients, 1)
	assert.Equal(t, "Ann", joinedA.Clients[0].Username)

	b := f.dial(t, "bob")
	joinedB := join(t, b, "r1", "Bob")
	require.Len(t, joinedB.Clients, 2)
	bID := joinedB.SocketID

	// A sees B's arrival with the full member list
	seenByA := recvTyped[UserJoinedPayload](t, a, EvtUserJoined)
	assert.Equal(t, "Bob", seenByA.Username)
	assert.Len(t, seenByA.Clients, 2)

	require.NoError(t, b.Close())

	gone := recvTyped[UserLeftPayload](t, a, EvtUserDisconnected)
	assert.Equal(t, bID, gone.SocketID)
	assert.Equal(t, "Bob", gone.Username)

	require.Eventually(t, func() bool {
		return len(f.reg.ListMembers("r1")) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestJoinValidation(t *testing.T) {
	f := newGateway(t, 5)
	c := f.dial(t, "alice")

	send(t, c, EvtJoin, JoinPayload{RoomID: "bad room!", Username: "Ann"})
	errEvt := recvTyped[ErrorPayload](t, c, EvtError)
	assert.Contains(t, errEvt.Message, "Room ID")

	send(t, c, EvtJoin, JoinPayload{RoomID: "r1", Username: "x"})
	errEvt = recvTyped[ErrorPayload](t, c, EvtError)
	assert.Contains(t, errEvt.Message, "Username")

	assert.Empty(t, f.reg.ListMembers("r1"))
}

func TestRoomFull(t *testing.T) {
	f := newGateway(t, 5)

	for i := 0; i < 5; i++ {
		c := f.dial(t, "u"+string(rune('a'+i)))
		send(t, c, EvtJoin, JoinPayload{RoomID: "full-room", Username: "user-ok"})
		recvTyped[UserJoinedPayload](t, c, EvtUserJoined)
	}

	sixth := f.dial(t, "late")
	send(t, sixth, EvtJoin, JoinPayload{RoomID: "full-room", Username: "latecomer"})
	errEvt := recvTyped[ErrorPayload](t, sixth, EvtError)
	assert.Equal(t, "Room is full", errEvt.Message)
	assert.Len(t, f.reg.ListMembers("full-room"), 5)
}

func TestCodeChangeSkipsSender(t *testing.T) {
	f := newGateway(t, 5)

	a := f.dial(t, "alice")
	join(t, a, "r1", "Ann")
	b := f.dial(t, "bob")
	join(t, b, "r1", "Bob")
	recvTyped[UserJoinedPayload](t, a, EvtUserJoined)

	send(t, a, EvtCodeChange, CodeChangePayload{RoomID: "r1", Code: "print(1)"})

	got := recvTyped[CodeChangeBroadcast](t, b, EvtCodeChange)
	assert.Equal(t, "print(1)", got.Code)
	assert.Equal(t, "Ann", got.Sender)

	expectSilence(t, a)
}

func TestSendMessageReachesEveryoneIncludingSender(t *testing.T) {
	f := newGateway(t, 5)

	a := f.dial(t, "alice")
	join(t, a, "r1", "Ann")
	b := f.dial(t, "bob")
	join(t, b, "r1", "Bob")
	recvTyped[UserJoinedPayload](t, a, EvtUserJoined)

	send(t, a, EvtSendMessage, SendMessagePayload{RoomID: "r1", Message: "hi all", Time: "1:23 PM"})

	for _, conn := range []*websocket.Conn{a, b} {
		got := recvTyped[ReceiveMessagePayload](t, conn, EvtReceiveMessage)
		assert.Equal(t, "hi all", got.Message)
		assert.Equal(t, "Ann", got.Sender)
		assert.Equal(t, "1:23 PM", got.Time)
	}
}

func TestOversizedMessageIsRejectedWithoutBroadcast(t *testing.T) {
	f := newGateway(t, 5)

	a := f.dial(t, "alice")
	join(t, a, "r1", "Ann")
	b := f.dial(t, "bob")
	join(t, b, "r1", "Bob")
	recvTyped[UserJoinedPayload](t, a, EvtUserJoined)

	send(t, a, EvtSendMessage, SendMessagePayload{
		RoomID:  "r1",
		Message: strings.Repeat("m", 1001),
	})

	recvTyped[ErrorPayload](t, a, EvtError)
	expectSilence(t, b)
}

func TestCodeSizeBoundary(t *testing.T) {
	f := newGateway(t, 5)

	a := f.dial(t, "alice")
	join(t, a, "r1", "Ann")
	b := f.dial(t, "bob")
	join(t, b, "r1", "Bob")
	recvTyped[UserJoinedPayload](t, a, EvtUserJoined)

	// ровно 100000 — проходит
	send(t, a, EvtCodeChange, CodeChangePayload{RoomID: "r1", Code: strings.Repeat("x", 100_000)})
	got := recvTyped[CodeChangeBroadcast](t, b, EvtCodeChange)
	assert.Len(t, got.Code, 100_000)

	// 100001 — отказ отправителю, без рассылки
	send(t, a, EvtCodeChange, CodeChangePayload{RoomID: "r1", Code: strings.Repeat("x", 100_001)})
	recvTyped[ErrorPayload](t, a, EvtError)
	expectSilence(t, b)
}

func TestSyncCodeIsUnicast(t *testing.T) {
	f := newGateway(t, 5)

	a := f.dial(t, "alice")
	join(t, a, "r1", "Ann")
	b := f.dial(t, "bob")
	joinedB := join(t, b, "r1", "Bob")
	recvTyped[UserJoinedPayload](t, a, EvtUserJoined)
	c := f.dial(t, "carol")
	join(t, c, "r1", "Carol")
	recvTyped[UserJoinedPayload](t, a, EvtUserJoined)
	recvTyped[UserJoinedPayload](t, b, EvtUserJoined)

	send(t, a, EvtSyncCode, SyncCodePayload{SocketID: joinedB.SocketID, Code: "shared state"})

	got := recvTyped[CodeSyncPayload](t, b, EvtCodeSync)
	assert.Equal(t, "shared state", got.Code)
	expectSilence(t, c)
}

func TestLeaveRoundTrip(t *testing.T) {
	f := newGateway(t, 5)

	a := f.dial(t, "alice")
	join(t, a, "abc-123", "Ann")

	send(t, a, EvtLeave, LeavePayload{RoomID: "abc-123", Username: "Ann"})

	require.Eventually(t, func() bool {
		return len(f.reg.ListMembers("abc-123")) == 0
	}, 2*time.Second, 20*time.Millisecond)

	// after leave the session is no longer in the room
	send(t, a, EvtSendMessage, SendMessagePayload{RoomID: "abc-123", Message: "ghost"})
	errEvt := recvTyped[ErrorPayload](t, a, EvtError)
	assert.Contains(t, errEvt.Message, "not in this room")
}

func TestEventsOutsideRoomAreRejected(t *testing.T) {
	f := newGateway(t, 5)
	c := f.dial(t, "alice")

	send(t, c, EvtCodeChange, CodeChangePayload{RoomID: "r1", Code: "x"})
	recvTyped[ErrorPayload](t, c, EvtError)

	send(t, c, EvtSyncCode, SyncCodePayload{SocketID: "whoever", Code: "x"})
	recvTyped[ErrorPayload](t, c, EvtError)
}

func TestMalformedFrameKeepsChannelOpen(t *testing.T) {
	f := newGateway(t, 5)
	c := f.dial(t, "alice")

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("{not json")))
	recvTyped[ErrorPayload](t, c, EvtError)

	// канал жив, join проходит
	join(t, c, "r1", "Ann")
}
