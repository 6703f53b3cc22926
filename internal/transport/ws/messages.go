package ws

import (
	"encoding/json"

	"github.com/sachinggsingh/synceditor-relay/internal/domain"
)

// Типы событий, которые ходят по каналу
const (
	// client -> server
	EvtJoin        = "join"
	EvtLeave       = "leave"
	EvtCodeChange  = "code-change"
	EvtSyncCode    = "sync-code"
	EvtSendMessage = "send-message"
	EvtCodeOutput  = "code-output"

	// server -> client
	EvtUserJoined       = "user-joined"
	EvtUserLeft         = "user-left"
	EvtUserDisconnected = "user-disconnected"
	EvtCodeSync         = "code-sync"
	EvtReceiveMessage   = "receive-message"
	EvtError            = "error"
)

type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type JoinPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type LeavePayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type CodeChangePayload struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
	Sender string `json:"sender"`
}

type SyncCodePayload struct {
	SocketID string `json:"socketId"`
	Code     string `json:"code"`
}

type SendMessagePayload struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
	Sender  string `json:"sender"`
	Time    string `json:"time"`
}

type CodeOutputPayload struct {
	RoomID string `json:"roomId"`
	Output string `json:"output"`
	Sender string `json:"sender"`
}

type UserJoinedPayload struct {
	Clients  []domain.Member `json:"clients"`
	Username string          `json:"username"`
	SocketID string          `json:"socketId"`
}

type UserLeftPayload struct {
	SocketID string `json:"socketId"`
	Username string `json:"username"`
}

type CodeChangeBroadcast struct {
	Code   string `json:"code"`
	Sender string `json:"sender"`
}

type CodeSyncPayload struct {
	Code string `json:"code"`
}

type ReceiveMessagePayload struct {
	Message string `json:"message"`
	Sender  string `json:"sender"`
	Time    string `json:"time"`
}

type CodeOutputBroadcast struct {
	Output string `json:"output"`
	Sender string `json:"sender"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
