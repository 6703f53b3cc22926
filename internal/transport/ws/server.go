package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sachinggsingh/synceditor-relay/internal/auth"
	"github.com/sachinggsingh/synceditor-relay/internal/domain"
	"github.com/sachinggsingh/synceditor-relay/internal/registry"
	"github.com/sachinggsingh/synceditor-relay/internal/validate"
)

// Server is the session gateway: it authenticates the handshake, owns every
// connection for its lifetime, and routes inbound events through validation,
// the registry and the broadcast router.
type Server struct {
	upgrader websocket.Upgrader
	reg      *registry.Registry
	router   *registry.Router
	verifier auth.Verifier

	pingEvery time.Duration
	pongWait  time.Duration
}

func NewServer(reg *registry.Registry, router *registry.Router, verifier auth.Verifier, frontendURL string) *Server {
	return &Server{
		reg:      reg,
		router:   router,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || frontendURL == "" || origin == frontendURL
			},
		},
		pingEvery: 30 * time.Second,
		pongWait:  120 * time.Second,
	}
}

// session is the per-connection state machine. The read loop is its single
// owner, so the room set needs no lock.
type session struct {
	conn  *wsConn
	rooms map[string]struct{}
}

// WS endpoint: GET /ws?access_token=...
//
// Verification happens once, before the upgrade: a bad token never becomes a
// channel. There is no anonymous fallback.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("access_token"))

	identity, err := s.verifier.Verify(r.Context(), token)
	if err != nil {
		var authErr *auth.AuthError
		if errors.As(err, &authErr) {
			slog.Warn("ws auth rejected", "reason", authErr.Reason)
			http.Error(w, authErr.Reason, http.StatusUnauthorized)
			return
		}
		slog.Error("ws auth failed", "err", err)
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(conn, uuid.NewString(), identity)
	sess := &session{conn: c, rooms: make(map[string]struct{})}
	slog.Info("ws connected", "socket", c.id, "subject", identity.Subject)

	go s.writeLoop(c)
	s.readLoop(sess)

	// транспорт закрылся — вычищаем членство и оповещаем комнаты
	for _, ev := range s.reg.Evict(c.id) {
		s.router.NotifyOthers(ev.RoomID, c.id, registry.Event{
			Type: EvtUserDisconnected,
			Payload: UserLeftPayload{
				SocketID: c.id,
				Username: ev.Username,
			},
		})
	}
	slog.Info("ws disconnected", "socket", c.id)

	if err := c.Close(); err != nil {
		slog.Debug("ws close failed", "socket", c.id, "err", err)
	}
}

func (s *Server) readLoop(sess *session) {
	c := sess.conn
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(1 << 20)
	c.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(s.pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(c, "invalid message")
			continue
		}
		s.dispatch(sess, msg)
	}
}

// dispatch handles one inbound event end to end. Nothing here may crash the
// process: faults become an error event back to the sender.
func (s *Server) dispatch(sess *session, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ws event panic", "socket", sess.conn.id, "type", msg.Type, "panic", r)
			s.sendError(sess.conn, "internal error")
		}
	}()

	switch msg.Type {
	case EvtJoin:
		var p JoinPayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			s.sendError(sess.conn, "invalid payload")
			return
		}
		s.handleJoin(sess, p)
	case EvtLeave:
		var p LeavePayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			s.sendError(sess.conn, "invalid payload")
			return
		}
		s.handleLeave(sess, p)
	case EvtCodeChange:
		var p CodeChangePayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			s.sendError(sess.conn, "invalid payload")
			return
		}
		s.handleCodeChange(sess, p)
	case EvtSyncCode:
		var p SyncCodePayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			s.sendError(sess.conn, "invalid payload")
			return
		}
		s.handleSyncCode(sess, p)
	case EvtSendMessage:
		var p SendMessagePayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			s.sendError(sess.conn, "invalid payload")
			return
		}
		s.handleSendMessage(sess, p)
	case EvtCodeOutput:
		var p CodeOutputPayload
		if json.Unmarshal(msg.Payload, &p) != nil {
			s.sendError(sess.conn, "invalid payload")
			return
		}
		s.handleCodeOutput(sess, p)
	default:
		slog.Debug("ws unknown event", "socket", sess.conn.id, "type", msg.Type)
	}
}

func (s *Server) handleJoin(sess *session, p JoinPayload) {
	roomID, err := validate.RoomID(p.RoomID)
	if err != nil {
		s.reject(sess.conn, err)
		return
	}
	username, err := validate.Username(p.Username)
	if err != nil {
		s.reject(sess.conn, err)
		return
	}

	members, err := s.reg.Admit(roomID, sess.conn, username)
	if err != nil {
		if errors.Is(err, domain.ErrRoomFull) {
			s.sendError(sess.conn, "Room is full")
			return
		}
		slog.Error("ws admit failed", "socket", sess.conn.id, "room", roomID, "err", err)
		s.sendError(sess.conn, "could not join room")
		return
	}
	sess.rooms[roomID] = struct{}{}

	evt := registry.Event{
		Type: EvtUserJoined,
		Payload: UserJoinedPayload{
			Clients:  members,
			Username: username,
			SocketID: sess.conn.id,
		},
	}
	// подтверждение самому + оповещение остальных, эха нет
	_ = sess.conn.Send(evt)
	s.router.NotifyOthers(roomID, sess.conn.id, evt)
	slog.Info("user joined", "room", roomID, "socket", sess.conn.id, "username", username)
}

func (s *Server) handleLeave(sess *session, p LeavePayload) {
	roomID, err := validate.RoomID(p.RoomID)
	if err != nil {
		s.reject(sess.conn, err)
		return
	}
	if err := sess.inRoom(roomID); err != nil {
		s.reject(sess.conn, err)
		return
	}

	username := s.reg.Username(sess.conn.id)
	s.reg.Leave(roomID, sess.conn.id)
	delete(sess.rooms, roomID)

	s.router.NotifyOthers(roomID, sess.conn.id, registry.Event{
		Type: EvtUserLeft,
		Payload: UserLeftPayload{
			SocketID: sess.conn.id,
			Username: username,
		},
	})
	slog.Info("user left", "room", roomID, "socket", sess.conn.id)
}

func (s *Server) handleCodeChange(sess *session, p CodeChangePayload) {
	if err := sess.inRoom(p.RoomID); err != nil {
		s.reject(sess.conn, err)
		return
	}
	code, err := validate.Code(p.Code)
	if err != nil {
		s.reject(sess.conn, err)
		return
	}

	// last write wins: без версий, свежий снапшот просто замещает предыдущий
	s.router.NotifyOthers(p.RoomID, sess.conn.id, registry.Event{
		Type: EvtCodeChange,
		Payload: CodeChangeBroadcast{
			Code:   code,
			Sender: s.reg.Username(sess.conn.id),
		},
	})
}

func (s *Server) handleSyncCode(sess *session, p SyncCodePayload) {
	if len(sess.rooms) == 0 {
		s.sendError(sess.conn, "you are not in a room")
		return
	}
	code, err := validate.Code(p.Code)
	if err != nil {
		s.reject(sess.conn, err)
		return
	}

	s.router.NotifyDirect(p.SocketID, registry.Event{
		Type:    EvtCodeSync,
		Payload: CodeSyncPayload{Code: code},
	})
}

func (s *Server) handleSendMessage(sess *session, p SendMessagePayload) {
	if err := sess.inRoom(p.RoomID); err != nil {
		s.reject(sess.conn, err)
		return
	}
	text, err := validate.ChatMessage(p.Message)
	if err != nil {
		s.reject(sess.conn, err)
		return
	}

	ts := strings.TrimSpace(p.Time)
	if ts == "" {
		ts = time.Now().Format("3:04 PM")
	}

	// всем, включая отправителя: единственная авторитетная копия.
	// Дедупликация локального эха — забота клиента.
	s.router.NotifyAll(p.RoomID, registry.Event{
		Type: EvtReceiveMessage,
		Payload: ReceiveMessagePayload{
			Message: text,
			Sender:  s.reg.Username(sess.conn.id),
			Time:    ts,
		},
	})
}

func (s *Server) handleCodeOutput(sess *session, p CodeOutputPayload) {
	if err := sess.inRoom(p.RoomID); err != nil {
		s.reject(sess.conn, err)
		return
	}
	output, err := validate.Code(p.Output)
	if err != nil {
		s.reject(sess.conn, err)
		return
	}

	s.router.NotifyAll(p.RoomID, registry.Event{
		Type: EvtCodeOutput,
		Payload: CodeOutputBroadcast{
			Output: output,
			Sender: s.reg.Username(sess.conn.id),
		},
	})
}

// reject reports a recoverable failure back to the sender. The channel stays
// open and no room state has changed.
func (s *Server) reject(c *wsConn, err error) {
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		s.sendError(c, verr.Reason)
	case errors.Is(err, domain.ErrNotInRoom):
		s.sendError(c, "you are not in this room")
	default:
		s.sendError(c, "invalid request")
	}
}

// inRoom checks the event's precondition: the session must have joined the
// room it is talking about.
func (sess *session) inRoom(roomID string) error {
	if _, ok := sess.rooms[roomID]; !ok {
		return domain.ErrNotInRoom
	}
	return nil
}

func (s *Server) sendError(c *wsConn, reason string) {
	_ = c.Send(registry.Event{
		Type:    EvtError,
		Payload: ErrorPayload{Message: reason},
	})
}

func (s *Server) writeLoop(c *wsConn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-c.closed:
			return
		}
	}
}
