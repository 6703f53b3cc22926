package ws

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/sachinggsingh/synceditor-relay/internal/auth"
	"github.com/sachinggsingh/synceditor-relay/internal/registry"
)

// wsConn wraps one websocket channel. It implements registry.Conn, so the
// router can deliver into it without knowing about gorilla at all.
type wsConn struct {
	conn     *websocket.Conn
	id       string
	identity auth.Identity

	sendMu chan struct{}
	closed chan struct{}
}

func newWsConn(c *websocket.Conn, id string, identity auth.Identity) *wsConn {
	return &wsConn{
		conn:     c,
		id:       id,
		identity: identity,
		sendMu:   make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(evt registry.Event) error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	return c.conn.WriteJSON(evt)
}

func (c *wsConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}

	return c.conn.Close()
}
