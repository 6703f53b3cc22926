package domain

// Member is one connection's presence inside a room as seen by the clients:
// the transport-assigned socket id plus the display name recorded at join time.
type Member struct {
	SocketID string `json:"socketId"`
	Username string `json:"username"`
}
