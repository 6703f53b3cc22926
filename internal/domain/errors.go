package domain

import "errors"

var (
	ErrRoomFull  = errors.New("room is full")
	ErrNotInRoom = errors.New("user not in the room")
)
