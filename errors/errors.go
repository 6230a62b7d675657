package errors

import "fmt"

var (
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrRoomNotFound     = fmt.Errorf("room not found")
	ErrDuplicateName    = fmt.Errorf("room name already taken")
	ErrStoreUnavailable = fmt.Errorf("room store unavailable")
	ErrNotJoined        = fmt.Errorf("connection is not joined to a room")
	ErrAlreadyJoined    = fmt.Errorf("connection is already joined to a room")
	ErrWorkerPanic      = fmt.Errorf("worker panic")
)
