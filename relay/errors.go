package relay

import "errors"

var (
	ErrAlreadyOccupied  = errors.New("room already has a host, choose another room")
	ErrNoHost           = errors.New("no host found for this room, check the id and retry")
	ErrUnrecognizedRole = errors.New("unrecognized role, expected host or guest")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrAlreadyJoined    = errors.New("connection already joined a room")
	ErrNotHost          = errors.New("only the room host can send this event")
	ErrRoomNotFound     = errors.New("room not found")
)

// Error codes carried in failure acknowledgments.
const (
	CodeAlreadyOccupied  = "AlreadyOccupied"
	CodeNoHost           = "NoHost"
	CodeUnrecognizedRole = "UnrecognizedRole"
	CodeInvalidPayload   = "InvalidPayload"
	CodeAlreadyJoined    = "AlreadyJoined"
	CodeNotHost          = "NotHost"
	CodeRoomNotFound     = "RoomNotFound"
	CodeInternal         = "Internal"
)

var errorCodes = map[error]string{
	ErrAlreadyOccupied:  CodeAlreadyOccupied,
	ErrNoHost:           CodeNoHost,
	ErrUnrecognizedRole: CodeUnrecognizedRole,
	ErrInvalidPayload:   CodeInvalidPayload,
	ErrAlreadyJoined:    CodeAlreadyJoined,
	ErrNotHost:          CodeNotHost,
	ErrRoomNotFound:     CodeRoomNotFound,
}

// Code returns the acknowledgment code for err. Wrapped sentinel errors are
// recognized; anything else is reported as CodeInternal.
func Code(err error) string {
	for sentinel, code := range errorCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeInternal
}
