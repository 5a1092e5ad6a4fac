package gateway

import (
	"errors"

	"github.com/cory-johannsen/wizwac/internal/game/room"
)

var (
	errMalformed    = errors.New("malformed message")
	errUnknownEvent = errors.New("unknown event")
)

// DrawWinnerName is the winnerName reported for a draw.
const DrawWinnerName = "Nobody"

// messageFor maps an intent failure to the text shown to the client.
func messageFor(err error) string {
	switch {
	case errors.Is(err, errMalformed):
		return "Malformed message"
	case errors.Is(err, errUnknownEvent):
		return "Unknown event"
	case errors.Is(err, room.ErrRoomNotFound):
		return "Room not found"
	case errors.Is(err, room.ErrRoomFull):
		return "Room is full"
	case errors.Is(err, room.ErrNotYourTurn):
		return "Not your turn"
	case errors.Is(err, room.ErrCellOccupied):
		return "Cell already occupied"
	case errors.Is(err, room.ErrInvalidMove):
		return "Invalid move"
	case errors.Is(err, room.ErrGameOver):
		return "Game is over"
	case errors.Is(err, room.ErrCodeSpaceExhausted):
		return "No room codes available"
	default:
		return "Internal error"
	}
}
