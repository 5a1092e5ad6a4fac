package room

import "errors"

// Client-input errors. None of them mutates room state.
var (
	// ErrRoomNotFound is returned when no live room has the requested code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull is returned when joining a room that already seats two players.
	ErrRoomFull = errors.New("room is full")
	// ErrNotYourTurn is returned when the sender holds no seat whose symbol is to move.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrCellOccupied is returned when the target cell already holds a symbol.
	ErrCellOccupied = errors.New("cell already occupied")
	// ErrInvalidMove is returned for an out-of-range index or a symbol that does
	// not match the sender's seat.
	ErrInvalidMove = errors.New("invalid move")
	// ErrGameOver is returned for moves after a win or draw, until the board is reset.
	ErrGameOver = errors.New("game is over")
	// ErrCodeSpaceExhausted is returned when no free room code was found.
	ErrCodeSpaceExhausted = errors.New("no free room code")
)
