package gateway

import (
	"encoding/json"

	"github.com/cory-johannsen/wizwac/internal/game/board"
)

// Inbound event names.
const (
	EventCreateRoom = "createRoom"
	EventJoinRoom   = "joinRoom"
	EventMakeMove   = "makeMove"
	EventResetBoard = "resetBoard"
)

// Outbound event names.
const (
	EventRoomCreated        = "roomCreated"
	EventRoomJoined         = "roomJoined"
	EventGameStart          = "gameStart"
	EventMoveMade           = "moveMade"
	EventGameOver           = "gameOver"
	EventBoardReset         = "boardReset"
	EventPlayerDisconnected = "playerDisconnected"
	EventError              = "error"
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Event string          `json:"event" validate:"required"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRoomRequest is the joinRoom payload.
type JoinRoomRequest struct {
	RoomCode   string `json:"roomCode" validate:"required"`
	PlayerName string `json:"playerName"`
}

// MakeMoveRequest is the makeMove payload. Index is a pointer so that a
// missing index is distinguishable from cell 0.
type MakeMoveRequest struct {
	RoomCode string `json:"roomCode" validate:"required"`
	Index    *int   `json:"index" validate:"required"`
	Symbol   string `json:"symbol"`
}

// RoomAssigned is sent as roomCreated and roomJoined.
type RoomAssigned struct {
	RoomCode   string       `json:"roomCode"`
	Symbol     board.Symbol `json:"symbol"`
	PlayerName string       `json:"playerName"`
}

// GameStart announces that both seats are filled.
type GameStart struct {
	PlayerX       string       `json:"playerX"`
	PlayerO       string       `json:"playerO"`
	CurrentPlayer board.Symbol `json:"currentPlayer"`
}

// MoveMade reports an accepted move that did not end the game.
type MoveMade struct {
	Index         int          `json:"index"`
	Symbol        board.Symbol `json:"symbol"`
	CurrentPlayer board.Symbol `json:"currentPlayer"`
	Board         []string     `json:"board"`
}

// GameOver reports a win or a draw.
type GameOver struct {
	Winner     board.Symbol `json:"winner"`
	WinnerName string       `json:"winnerName"`
	Board      []string     `json:"board"`
}

// BoardReset reports a cleared board.
type BoardReset struct {
	Board         []string     `json:"board"`
	CurrentPlayer board.Symbol `json:"currentPlayer"`
}

// PlayerDisconnected tells the remaining player that the room is gone.
type PlayerDisconnected struct {
	Name string `json:"name"`
}

// ErrorMessage is a rejected intent, sent only to its originator.
type ErrorMessage struct {
	Message string `json:"message"`
}
