// Package room owns the lifecycle of game rooms: creation, seating, turn
// authority, and teardown. Rooms are only reachable through a Registry.
package room

import (
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/cory-johannsen/wizwac/internal/game/board"
)

// MaxPlayers is the number of seats in a room.
const MaxPlayers = 2

// State is the derived phase of a room.
type State string

const (
	// StateWaiting means fewer than MaxPlayers are seated.
	StateWaiting State = "waiting_for_player"
	// StateInProgress means both seats are filled and no result is set.
	StateInProgress State = "in_progress"
	// StateFinished means the board holds a win or a draw.
	StateFinished State = "finished"
)

// Player is a seat in a room.
type Player struct {
	// ConnID is the transport identity that owns the seat.
	ConnID string `json:"connId"`
	// Name is the free-form display name supplied by the client.
	Name string `json:"name"`
	// Symbol is fixed at seating time: Wand for the first seat, Wizard for the second.
	Symbol board.Symbol `json:"symbol"`
}

// Room is a single game session. All methods must be called inside a critical
// section handed out by the owning Registry.
type Room struct {
	mu        sync.Mutex
	closed    bool
	code      string
	players   []Player
	board     board.Board
	current   board.Symbol
	winner    board.Symbol
	moves     int
	createdAt time.Time
}

// MoveOutcome describes the effect of an accepted move.
type MoveOutcome struct {
	Index  int
	Symbol board.Symbol
	// Winner is None while the game continues, a player symbol on a win, or board.Draw.
	Winner board.Symbol
	// Next is the symbol to move after this one; equal to Symbol once the game is over.
	Next board.Symbol
	// Board is the board after the move.
	Board board.Board
}

// Finished reports whether the move ended the game.
func (o MoveOutcome) Finished() bool {
	return o.Winner != board.None
}

// Snapshot is an immutable copy of a room's state, safe to hold outside the
// room's critical section.
type Snapshot struct {
	Code          string
	Players       []Player
	Board         board.Board
	CurrentPlayer board.Symbol
	Winner        board.Symbol
	State         State
	Moves         int
	CreatedAt     time.Time
}

func newRoom(code string, now time.Time) *Room {
	return &Room{
		code:      code,
		current:   board.Wand,
		createdAt: now,
	}
}

// Code returns the room code.
func (r *Room) Code() string { return r.code }

// Board returns the current board.
func (r *Room) Board() board.Board { return r.board }

// CurrentPlayer returns the symbol whose turn it is.
func (r *Room) CurrentPlayer() board.Symbol { return r.current }

// Winner returns the recorded result, if any.
func (r *Room) Winner() (board.Symbol, bool) { return r.winner, r.winner != board.None }

// Moves returns the number of moves applied since creation or the last reset.
func (r *Room) Moves() int { return r.moves }

// Players returns a copy of the seats in join order.
func (r *Room) Players() []Player {
	out := make([]Player, len(r.players))
	copy(out, r.players)
	return out
}

// State derives the room phase from its seats and result.
func (r *Room) State() State {
	switch {
	case len(r.players) < MaxPlayers:
		return StateWaiting
	case r.winner != board.None:
		return StateFinished
	default:
		return StateInProgress
	}
}

// PlayerByConn returns the first seat owned by connID.
func (r *Room) PlayerByConn(connID string) (Player, bool) {
	return lo.Find(r.players, func(p Player) bool { return p.ConnID == connID })
}

// NameFor returns the display name seated with symbol s, or "" when unseated.
func (r *Room) NameFor(s board.Symbol) string {
	p, _ := lo.Find(r.players, func(p Player) bool { return p.Symbol == s })
	return p.Name
}

// Snapshot copies the room state.
func (r *Room) Snapshot() Snapshot {
	return Snapshot{
		Code:          r.code,
		Players:       r.Players(),
		Board:         r.board,
		CurrentPlayer: r.current,
		Winner:        r.winner,
		State:         r.State(),
		Moves:         r.moves,
		CreatedAt:     r.createdAt,
	}
}

// seat appends a player in the next free slot.
//
// Postcondition: the first seat gets board.Wand, the second board.Wizard;
// ErrRoomFull when both seats are taken.
func (r *Room) seat(connID, name string) (Player, error) {
	if len(r.players) >= MaxPlayers {
		return Player{}, ErrRoomFull
	}
	sym := board.Wand
	if len(r.players) == 1 {
		sym = board.Wizard
	}
	p := Player{ConnID: connID, Name: name, Symbol: sym}
	r.players = append(r.players, p)
	return p, nil
}

// Play applies a move on behalf of connID.
//
// symbol is the symbol the client claims to play; it may be empty, in which case
// the sender's seat symbol is used. The creator may move before the second seat
// is filled; the turn then waits for the joiner.
//
// Precondition: called inside the room's critical section.
// Postcondition: on error the room is unchanged. On success the move is applied,
// and either the result is recorded or the turn passes to the other symbol.
func (r *Room) Play(connID string, index int, symbol board.Symbol) (MoveOutcome, error) {
	if r.winner != board.None {
		return MoveOutcome{}, ErrGameOver
	}

	mover, ok := lo.Find(r.players, func(p Player) bool {
		return p.ConnID == connID && p.Symbol == r.current
	})
	if !ok {
		return MoveOutcome{}, ErrNotYourTurn
	}
	if !board.ValidIndex(index) {
		return MoveOutcome{}, ErrInvalidMove
	}
	if symbol != board.None && symbol != mover.Symbol {
		return MoveOutcome{}, ErrInvalidMove
	}
	if r.board[index] != board.None {
		return MoveOutcome{}, ErrCellOccupied
	}

	r.board = board.ApplyMove(r.board, index, mover.Symbol)
	r.moves++

	out := MoveOutcome{Index: index, Symbol: mover.Symbol}
	if w, won := board.CheckWinner(r.board); won {
		r.winner = w
	} else if board.Full(r.board) {
		r.winner = board.Draw
	} else {
		r.current = board.Other(r.current)
	}
	out.Winner = r.winner
	out.Next = r.current
	out.Board = r.board
	return out, nil
}

// Reset clears the board for a rematch. Seats are kept.
//
// Postcondition: empty board, Wand to move, no winner, zero moves.
func (r *Room) Reset() {
	r.board = board.Board{}
	r.current = board.Wand
	r.winner = board.None
	r.moves = 0
}
