// Package gateway translates client intents into room operations and fans the
// resulting state out to every connection subscribed to the room.
package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/cory-johannsen/wizwac/internal/game/board"
	"github.com/cory-johannsen/wizwac/internal/game/room"
	"github.com/cory-johannsen/wizwac/internal/history"
	"github.com/cory-johannsen/wizwac/internal/session"
)

//go:generate mockgen -source=gateway.go -destination=mock_recorder_test.go -package=gateway

// MatchRecorder receives every finished game.
type MatchRecorder interface {
	// Record must not block.
	Record(m history.MatchResult) bool
}

// Stats is a point-in-time view of gateway activity.
type Stats struct {
	Rooms         int
	Connections   int
	RoomsCreated  int64
	GamesFinished int64
	MovesApplied  int64
}

// Gateway is the per-process intent dispatcher. It is driven by the transport
// through Connect, HandleFrame, and Disconnect; calls for one connection must
// not overlap.
type Gateway struct {
	rooms    *room.Registry
	sessions *session.Manager
	recorder MatchRecorder
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time

	roomsCreated  atomic.Int64
	gamesFinished atomic.Int64
	movesApplied  atomic.Int64
}

// New creates a Gateway.
//
// Precondition: rooms, sessions, and logger must be non-nil. A nil recorder discards results.
func New(rooms *room.Registry, sessions *session.Manager, recorder MatchRecorder, logger *zap.Logger) *Gateway {
	if recorder == nil {
		recorder = history.Nop{}
	}
	return &Gateway{
		rooms:    rooms,
		sessions: sessions,
		recorder: recorder,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		now:      time.Now,
	}
}

// Connect registers a transport connection.
//
// Postcondition: Returns the channel of encoded outbound frames, closed on Disconnect.
func (g *Gateway) Connect(connID, remoteAddr string) (<-chan []byte, error) {
	c, err := g.sessions.Connect(connID, remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("registering connection: %w", err)
	}
	g.logger.Info("connection opened",
		zap.String("conn_id", connID),
		zap.String("remote_addr", remoteAddr),
	)
	return c.Outbox.Frames(), nil
}

// HandleFrame decodes one inbound frame and dispatches it. Failures are
// reported to connID as an error event and never change any room.
func (g *Gateway) HandleFrame(connID string, raw []byte) {
	if _, ok := g.sessions.Get(connID); !ok {
		g.logger.Warn("frame from unregistered connection", zap.String("conn_id", connID))
		return
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || g.validate.Struct(env) != nil {
		g.reject(connID, "", errMalformed)
		return
	}

	var err error
	switch env.Event {
	case EventCreateRoom:
		err = g.createRoom(connID, env.Data)
	case EventJoinRoom:
		err = g.joinRoom(connID, env.Data)
	case EventMakeMove:
		err = g.makeMove(connID, env.Data)
	case EventResetBoard:
		err = g.resetBoard(connID, env.Data)
	default:
		err = fmt.Errorf("%w: %q", errUnknownEvent, env.Event)
	}
	if err != nil {
		g.reject(connID, env.Event, err)
	}
}

// Stats reports current counts and lifetime counters.
func (g *Gateway) Stats() Stats {
	return Stats{
		Rooms:         g.rooms.Count(),
		Connections:   g.sessions.Count(),
		RoomsCreated:  g.roomsCreated.Load(),
		GamesFinished: g.gamesFinished.Load(),
		MovesApplied:  g.movesApplied.Load(),
	}
}

func (g *Gateway) createRoom(connID string, data json.RawMessage) error {
	var name string
	if err := decodeData(data, &name); err != nil {
		return err
	}

	_, _, err := g.rooms.Create(connID, name, func(rm *room.Room) {
		code := rm.Code()
		g.subscribe(connID, code)
		g.send(connID, EventRoomCreated, RoomAssigned{RoomCode: code, Symbol: board.Wand, PlayerName: name})
		g.roomsCreated.Add(1)
		g.logger.Info("room created",
			zap.String("room", code),
			zap.String("conn_id", connID),
			zap.String("player", name),
		)
	})
	return err
}

func (g *Gateway) joinRoom(connID string, data json.RawMessage) error {
	var req JoinRoomRequest
	if err := g.decodeRequest(data, &req); err != nil {
		return err
	}

	_, err := g.rooms.Join(req.RoomCode, connID, req.PlayerName, func(rm *room.Room) {
		code := rm.Code()
		g.subscribe(connID, code)
		g.send(connID, EventRoomJoined, RoomAssigned{RoomCode: code, Symbol: board.Wizard, PlayerName: req.PlayerName})

		players := rm.Players()
		g.broadcast(code, EventGameStart, GameStart{
			PlayerX:       players[0].Name,
			PlayerO:       players[1].Name,
			CurrentPlayer: rm.CurrentPlayer(),
		})
		g.logger.Info("room joined",
			zap.String("room", code),
			zap.String("conn_id", connID),
			zap.String("player", req.PlayerName),
		)
	})
	return err
}

func (g *Gateway) makeMove(connID string, data json.RawMessage) error {
	var req MakeMoveRequest
	if err := g.decodeRequest(data, &req); err != nil {
		return err
	}

	return g.rooms.Update(req.RoomCode, func(rm *room.Room) error {
		out, err := rm.Play(connID, *req.Index, board.Symbol(req.Symbol))
		if err != nil {
			return err
		}
		g.movesApplied.Add(1)
		code := rm.Code()
		g.logger.Debug("move applied",
			zap.String("room", code),
			zap.String("conn_id", connID),
			zap.Int("index", out.Index),
			zap.String("symbol", string(out.Symbol)),
		)

		if !out.Finished() {
			g.broadcast(code, EventMoveMade, MoveMade{
				Index:         out.Index,
				Symbol:        out.Symbol,
				CurrentPlayer: out.Next,
				Board:         out.Board.Cells(),
			})
			return nil
		}

		winnerName := DrawWinnerName
		if out.Winner != board.Draw {
			winnerName = rm.NameFor(out.Winner)
		}
		g.broadcast(code, EventGameOver, GameOver{
			Winner:     out.Winner,
			WinnerName: winnerName,
			Board:      out.Board.Cells(),
		})
		g.gamesFinished.Add(1)
		g.logger.Info("game finished",
			zap.String("room", code),
			zap.String("winner", string(out.Winner)),
			zap.String("winner_name", winnerName),
		)
		g.record(rm, out, winnerName)
		return nil
	})
}

func (g *Gateway) resetBoard(connID string, data json.RawMessage) error {
	var code string
	if err := decodeData(data, &code); err != nil {
		g.logger.Debug("ignoring malformed reset", zap.String("conn_id", connID), zap.Error(err))
		return nil
	}

	err := g.rooms.Update(code, func(rm *room.Room) error {
		rm.Reset()
		g.broadcast(rm.Code(), EventBoardReset, BoardReset{
			Board:         rm.Board().Cells(),
			CurrentPlayer: rm.CurrentPlayer(),
		})
		g.logger.Info("board reset", zap.String("room", rm.Code()), zap.String("conn_id", connID))
		return nil
	})
	if errors.Is(err, room.ErrRoomNotFound) {
		return nil
	}
	return err
}

func (g *Gateway) record(rm *room.Room, out room.MoveOutcome, winnerName string) {
	players := rm.Players()
	m := history.MatchResult{
		RoomCode:   rm.Code(),
		Winner:     string(out.Winner),
		WinnerName: winnerName,
		Board:      out.Board.Cells(),
		Moves:      rm.Moves(),
		FinishedAt: g.now(),
	}
	if len(players) > 0 {
		m.PlayerA = players[0].Name
	}
	if len(players) > 1 {
		m.PlayerB = players[1].Name
	}
	g.recorder.Record(m)
}

func (g *Gateway) subscribe(connID, code string) {
	if err := g.sessions.Subscribe(connID, code); err != nil {
		g.logger.Warn("subscribing to room",
			zap.String("conn_id", connID),
			zap.String("room", code),
			zap.Error(err),
		)
	}
}

func (g *Gateway) reject(connID, event string, err error) {
	g.logger.Debug("intent rejected",
		zap.String("conn_id", connID),
		zap.String("event", event),
		zap.Error(err),
	)
	g.send(connID, EventError, ErrorMessage{Message: messageFor(err)})
}

func (g *Gateway) send(connID, event string, payload any) {
	frame, err := encode(event, payload)
	if err != nil {
		g.logger.Error("encoding frame", zap.String("event", event), zap.Error(err))
		return
	}
	if err := g.sessions.Send(connID, frame); err != nil {
		g.logger.Warn("dropping frame",
			zap.String("conn_id", connID),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

func (g *Gateway) broadcast(code, event string, payload any) {
	frame, err := encode(event, payload)
	if err != nil {
		g.logger.Error("encoding frame", zap.String("event", event), zap.Error(err))
		return
	}
	g.sessions.Broadcast(code, frame)
}

func (g *Gateway) decodeRequest(data json.RawMessage, v any) error {
	if err := decodeData(data, v); err != nil {
		return err
	}
	if err := g.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", errMalformed, err)
	}
	return nil
}

// decodeData unmarshals an event payload. A missing payload leaves v unchanged.
func decodeData(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", errMalformed, err)
	}
	return nil
}

func encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
