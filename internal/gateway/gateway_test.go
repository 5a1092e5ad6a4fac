package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/wizwac/internal/game/board"
	"github.com/cory-johannsen/wizwac/internal/game/room"
	"github.com/cory-johannsen/wizwac/internal/game/roomcode"
	"github.com/cory-johannsen/wizwac/internal/history"
	"github.com/cory-johannsen/wizwac/internal/session"
)

type harness struct {
	g     *Gateway
	rooms *room.Registry
	rec   *MockMatchRecorder
}

func newHarness(t *testing.T, codes ...string) *harness {
	t.Helper()
	if len(codes) == 0 {
		codes = []string{"ABCD"}
	}
	logger := zaptest.NewLogger(t)
	rec := NewMockMatchRecorder(gomock.NewController(t))
	rooms := room.NewRegistry(roomcode.Fixed(codes...), 1, logger)
	g := New(rooms, session.NewManager(16, logger), rec, logger)
	return &harness{g: g, rooms: rooms, rec: rec}
}

type peer struct {
	t      *testing.T
	g      *Gateway
	id     string
	frames <-chan []byte
}

func (h *harness) connect(t *testing.T, id string) *peer {
	t.Helper()
	frames, err := h.g.Connect(id, "127.0.0.1:0")
	require.NoError(t, err)
	return &peer{t: t, g: h.g, id: id, frames: frames}
}

func (p *peer) send(event string, data any) {
	p.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(p.t, err)
	frame, err := json.Marshal(Envelope{Event: event, Data: raw})
	require.NoError(p.t, err)
	p.g.HandleFrame(p.id, frame)
}

func (p *peer) move(code string, index int) {
	p.t.Helper()
	p.send(EventMakeMove, map[string]any{"roomCode": code, "index": index})
}

// expect pops the next frame, asserts its event name, and decodes its payload into v.
func (p *peer) expect(event string, v any) {
	p.t.Helper()
	select {
	case frame, ok := <-p.frames:
		require.True(p.t, ok, "%s: frames closed, want %s", p.id, event)
		var env Envelope
		require.NoError(p.t, json.Unmarshal(frame, &env))
		require.Equal(p.t, event, env.Event, "%s: payload %s", p.id, env.Data)
		if v != nil {
			require.NoError(p.t, json.Unmarshal(env.Data, v))
		}
	default:
		p.t.Fatalf("%s: no frame pending, want %s", p.id, event)
	}
}

func (p *peer) expectError(message string) {
	p.t.Helper()
	var e ErrorMessage
	p.expect(EventError, &e)
	assert.Equal(p.t, message, e.Message)
}

func (p *peer) quiet() {
	p.t.Helper()
	assert.Empty(p.t, p.frames, "%s: unexpected pending frames", p.id)
}

// startGame seats alice (Wand) and bob (Wizard) in ABCD and drains the setup frames.
func (h *harness) startGame(t *testing.T) (alice, bob *peer) {
	t.Helper()
	alice = h.connect(t, "alice")
	bob = h.connect(t, "bob")
	alice.send(EventCreateRoom, "Alice")
	alice.expect(EventRoomCreated, nil)
	bob.send(EventJoinRoom, JoinRoomRequest{RoomCode: "ABCD", PlayerName: "Bob"})
	bob.expect(EventRoomJoined, nil)
	bob.expect(EventGameStart, nil)
	alice.expect(EventGameStart, nil)
	return alice, bob
}

func TestGateway_CreateRoom(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, "alice")

	alice.send(EventCreateRoom, "Alice")

	var got RoomAssigned
	alice.expect(EventRoomCreated, &got)
	assert.Equal(t, RoomAssigned{RoomCode: "ABCD", Symbol: board.Wand, PlayerName: "Alice"}, got)
	alice.quiet()

	snap, ok := h.rooms.Lookup("ABCD")
	require.True(t, ok)
	assert.Equal(t, room.StateWaiting, snap.State)
	assert.Equal(t, int64(1), h.g.Stats().RoomsCreated)
}

func TestGateway_CreateRoomCodeSpaceExhausted(t *testing.T) {
	h := newHarness(t, "ABCD")
	alice := h.connect(t, "alice")
	carol := h.connect(t, "carol")
	alice.send(EventCreateRoom, "Alice")
	alice.expect(EventRoomCreated, nil)

	carol.send(EventCreateRoom, "Carol")
	carol.expectError("No room codes available")
	assert.Equal(t, 1, h.rooms.Count())
}

func TestGateway_JoinRoomStartsGame(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, "alice")
	bob := h.connect(t, "bob")
	alice.send(EventCreateRoom, "Alice")
	alice.expect(EventRoomCreated, nil)

	bob.send(EventJoinRoom, JoinRoomRequest{RoomCode: "abcd", PlayerName: "Bob"})

	var joined RoomAssigned
	bob.expect(EventRoomJoined, &joined)
	assert.Equal(t, RoomAssigned{RoomCode: "ABCD", Symbol: board.Wizard, PlayerName: "Bob"}, joined)

	want := GameStart{PlayerX: "Alice", PlayerO: "Bob", CurrentPlayer: board.Wand}
	for _, p := range []*peer{alice, bob} {
		var start GameStart
		p.expect(EventGameStart, &start)
		assert.Equal(t, want, start)
		p.quiet()
	}
}

func TestGateway_JoinRoomErrors(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.startGame(t)
	carol := h.connect(t, "carol")

	carol.send(EventJoinRoom, JoinRoomRequest{RoomCode: "ABCD", PlayerName: "Carol"})
	carol.expectError("Room is full")

	carol.send(EventJoinRoom, JoinRoomRequest{RoomCode: "ZZZZ", PlayerName: "Carol"})
	carol.expectError("Room not found")

	carol.send(EventJoinRoom, map[string]string{"playerName": "Carol"})
	carol.expectError("Malformed message")

	alice.quiet()
	bob.quiet()
}

func TestGateway_WinScenario(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.startGame(t)

	var recorded history.MatchResult
	h.rec.EXPECT().Record(gomock.Any()).DoAndReturn(func(m history.MatchResult) bool {
		recorded = m
		return true
	}).Times(1)

	moves := []struct {
		p   *peer
		idx int
	}{{alice, 0}, {bob, 3}, {alice, 1}, {bob, 4}}
	for _, m := range moves {
		m.p.move("ABCD", m.idx)
		for _, p := range []*peer{alice, bob} {
			var mm MoveMade
			p.expect(EventMoveMade, &mm)
			assert.Equal(t, m.idx, mm.Index)
			assert.Equal(t, board.Other(mm.Symbol), mm.CurrentPlayer)
		}
	}

	alice.move("ABCD", 2)
	for _, p := range []*peer{alice, bob} {
		var over GameOver
		p.expect(EventGameOver, &over)
		assert.Equal(t, board.Wand, over.Winner)
		assert.Equal(t, "Alice", over.WinnerName)
		assert.Equal(t, []string{"🪄", "🪄", "🪄", "🧙", "🧙", "", "", "", ""}, over.Board)
		p.quiet()
	}

	assert.Equal(t, "ABCD", recorded.RoomCode)
	assert.Equal(t, "Alice", recorded.PlayerA)
	assert.Equal(t, "Bob", recorded.PlayerB)
	assert.Equal(t, "🪄", recorded.Winner)
	assert.Equal(t, 5, recorded.Moves)
	assert.False(t, recorded.FinishedAt.IsZero())

	stats := h.g.Stats()
	assert.Equal(t, int64(5), stats.MovesApplied)
	assert.Equal(t, int64(1), stats.GamesFinished)

	bob.move("ABCD", 8)
	bob.expectError("Game is over")
}

func TestGateway_DrawScenario(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.startGame(t)
	h.rec.EXPECT().Record(gomock.Any()).Return(true).Times(1)

	seq := []struct {
		p   *peer
		idx int
	}{
		{alice, 0}, {bob, 1}, {alice, 2},
		{bob, 4}, {alice, 3}, {bob, 5},
		{alice, 7}, {bob, 6},
	}
	for _, m := range seq {
		m.p.move("ABCD", m.idx)
		alice.expect(EventMoveMade, nil)
		bob.expect(EventMoveMade, nil)
	}

	alice.move("ABCD", 8)
	for _, p := range []*peer{alice, bob} {
		var over GameOver
		p.expect(EventGameOver, &over)
		assert.Equal(t, board.Draw, over.Winner)
		assert.Equal(t, "Nobody", over.WinnerName)
	}
}

func TestGateway_MoveRejections(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.startGame(t)

	bob.move("ABCD", 0)
	bob.expectError("Not your turn")

	alice.move("ZZZZ", 0)
	alice.expectError("Room not found")

	alice.move("ABCD", 9)
	alice.expectError("Invalid move")

	alice.send(EventMakeMove, map[string]any{"roomCode": "ABCD", "index": 0, "symbol": "🧙"})
	alice.expectError("Invalid move")

	alice.send(EventMakeMove, map[string]any{"roomCode": "ABCD"})
	alice.expectError("Malformed message")

	alice.move("ABCD", 4)
	alice.expect(EventMoveMade, nil)
	bob.expect(EventMoveMade, nil)

	bob.move("ABCD", 4)
	bob.expectError("Cell already occupied")
	alice.quiet()

	snap, _ := h.rooms.Lookup("ABCD")
	assert.Equal(t, 1, snap.Moves)
	assert.Equal(t, board.Wizard, snap.CurrentPlayer)
}

func TestGateway_MoveBeforeOpponentJoins(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, "alice")
	alice.send(EventCreateRoom, "Alice")
	alice.expect(EventRoomCreated, nil)

	alice.move("ABCD", 0)
	var made MoveMade
	alice.expect(EventMoveMade, &made)
	assert.Equal(t, 0, made.Index)
	assert.Equal(t, board.Wand, made.Symbol)
	assert.Equal(t, board.Wizard, made.CurrentPlayer)
	assert.Equal(t, "🪄", made.Board[0])

	bob := h.connect(t, "bob")
	bob.send(EventJoinRoom, JoinRoomRequest{RoomCode: "ABCD", PlayerName: "Bob"})
	bob.expect(EventRoomJoined, nil)
	var start GameStart
	bob.expect(EventGameStart, &start)
	assert.Equal(t, board.Wizard, start.CurrentPlayer)
	alice.expect(EventGameStart, nil)

	bob.move("ABCD", 4)
	bob.expect(EventMoveMade, nil)
	alice.expect(EventMoveMade, nil)
}

func TestGateway_ResetBoard(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.startGame(t)
	alice.move("ABCD", 4)
	alice.expect(EventMoveMade, nil)
	bob.expect(EventMoveMade, nil)

	bob.send(EventResetBoard, "ABCD")
	for _, p := range []*peer{alice, bob} {
		var reset BoardReset
		p.expect(EventBoardReset, &reset)
		assert.Equal(t, make([]string, board.Size), reset.Board)
		assert.Equal(t, board.Wand, reset.CurrentPlayer)
	}

	snap, _ := h.rooms.Lookup("ABCD")
	assert.Equal(t, board.Board{}, snap.Board)
	assert.Equal(t, board.None, snap.Winner)
}

func TestGateway_ResetUnknownRoomIsSilent(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, "alice")
	alice.send(EventResetBoard, "ZZZZ")
	alice.quiet()
}

func TestGateway_ResetWithMalformedPayloadIsSilent(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.startGame(t)
	alice.move("ABCD", 4)
	alice.expect(EventMoveMade, nil)
	bob.expect(EventMoveMade, nil)

	alice.send(EventResetBoard, map[string]string{"roomCode": "ABCD"})
	alice.send(EventResetBoard, 42)
	alice.quiet()
	bob.quiet()

	snap, _ := h.rooms.Lookup("ABCD")
	assert.Equal(t, board.Wand, snap.Board[4], "board is untouched")
}

func TestGateway_DisconnectDestroysRoom(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.startGame(t)

	h.g.Disconnect("alice")

	var gone PlayerDisconnected
	bob.expect(EventPlayerDisconnected, &gone)
	assert.Equal(t, "Alice", gone.Name)
	bob.quiet()

	_, open := <-alice.frames
	assert.False(t, open, "departing connection's frames are closed")

	_, ok := h.rooms.Lookup("ABCD")
	assert.False(t, ok)

	bob.move("ABCD", 0)
	bob.expectError("Room not found")

	carol := h.connect(t, "carol")
	carol.send(EventJoinRoom, JoinRoomRequest{RoomCode: "ABCD", PlayerName: "Carol"})
	carol.expectError("Room not found")
	assert.Equal(t, 2, h.g.Stats().Connections)
}

func TestGateway_JoinerDisconnectDestroysRoom(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.startGame(t)

	h.g.Disconnect("bob")

	var gone PlayerDisconnected
	alice.expect(EventPlayerDisconnected, &gone)
	assert.Equal(t, "Bob", gone.Name)
	alice.quiet()

	_, open := <-bob.frames
	assert.False(t, open, "departing connection's frames are closed")

	_, ok := h.rooms.Lookup("ABCD")
	assert.False(t, ok)
	_, _, ok = h.rooms.FindByConnection("alice")
	assert.False(t, ok)

	alice.move("ABCD", 0)
	alice.expectError("Room not found")
}

func TestGateway_SubscribeFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)
	rooms := room.NewRegistry(roomcode.Fixed("ABCD"), 1, logger)
	g := New(rooms, session.NewManager(16, logger), history.Nop{}, logger)

	raw, err := json.Marshal("Ghost")
	require.NoError(t, err)
	require.NoError(t, g.createRoom("ghost", raw))

	entries := logs.FilterMessage("subscribing to room").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "ABCD", entries[0].ContextMap()["room"])
	assert.Equal(t, "ghost", entries[0].ContextMap()["conn_id"])
}

func TestGateway_DisconnectDestroysEveryRoom(t *testing.T) {
	h := newHarness(t, "ABCD", "EFGH")
	alice := h.connect(t, "alice")
	alice.send(EventCreateRoom, "Alice")
	alice.expect(EventRoomCreated, nil)
	alice.send(EventCreateRoom, "Alice")
	alice.expect(EventRoomCreated, nil)
	require.Equal(t, 2, h.rooms.Count())

	h.g.Disconnect("alice")
	assert.Equal(t, 0, h.rooms.Count())
	assert.Equal(t, 0, h.g.Stats().Connections)
}

func TestGateway_DisconnectOutsideRoom(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "alice")
	h.g.Disconnect("alice")
	h.g.Disconnect("alice")
	assert.Equal(t, 0, h.g.Stats().Connections)
}

func TestGateway_MalformedAndUnknown(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, "alice")

	h.g.HandleFrame("alice", []byte("not json"))
	alice.expectError("Malformed message")

	h.g.HandleFrame("alice", []byte(`{"data":"x"}`))
	alice.expectError("Malformed message")

	alice.send(EventCreateRoom, map[string]string{"playerName": "Alice"})
	alice.expectError("Malformed message")

	alice.send("castSpell", "fireball")
	alice.expectError("Unknown event")

	assert.Equal(t, 0, h.rooms.Count())
}

func TestGateway_FrameFromUnregisteredConnection(t *testing.T) {
	h := newHarness(t)
	h.g.HandleFrame("ghost", []byte(`{"event":"createRoom","data":"Ghost"}`))
	assert.Equal(t, 0, h.rooms.Count())
}

func TestGateway_ConnectDuplicate(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "alice")
	_, err := h.g.Connect("alice", "")
	assert.Error(t, err)
}
