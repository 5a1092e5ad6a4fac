package gateway

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/wizwac/internal/game/room"
)

// Disconnect tears down connID. Every room in which it holds a seat is
// destroyed; the remaining members are told who left and the room's broadcast
// group is dropped.
//
// Postcondition: connID holds no seat and its outbound channel is closed.
func (g *Gateway) Disconnect(connID string) {
	// Leave the groups first so the departing connection is not sent its own notice.
	if err := g.sessions.Disconnect(connID); err != nil {
		g.logger.Debug("disconnect of unregistered connection", zap.String("conn_id", connID), zap.Error(err))
	}

	for {
		code, _, ok := g.rooms.FindByConnection(connID)
		if !ok {
			break
		}
		g.rooms.Remove(code, func(rm *room.Room) {
			p, _ := rm.PlayerByConn(connID)
			g.broadcast(code, EventPlayerDisconnected, PlayerDisconnected{Name: p.Name})
			g.sessions.DropGroup(code)
			g.logger.Info("room destroyed",
				zap.String("room", code),
				zap.String("conn_id", connID),
				zap.String("player", p.Name),
			)
		})
	}
	g.logger.Info("connection closed", zap.String("conn_id", connID))
}
