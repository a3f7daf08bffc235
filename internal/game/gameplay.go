package game

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/patchwork-project/patchwork/internal/messenger"
	"github.com/patchwork-project/patchwork/internal/protocol"
)

// Gameplay dispatches play-state packets that resolved to a locally hosted
// shard onto the state keepers.
type Gameplay struct {
	players *PlayerState
	msgr    Messenger
}

// NewGameplay creates the dispatcher.
func NewGameplay(players *PlayerState, msgr Messenger) *Gameplay {
	return &Gameplay{players: players, msgr: msgr}
}

// Route handles one local-shard packet. Its signature matches what the
// patchwork router expects for local delivery.
func (g *Gameplay) Route(p protocol.Packet, connID uuid.UUID) {
	switch pkt := p.(type) {
	case *protocol.PlayerPosition:
		g.players.Move(connID, Position3{X: pkt.X, Y: pkt.FeetY, Z: pkt.Z}, pkt.OnGround)

	case *protocol.PlayerPositionAndLook:
		g.players.MoveAndLook(connID,
			Position3{X: pkt.X, Y: pkt.FeetY, Z: pkt.Z},
			Angle{Yaw: pkt.Yaw, Pitch: pkt.Pitch},
			pkt.OnGround)

	case *protocol.PlayerLook:
		g.players.Look(connID, Angle{Yaw: pkt.Yaw, Pitch: pkt.Pitch}, pkt.OnGround)

	case *protocol.BorderCrossLogin:
		// A player handed over by a peer shard. Their connection is the
		// peer's proxy socket: it only ever receives traffic for this shard,
		// so it subscribes local-only.
		g.players.NewFromBorder(Player{
			ConnID:   connID,
			UUID:     uuid.New(),
			Name:     pkt.Username,
			EntityID: pkt.EntityID,
			Position: Position3{X: pkt.X, Y: pkt.FeetY, Z: pkt.Z},
			Angle:    Angle{Yaw: pkt.Yaw, Pitch: pkt.Pitch},
		})
		g.msgr.Subscribe(connID, messenger.SubscribeLocalOnly)
		g.players.Report(connID)

	case *protocol.KeepAlive:
		// Heartbeat echo, nothing to update yet.

	case *protocol.Unknown:
		log.Trace().Int32("id", pkt.WireID).Msg("dropping unknown gameplay packet")

	default:
		log.Trace().Str("packet", protocol.Name(p)).Msg("unhandled gameplay packet")
	}
}
