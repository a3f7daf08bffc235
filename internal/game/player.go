// Package game holds the local-shard gameplay collaborators: the player
// state keeper, the block state keeper, and the gameplay router that feeds
// them. Packets only reach this package after the patchwork router has
// resolved them to a locally hosted shard.
package game

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/patchwork-project/patchwork/internal/messenger"
	"github.com/patchwork-project/patchwork/internal/protocol"
)

// Messenger is the slice of the messenger actor the gameplay components use.
type Messenger interface {
	Send(connID uuid.UUID, p protocol.Packet)
	Broadcast(p protocol.Packet, source uuid.UUID, local bool)
	Subscribe(connID uuid.UUID, kind messenger.SubscriberKind)
}

// Position3 is a world-space position.
type Position3 struct {
	X float64
	Y float64
	Z float64
}

// Angle is a view direction.
type Angle struct {
	Yaw   float32
	Pitch float32
}

// Player is one player record owned by the state keeper.
type Player struct {
	ConnID   uuid.UUID
	UUID     uuid.UUID
	Name     string
	EntityID int32
	Position Position3
	Angle    Angle
}

// DefaultSpawn is where freshly logged-in players appear.
var DefaultSpawn = Position3{X: 5.0, Y: 16.0, Z: 5.0}

const playerMailboxSize = 256

// PlayerState is the player-state keeper actor. It owns every player record
// plus the cross-border bridge table redirecting a bridged player's outbound
// gameplay traffic onto their proxy connection.
type PlayerState struct {
	ops    chan playerOp
	msgr   Messenger
	logger zerolog.Logger

	players map[uuid.UUID]*Player
	bridges map[uuid.UUID]uuid.UUID

	nextEntityID int32
	endEntityID  int32
	teleportID   int32
}

// NewPlayerState creates the keeper. Entity ids are handed out from the
// local shard's block [entityIDStart, entityIDStart+blockSize).
func NewPlayerState(msgr Messenger, entityIDStart, blockSize int32) *PlayerState {
	return &PlayerState{
		ops:          make(chan playerOp, playerMailboxSize),
		msgr:         msgr,
		logger:       log.With().Str("component", "player_state").Logger(),
		players:      make(map[uuid.UUID]*Player),
		bridges:      make(map[uuid.UUID]uuid.UUID),
		nextEntityID: entityIDStart,
		endEntityID:  entityIDStart + blockSize,
	}
}

type playerOp func(s *PlayerState)

// Run processes the mailbox until the context is cancelled.
func (s *PlayerState) Run(ctx context.Context) {
	s.logger.Info().Msg("player state keeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("player state keeper stopped")
			return
		case op := <-s.ops:
			op(s)
		}
	}
}

// send routes a packet to the player's effective socket: their own
// connection, or the bridge proxy if one is installed.
func (s *PlayerState) send(connID uuid.UUID, p protocol.Packet) {
	if remote, ok := s.bridges[connID]; ok {
		connID = remote
	}
	s.msgr.Send(connID, p)
}

// New registers a freshly logged-in player. The keeper assigns the entity
// id and announces the player to everyone already in the world.
func (s *PlayerState) New(player Player) {
	s.ops <- func(s *PlayerState) {
		if s.nextEntityID == s.endEntityID {
			s.logger.Error().Str("name", player.Name).Msg("entity id block exhausted, rejecting player")
			return
		}
		player.EntityID = s.nextEntityID
		s.nextEntityID++
		s.admit(&player)
	}
}

// NewFromBorder registers a player arriving over a peer bridge. The entity
// id travels with the player: it was assigned by their origin shard.
func (s *PlayerState) NewFromBorder(player Player) {
	s.ops <- func(s *PlayerState) {
		s.admit(&player)
	}
}

func (s *PlayerState) admit(p *Player) {
	s.players[p.ConnID] = p
	s.logger.Info().
		Str("name", p.Name).
		Int32("entity_id", p.EntityID).
		Str("conn_id", p.ConnID.String()).
		Msg("player admitted")

	s.msgr.Broadcast(playerInfoFor(p), p.ConnID, true)
	s.msgr.Broadcast(spawnPlayerFor(p), p.ConnID, true)
}

// Move applies a serverbound position update.
func (s *PlayerState) Move(connID uuid.UUID, pos Position3, onGround bool) {
	s.ops <- func(s *PlayerState) {
		p, ok := s.players[connID]
		if !ok {
			return
		}
		prev := p.Position
		p.Position = pos
		s.broadcastMovement(p, prev, onGround)
	}
}

// MoveAndLook applies a serverbound position plus view angle update.
func (s *PlayerState) MoveAndLook(connID uuid.UUID, pos Position3, angle Angle, onGround bool) {
	s.ops <- func(s *PlayerState) {
		p, ok := s.players[connID]
		if !ok {
			return
		}
		prev := p.Position
		p.Position = pos
		p.Angle = angle
		s.broadcastMovement(p, prev, onGround)
	}
}

// Look applies a serverbound view angle update.
func (s *PlayerState) Look(connID uuid.UUID, angle Angle, onGround bool) {
	s.ops <- func(s *PlayerState) {
		p, ok := s.players[connID]
		if !ok {
			return
		}
		p.Angle = angle
		s.broadcastMovement(p, p.Position, onGround)
	}
}

// CrossBorder bridges outbound gameplay traffic for localConnID onto
// remoteConnID's socket, then introduces the player to the peer shard.
func (s *PlayerState) CrossBorder(localConnID, remoteConnID uuid.UUID) {
	s.ops <- func(s *PlayerState) {
		p, ok := s.players[localConnID]
		if !ok {
			s.logger.Warn().Str("conn_id", localConnID.String()).Msg("cross border for unknown player")
			return
		}
		s.bridges[localConnID] = remoteConnID
		s.msgr.Send(remoteConnID, &protocol.BorderCrossLogin{
			X:        p.Position.X,
			FeetY:    p.Position.Y,
			Z:        p.Position.Z,
			Yaw:      p.Angle.Yaw,
			Pitch:    p.Angle.Pitch,
			OnGround: true,
			Username: p.Name,
			EntityID: p.EntityID,
		})
		s.logger.Info().
			Str("conn_id", localConnID.String()).
			Str("proxy_id", remoteConnID.String()).
			Msg("player bridged to peer shard")
	}
}

// CrossBorderFailed snaps the player back to their last accepted position so
// the aborted crossing is visible instead of silently swallowed.
func (s *PlayerState) CrossBorderFailed(connID uuid.UUID) {
	s.ops <- func(s *PlayerState) {
		p, ok := s.players[connID]
		if !ok {
			return
		}
		s.teleportID++
		s.msgr.Send(connID, &protocol.ClientboundPlayerPositionAndLook{
			X:          p.Position.X,
			Y:          p.Position.Y,
			Z:          p.Position.Z,
			Yaw:        p.Angle.Yaw,
			Pitch:      p.Angle.Pitch,
			TeleportID: s.teleportID,
		})
	}
}

// Report emits the world introduction for one connection: its JoinGame,
// a position sync, and the tab-list plus spawn packets for everyone already
// present.
func (s *PlayerState) Report(connID uuid.UUID) {
	s.ops <- func(s *PlayerState) {
		p, ok := s.players[connID]
		if !ok {
			s.logger.Warn().Str("conn_id", connID.String()).Msg("report for unknown player")
			return
		}

		s.send(connID, &protocol.JoinGame{
			EntityID:   p.EntityID,
			Gamemode:   1,
			Dimension:  0,
			Difficulty: 0,
			MaxPlayers: 100,
			LevelType:  "default",
		})
		s.teleportID++
		s.send(connID, &protocol.ClientboundPlayerPositionAndLook{
			X:          p.Position.X,
			Y:          p.Position.Y,
			Z:          p.Position.Z,
			Yaw:        p.Angle.Yaw,
			Pitch:      p.Angle.Pitch,
			TeleportID: s.teleportID,
		})

		for _, other := range s.players {
			s.send(connID, playerInfoFor(other))
			if other.ConnID != connID {
				s.send(connID, spawnPlayerFor(other))
			}
		}
	}
}

// Remove drops a player whose connection ended and despawns their entity
// for everyone else.
func (s *PlayerState) Remove(connID uuid.UUID) {
	s.ops <- func(s *PlayerState) {
		p, ok := s.players[connID]
		if !ok {
			return
		}
		delete(s.players, connID)
		delete(s.bridges, connID)
		s.msgr.Broadcast(&protocol.DestroyEntities{EntityIDs: []int32{p.EntityID}}, connID, true)
		s.logger.Info().Str("name", p.Name).Msg("player removed")
	}
}

// broadcastMovement tells everyone else how the player's entity moved.
// Deltas are fixed-point 1/4096 block, the wire unit for relative moves.
func (s *PlayerState) broadcastMovement(p *Player, prev Position3, onGround bool) {
	yaw := angleByte(p.Angle.Yaw)
	s.msgr.Broadcast(&protocol.EntityLookAndMove{
		EntityID: p.EntityID,
		DeltaX:   moveDelta(prev.X, p.Position.X),
		DeltaY:   moveDelta(prev.Y, p.Position.Y),
		DeltaZ:   moveDelta(prev.Z, p.Position.Z),
		Yaw:      yaw,
		Pitch:    angleByte(p.Angle.Pitch),
		OnGround: onGround,
	}, p.ConnID, true)
	s.msgr.Broadcast(&protocol.EntityHeadLook{
		EntityID: p.EntityID,
		Angle:    yaw,
	}, p.ConnID, true)
}

func moveDelta(from, to float64) int16 {
	d := (to - from) * 4096
	if d > 32767 {
		d = 32767
	} else if d < -32768 {
		d = -32768
	}
	return int16(d)
}

// angleByte maps degrees onto the wire's 1/256-turn angle unit.
func angleByte(deg float32) uint8 {
	return uint8(int32(deg/360.0*256.0) & 0xFF)
}

func playerInfoFor(p *Player) *protocol.PlayerInfo {
	return &protocol.PlayerInfo{
		Action:          0, // add player
		NumberOfPlayers: 1,
		UUID:            p.UUID,
		Name:            p.Name,
		Gamemode:        1,
		Ping:            0,
	}
}

func spawnPlayerFor(p *Player) *protocol.SpawnPlayer {
	return &protocol.SpawnPlayer{
		EntityID:                 p.EntityID,
		UUID:                     p.UUID,
		X:                        p.Position.X,
		Y:                        p.Position.Y,
		Z:                        p.Position.Z,
		Yaw:                      angleByte(p.Angle.Yaw),
		Pitch:                    angleByte(p.Angle.Pitch),
		EntityMetadataTerminator: 0xFF,
	}
}
