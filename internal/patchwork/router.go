package patchwork

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/patchwork-project/patchwork/internal/events"
	"github.com/patchwork-project/patchwork/internal/messenger"
	"github.com/patchwork-project/patchwork/internal/metrics"
	"github.com/patchwork-project/patchwork/internal/protocol"
)

// Messenger is the slice of the messenger actor the router drives.
type Messenger interface {
	Register(connID uuid.UUID, conn messenger.Conn)
	Send(connID uuid.UUID, p protocol.Packet)
	SetTranslation(connID uuid.UUID, info protocol.TranslationInfo)
	Close(connID uuid.UUID)
}

// PlayerState receives border-crossing notices for the player-state keeper.
type PlayerState interface {
	// CrossBorder bridges outbound gameplay traffic for localConnID onto
	// remoteConnID's socket.
	CrossBorder(localConnID, remoteConnID uuid.UUID)
	// CrossBorderFailed tells the keeper a crossing aborted so it can snap
	// the player back to their last accepted position.
	CrossBorderFailed(connID uuid.UUID)
}

// BlockState serves world-state reports for locally hosted shards.
type BlockState interface {
	Report(connID uuid.UUID, chunkPos protocol.Position)
}

// GameplayFunc consumes packets resolved to a locally hosted shard.
type GameplayFunc func(p protocol.Packet, connID uuid.UUID)

// Dialer opens an outbound connection to a peer shard host on behalf of a
// player, wiring the peer's responses back to that player's socket. Injected
// so tests can run crossings without a network.
type Dialer func(peer Peer, playerConnID uuid.UUID) (messenger.Conn, error)

// Config carries the world constants. They are constructor parameters, not
// package globals, so tests can vary shard granularity.
type Config struct {
	// ChunkSize is the world-unit width of one grid cell per axis.
	ChunkSize int32
	// EntityIDBlockSize is the width of each shard's entity id block.
	EntityIDBlockSize int32
	// ProtocolVersion goes into the Handshake sent over new peer bridges.
	ProtocolVersion int32
}

// anchor records which shard currently owns a player's packet stream, and
// the proxy connection used to reach it when that shard is remote.
type anchor struct {
	mapIndex int
	proxyID  uuid.UUID
	hasProxy bool
}

// ShardInfo is a point-in-time view of one shard for the CLI and API.
type ShardInfo struct {
	Index         int               `json:"index"`
	Position      protocol.Position `json:"position"`
	EntityIDStart int32             `json:"entity_id_start"`
	EntityIDEnd   int32             `json:"entity_id_end"`
	Peer          string            `json:"peer,omitempty"`
}

// AnchorInfo is a point-in-time view of one player anchor.
type AnchorInfo struct {
	ConnID   uuid.UUID `json:"conn_id"`
	MapIndex int       `json:"map_index"`
	ProxyID  string    `json:"proxy_id,omitempty"`
}

// Snapshot is the router's state as served through the snapshot op.
type Snapshot struct {
	Shards  []ShardInfo  `json:"shards"`
	Anchors []AnchorInfo `json:"anchors"`
}

const mailboxSize = 256

// Router is the patchwork actor. It exclusively owns the shard list and the
// anchor table; all mutation happens on the Run goroutine.
type Router struct {
	ops      chan operation
	cfg      Config
	msgr     Messenger
	players  PlayerState
	blocks   BlockState
	gameplay GameplayFunc
	dial     Dialer
	bus      *events.Bus
	logger   zerolog.Logger

	maps    []Map
	anchors map[uuid.UUID]anchor
}

// NewRouter creates a Router whose shard list starts with the single local
// shard at grid (0,0) owning entity id block 0.
func NewRouter(cfg Config, msgr Messenger, players PlayerState, blocks BlockState, gameplay GameplayFunc, dial Dialer, bus *events.Bus) *Router {
	return &Router{
		ops:      make(chan operation, mailboxSize),
		cfg:      cfg,
		msgr:     msgr,
		players:  players,
		blocks:   blocks,
		gameplay: gameplay,
		dial:     dial,
		bus:      bus,
		logger:   log.With().Str("component", "patchwork").Logger(),
		maps:     []Map{{Position: protocol.Position{X: 0, Z: 0}, EntityIDBlock: 0}},
		anchors:  make(map[uuid.UUID]anchor),
	}
}

type operation interface {
	apply(ctx context.Context, r *Router)
}

// Run processes the mailbox until the context is cancelled.
func (r *Router) Run(ctx context.Context) {
	r.logger.Info().Msg("patchwork router started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("patchwork router stopped")
			return
		case op := <-r.ops:
			op.apply(ctx, r)
		}
	}
}

// ---- operations ----

type addMapOp struct {
	peer *Peer
}

func (o addMapOp) apply(ctx context.Context, r *Router) {
	// Shards line up in a single row for now; the resolver below does not
	// care, so richer topologies only need a different placement rule.
	next := int32(len(r.maps))
	m := Map{
		Position:      protocol.Position{X: next, Z: 0},
		EntityIDBlock: next,
		Peer:          o.peer,
	}
	r.maps = append(r.maps, m)

	evt := events.ShardAddedPayload{
		Index:     len(r.maps) - 1,
		PositionX: m.Position.X,
		PositionZ: m.Position.Z,
	}
	logEvt := r.logger.Info().
		Int("index", evt.Index).
		Int32("grid_x", m.Position.X).
		Int32("grid_z", m.Position.Z)
	if o.peer != nil {
		evt.Peer = o.peer.String()
		logEvt = logEvt.Str("peer", evt.Peer)
	}
	logEvt.Msg("shard added")
	r.bus.Emit(ctx, events.Event{Type: events.EventShardAdded, Source: "patchwork", Payload: evt})
}

// AddMap appends a shard to the patchwork. A nil peer provisions a locally
// hosted shard; otherwise the shard is delegated to the peer host.
func (r *Router) AddMap(peer *Peer) {
	r.ops <- addMapOp{peer: peer}
}

type routeOp struct {
	packet protocol.Packet
	connID uuid.UUID
}

func (o routeOp) apply(ctx context.Context, r *Router) {
	r.route(ctx, o.packet, o.connID)
}

// RoutePlayerPacket resolves the shard owning the packet's position (if it
// carries one), re-anchors the player on a border crossing, and routes the
// packet either to local gameplay or across the anchor's proxy connection.
func (r *Router) RoutePlayerPacket(p protocol.Packet, connID uuid.UUID) {
	r.ops <- routeOp{packet: p, connID: connID}
}

type reportOp struct {
	connID uuid.UUID
}

func (o reportOp) apply(ctx context.Context, r *Router) {
	// World-state introduction is a local affordance: locally hosted shards
	// synthesize their own reports, remote shards are not contacted.
	for _, m := range r.maps {
		if m.Local() {
			r.blocks.Report(o.connID, m.Position)
		}
	}
}

// Report asks every locally hosted shard to emit its world-state packets to
// the requesting connection.
func (r *Router) Report(connID uuid.UUID) {
	r.ops <- reportOp{connID: connID}
}

type snapshotOp struct {
	reply chan Snapshot
}

func (o snapshotOp) apply(ctx context.Context, r *Router) {
	snap := Snapshot{
		Shards:  make([]ShardInfo, len(r.maps)),
		Anchors: make([]AnchorInfo, 0, len(r.anchors)),
	}
	for i, m := range r.maps {
		info := ShardInfo{
			Index:         i,
			Position:      m.Position,
			EntityIDStart: m.EntityIDStart(r.cfg.EntityIDBlockSize),
			EntityIDEnd:   m.EntityIDStart(r.cfg.EntityIDBlockSize) + r.cfg.EntityIDBlockSize,
		}
		if m.Peer != nil {
			info.Peer = m.Peer.String()
		}
		snap.Shards[i] = info
	}
	for id, a := range r.anchors {
		info := AnchorInfo{ConnID: id, MapIndex: a.mapIndex}
		if a.hasProxy {
			info.ProxyID = a.proxyID.String()
		}
		snap.Anchors = append(snap.Anchors, info)
	}
	o.reply <- snap
}

// Snapshot returns the shard list and anchor table, linearized through the
// mailbox.
func (r *Router) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	r.ops <- snapshotOp{reply: reply}
	return <-reply
}

// ---- routing ----

func (r *Router) route(ctx context.Context, p protocol.Packet, connID uuid.UUID) {
	a, ok := r.anchors[connID]
	if !ok {
		a = anchor{mapIndex: 0}
	}

	if pos, ok := extractGridPosition(p, r.cfg.ChunkSize); ok {
		newIndex, found := r.resolveShard(pos)
		if !found {
			// Every reachable cell must map to a provisioned shard; this is
			// a configuration error fatal to the routing attempt.
			r.logger.Error().
				Str("conn_id", connID.String()).
				Int32("grid_x", pos.X).
				Int32("grid_z", pos.Z).
				Msg("no shard provisioned for position, dropping packet")
			return
		}
		if newIndex != a.mapIndex {
			a = r.crossBorder(ctx, a, newIndex, connID)
		}
	}
	r.anchors[connID] = a

	if r.maps[a.mapIndex].Local() {
		r.gameplay(p, connID)
		return
	}
	if _, unknown := p.(*protocol.Unknown); unknown {
		// Nothing actionable to forward.
		return
	}
	r.logger.Trace().
		Str("conn_id", connID.String()).
		Str("proxy_id", a.proxyID.String()).
		Str("packet", protocol.Name(p)).
		Msg("forwarding across anchor")
	r.msgr.Send(a.proxyID, p)
}

// crossBorder re-anchors a player onto newIndex. On a failed peer dial the
// previous anchor is returned unchanged and the player-state keeper is told
// so the player gets a visible position snap-back.
func (r *Router) crossBorder(ctx context.Context, old anchor, newIndex int, connID uuid.UUID) anchor {
	target := r.maps[newIndex]
	r.logger.Info().
		Str("conn_id", connID.String()).
		Int("from", old.mapIndex).
		Int("to", newIndex).
		Bool("remote", !target.Local()).
		Msg("border crossing")

	if target.Local() {
		r.dropProxy(old)
		metrics.BorderCrossings.WithLabelValues("local").Inc()
		r.bus.Emit(ctx, events.Event{
			Type:   events.EventBorderCrossing,
			Source: "patchwork",
			Payload: events.BorderCrossingPayload{
				ConnID:    connID.String(),
				FromShard: old.mapIndex,
				ToShard:   newIndex,
			},
		})
		return anchor{mapIndex: newIndex}
	}

	conn, err := r.dial(*target.Peer, connID)
	if err != nil {
		metrics.BorderCrossFailures.Inc()
		r.logger.Error().Err(err).
			Str("conn_id", connID.String()).
			Str("peer", target.Peer.String()).
			Msg("peer unreachable, crossing aborted")
		r.players.CrossBorderFailed(connID)
		r.bus.Emit(ctx, events.Event{
			Type:   events.EventBorderCrossFailed,
			Source: "patchwork",
			Payload: events.BorderCrossingPayload{
				ConnID:    connID.String(),
				FromShard: old.mapIndex,
				ToShard:   newIndex,
				Remote:    true,
			},
		})
		return old
	}

	r.dropProxy(old)

	proxyID := uuid.New()
	r.msgr.Register(proxyID, conn)
	r.msgr.SetTranslation(proxyID, protocol.TranslationInfo{
		Offset: target.Position,
		State:  protocol.StatePlay,
	})
	r.msgr.Send(proxyID, &protocol.Handshake{
		ProtocolVersion: r.cfg.ProtocolVersion,
		NextState:       protocol.NextStatePlay,
	})
	r.players.CrossBorder(connID, proxyID)

	metrics.BorderCrossings.WithLabelValues("remote").Inc()
	r.bus.Emit(ctx, events.Event{
		Type:   events.EventBorderCrossing,
		Source: "patchwork",
		Payload: events.BorderCrossingPayload{
			ConnID:    connID.String(),
			FromShard: old.mapIndex,
			ToShard:   newIndex,
			Remote:    true,
			ProxyID:   proxyID.String(),
		},
	})
	return anchor{mapIndex: newIndex, proxyID: proxyID, hasProxy: true}
}

// dropProxy closes and deregisters the previous proxy connection, if any.
func (r *Router) dropProxy(a anchor) {
	if a.hasProxy {
		r.msgr.Close(a.proxyID)
	}
}

// resolveShard finds the shard whose grid position matches exactly. The
// lookup is deliberately an arbitrary position match, not row arithmetic, so
// future topologies only change shard placement.
func (r *Router) resolveShard(pos protocol.Position) (int, bool) {
	for i, m := range r.maps {
		if m.Position == pos {
			return i, true
		}
	}
	return 0, false
}

// extractGridPosition returns the grid cell of a position-bearing packet.
// Cells are floor-divided; a position exactly on a boundary belongs to the
// cell floor division puts it in.
func extractGridPosition(p protocol.Packet, chunkSize int32) (protocol.Position, bool) {
	var x, z float64
	switch q := p.(type) {
	case *protocol.PlayerPosition:
		x, z = q.X, q.Z
	case *protocol.PlayerPositionAndLook:
		x, z = q.X, q.Z
	default:
		return protocol.Position{}, false
	}
	return protocol.Position{
		X: int32(math.Floor(x / float64(chunkSize))),
		Z: int32(math.Floor(z / float64(chunkSize))),
	}, true
}
