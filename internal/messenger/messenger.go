// Package messenger implements the connection registry actor. It is the only
// component that writes to sockets: every live connection, subscriber set and
// outbound translation lives behind a single goroutine consuming an ordered
// operation mailbox, so no two writes to the same socket ever interleave.
package messenger

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/patchwork-project/patchwork/internal/metrics"
	"github.com/patchwork-project/patchwork/internal/protocol"
)

// Conn is the slice of net.Conn the messenger needs. Tests substitute
// in-memory fakes.
type Conn interface {
	io.Writer
	io.Closer
}

// SubscriberKind selects which broadcast set a connection joins.
type SubscriberKind int

const (
	// SubscribeAll receives every broadcast.
	SubscribeAll SubscriberKind = iota
	// SubscribeLocalOnly receives only broadcasts flagged as local in
	// origin, which keeps forwarded peer traffic from echoing back across
	// the border it came from.
	SubscribeLocalOnly
)

// ConnectionInfo is a point-in-time view of one registered connection,
// served through the Snapshot op for the CLI and the monitor API.
type ConnectionInfo struct {
	ID           uuid.UUID `json:"id"`
	Subscription string    `json:"subscription"`
	Translated   bool      `json:"translated"`
}

const mailboxSize = 256

// Messenger owns the conn_id to socket mapping. All state mutation happens
// on the Run goroutine; the exported methods only enqueue.
type Messenger struct {
	ops       chan operation
	chunkSize int32
	logger    zerolog.Logger

	conns         map[uuid.UUID]Conn
	translations  map[uuid.UUID]protocol.TranslationInfo
	allSubs       map[uuid.UUID]struct{}
	localOnlySubs map[uuid.UUID]struct{}
}

// New creates a Messenger. chunkSize is the world-unit width of one shard
// grid cell, needed to scale outbound coordinate translation.
func New(chunkSize int32) *Messenger {
	return &Messenger{
		ops:           make(chan operation, mailboxSize),
		chunkSize:     chunkSize,
		logger:        log.With().Str("component", "messenger").Logger(),
		conns:         make(map[uuid.UUID]Conn),
		translations:  make(map[uuid.UUID]protocol.TranslationInfo),
		allSubs:       make(map[uuid.UUID]struct{}),
		localOnlySubs: make(map[uuid.UUID]struct{}),
	}
}

type operation interface {
	apply(m *Messenger)
}

// Run processes the mailbox until the context is cancelled. Operations from
// one producer are applied in the order they were enqueued.
func (m *Messenger) Run(ctx context.Context) {
	m.logger.Info().Msg("messenger started")
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			m.logger.Info().Msg("messenger stopped")
			return
		case op := <-m.ops:
			op.apply(m)
		}
	}
}

func (m *Messenger) closeAll() {
	for id, conn := range m.conns {
		if err := conn.Close(); err != nil {
			m.logger.Debug().Err(err).Str("conn_id", id.String()).Msg("close on shutdown failed")
		}
	}
}

// ---- operations ----

type registerOp struct {
	connID uuid.UUID
	conn   Conn
}

func (o registerOp) apply(m *Messenger) {
	m.conns[o.connID] = o.conn
	m.logger.Debug().Str("conn_id", o.connID.String()).Msg("connection registered")
}

// Register records a live socket under connID. Re-registering the same id
// overwrites: last write wins.
func (m *Messenger) Register(connID uuid.UUID, conn Conn) {
	m.ops <- registerOp{connID: connID, conn: conn}
}

type sendOp struct {
	connID uuid.UUID
	packet protocol.Packet
}

func (o sendOp) apply(m *Messenger) {
	conn, ok := m.conns[o.connID]
	if !ok {
		// Connection already closed; sends are best effort.
		m.logger.Trace().
			Str("conn_id", o.connID.String()).
			Str("packet", protocol.Name(o.packet)).
			Msg("send to unknown connection dropped")
		return
	}

	pkt := o.packet
	if info, ok := m.translations[o.connID]; ok {
		pkt = protocol.TranslateOutgoing(pkt, info, m.chunkSize)
		m.logger.Trace().
			Str("conn_id", o.connID.String()).
			Int32("offset_x", info.Offset.X).
			Int32("offset_z", info.Offset.Z).
			Int32("peer_state", info.State).
			Str("packet", protocol.Name(pkt)).
			Msg("translated outbound packet")
	}
	m.write(o.connID, conn, pkt)
}

// Send writes one packet to the identified connection, applying the
// connection's translation first if one is installed. Unknown conn ids are
// dropped silently.
func (m *Messenger) Send(connID uuid.UUID, p protocol.Packet) {
	m.ops <- sendOp{connID: connID, packet: p}
}

type broadcastOp struct {
	packet protocol.Packet
	source uuid.UUID
	local  bool
}

func (o broadcastOp) apply(m *Messenger) {
	metrics.Broadcasts.Inc()
	for id := range m.allSubs {
		if id == o.source {
			continue
		}
		if conn, ok := m.conns[id]; ok {
			m.write(id, conn, o.packet)
		}
	}
	if !o.local {
		return
	}
	for id := range m.localOnlySubs {
		if id == o.source {
			continue
		}
		if conn, ok := m.conns[id]; ok {
			m.write(id, conn, o.packet)
		}
	}
}

// Broadcast writes the packet untranslated to every member of the all set
// except source, and additionally to the local-only set when local is true.
// Pass uuid.Nil as source when the packet has no originating connection.
func (m *Messenger) Broadcast(p protocol.Packet, source uuid.UUID, local bool) {
	m.ops <- broadcastOp{packet: p, source: source, local: local}
}

type subscribeOp struct {
	connID uuid.UUID
	kind   SubscriberKind
}

func (o subscribeOp) apply(m *Messenger) {
	switch o.kind {
	case SubscribeAll:
		m.allSubs[o.connID] = struct{}{}
	case SubscribeLocalOnly:
		m.localOnlySubs[o.connID] = struct{}{}
	}
	m.logger.Debug().
		Str("conn_id", o.connID.String()).
		Bool("local_only", o.kind == SubscribeLocalOnly).
		Msg("subscribed")
}

// Subscribe adds the connection to a broadcast set.
func (m *Messenger) Subscribe(connID uuid.UUID, kind SubscriberKind) {
	m.ops <- subscribeOp{connID: connID, kind: kind}
}

type setTranslationOp struct {
	connID uuid.UUID
	info   protocol.TranslationInfo
}

func (o setTranslationOp) apply(m *Messenger) {
	m.translations[o.connID] = o.info
	m.logger.Debug().
		Str("conn_id", o.connID.String()).
		Int32("offset_x", o.info.Offset.X).
		Int32("offset_z", o.info.Offset.Z).
		Msg("translation installed")
}

// SetTranslation installs or overwrites the outbound transform for connID.
func (m *Messenger) SetTranslation(connID uuid.UUID, info protocol.TranslationInfo) {
	m.ops <- setTranslationOp{connID: connID, info: info}
}

type closeOp struct {
	connID uuid.UUID
}

func (o closeOp) apply(m *Messenger) {
	conn, ok := m.conns[o.connID]
	if !ok {
		return
	}
	if err := conn.Close(); err != nil {
		m.logger.Debug().Err(err).Str("conn_id", o.connID.String()).Msg("close failed")
	}
	delete(m.conns, o.connID)
	delete(m.translations, o.connID)
	delete(m.allSubs, o.connID)
	delete(m.localOnlySubs, o.connID)
	m.logger.Debug().Str("conn_id", o.connID.String()).Msg("connection closed")
}

// Close tears down the socket and removes every trace of the connection.
// The patchwork router calls this when it replaces a proxy connection.
func (m *Messenger) Close(connID uuid.UUID) {
	m.ops <- closeOp{connID: connID}
}

type snapshotOp struct {
	reply chan []ConnectionInfo
}

func (o snapshotOp) apply(m *Messenger) {
	infos := make([]ConnectionInfo, 0, len(m.conns))
	for id := range m.conns {
		info := ConnectionInfo{ID: id, Subscription: "none"}
		if _, ok := m.allSubs[id]; ok {
			info.Subscription = "all"
		} else if _, ok := m.localOnlySubs[id]; ok {
			info.Subscription = "local-only"
		}
		_, info.Translated = m.translations[id]
		infos = append(infos, info)
	}
	o.reply <- infos
}

// Snapshot returns a view of the registry, linearized through the mailbox so
// it reflects every operation enqueued before it.
func (m *Messenger) Snapshot() []ConnectionInfo {
	reply := make(chan []ConnectionInfo, 1)
	m.ops <- snapshotOp{reply: reply}
	return <-reply
}

// write frames and writes one packet. A failed write is logged and counted;
// it never stops the loop or affects other connections.
func (m *Messenger) write(connID uuid.UUID, conn Conn, p protocol.Packet) {
	frame := protocol.Encode(p)
	if _, err := conn.Write(frame); err != nil {
		metrics.SendErrors.Inc()
		m.logger.Warn().Err(err).
			Str("conn_id", connID.String()).
			Str("packet", protocol.Name(p)).
			Msg("socket write failed")
		return
	}
	metrics.PacketsSent.Inc()
	m.logger.Trace().
		Str("conn_id", connID.String()).
		Str("packet", protocol.Name(p)).
		Int("bytes", len(frame)).
		Msg("packet sent")
}
