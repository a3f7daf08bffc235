// Package network implements the TCP listener and the per-connection packet
// loop feeding the messenger, login, and patchwork routing components.
package network

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/patchwork-project/patchwork/internal/config"
	"github.com/patchwork-project/patchwork/internal/events"
	"github.com/patchwork-project/patchwork/internal/game"
	"github.com/patchwork-project/patchwork/internal/messenger"
	"github.com/patchwork-project/patchwork/internal/metrics"
	"github.com/patchwork-project/patchwork/internal/protocol"
)

const (
	// ReadTimeout is how long to wait for data before considering a
	// connection stale. Keep-alives arrive well inside this window.
	ReadTimeout = 60 * time.Second
)

// Messenger is the slice of the messenger actor the listener drives.
type Messenger interface {
	Register(connID uuid.UUID, conn messenger.Conn)
	Send(connID uuid.UUID, p protocol.Packet)
	Subscribe(connID uuid.UUID, kind messenger.SubscriberKind)
	Close(connID uuid.UUID)
}

// PlayerState is the slice of the player-state keeper the login sequence uses.
type PlayerState interface {
	New(player game.Player)
	Report(connID uuid.UUID)
	Remove(connID uuid.UUID)
}

// Patchwork routes play-state packets and serves world-state introductions.
type Patchwork interface {
	RoutePlayerPacket(p protocol.Packet, connID uuid.UUID)
	Report(connID uuid.UUID)
}

// TCPListener accepts game client connections and peer bridge connections on
// the same port; the Handshake's NextState field tells them apart.
type TCPListener struct {
	cfg       *config.Config
	msgr      Messenger
	players   PlayerState
	patchwork Patchwork
	bus       *events.Bus
	listener  net.Listener
}

// NewTCPListener creates a new TCP listener.
func NewTCPListener(cfg *config.Config, msgr Messenger, players PlayerState, patchwork Patchwork, bus *events.Bus) *TCPListener {
	return &TCPListener{
		cfg:       cfg,
		msgr:      msgr,
		players:   players,
		patchwork: patchwork,
		bus:       bus,
	}
}

// Start begins accepting connections and blocks until the context is
// cancelled or the listener fails.
func (l *TCPListener) Start(ctx context.Context) error {
	srv := l.cfg.GetServer()
	addr := fmt.Sprintf("%s:%d", srv.BindAddress, srv.Port)

	// Use SO_REUSEADDR to allow immediate rebinding after restart
	lc := ReuseAddrListenConfig()
	var err error
	l.listener, err = lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start TCP listener on %s: %w", addr, err)
	}

	log.Info().Str("addr", addr).Msg("TCP listener started")

	go func() {
		<-ctx.Done()
		l.listener.Close()
	}()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				log.Info().Msg("TCP listener stopping")
				return nil
			default:
				log.Error().Err(err).Msg("failed to accept connection")
				continue
			}
		}

		go l.handleConnection(ctx, conn)
	}
}

// Stop gracefully stops the TCP listener.
func (l *TCPListener) Stop() error {
	if l.listener != nil {
		return l.listener.Close()
	}
	return nil
}

// session is the per-connection read-loop state. Writes never happen here;
// they all go through the messenger actor.
type session struct {
	connID uuid.UUID
	state  int32
	logger zerolog.Logger
}

// handleConnection runs one connection's read loop from accept to close.
func (l *TCPListener) handleConnection(ctx context.Context, conn net.Conn) {
	s := &session{
		connID: uuid.New(),
		state:  protocol.StateHandshake,
	}
	s.logger = log.With().
		Str("component", "session").
		Str("conn_id", s.connID.String()).
		Str("remote", conn.RemoteAddr().String()).
		Logger()

	l.msgr.Register(s.connID, conn)
	metrics.ActiveConnections.Inc()
	l.bus.Emit(ctx, events.Event{
		Type:   events.EventConnectionOpened,
		Source: "network",
		Payload: events.ConnectionPayload{
			ConnID: s.connID.String(),
			Remote: conn.RemoteAddr().String(),
		},
	})
	s.logger.Debug().Msg("connection accepted")

	defer func() {
		l.msgr.Close(s.connID)
		l.players.Remove(s.connID)
		metrics.ActiveConnections.Dec()
		l.bus.Emit(ctx, events.Event{
			Type:    events.EventConnectionClosed,
			Source:  "network",
			Payload: events.ConnectionPayload{ConnID: s.connID.String()},
		})
		s.logger.Debug().Msg("connection closed")
	}()

	br := bufio.NewReader(conn)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(ReadTimeout))
		frame, err := protocol.ReadFrame(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				s.logger.Warn().Msg("connection idle past read timeout, dropping")
				return
			}
			s.logger.Warn().Err(err).Msg("frame read error, dropping connection")
			return
		}

		p, err := protocol.Decode(s.state, frame)
		if err != nil {
			// The frame boundary is intact, so a bad body only costs this
			// packet.
			metrics.DecodeErrors.Inc()
			s.logger.Warn().Err(err).Int32("state", s.state).Msg("packet decode failed")
			continue
		}
		metrics.FramesDecoded.WithLabelValues(protocol.Name(p)).Inc()

		l.dispatch(ctx, s, p)
	}
}

// dispatch advances the session state machine by one inbound packet.
func (l *TCPListener) dispatch(ctx context.Context, s *session, p protocol.Packet) {
	switch s.state {
	case protocol.StateHandshake:
		l.handleHandshake(s, p)
	case protocol.StateStatus:
		l.handleStatus(s, p)
	case protocol.StateLogin:
		l.handleLogin(ctx, s, p)
	case protocol.StatePlay:
		l.patchwork.RoutePlayerPacket(p, s.connID)
	}
}

func (l *TCPListener) handleHandshake(s *session, p protocol.Packet) {
	hs, ok := p.(*protocol.Handshake)
	if !ok {
		s.logger.Warn().Str("packet", protocol.Name(p)).Msg("expected handshake as first packet")
		return
	}

	switch hs.NextState {
	case protocol.NextStateStatus:
		s.state = protocol.StateStatus
	case protocol.NextStateLogin:
		s.state = protocol.StateLogin
	case protocol.NextStatePlay:
		// Peer bridge: the remote shard speaks play-state packets
		// immediately, starting with a border-cross login.
		s.state = protocol.StatePlay
		s.logger.Info().Msg("peer bridge connection established")
	default:
		s.logger.Warn().Int32("next_state", hs.NextState).Msg("unsupported handshake next state")
	}
}

// statusJSON is the server-list response document.
type statusJSON struct {
	Version struct {
		Name     string `json:"name"`
		Protocol int32  `json:"protocol"`
	} `json:"version"`
	Players struct {
		Max    int `json:"max"`
		Online int `json:"online"`
	} `json:"players"`
	Description struct {
		Text string `json:"text"`
	} `json:"description"`
}

func (l *TCPListener) handleStatus(s *session, p protocol.Packet) {
	switch pkt := p.(type) {
	case *protocol.StatusRequest:
		srv := l.cfg.GetServer()
		var doc statusJSON
		doc.Version.Name = srv.StatusVersionName
		doc.Version.Protocol = srv.ProtocolVersion
		doc.Players.Max = srv.MaxPlayers
		doc.Description.Text = srv.StatusDescription

		body, err := json.Marshal(doc)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to marshal status response")
			return
		}
		l.msgr.Send(s.connID, &protocol.StatusResponse{JSONResponse: string(body)})

	case *protocol.Ping:
		l.msgr.Send(s.connID, &protocol.Pong{Payload: pkt.Payload})

	default:
		s.logger.Warn().Str("packet", protocol.Name(p)).Msg("unexpected status-state packet")
	}
}

// handleLogin runs the login sequence: confirm the player, introduce the
// world, subscribe them to broadcasts, then introduce the other players.
func (l *TCPListener) handleLogin(ctx context.Context, s *session, p protocol.Packet) {
	start, ok := p.(*protocol.LoginStart)
	if !ok {
		s.logger.Warn().Str("packet", protocol.Name(p)).Msg("expected login start")
		return
	}

	player := game.Player{
		ConnID:   s.connID,
		UUID:     uuid.New(),
		Name:     start.Username,
		Position: game.DefaultSpawn,
	}

	l.msgr.Send(s.connID, &protocol.LoginSuccess{
		UUID:     player.UUID.String(),
		Username: player.Name,
	})
	l.players.New(player)
	l.patchwork.Report(s.connID)
	l.msgr.Subscribe(s.connID, messenger.SubscribeAll)
	l.players.Report(s.connID)

	s.state = protocol.StatePlay
	s.logger.Info().Str("username", player.Name).Msg("login complete")
	l.bus.Emit(ctx, events.Event{
		Type:   events.EventPlayerJoined,
		Source: "network",
		Payload: events.PlayerJoinedPayload{
			ConnID:   s.connID.String(),
			Username: player.Name,
		},
	})
}
