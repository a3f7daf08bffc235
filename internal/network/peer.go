package network

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/patchwork-project/patchwork/internal/messenger"
	"github.com/patchwork-project/patchwork/internal/metrics"
	"github.com/patchwork-project/patchwork/internal/patchwork"
	"github.com/patchwork-project/patchwork/internal/protocol"
)

const dialTimeout = 5 * time.Second

// PeerDialer opens the proxy sockets border crossings ride on. Each dialed
// socket gets a pump goroutine relaying the peer's clientbound responses back
// to the crossing player's own connection.
type PeerDialer struct {
	msgr Messenger
}

// NewPeerDialer creates a dialer writing peer responses through msgr.
func NewPeerDialer(msgr Messenger) *PeerDialer {
	return &PeerDialer{msgr: msgr}
}

// Dial satisfies the patchwork router's dialer.
func (d *PeerDialer) Dial(peer patchwork.Peer, playerConnID uuid.UUID) (messenger.Conn, error) {
	conn, err := net.DialTimeout("tcp", peer.String(), dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to dial peer %s: %w", peer, err)
	}
	go d.pump(conn, peer, playerConnID)
	return conn, nil
}

// pump forwards the peer's packets to the player until the proxy socket
// closes. The player's connection has no translation installed, so the
// forwarded bytes match what the peer sent.
func (d *PeerDialer) pump(conn net.Conn, peer patchwork.Peer, playerConnID uuid.UUID) {
	logger := log.With().
		Str("component", "peer_pump").
		Str("peer", peer.String()).
		Str("player_conn_id", playerConnID.String()).
		Logger()

	br := bufio.NewReader(conn)
	for {
		frame, err := protocol.ReadFrame(br)
		if err != nil {
			// The proxy socket closing is the normal end of a bridge; the
			// messenger's Close op lands here as a read error.
			logger.Debug().Err(err).Msg("peer bridge closed")
			return
		}
		p, err := protocol.Decode(protocol.StateClientbound, frame)
		if err != nil {
			metrics.DecodeErrors.Inc()
			logger.Warn().Err(err).Msg("peer sent undecodable frame")
			continue
		}
		if _, unknown := p.(*protocol.Unknown); unknown {
			metrics.UnknownPackets.Inc()
			continue
		}
		d.msgr.Send(playerConnID, p)
	}
}
