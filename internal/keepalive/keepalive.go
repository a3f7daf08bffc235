// Package keepalive ticks the play-state heartbeat. Clients that stop
// answering eventually trip the listener's read timeout instead of being
// reaped here.
package keepalive

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/patchwork-project/patchwork/internal/protocol"
)

// Broadcaster is the slice of the messenger actor the ticker uses.
type Broadcaster interface {
	Broadcast(p protocol.Packet, source uuid.UUID, local bool)
}

// Ticker sends a KeepAlive to every subscribed connection on a fixed period.
type Ticker struct {
	msgr   Broadcaster
	period time.Duration
}

// NewTicker creates the heartbeat ticker.
func NewTicker(msgr Broadcaster, period time.Duration) *Ticker {
	return &Ticker{msgr: msgr, period: period}
}

// Run ticks until the context is cancelled.
func (t *Ticker) Run(ctx context.Context) {
	logger := log.With().Str("component", "keepalive").Logger()
	logger.Info().Dur("period", t.period).Msg("keep-alive ticker started")

	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("keep-alive ticker stopped")
			return
		case now := <-ticker.C:
			// The id is opaque to clients; the timestamp makes logs legible.
			t.msgr.Broadcast(&protocol.KeepAlive{KeepAliveID: now.UnixMilli()}, uuid.Nil, false)
		}
	}
}
