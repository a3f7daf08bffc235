package game

import (
	"testing"

	"github.com/google/uuid"

	"github.com/patchwork-project/patchwork/internal/messenger"
	"github.com/patchwork-project/patchwork/internal/protocol"
)

func TestGameplayRoutesMovement(t *testing.T) {
	msgr := newFakeMessenger()
	players := startPlayerState(t, msgr, 0, 1000)
	g := NewGameplay(players, msgr)
	connID := uuid.New()

	players.New(Player{ConnID: connID, Name: "steve", Position: DefaultSpawn})
	players.flush()
	msgr.reset()

	g.Route(&protocol.PlayerPositionAndLook{X: 6, FeetY: 16, Z: 5, Yaw: 90, Pitch: 0, OnGround: true}, connID)
	players.flush()

	if len(msgr.broadcasts) != 2 {
		t.Fatalf("broadcast %d packets, want move plus head look", len(msgr.broadcasts))
	}
	move, ok := msgr.broadcasts[0].packet.(*protocol.EntityLookAndMove)
	if !ok || move.Yaw != 64 {
		t.Errorf("broadcast[0] = %#v, want a relative move with yaw 64", msgr.broadcasts[0].packet)
	}
}

func TestGameplayAdmitsBorderCrossLogin(t *testing.T) {
	msgr := newFakeMessenger()
	players := startPlayerState(t, msgr, 0, 1000)
	g := NewGameplay(players, msgr)
	connID := uuid.New()

	g.Route(&protocol.BorderCrossLogin{
		X:        17,
		FeetY:    16,
		Z:        0.5,
		Username: "alex",
		EntityID: 2001,
	}, connID)
	players.flush()

	// The proxy socket only carries this shard's traffic.
	if kind, ok := msgr.subs[connID]; !ok || kind != messenger.SubscribeLocalOnly {
		t.Errorf("subscription = %v, want local-only", kind)
	}

	// Admission announces the carried entity id, not a locally allocated one.
	var spawned *protocol.SpawnPlayer
	for _, b := range msgr.broadcasts {
		if sp, ok := b.packet.(*protocol.SpawnPlayer); ok {
			spawned = sp
		}
	}
	if spawned == nil || spawned.EntityID != 2001 {
		t.Errorf("spawned = %+v, want entity id 2001 carried across the border", spawned)
	}

	// The world introduction went out on the same connection.
	var joined bool
	for _, p := range msgr.sent {
		if jg, ok := p.packet.(*protocol.JoinGame); ok {
			joined = true
			if jg.EntityID != 2001 || p.connID != connID {
				t.Errorf("JoinGame = %+v to %v, want entity 2001 to the arriving connection", jg, p.connID)
			}
		}
	}
	if !joined {
		t.Error("no JoinGame sent after the border-cross login")
	}
}

func TestGameplayIgnoresKeepAliveAndUnknown(t *testing.T) {
	msgr := newFakeMessenger()
	players := startPlayerState(t, msgr, 0, 1000)
	g := NewGameplay(players, msgr)

	g.Route(&protocol.KeepAlive{KeepAliveID: 1}, uuid.New())
	g.Route(&protocol.Unknown{WireID: 0x7E}, uuid.New())
	players.flush()

	if len(msgr.sent) != 0 || len(msgr.broadcasts) != 0 {
		t.Errorf("sent %d, broadcast %d, want nothing for keep-alives and unknown packets",
			len(msgr.sent), len(msgr.broadcasts))
	}
}
