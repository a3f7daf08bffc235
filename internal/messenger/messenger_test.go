package messenger

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/patchwork-project/patchwork/internal/protocol"
)

// fakeConn collects written frames in memory.
type fakeConn struct {
	mu         sync.Mutex
	buf        bytes.Buffer
	failWrites bool
	closed     bool
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return 0, errors.New("broken pipe")
	}
	return c.buf.Write(p)
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// packets decodes every frame written so far against the given state.
func (c *fakeConn) packets(t *testing.T, state int32) []protocol.Packet {
	t.Helper()
	c.mu.Lock()
	data := append([]byte(nil), c.buf.Bytes()...)
	c.mu.Unlock()

	br := bufio.NewReader(bytes.NewReader(data))
	var out []protocol.Packet
	for {
		body, err := protocol.ReadFrame(br)
		if err != nil {
			return out
		}
		p, err := protocol.Decode(state, body)
		if err != nil {
			t.Fatalf("decode written frame: %v", err)
		}
		out = append(out, p)
	}
}

func startMessenger(t *testing.T) *Messenger {
	t.Helper()
	m := New(16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go m.Run(ctx)
	return m
}

// sync flushes the mailbox: once the snapshot reply arrives, every operation
// enqueued before it has been applied.
func (m *Messenger) sync() {
	m.Snapshot()
}

func TestSendWritesFrame(t *testing.T) {
	m := startMessenger(t)
	conn := &fakeConn{}
	id := uuid.New()

	m.Register(id, conn)
	m.Send(id, &protocol.KeepAlive{KeepAliveID: 77})
	m.sync()

	got := conn.packets(t, protocol.StateClientbound)
	if len(got) != 1 {
		t.Fatalf("wrote %d packets, want 1", len(got))
	}
	ka, ok := got[0].(*protocol.KeepAlive)
	if !ok || ka.KeepAliveID != 77 {
		t.Errorf("wrote %#v", got[0])
	}
}

func TestSendAppliesTranslation(t *testing.T) {
	m := startMessenger(t)
	conn := &fakeConn{}
	id := uuid.New()

	m.Register(id, conn)
	m.SetTranslation(id, protocol.TranslationInfo{
		Offset: protocol.Position{X: 1, Z: 0},
		State:  protocol.StatePlay,
	})
	m.Send(id, &protocol.PlayerPosition{X: 17.0, FeetY: 16.0, Z: 2.0, OnGround: true})
	m.sync()

	got := conn.packets(t, protocol.StatePlay)
	if len(got) != 1 {
		t.Fatalf("wrote %d packets, want 1", len(got))
	}
	pos, ok := got[0].(*protocol.PlayerPosition)
	if !ok {
		t.Fatalf("wrote %T, want *PlayerPosition", got[0])
	}
	if pos.X != 1.0 || pos.Z != 2.0 {
		t.Errorf("translated position = (%v, %v), want (1, 2)", pos.X, pos.Z)
	}
}

func TestSendToUnknownConnIsSilentlyDropped(t *testing.T) {
	m := startMessenger(t)
	m.Send(uuid.New(), &protocol.KeepAlive{KeepAliveID: 1})
	if got := m.Snapshot(); len(got) != 0 {
		t.Errorf("snapshot has %d connections, want 0", len(got))
	}
}

func TestBroadcastExcludesSource(t *testing.T) {
	m := startMessenger(t)
	source, sourceConn := uuid.New(), &fakeConn{}
	other, otherConn := uuid.New(), &fakeConn{}

	m.Register(source, sourceConn)
	m.Register(other, otherConn)
	m.Subscribe(source, SubscribeAll)
	m.Subscribe(other, SubscribeAll)

	m.Broadcast(&protocol.EntityHeadLook{EntityID: 9, Angle: 3}, source, false)
	m.sync()

	if got := sourceConn.packets(t, protocol.StateClientbound); len(got) != 0 {
		t.Errorf("source received %d packets, want 0", len(got))
	}
	if got := otherConn.packets(t, protocol.StateClientbound); len(got) != 1 {
		t.Errorf("other received %d packets, want 1", len(got))
	}
}

func TestBroadcastLocalFlagControlsLocalOnlySet(t *testing.T) {
	m := startMessenger(t)
	all, allConn := uuid.New(), &fakeConn{}
	bridge, bridgeConn := uuid.New(), &fakeConn{}

	m.Register(all, allConn)
	m.Register(bridge, bridgeConn)
	m.Subscribe(all, SubscribeAll)
	m.Subscribe(bridge, SubscribeLocalOnly)

	m.Broadcast(&protocol.KeepAlive{KeepAliveID: 1}, uuid.Nil, false)
	m.Broadcast(&protocol.KeepAlive{KeepAliveID: 2}, uuid.Nil, true)
	m.sync()

	if got := allConn.packets(t, protocol.StateClientbound); len(got) != 2 {
		t.Errorf("all-subscriber received %d packets, want 2", len(got))
	}
	got := bridgeConn.packets(t, protocol.StateClientbound)
	if len(got) != 1 {
		t.Fatalf("local-only subscriber received %d packets, want 1", len(got))
	}
	if ka := got[0].(*protocol.KeepAlive); ka.KeepAliveID != 2 {
		t.Errorf("local-only subscriber got id %d, want 2", ka.KeepAliveID)
	}
}

func TestWriteFailureDoesNotStopLoop(t *testing.T) {
	m := startMessenger(t)
	broken, brokenConn := uuid.New(), &fakeConn{failWrites: true}
	healthy, healthyConn := uuid.New(), &fakeConn{}

	m.Register(broken, brokenConn)
	m.Register(healthy, healthyConn)
	m.Subscribe(broken, SubscribeAll)
	m.Subscribe(healthy, SubscribeAll)

	m.Broadcast(&protocol.KeepAlive{KeepAliveID: 5}, uuid.Nil, false)
	m.Send(healthy, &protocol.KeepAlive{KeepAliveID: 6})
	m.sync()

	if got := healthyConn.packets(t, protocol.StateClientbound); len(got) != 2 {
		t.Errorf("healthy conn received %d packets, want 2", len(got))
	}
}

func TestCloseRemovesEveryTrace(t *testing.T) {
	m := startMessenger(t)
	id, conn := uuid.New(), &fakeConn{}

	m.Register(id, conn)
	m.Subscribe(id, SubscribeAll)
	m.SetTranslation(id, protocol.TranslationInfo{Offset: protocol.Position{X: 1}})
	m.Close(id)

	if got := m.Snapshot(); len(got) != 0 {
		t.Fatalf("snapshot has %d connections after close, want 0", len(got))
	}
	if !conn.isClosed() {
		t.Error("socket was not closed")
	}

	// Broadcasts after close must not reach the removed connection.
	m.Broadcast(&protocol.KeepAlive{KeepAliveID: 1}, uuid.Nil, true)
	m.sync()
	if got := conn.packets(t, protocol.StateClientbound); len(got) != 0 {
		t.Errorf("closed conn received %d packets, want 0", len(got))
	}
}

func TestSnapshotReflectsSubscriptions(t *testing.T) {
	m := startMessenger(t)
	id := uuid.New()

	m.Register(id, &fakeConn{})
	m.Subscribe(id, SubscribeLocalOnly)
	m.SetTranslation(id, protocol.TranslationInfo{Offset: protocol.Position{X: 2}})

	snap := m.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot has %d entries, want 1", len(snap))
	}
	if snap[0].ID != id || snap[0].Subscription != "local-only" || !snap[0].Translated {
		t.Errorf("snapshot entry = %+v", snap[0])
	}
}
