package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// MaxFrameSize caps a single frame's declared length. Anything larger is
// treated as a protocol violation rather than an allocation request.
const MaxFrameSize = 2 * 1024 * 1024

type stateID struct {
	state int32
	id    int32
}

// packetTable maps (protocol state, wire id) to a constructor for the packet
// registered there. Built once at init from the catalogue below.
var packetTable = map[stateID]func() Packet{}

func register(states []int32, ctor func() Packet) {
	id := ctor().ID()
	for _, s := range states {
		key := stateID{state: s, id: id}
		if _, dup := packetTable[key]; dup {
			panic(fmt.Sprintf("duplicate packet registration for state %d id 0x%02X", s, id))
		}
		packetTable[key] = ctor
	}
}

func init() {
	// Serverbound.
	register([]int32{StateHandshake}, func() Packet { return &Handshake{} })
	register([]int32{StateStatus}, func() Packet { return &StatusRequest{} })
	register([]int32{StateStatus}, func() Packet { return &Ping{} })
	register([]int32{StateLogin}, func() Packet { return &LoginStart{} })
	register([]int32{StatePlay}, func() Packet { return &PlayerPosition{} })
	register([]int32{StatePlay}, func() Packet { return &PlayerPositionAndLook{} })
	register([]int32{StatePlay}, func() Packet { return &PlayerLook{} })
	register([]int32{StatePlay}, func() Packet { return &BorderCrossLogin{} })

	// Clientbound.
	register([]int32{StateClientbound}, func() Packet { return &Pong{} })
	register([]int32{StateClientbound}, func() Packet { return &StatusResponse{} })
	register([]int32{StateClientbound}, func() Packet { return &LoginSuccess{} })
	register([]int32{StateClientbound}, func() Packet { return &JoinGame{} })
	register([]int32{StateClientbound}, func() Packet { return &ClientboundPlayerPositionAndLook{} })

	// Clientbound packets a peer shard can proxy back over a bridge register
	// in the play state as well.
	register([]int32{StatePlay, StateClientbound}, func() Packet { return &KeepAlive{} })
	register([]int32{StatePlay, StateClientbound}, func() Packet { return &ChunkData{} })
	register([]int32{StatePlay, StateClientbound}, func() Packet { return &PlayerInfo{} })
	register([]int32{StatePlay, StateClientbound}, func() Packet { return &SpawnPlayer{} })
	register([]int32{StatePlay, StateClientbound}, func() Packet { return &EntityHeadLook{} })
	register([]int32{StatePlay, StateClientbound}, func() Packet { return &DestroyEntities{} })
	register([]int32{StatePlay, StateClientbound}, func() Packet { return &EntityLookAndMove{} })
}

// Decode parses one frame body (wire id plus fields) against the packet
// table for the given protocol state. An unregistered (state, id) pair
// decodes to *Unknown with the rest of the frame discarded.
func Decode(state int32, frame []byte) (Packet, error) {
	r := NewReader(frame)
	id, err := r.ReadVarInt()
	if err != nil {
		return nil, fmt.Errorf("packet id: %w", err)
	}

	ctor, ok := packetTable[stateID{state: state, id: id}]
	if !ok {
		return &Unknown{WireID: id}, nil
	}

	p := ctor()
	if err := p.decode(r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", Name(p), err)
	}
	return p, nil
}

// Encode serializes a packet into a complete frame: VarInt total length,
// VarInt wire id, then the fields.
func Encode(p Packet) []byte {
	w := NewWriter()
	w.WriteVarInt(p.ID())
	p.encode(w)
	body := w.Bytes()

	frame := AppendVarInt(make([]byte, 0, VarIntLen(int32(len(body)))+len(body)), int32(len(body)))
	return append(frame, body...)
}

// ReadFrame reads one length-prefixed frame body from the stream. The
// returned slice excludes the length prefix.
func ReadFrame(br *bufio.Reader) ([]byte, error) {
	length, err := readVarInt(br)
	if err != nil {
		return nil, err
	}
	if length < 0 || length > MaxFrameSize {
		return nil, fmt.Errorf("frame length %d out of range", length)
	}
	frame := make([]byte, length)
	if _, err := io.ReadFull(br, frame); err != nil {
		return nil, truncated(err)
	}
	return frame, nil
}

// Name returns the packet's type name for logging.
func Name(p Packet) string {
	if u, ok := p.(*Unknown); ok {
		return fmt.Sprintf("Unknown(0x%02X)", u.WireID)
	}
	s := fmt.Sprintf("%T", p)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	return s
}
