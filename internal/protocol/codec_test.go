package protocol

import (
	"bufio"
	"bytes"
	"reflect"
	"testing"

	"github.com/google/uuid"
)

// decodeFrame strips the length prefix from an encoded frame and decodes the
// body against the given state.
func decodeFrame(t *testing.T, state int32, frame []byte) Packet {
	t.Helper()
	br := bufio.NewReader(bytes.NewReader(frame))
	body, err := ReadFrame(br)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	p, err := Decode(state, body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return p
}

func TestRoundTrip(t *testing.T) {
	id := uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5")

	section := ChunkSection{BitsPerBlock: 14, BlockIDs: make([]int32, SectionVolume)}
	for i := range section.BlockIDs {
		section.BlockIDs[i] = int32(i % 3000)
	}
	biomes := make([]int32, BiomeArea)
	for i := range biomes {
		biomes[i] = 127
	}

	cases := []struct {
		state  int32
		packet Packet
	}{
		{StateHandshake, &Handshake{ProtocolVersion: 404, ServerAddress: "localhost", ServerPort: 25565, NextState: NextStateLogin}},
		{StateStatus, &StatusRequest{}},
		{StateStatus, &Ping{Payload: -42}},
		{StateLogin, &LoginStart{Username: "steve"}},
		{StatePlay, &KeepAlive{KeepAliveID: 123456789}},
		{StatePlay, &PlayerPosition{X: 17.5, FeetY: 64, Z: -3.25, OnGround: true}},
		{StatePlay, &PlayerPositionAndLook{X: 1, FeetY: 2, Z: 3, Yaw: 90, Pitch: -10, OnGround: false}},
		{StatePlay, &PlayerLook{Yaw: 180, Pitch: 45, OnGround: true}},
		{StatePlay, &BorderCrossLogin{X: 17, FeetY: 16, Z: 0.5, Yaw: 0, Pitch: 0, OnGround: true, Username: "alex", EntityID: 1007}},
		{StateClientbound, &Pong{Payload: -42}},
		{StateClientbound, &StatusResponse{JSONResponse: `{"description":{"text":"hi"}}`}},
		{StateClientbound, &LoginSuccess{UUID: id.String(), Username: "steve"}},
		{StateClientbound, &JoinGame{EntityID: 1, Gamemode: 1, Dimension: 0, Difficulty: 0, MaxPlayers: 100, LevelType: "default"}},
		{StateClientbound, &ClientboundPlayerPositionAndLook{X: 5, Y: 16, Z: 5, Yaw: 0, Pitch: 0, Flags: 0, TeleportID: 7}},
		{StateClientbound, &ChunkData{ChunkX: 1, ChunkZ: -1, FullChunk: true, PrimaryBitMask: 1, Size: int32(section.EncodedLen() + 4*BiomeArea), Data: section, Biomes: biomes}},
		{StateClientbound, &PlayerInfo{Action: 0, NumberOfPlayers: 1, UUID: id, Name: "steve", Gamemode: 1}},
		{StateClientbound, &SpawnPlayer{EntityID: 12, UUID: id, X: 5, Y: 16, Z: 5, Yaw: 64, Pitch: 0, EntityMetadataTerminator: 0xFF}},
		{StateClientbound, &EntityHeadLook{EntityID: 12, Angle: 64}},
		{StateClientbound, &DestroyEntities{EntityIDs: []int32{1, 1000, 2001}}},
		{StateClientbound, &EntityLookAndMove{EntityID: 12, DeltaX: -40, DeltaY: 0, DeltaZ: 4096, Yaw: 3, Pitch: 250, OnGround: true}},
	}

	for _, tc := range cases {
		got := decodeFrame(t, tc.state, Encode(tc.packet))
		if !reflect.DeepEqual(got, tc.packet) {
			t.Errorf("%s: round trip mismatch\n got %#v\nwant %#v", Name(tc.packet), got, tc.packet)
		}
	}
}

func TestRoundTripIsBitExact(t *testing.T) {
	p := &PlayerPositionAndLook{X: 17.25, FeetY: 64.5, Z: -0.125, Yaw: 33.5, Pitch: -2, OnGround: true}
	first := Encode(p)
	decoded := decodeFrame(t, StatePlay, first)
	second := Encode(decoded)
	if !bytes.Equal(first, second) {
		t.Errorf("re-encode differs:\n first % X\nsecond % X", first, second)
	}
}

func TestDecodeUnknown(t *testing.T) {
	// Id 0x7E is not registered in any state.
	body := AppendVarInt(nil, 0x7E)
	body = append(body, 0xDE, 0xAD)

	p, err := Decode(StatePlay, body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	u, ok := p.(*Unknown)
	if !ok {
		t.Fatalf("Decode = %T, want *Unknown", p)
	}
	if u.WireID != 0x7E {
		t.Errorf("WireID = 0x%02X, want 0x7E", u.WireID)
	}
}

func TestDecodeWrongStateIsUnknown(t *testing.T) {
	// PlayerPosition is a play-state packet; in the status state its id is
	// unregistered.
	frame := Encode(&PlayerPosition{X: 1, FeetY: 2, Z: 3})
	br := bufio.NewReader(bytes.NewReader(frame))
	body, err := ReadFrame(br)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	p, err := Decode(StateStatus, body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := p.(*Unknown); !ok {
		t.Errorf("Decode = %T, want *Unknown", p)
	}
}

func TestDecodeTruncatedBody(t *testing.T) {
	frame := Encode(&PlayerPosition{X: 1, FeetY: 2, Z: 3, OnGround: true})
	br := bufio.NewReader(bytes.NewReader(frame))
	body, err := ReadFrame(br)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	_, err = Decode(StatePlay, body[:len(body)-8])
	if err == nil {
		t.Error("Decode of truncated body succeeded, want error")
	}
}

func TestReadFrameRejectsOversize(t *testing.T) {
	br := bufio.NewReader(bytes.NewReader(AppendVarInt(nil, MaxFrameSize+1)))
	if _, err := ReadFrame(br); err == nil {
		t.Error("ReadFrame accepted oversized length")
	}
}

func TestReadFrameSequence(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(Encode(&Ping{Payload: 1}))
	stream.Write(Encode(&Ping{Payload: 2}))

	br := bufio.NewReader(&stream)
	for want := int64(1); want <= 2; want++ {
		body, err := ReadFrame(br)
		if err != nil {
			t.Fatalf("ReadFrame #%d: %v", want, err)
		}
		p, err := Decode(StateStatus, body)
		if err != nil {
			t.Fatalf("Decode #%d: %v", want, err)
		}
		ping, ok := p.(*Ping)
		if !ok || ping.Payload != want {
			t.Errorf("frame #%d = %#v", want, p)
		}
	}
}

// A hostile long count in a chunk frame must come back as a decode error,
// never as a panic in the read loop.
func TestChunkSectionRejectsHostileLongCount(t *testing.T) {
	for _, count := range []int32{-1, 1 << 28} {
		w := NewWriter()
		w.WriteVarInt(0x22) // ChunkData
		w.WriteInt(0).WriteInt(0).WriteBool(true).WriteVarInt(1).WriteVarInt(12291)
		w.WriteUByte(14).WriteVarInt(count)

		_, err := Decode(StatePlay, w.Bytes())
		if err == nil {
			t.Errorf("long count %d: Decode succeeded, want error", count)
		}
	}
}

func TestChunkSectionPacking(t *testing.T) {
	ids := make([]int32, SectionVolume)
	for i := range ids {
		ids[i] = int32((i * 7) % (1 << 14))
	}
	s := ChunkSection{BitsPerBlock: 14, BlockIDs: ids}

	w := NewWriter()
	s.encode(w)
	if w.Len() != s.EncodedLen() {
		t.Errorf("encoded %d bytes, EncodedLen = %d", w.Len(), s.EncodedLen())
	}

	var back ChunkSection
	if err := back.decode(NewReader(w.Bytes())); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(back, s) {
		t.Error("section round trip mismatch")
	}
}
