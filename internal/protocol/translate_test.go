package protocol

import (
	"bytes"
	"reflect"
	"testing"
)

func TestTranslateOutgoingEntityGranularity(t *testing.T) {
	p := &PlayerPosition{X: 17.0, FeetY: 16.0, Z: 2.5, OnGround: true}
	info := TranslationInfo{Offset: Position{X: 1, Z: 0}, State: StatePlay}

	got, ok := TranslateOutgoing(p, info, 16).(*PlayerPosition)
	if !ok {
		t.Fatalf("TranslateOutgoing = %T, want *PlayerPosition", got)
	}
	if got.X != 1.0 || got.Z != 2.5 || got.FeetY != 16.0 {
		t.Errorf("translated = (%v, %v, %v), want (1, 16, 2.5)", got.X, got.FeetY, got.Z)
	}
	if p.X != 17.0 {
		t.Error("TranslateOutgoing mutated its input")
	}
}

func TestTranslateOutgoingChunkGranularity(t *testing.T) {
	p := &ChunkData{ChunkX: 3, ChunkZ: -2, FullChunk: true}
	info := TranslationInfo{Offset: Position{X: 1, Z: -1}, State: StatePlay}

	got, ok := TranslateOutgoing(p, info, 16).(*ChunkData)
	if !ok {
		t.Fatalf("TranslateOutgoing = %T, want *ChunkData", got)
	}
	// Chunk coordinates shift by the raw grid offset, not scaled.
	if got.ChunkX != 2 || got.ChunkZ != -1 {
		t.Errorf("translated chunk = (%d, %d), want (2, -1)", got.ChunkX, got.ChunkZ)
	}
}

func TestTranslateOutgoingPassthrough(t *testing.T) {
	p := &KeepAlive{KeepAliveID: 9}
	info := TranslationInfo{Offset: Position{X: 5, Z: 5}, State: StatePlay}

	if got := TranslateOutgoing(p, info, 16); got != Packet(p) {
		t.Errorf("non-positional packet was copied: %#v", got)
	}
}

// Translating into a neighbour frame and back must reproduce the original
// packet bit for bit.
func TestTranslateThereAndBackIsBitExact(t *testing.T) {
	forward := TranslationInfo{Offset: Position{X: 2, Z: -1}, State: StatePlay}
	back := TranslationInfo{Offset: Position{X: -2, Z: 1}, State: StatePlay}

	packets := []Packet{
		&PlayerPosition{X: 33.125, FeetY: 64, Z: -7.75, OnGround: true},
		&PlayerPositionAndLook{X: 0, FeetY: 1, Z: 16, Yaw: 90, Pitch: 3, OnGround: false},
		&BorderCrossLogin{X: 32.5, FeetY: 16, Z: 0, Username: "alex", EntityID: 2001},
		&SpawnPlayer{EntityID: 4, X: 48, Y: 16, Z: -16, EntityMetadataTerminator: 0xFF},
		&ChunkData{ChunkX: 2, ChunkZ: 0, FullChunk: true, Biomes: make([]int32, BiomeArea)},
	}

	for _, p := range packets {
		original := Encode(p)
		there := TranslateOutgoing(p, forward, 16)
		again := TranslateOutgoing(there, back, 16)
		if !bytes.Equal(Encode(again), original) {
			t.Errorf("%s: A->B->A not bit-exact", Name(p))
		}
		if !reflect.DeepEqual(again, p) {
			t.Errorf("%s: A->B->A value mismatch: %#v", Name(p), again)
		}
	}
}
