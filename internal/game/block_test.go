package game

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/patchwork-project/patchwork/internal/protocol"
)

func startBlockState(t *testing.T, msgr Messenger) *BlockState {
	t.Helper()
	s := NewBlockState(msgr)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)
	return s
}

func (s *BlockState) flush() {
	done := make(chan struct{})
	s.ops <- func(*BlockState) { close(done) }
	<-done
}

func TestReportSendsChunkData(t *testing.T) {
	msgr := newFakeMessenger()
	s := startBlockState(t, msgr)
	connID := uuid.New()

	s.Report(connID, protocol.Position{X: 2, Z: -1})
	s.flush()

	if len(msgr.sent) != 1 || msgr.sent[0].connID != connID {
		t.Fatalf("sent %v, want one chunk to the requester", msgr.sent)
	}
	chunk, ok := msgr.sent[0].packet.(*protocol.ChunkData)
	if !ok {
		t.Fatalf("sent %T, want *ChunkData", msgr.sent[0].packet)
	}
	if chunk.ChunkX != 2 || chunk.ChunkZ != -1 {
		t.Errorf("chunk at (%d, %d), want (2, -1)", chunk.ChunkX, chunk.ChunkZ)
	}
	if !chunk.FullChunk || chunk.PrimaryBitMask != 1 {
		t.Errorf("chunk flags = full=%v mask=%d, want a full chunk with section 0", chunk.FullChunk, chunk.PrimaryBitMask)
	}
	if want := int32(chunk.Data.EncodedLen() + 4*protocol.BiomeArea); chunk.Size != want {
		t.Errorf("declared size %d, want %d", chunk.Size, want)
	}
	if chunk.Data.BitsPerBlock != 14 {
		t.Errorf("bits per block = %d, want 14", chunk.Data.BitsPerBlock)
	}
	if len(chunk.Biomes) != protocol.BiomeArea {
		t.Fatalf("carried %d biomes, want %d", len(chunk.Biomes), protocol.BiomeArea)
	}
	for _, b := range chunk.Biomes {
		if b != biomeVoid {
			t.Fatalf("biome = %d, want %d everywhere", b, biomeVoid)
		}
	}
}

func TestDummyTerrainPattern(t *testing.T) {
	cases := []struct {
		x, z int
		want int32
	}{
		{0, 5, blockBorder},
		{15, 3, blockBorder},
		{3, 0, blockBorder},
		{7, 15, blockBorder},
		{1, 1, blockCheckerEven},
		{1, 2, blockCheckerOdd},
		{2, 2, blockCheckerEven},
	}
	for _, tc := range cases {
		if got := dummyBlockID(tc.x, tc.z); got != tc.want {
			t.Errorf("dummyBlockID(%d, %d) = %d, want %d", tc.x, tc.z, got, tc.want)
		}
	}
}

func TestDummyBlockIDsFillSection(t *testing.T) {
	ids := dummyBlockIDs()
	if len(ids) != protocol.SectionVolume {
		t.Fatalf("len = %d, want %d", len(ids), protocol.SectionVolume)
	}
	// Every layer repeats the same floor plan.
	layer := protocol.SectionWidth * protocol.SectionWidth
	for i, id := range ids {
		if id != ids[i%layer] {
			t.Fatalf("ids[%d] = %d, differs from layer 0", i, id)
		}
	}
}
