package game

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/patchwork-project/patchwork/internal/protocol"
)

// Block ids used by the placeholder terrain.
const (
	blockBorder       = 180
	blockCheckerEven  = 97
	blockCheckerOdd   = 103
	blockBitsPerBlock = 14
	biomeVoid         = 127
)

const blockMailboxSize = 256

// BlockState is the block state keeper actor. It serves chunk data for the
// shards this process hosts. Terrain is a fixed placeholder pillar: a border
// ring with a checkerboard interior, repeated for every layer of one section.
type BlockState struct {
	ops    chan blockOp
	msgr   Messenger
	logger zerolog.Logger

	section protocol.ChunkSection
	biomes  []int32
}

type blockOp func(s *BlockState)

// NewBlockState creates the keeper with its placeholder section prebuilt.
func NewBlockState(msgr Messenger) *BlockState {
	return &BlockState{
		ops:     make(chan blockOp, blockMailboxSize),
		msgr:    msgr,
		logger:  log.With().Str("component", "block_state").Logger(),
		section: protocol.ChunkSection{BitsPerBlock: blockBitsPerBlock, BlockIDs: dummyBlockIDs()},
		biomes:  dummyBiomes(),
	}
}

// Run processes the mailbox until the context is cancelled.
func (s *BlockState) Run(ctx context.Context) {
	s.logger.Info().Msg("block state keeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("block state keeper stopped")
			return
		case op := <-s.ops:
			op(s)
		}
	}
}

// Report sends the chunk at chunkPos to one connection.
func (s *BlockState) Report(connID uuid.UUID, chunkPos protocol.Position) {
	s.ops <- func(s *BlockState) {
		s.msgr.Send(connID, s.chunkDataFor(chunkPos))
		s.logger.Debug().
			Str("conn_id", connID.String()).
			Int32("chunk_x", chunkPos.X).
			Int32("chunk_z", chunkPos.Z).
			Msg("chunk reported")
	}
}

func (s *BlockState) chunkDataFor(pos protocol.Position) *protocol.ChunkData {
	return &protocol.ChunkData{
		ChunkX:         pos.X,
		ChunkZ:         pos.Z,
		FullChunk:      true,
		PrimaryBitMask: 1,
		Size:           int32(s.section.EncodedLen() + 4*protocol.BiomeArea),
		Data:           s.section,
		Biomes:         s.biomes,
	}
}

// dummyBlockIDs fills one section in Y-Z-X order: the outer x/z ring is a
// border block, the interior alternates on (x+z) parity.
func dummyBlockIDs() []int32 {
	ids := make([]int32, 0, protocol.SectionVolume)
	for len(ids) < protocol.SectionVolume {
		for z := 0; z < protocol.SectionWidth; z++ {
			for x := 0; x < protocol.SectionWidth; x++ {
				ids = append(ids, dummyBlockID(x, z))
			}
		}
	}
	return ids
}

func dummyBlockID(x, z int) int32 {
	if x == 0 || x == protocol.SectionWidth-1 || z == 0 || z == protocol.SectionWidth-1 {
		return blockBorder
	}
	if (x+z)%2 == 0 {
		return blockCheckerEven
	}
	return blockCheckerOdd
}

func dummyBiomes() []int32 {
	biomes := make([]int32, protocol.BiomeArea)
	for i := range biomes {
		biomes[i] = biomeVoid
	}
	return biomes
}
