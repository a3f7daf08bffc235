package protocol

// Position is a shard grid coordinate. One cell spans the configured chunk
// size in world units per axis.
type Position struct {
	X int32 `json:"x"`
	Z int32 `json:"z"`
}

// TranslationInfo is the outbound transform installed for a proxied
// connection. Offset is the target shard's grid origin expressed in the
// sending server's grid; State is the protocol state the remote peer expects
// on that connection.
type TranslationInfo struct {
	Offset Position
	State  int32
}

// TranslateOutgoing rebases every position-bearing field of p into the
// target frame described by t: entity-granularity coordinates move by the
// grid offset scaled by chunkSize world units, chunk-granularity coordinates
// by the raw grid offset. Packets without positional fields pass through
// untouched. Translating with offset o and then with offset -o restores the
// original packet bit for bit.
func TranslateOutgoing(p Packet, t TranslationInfo, chunkSize int32) Packet {
	dx := float64(t.Offset.X * chunkSize)
	dz := float64(t.Offset.Z * chunkSize)

	switch q := p.(type) {
	case *PlayerPosition:
		c := *q
		c.X -= dx
		c.Z -= dz
		return &c
	case *PlayerPositionAndLook:
		c := *q
		c.X -= dx
		c.Z -= dz
		return &c
	case *BorderCrossLogin:
		c := *q
		c.X -= dx
		c.Z -= dz
		return &c
	case *SpawnPlayer:
		c := *q
		c.X -= dx
		c.Z -= dz
		return &c
	case *ChunkData:
		c := *q
		c.ChunkX -= t.Offset.X
		c.ChunkZ -= t.Offset.Z
		return &c
	default:
		return p
	}
}
