// Package patchwork implements the world-sharding router: the ordered shard
// list, the per-player anchors, and the border-crossing protocol that moves a
// player's packet stream between shards as their position moves across the
// grid.
package patchwork

import (
	"fmt"

	"github.com/patchwork-project/patchwork/internal/protocol"
)

// Peer is the static network address of a remote shard host.
type Peer struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
}

func (p Peer) String() string {
	return fmt.Sprintf("%s:%d", p.Address, p.Port)
}

// Map is one shard of the world grid. A shard with a nil Peer is hosted by
// this process; otherwise its packet stream is delegated to the peer.
type Map struct {
	// Position is the shard's grid cell. Cells are unique across the shard
	// list and one cell spans the configured chunk size per axis.
	Position protocol.Position

	// EntityIDBlock is the index of the entity id block this shard owns.
	// Block k covers ids [k*blockSize, (k+1)*blockSize), so ids never
	// collide across shards.
	EntityIDBlock int32

	Peer *Peer
}

// Local reports whether the shard is hosted in this process.
func (m Map) Local() bool {
	return m.Peer == nil
}

// EntityIDStart returns the first entity id owned by this shard.
func (m Map) EntityIDStart(blockSize int32) int32 {
	return m.EntityIDBlock * blockSize
}
