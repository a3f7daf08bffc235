package protocol

import "github.com/google/uuid"

// Protocol states. A connection starts in the handshake state; the Handshake
// packet's NextState field selects what the connection becomes. State 99 is
// the clientbound half of the play state: packets registered there are only
// ever written by the server, except when a peer shard proxies them back to
// us, in which case they are also decodable in the play state.
const (
	StateHandshake   int32 = 0
	StateStatus      int32 = 1
	StateLogin       int32 = 2
	StatePlay        int32 = 3
	StateClientbound int32 = 99
)

// Handshake NextState values.
const (
	NextStateStatus int32 = 1
	NextStateLogin  int32 = 2
	// NextStatePlay puts the connection straight into the play state. Peer
	// shard servers use it when opening a border-crossing bridge.
	NextStatePlay int32 = 4
)

// Packet is one decoded frame. The concrete set of packets is closed: decode
// and encode live beside the field tables in this package.
type Packet interface {
	// ID returns the packet's wire id within its protocol state.
	ID() int32
	decode(r *Reader) error
	encode(w *Writer)
}

// Unknown stands in for a frame whose (state, id) pair is not in the packet
// table. The frame body is discarded; routing drops Unknown packets rather
// than forwarding them.
type Unknown struct {
	WireID int32
}

func (p *Unknown) ID() int32            { return p.WireID }
func (p *Unknown) decode(r *Reader) error { return nil }
func (p *Unknown) encode(w *Writer)     {}

// Handshake opens a connection and selects the next protocol state.
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       int32
}

func (p *Handshake) ID() int32 { return 0x00 }

func (p *Handshake) decode(r *Reader) (err error) {
	if p.ProtocolVersion, err = r.ReadVarInt(); err != nil {
		return err
	}
	if p.ServerAddress, err = r.ReadString(); err != nil {
		return err
	}
	if p.ServerPort, err = r.ReadUShort(); err != nil {
		return err
	}
	p.NextState, err = r.ReadVarInt()
	return err
}

func (p *Handshake) encode(w *Writer) {
	w.WriteVarInt(p.ProtocolVersion).
		WriteString(p.ServerAddress).
		WriteUShort(p.ServerPort).
		WriteVarInt(p.NextState)
}

// StatusRequest asks for the server list description.
type StatusRequest struct{}

func (p *StatusRequest) ID() int32            { return 0x00 }
func (p *StatusRequest) decode(r *Reader) error { return nil }
func (p *StatusRequest) encode(w *Writer)     {}

// Ping is the status-state latency probe.
type Ping struct {
	Payload int64
}

func (p *Ping) ID() int32 { return 0x01 }

func (p *Ping) decode(r *Reader) (err error) {
	p.Payload, err = r.ReadLong()
	return err
}

func (p *Ping) encode(w *Writer) { w.WriteLong(p.Payload) }

// LoginStart begins the login sequence.
type LoginStart struct {
	Username string
}

func (p *LoginStart) ID() int32 { return 0x00 }

func (p *LoginStart) decode(r *Reader) (err error) {
	p.Username, err = r.ReadString()
	return err
}

func (p *LoginStart) encode(w *Writer) { w.WriteString(p.Username) }

// KeepAlive is the heartbeat echo carrying an opaque id.
type KeepAlive struct {
	KeepAliveID int64
}

func (p *KeepAlive) ID() int32 { return 0x21 }

func (p *KeepAlive) decode(r *Reader) (err error) {
	p.KeepAliveID, err = r.ReadLong()
	return err
}

func (p *KeepAlive) encode(w *Writer) { w.WriteLong(p.KeepAliveID) }

// PlayerPosition is a serverbound position update.
type PlayerPosition struct {
	X        float64
	FeetY    float64
	Z        float64
	OnGround bool
}

func (p *PlayerPosition) ID() int32 { return 0x10 }

func (p *PlayerPosition) decode(r *Reader) (err error) {
	if p.X, err = r.ReadDouble(); err != nil {
		return err
	}
	if p.FeetY, err = r.ReadDouble(); err != nil {
		return err
	}
	if p.Z, err = r.ReadDouble(); err != nil {
		return err
	}
	p.OnGround, err = r.ReadBool()
	return err
}

func (p *PlayerPosition) encode(w *Writer) {
	w.WriteDouble(p.X).WriteDouble(p.FeetY).WriteDouble(p.Z).WriteBool(p.OnGround)
}

// PlayerPositionAndLook is a serverbound position plus view angle update.
type PlayerPositionAndLook struct {
	X        float64
	FeetY    float64
	Z        float64
	Yaw      float32
	Pitch    float32
	OnGround bool
}

func (p *PlayerPositionAndLook) ID() int32 { return 0x11 }

func (p *PlayerPositionAndLook) decode(r *Reader) (err error) {
	if p.X, err = r.ReadDouble(); err != nil {
		return err
	}
	if p.FeetY, err = r.ReadDouble(); err != nil {
		return err
	}
	if p.Z, err = r.ReadDouble(); err != nil {
		return err
	}
	if p.Yaw, err = r.ReadFloat(); err != nil {
		return err
	}
	if p.Pitch, err = r.ReadFloat(); err != nil {
		return err
	}
	p.OnGround, err = r.ReadBool()
	return err
}

func (p *PlayerPositionAndLook) encode(w *Writer) {
	w.WriteDouble(p.X).WriteDouble(p.FeetY).WriteDouble(p.Z).
		WriteFloat(p.Yaw).WriteFloat(p.Pitch).WriteBool(p.OnGround)
}

// PlayerLook is a serverbound view angle update.
type PlayerLook struct {
	Yaw      float32
	Pitch    float32
	OnGround bool
}

func (p *PlayerLook) ID() int32 { return 0x12 }

func (p *PlayerLook) decode(r *Reader) (err error) {
	if p.Yaw, err = r.ReadFloat(); err != nil {
		return err
	}
	if p.Pitch, err = r.ReadFloat(); err != nil {
		return err
	}
	p.OnGround, err = r.ReadBool()
	return err
}

func (p *PlayerLook) encode(w *Writer) {
	w.WriteFloat(p.Yaw).WriteFloat(p.Pitch).WriteBool(p.OnGround)
}

// BorderCrossLogin introduces a player arriving over a peer bridge: the full
// movement snapshot plus identity, so the receiving shard can create the
// player record without running the login sequence.
type BorderCrossLogin struct {
	X        float64
	FeetY    float64
	Z        float64
	Yaw      float32
	Pitch    float32
	OnGround bool
	Username string
	EntityID int32
}

func (p *BorderCrossLogin) ID() int32 { return 0xA0 }

func (p *BorderCrossLogin) decode(r *Reader) (err error) {
	if p.X, err = r.ReadDouble(); err != nil {
		return err
	}
	if p.FeetY, err = r.ReadDouble(); err != nil {
		return err
	}
	if p.Z, err = r.ReadDouble(); err != nil {
		return err
	}
	if p.Yaw, err = r.ReadFloat(); err != nil {
		return err
	}
	if p.Pitch, err = r.ReadFloat(); err != nil {
		return err
	}
	if p.OnGround, err = r.ReadBool(); err != nil {
		return err
	}
	if p.Username, err = r.ReadString(); err != nil {
		return err
	}
	p.EntityID, err = r.ReadInt()
	return err
}

func (p *BorderCrossLogin) encode(w *Writer) {
	w.WriteDouble(p.X).WriteDouble(p.FeetY).WriteDouble(p.Z).
		WriteFloat(p.Yaw).WriteFloat(p.Pitch).WriteBool(p.OnGround).
		WriteString(p.Username).WriteInt(p.EntityID)
}

// Pong answers a Ping with the same payload.
type Pong struct {
	Payload int64
}

func (p *Pong) ID() int32 { return 0x01 }

func (p *Pong) decode(r *Reader) (err error) {
	p.Payload, err = r.ReadLong()
	return err
}

func (p *Pong) encode(w *Writer) { w.WriteLong(p.Payload) }

// StatusResponse carries the server list JSON.
type StatusResponse struct {
	JSONResponse string
}

func (p *StatusResponse) ID() int32 { return 0x00 }

func (p *StatusResponse) decode(r *Reader) (err error) {
	p.JSONResponse, err = r.ReadString()
	return err
}

func (p *StatusResponse) encode(w *Writer) { w.WriteString(p.JSONResponse) }

// LoginSuccess completes the login sequence.
type LoginSuccess struct {
	UUID     string
	Username string
}

func (p *LoginSuccess) ID() int32 { return 0x02 }

func (p *LoginSuccess) decode(r *Reader) (err error) {
	if p.UUID, err = r.ReadString(); err != nil {
		return err
	}
	p.Username, err = r.ReadString()
	return err
}

func (p *LoginSuccess) encode(w *Writer) {
	w.WriteString(p.UUID).WriteString(p.Username)
}

// JoinGame tells a freshly logged-in client about its entity and the world.
type JoinGame struct {
	EntityID         int32
	Gamemode         uint8
	Dimension        int32
	Difficulty       uint8
	MaxPlayers       uint8
	LevelType        string
	ReducedDebugInfo bool
}

func (p *JoinGame) ID() int32 { return 0x25 }

func (p *JoinGame) decode(r *Reader) (err error) {
	if p.EntityID, err = r.ReadInt(); err != nil {
		return err
	}
	if p.Gamemode, err = r.ReadUByte(); err != nil {
		return err
	}
	if p.Dimension, err = r.ReadInt(); err != nil {
		return err
	}
	if p.Difficulty, err = r.ReadUByte(); err != nil {
		return err
	}
	if p.MaxPlayers, err = r.ReadUByte(); err != nil {
		return err
	}
	if p.LevelType, err = r.ReadString(); err != nil {
		return err
	}
	p.ReducedDebugInfo, err = r.ReadBool()
	return err
}

func (p *JoinGame) encode(w *Writer) {
	w.WriteInt(p.EntityID).WriteUByte(p.Gamemode).WriteInt(p.Dimension).
		WriteUByte(p.Difficulty).WriteUByte(p.MaxPlayers).
		WriteString(p.LevelType).WriteBool(p.ReducedDebugInfo)
}

// ClientboundPlayerPositionAndLook teleports the client to a position.
type ClientboundPlayerPositionAndLook struct {
	X          float64
	Y          float64
	Z          float64
	Yaw        float32
	Pitch      float32
	Flags      int8
	TeleportID int32
}

func (p *ClientboundPlayerPositionAndLook) ID() int32 { return 0x32 }

func (p *ClientboundPlayerPositionAndLook) decode(r *Reader) (err error) {
	if p.X, err = r.ReadDouble(); err != nil {
		return err
	}
	if p.Y, err = r.ReadDouble(); err != nil {
		return err
	}
	if p.Z, err = r.ReadDouble(); err != nil {
		return err
	}
	if p.Yaw, err = r.ReadFloat(); err != nil {
		return err
	}
	if p.Pitch, err = r.ReadFloat(); err != nil {
		return err
	}
	if p.Flags, err = r.ReadByte(); err != nil {
		return err
	}
	p.TeleportID, err = r.ReadVarInt()
	return err
}

func (p *ClientboundPlayerPositionAndLook) encode(w *Writer) {
	w.WriteDouble(p.X).WriteDouble(p.Y).WriteDouble(p.Z).
		WriteFloat(p.Yaw).WriteFloat(p.Pitch).
		WriteByte(p.Flags).WriteVarInt(p.TeleportID)
}

// BiomeArea is the per-chunk biome grid size.
const BiomeArea = 256

// ChunkData carries one full chunk column: a single section plus biomes.
type ChunkData struct {
	ChunkX               int32
	ChunkZ               int32
	FullChunk            bool
	PrimaryBitMask       int32
	Size                 int32
	Data                 ChunkSection
	Biomes               []int32
	NumberBlockEntities  int32
}

func (p *ChunkData) ID() int32 { return 0x22 }

func (p *ChunkData) decode(r *Reader) (err error) {
	if p.ChunkX, err = r.ReadInt(); err != nil {
		return err
	}
	if p.ChunkZ, err = r.ReadInt(); err != nil {
		return err
	}
	if p.FullChunk, err = r.ReadBool(); err != nil {
		return err
	}
	if p.PrimaryBitMask, err = r.ReadVarInt(); err != nil {
		return err
	}
	if p.Size, err = r.ReadVarInt(); err != nil {
		return err
	}
	if err = p.Data.decode(r); err != nil {
		return err
	}
	if p.Biomes, err = r.ReadIntArray(BiomeArea); err != nil {
		return err
	}
	p.NumberBlockEntities, err = r.ReadVarInt()
	return err
}

func (p *ChunkData) encode(w *Writer) {
	w.WriteInt(p.ChunkX).WriteInt(p.ChunkZ).WriteBool(p.FullChunk).
		WriteVarInt(p.PrimaryBitMask).WriteVarInt(p.Size)
	p.Data.encode(w)
	w.WriteIntArray(p.Biomes)
	w.WriteVarInt(p.NumberBlockEntities)
}

// PlayerInfo adds or updates a tab-list entry for one player.
type PlayerInfo struct {
	Action             int32
	NumberOfPlayers    int32
	UUID               uuid.UUID
	Name               string
	NumberOfProperties int32
	Gamemode           int32
	Ping               int32
	HasDisplayName     bool
}

func (p *PlayerInfo) ID() int32 { return 0x30 }

func (p *PlayerInfo) decode(r *Reader) (err error) {
	if p.Action, err = r.ReadVarInt(); err != nil {
		return err
	}
	if p.NumberOfPlayers, err = r.ReadVarInt(); err != nil {
		return err
	}
	if p.UUID, err = r.ReadUUID(); err != nil {
		return err
	}
	if p.Name, err = r.ReadString(); err != nil {
		return err
	}
	if p.NumberOfProperties, err = r.ReadVarInt(); err != nil {
		return err
	}
	if p.Gamemode, err = r.ReadVarInt(); err != nil {
		return err
	}
	if p.Ping, err = r.ReadVarInt(); err != nil {
		return err
	}
	p.HasDisplayName, err = r.ReadBool()
	return err
}

func (p *PlayerInfo) encode(w *Writer) {
	w.WriteVarInt(p.Action).WriteVarInt(p.NumberOfPlayers).WriteUUID(p.UUID).
		WriteString(p.Name).WriteVarInt(p.NumberOfProperties).
		WriteVarInt(p.Gamemode).WriteVarInt(p.Ping).WriteBool(p.HasDisplayName)
}

// SpawnPlayer makes another player's entity visible to a client.
type SpawnPlayer struct {
	EntityID int32
	UUID     uuid.UUID
	X        float64
	Y        float64
	Z        float64
	Yaw      uint8 // angle * 256/360
	Pitch    uint8
	// EntityMetadataTerminator stays 0xFF until entity metadata is carried.
	EntityMetadataTerminator uint8
}

func (p *SpawnPlayer) ID() int32 { return 0x05 }

func (p *SpawnPlayer) decode(r *Reader) (err error) {
	if p.EntityID, err = r.ReadVarInt(); err != nil {
		return err
	}
	if p.UUID, err = r.ReadUUID(); err != nil {
		return err
	}
	if p.X, err = r.ReadDouble(); err != nil {
		return err
	}
	if p.Y, err = r.ReadDouble(); err != nil {
		return err
	}
	if p.Z, err = r.ReadDouble(); err != nil {
		return err
	}
	if p.Yaw, err = r.ReadUByte(); err != nil {
		return err
	}
	if p.Pitch, err = r.ReadUByte(); err != nil {
		return err
	}
	p.EntityMetadataTerminator, err = r.ReadUByte()
	return err
}

func (p *SpawnPlayer) encode(w *Writer) {
	w.WriteVarInt(p.EntityID).WriteUUID(p.UUID).
		WriteDouble(p.X).WriteDouble(p.Y).WriteDouble(p.Z).
		WriteUByte(p.Yaw).WriteUByte(p.Pitch).
		WriteUByte(p.EntityMetadataTerminator)
}

// EntityHeadLook rotates an entity's head.
type EntityHeadLook struct {
	EntityID int32
	Angle    uint8
}

func (p *EntityHeadLook) ID() int32 { return 0x39 }

func (p *EntityHeadLook) decode(r *Reader) (err error) {
	if p.EntityID, err = r.ReadVarInt(); err != nil {
		return err
	}
	p.Angle, err = r.ReadUByte()
	return err
}

func (p *EntityHeadLook) encode(w *Writer) {
	w.WriteVarInt(p.EntityID).WriteUByte(p.Angle)
}

// DestroyEntities removes entities from a client's view.
type DestroyEntities struct {
	EntityIDs []int32
}

func (p *DestroyEntities) ID() int32 { return 0x35 }

func (p *DestroyEntities) decode(r *Reader) (err error) {
	p.EntityIDs, err = r.ReadVarIntArray()
	return err
}

func (p *DestroyEntities) encode(w *Writer) { w.WriteVarIntArray(p.EntityIDs) }

// EntityLookAndMove moves an entity by a small delta and rotates it.
type EntityLookAndMove struct {
	EntityID int32
	DeltaX   int16
	DeltaY   int16
	DeltaZ   int16
	Yaw      uint8
	Pitch    uint8
	OnGround bool
}

func (p *EntityLookAndMove) ID() int32 { return 0x29 }

func (p *EntityLookAndMove) decode(r *Reader) (err error) {
	if p.EntityID, err = r.ReadVarInt(); err != nil {
		return err
	}
	if p.DeltaX, err = r.ReadShort(); err != nil {
		return err
	}
	if p.DeltaY, err = r.ReadShort(); err != nil {
		return err
	}
	if p.DeltaZ, err = r.ReadShort(); err != nil {
		return err
	}
	if p.Yaw, err = r.ReadUByte(); err != nil {
		return err
	}
	if p.Pitch, err = r.ReadUByte(); err != nil {
		return err
	}
	p.OnGround, err = r.ReadBool()
	return err
}

func (p *EntityLookAndMove) encode(w *Writer) {
	w.WriteVarInt(p.EntityID).
		WriteShort(p.DeltaX).WriteShort(p.DeltaY).WriteShort(p.DeltaZ).
		WriteUByte(p.Yaw).WriteUByte(p.Pitch).WriteBool(p.OnGround)
}
