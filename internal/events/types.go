// Package events defines the pub/sub bus and the event vocabulary shared by
// the observability components. Core routing never depends on the bus; it
// only publishes into it.
package events

// EventType identifies the kind of event.
type EventType string

const (
	// EventConnectionOpened fires when the listener accepts a socket.
	EventConnectionOpened EventType = "connection_opened"
	// EventConnectionClosed fires when a connection's read loop ends.
	EventConnectionClosed EventType = "connection_closed"
	// EventPlayerJoined fires when a login sequence completes.
	EventPlayerJoined EventType = "player_joined"
	// EventBorderCrossing fires when a player re-anchors to another shard.
	EventBorderCrossing EventType = "border_crossing"
	// EventBorderCrossFailed fires when a crossing aborts on a peer dial error.
	EventBorderCrossFailed EventType = "border_cross_failed"
	// EventShardAdded fires when a shard joins the patchwork.
	EventShardAdded EventType = "shard_added"
	// EventShutdown fires once on graceful shutdown.
	EventShutdown EventType = "shutdown"
)

// Event is one bus message.
type Event struct {
	Type    EventType
	Source  string
	Payload any
}

// ConnectionPayload accompanies connection open/close events.
type ConnectionPayload struct {
	ConnID string `json:"conn_id"`
	Remote string `json:"remote,omitempty"`
}

// PlayerJoinedPayload accompanies EventPlayerJoined. The entity id is not
// carried: it is assigned asynchronously by the player-state keeper after the
// event fires.
type PlayerJoinedPayload struct {
	ConnID   string `json:"conn_id"`
	Username string `json:"username"`
}

// BorderCrossingPayload accompanies crossing events.
type BorderCrossingPayload struct {
	ConnID    string `json:"conn_id"`
	FromShard int    `json:"from_shard"`
	ToShard   int    `json:"to_shard"`
	Remote    bool   `json:"remote"`
	ProxyID   string `json:"proxy_id,omitempty"`
}

// ShardAddedPayload accompanies EventShardAdded.
type ShardAddedPayload struct {
	Index     int    `json:"index"`
	PositionX int32  `json:"position_x"`
	PositionZ int32  `json:"position_z"`
	Peer      string `json:"peer,omitempty"`
}
