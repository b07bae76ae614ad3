// Package protocol defines the client/server message unions carried on the
// framed TCP wire and their compact binary encoding. Field numbers are the
// external schema contract: unknown fields are skipped on decode so old and
// new peers interoperate.
package protocol

// ClientMessage is one variant of the client->server union.
type ClientMessage interface{ isClientMessage() }

// ServerMessage is one variant of the server->client union.
type ServerMessage interface{ isServerMessage() }

// AuthRequest asks the server to validate a token and open a session.
type AuthRequest struct {
	OAuthToken    string
	ClientVersion string
}

// QueueJoin enters the sender into the matchmaking queue.
type QueueJoin struct{}

// Heartbeat keeps the session alive and samples clock offset.
type Heartbeat struct {
	SessionID string
	TimeMs    uint64
}

// InputCommand carries one input snapshot. Commands with a ClientTick lower
// than the last applied one are dropped by the registry.
type InputCommand struct {
	SessionID  string
	ClientTick uint32
	MoveDir    float32
	TurnDir    float32
	TurretTurn float32
	Fire       bool
	Brake      bool
}

func (*AuthRequest) isClientMessage()  {}
func (*QueueJoin) isClientMessage()    {}
func (*Heartbeat) isClientMessage()    {}
func (*InputCommand) isClientMessage() {}

// AuthResponse answers an AuthRequest.
type AuthResponse struct {
	Success   bool
	SessionID string
	Reason    string
}

// QueueStatusUpdate reports the sender's place in the lobby.
type QueueStatusUpdate struct {
	Position           uint32
	PlayersInQueue     uint32
	NeededForMatch     uint32
	TimeoutSecondsLeft uint32
	LobbyState         string
	LobbyCountdown     uint32
	ProjectedBotFill   uint32
}

// MatchStart announces match formation.
type MatchStart struct {
	MatchID  string
	TickRate uint32
	Seed     uint32
}

// TankState is one tank entry inside a snapshot.
type TankState struct {
	EntityID    uint32
	X           float32
	Y           float32
	HullAngle   float32
	TurretAngle float32
	HP          uint32
	Ammo        uint32
}

// ProjectileState is one projectile entry inside a snapshot.
type ProjectileState struct {
	ProjectileID uint32
	X            float32
	Y            float32
	VX           float32
	VY           float32
}

// CrateState is one destructible crate entry. Reserved by the schema; the
// server does not spawn crates yet.
type CrateState struct {
	CrateID uint32
	X       float32
	Y       float32
	Kind    uint32
}

// AmmoBoxState is one ammo pickup entry. Reserved by the schema.
type AmmoBoxState struct {
	BoxID  uint32
	X      float32
	Y      float32
	Amount uint32
}

// StateSnapshot is an unconditional full world broadcast.
type StateSnapshot struct {
	ServerTick  uint32
	Tanks       []TankState
	Projectiles []ProjectileState
	Crates      []CrateState
	AmmoBoxes   []AmmoBoxState
}

// DeltaSnapshot is a change-only broadcast keyed to the last full snapshot.
type DeltaSnapshot struct {
	ServerTick         uint32
	BaseTick           uint32
	Tanks              []TankState
	Projectiles        []ProjectileState
	RemovedTanks       []uint32
	RemovedProjectiles []uint32
	RemovedCrates      []uint32
}

// DamageEvent reports a projectile hit on a tank.
type DamageEvent struct {
	VictimID    uint32
	AttackerID  uint32
	Amount      uint32
	RemainingHP uint32
}

// TankDestroyed reports a kill. Attacker 0 means environment or disconnect.
type TankDestroyed struct {
	VictimID   uint32
	AttackerID uint32
}

// KillFeedEntry is one (victim, attacker) pair.
type KillFeedEntry struct {
	VictimID   uint32
	AttackerID uint32
}

// KillFeedUpdate aggregates the kills of a single tick.
type KillFeedUpdate struct {
	Events []KillFeedEntry
}

// HeartbeatResponse echoes the client time with the server's clock.
type HeartbeatResponse struct {
	SessionID    string
	ClientTimeMs uint64
	ServerTimeMs uint64
	DeltaMs      uint64
}

// MatchEnd announces match termination and the winner (0 if none).
type MatchEnd struct {
	MatchID        string
	WinnerEntityID uint32
	ServerTick     uint32
}

func (*AuthResponse) isServerMessage()      {}
func (*QueueStatusUpdate) isServerMessage() {}
func (*MatchStart) isServerMessage()        {}
func (*StateSnapshot) isServerMessage()     {}
func (*DeltaSnapshot) isServerMessage()     {}
func (*DamageEvent) isServerMessage()       {}
func (*TankDestroyed) isServerMessage()     {}
func (*KillFeedUpdate) isServerMessage()    {}
func (*HeartbeatResponse) isServerMessage() {}
func (*MatchEnd) isServerMessage()          {}
