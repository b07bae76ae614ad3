package protocol

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Union field numbers. These, together with the per-message field numbers
// below, are the wire contract and must never be renumbered.
const (
	fieldAuthRequest = 1
	fieldQueueJoin   = 2
	fieldHeartbeat   = 3
	fieldInput       = 4

	fieldAuthResponse  = 1
	fieldQueueStatus   = 2
	fieldMatchStart    = 3
	fieldSnapshot      = 4
	fieldDeltaSnapshot = 5
	fieldDamage        = 6
	fieldDestroyed     = 7
	fieldKillFeed      = 8
	fieldHeartbeatResp = 9
	fieldMatchEnd      = 10
)

// ErrUnknownMessage is returned when a union payload carries no recognized
// variant.
var ErrUnknownMessage = errors.New("protocol: unknown message variant")

func appendSub(b []byte, num protowire.Number, sub []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, sub)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendFloat(b []byte, num protowire.Number, v float32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

func appendPackedUints(b []byte, num protowire.Number, vs []uint32) []byte {
	if len(vs) == 0 {
		return b
	}
	var pack []byte
	for _, v := range vs {
		pack = protowire.AppendVarint(pack, uint64(v))
	}
	return appendSub(b, num, pack)
}

// EncodeClientMessage serializes one client union variant.
func EncodeClientMessage(msg ClientMessage) ([]byte, error) {
	var b []byte
	switch m := msg.(type) {
	case *AuthRequest:
		var sub []byte
		sub = appendString(sub, 1, m.OAuthToken)
		sub = appendString(sub, 2, m.ClientVersion)
		b = appendSub(b, fieldAuthRequest, sub)
	case *QueueJoin:
		b = appendSub(b, fieldQueueJoin, nil)
	case *Heartbeat:
		var sub []byte
		sub = appendString(sub, 1, m.SessionID)
		sub = appendUint(sub, 2, m.TimeMs)
		b = appendSub(b, fieldHeartbeat, sub)
	case *InputCommand:
		var sub []byte
		sub = appendString(sub, 1, m.SessionID)
		sub = appendUint(sub, 2, uint64(m.ClientTick))
		sub = appendFloat(sub, 3, m.MoveDir)
		sub = appendFloat(sub, 4, m.TurnDir)
		sub = appendFloat(sub, 5, m.TurretTurn)
		sub = appendBool(sub, 6, m.Fire)
		sub = appendBool(sub, 7, m.Brake)
		b = appendSub(b, fieldInput, sub)
	default:
		return nil, fmt.Errorf("protocol: cannot encode %T", msg)
	}
	return b, nil
}

// EncodeServerMessage serializes one server union variant.
func EncodeServerMessage(msg ServerMessage) ([]byte, error) {
	var b []byte
	switch m := msg.(type) {
	case *AuthResponse:
		var sub []byte
		sub = appendBool(sub, 1, m.Success)
		sub = appendString(sub, 2, m.SessionID)
		sub = appendString(sub, 3, m.Reason)
		b = appendSub(b, fieldAuthResponse, sub)
	case *QueueStatusUpdate:
		var sub []byte
		sub = appendUint(sub, 1, uint64(m.Position))
		sub = appendUint(sub, 2, uint64(m.PlayersInQueue))
		sub = appendUint(sub, 3, uint64(m.NeededForMatch))
		sub = appendUint(sub, 4, uint64(m.TimeoutSecondsLeft))
		sub = appendString(sub, 5, m.LobbyState)
		sub = appendUint(sub, 6, uint64(m.LobbyCountdown))
		sub = appendUint(sub, 7, uint64(m.ProjectedBotFill))
		b = appendSub(b, fieldQueueStatus, sub)
	case *MatchStart:
		var sub []byte
		sub = appendString(sub, 1, m.MatchID)
		sub = appendUint(sub, 2, uint64(m.TickRate))
		sub = appendUint(sub, 3, uint64(m.Seed))
		b = appendSub(b, fieldMatchStart, sub)
	case *StateSnapshot:
		var sub []byte
		sub = appendUint(sub, 1, uint64(m.ServerTick))
		for i := range m.Tanks {
			sub = appendSub(sub, 2, appendTankState(nil, &m.Tanks[i]))
		}
		for i := range m.Projectiles {
			sub = appendSub(sub, 3, appendProjectileState(nil, &m.Projectiles[i]))
		}
		for i := range m.Crates {
			sub = appendSub(sub, 4, appendCrateState(nil, &m.Crates[i]))
		}
		for i := range m.AmmoBoxes {
			sub = appendSub(sub, 5, appendAmmoBoxState(nil, &m.AmmoBoxes[i]))
		}
		b = appendSub(b, fieldSnapshot, sub)
	case *DeltaSnapshot:
		var sub []byte
		sub = appendUint(sub, 1, uint64(m.ServerTick))
		sub = appendUint(sub, 2, uint64(m.BaseTick))
		for i := range m.Tanks {
			sub = appendSub(sub, 3, appendTankState(nil, &m.Tanks[i]))
		}
		for i := range m.Projectiles {
			sub = appendSub(sub, 4, appendProjectileState(nil, &m.Projectiles[i]))
		}
		sub = appendPackedUints(sub, 5, m.RemovedTanks)
		sub = appendPackedUints(sub, 6, m.RemovedProjectiles)
		sub = appendPackedUints(sub, 7, m.RemovedCrates)
		b = appendSub(b, fieldDeltaSnapshot, sub)
	case *DamageEvent:
		var sub []byte
		sub = appendUint(sub, 1, uint64(m.VictimID))
		sub = appendUint(sub, 2, uint64(m.AttackerID))
		sub = appendUint(sub, 3, uint64(m.Amount))
		sub = appendUint(sub, 4, uint64(m.RemainingHP))
		b = appendSub(b, fieldDamage, sub)
	case *TankDestroyed:
		var sub []byte
		sub = appendUint(sub, 1, uint64(m.VictimID))
		sub = appendUint(sub, 2, uint64(m.AttackerID))
		b = appendSub(b, fieldDestroyed, sub)
	case *KillFeedUpdate:
		var sub []byte
		for _, ev := range m.Events {
			var e []byte
			e = appendUint(e, 1, uint64(ev.VictimID))
			e = appendUint(e, 2, uint64(ev.AttackerID))
			sub = appendSub(sub, 1, e)
		}
		b = appendSub(b, fieldKillFeed, sub)
	case *HeartbeatResponse:
		var sub []byte
		sub = appendString(sub, 1, m.SessionID)
		sub = appendUint(sub, 2, m.ClientTimeMs)
		sub = appendUint(sub, 3, m.ServerTimeMs)
		sub = appendUint(sub, 4, m.DeltaMs)
		b = appendSub(b, fieldHeartbeatResp, sub)
	case *MatchEnd:
		var sub []byte
		sub = appendString(sub, 1, m.MatchID)
		sub = appendUint(sub, 2, uint64(m.WinnerEntityID))
		sub = appendUint(sub, 3, uint64(m.ServerTick))
		b = appendSub(b, fieldMatchEnd, sub)
	default:
		return nil, fmt.Errorf("protocol: cannot encode %T", msg)
	}
	return b, nil
}

func appendTankState(b []byte, t *TankState) []byte {
	b = appendUint(b, 1, uint64(t.EntityID))
	b = appendFloat(b, 2, t.X)
	b = appendFloat(b, 3, t.Y)
	b = appendFloat(b, 4, t.HullAngle)
	b = appendFloat(b, 5, t.TurretAngle)
	b = appendUint(b, 6, uint64(t.HP))
	b = appendUint(b, 7, uint64(t.Ammo))
	return b
}

func appendProjectileState(b []byte, p *ProjectileState) []byte {
	b = appendUint(b, 1, uint64(p.ProjectileID))
	b = appendFloat(b, 2, p.X)
	b = appendFloat(b, 3, p.Y)
	b = appendFloat(b, 4, p.VX)
	b = appendFloat(b, 5, p.VY)
	return b
}

func appendCrateState(b []byte, c *CrateState) []byte {
	b = appendUint(b, 1, uint64(c.CrateID))
	b = appendFloat(b, 2, c.X)
	b = appendFloat(b, 3, c.Y)
	b = appendUint(b, 4, uint64(c.Kind))
	return b
}

func appendAmmoBoxState(b []byte, a *AmmoBoxState) []byte {
	b = appendUint(b, 1, uint64(a.BoxID))
	b = appendFloat(b, 2, a.X)
	b = appendFloat(b, 3, a.Y)
	b = appendUint(b, 4, uint64(a.Amount))
	return b
}

// fieldReader walks the fields of one encoded message, skipping unknown ones.
type fieldReader struct {
	buf []byte
	err error
}

// next returns the next field number and raw value slice. Varint and fixed32
// fields yield their numeric value in v; length-delimited fields yield bytes.
func (r *fieldReader) next() (num protowire.Number, typ protowire.Type, v uint64, bs []byte, ok bool) {
	if r.err != nil || len(r.buf) == 0 {
		return 0, 0, 0, nil, false
	}
	num, typ, n := protowire.ConsumeTag(r.buf)
	if n < 0 {
		r.err = protowire.ParseError(n)
		return 0, 0, 0, nil, false
	}
	r.buf = r.buf[n:]
	switch typ {
	case protowire.VarintType:
		v, n = protowire.ConsumeVarint(r.buf)
	case protowire.Fixed32Type:
		var v32 uint32
		v32, n = protowire.ConsumeFixed32(r.buf)
		v = uint64(v32)
	case protowire.Fixed64Type:
		v, n = protowire.ConsumeFixed64(r.buf)
	case protowire.BytesType:
		bs, n = protowire.ConsumeBytes(r.buf)
	default:
		n = protowire.ConsumeFieldValue(num, typ, r.buf)
	}
	if n < 0 {
		r.err = protowire.ParseError(n)
		return 0, 0, 0, nil, false
	}
	r.buf = r.buf[n:]
	return num, typ, v, bs, true
}

func decodeFloat(v uint64) float32 { return math.Float32frombits(uint32(v)) }

func decodePackedUints(bs []byte, dst []uint32) ([]uint32, error) {
	for len(bs) > 0 {
		v, n := protowire.ConsumeVarint(bs)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		dst = append(dst, uint32(v))
		bs = bs[n:]
	}
	return dst, nil
}

// DecodeClientMessage parses one client union payload.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	r := fieldReader{buf: payload}
	var msg ClientMessage
	for {
		num, _, _, bs, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case fieldAuthRequest:
			msg = decodeAuthRequest(bs)
		case fieldQueueJoin:
			msg = &QueueJoin{}
		case fieldHeartbeat:
			msg = decodeHeartbeat(bs)
		case fieldInput:
			msg = decodeInputCommand(bs)
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	if msg == nil {
		return nil, ErrUnknownMessage
	}
	return msg, nil
}

func decodeAuthRequest(bs []byte) *AuthRequest {
	m := &AuthRequest{}
	r := fieldReader{buf: bs}
	for {
		num, _, _, b, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			m.OAuthToken = string(b)
		case 2:
			m.ClientVersion = string(b)
		}
	}
	return m
}

func decodeHeartbeat(bs []byte) *Heartbeat {
	m := &Heartbeat{}
	r := fieldReader{buf: bs}
	for {
		num, _, v, b, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			m.SessionID = string(b)
		case 2:
			m.TimeMs = v
		}
	}
	return m
}

func decodeInputCommand(bs []byte) *InputCommand {
	m := &InputCommand{}
	r := fieldReader{buf: bs}
	for {
		num, _, v, b, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			m.SessionID = string(b)
		case 2:
			m.ClientTick = uint32(v)
		case 3:
			m.MoveDir = decodeFloat(v)
		case 4:
			m.TurnDir = decodeFloat(v)
		case 5:
			m.TurretTurn = decodeFloat(v)
		case 6:
			m.Fire = v != 0
		case 7:
			m.Brake = v != 0
		}
	}
	return m
}

// DecodeServerMessage parses one server union payload.
func DecodeServerMessage(payload []byte) (ServerMessage, error) {
	r := fieldReader{buf: payload}
	var msg ServerMessage
	var err error
	for {
		num, _, _, bs, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case fieldAuthResponse:
			msg = decodeAuthResponse(bs)
		case fieldQueueStatus:
			msg = decodeQueueStatus(bs)
		case fieldMatchStart:
			msg = decodeMatchStart(bs)
		case fieldSnapshot:
			msg, err = decodeStateSnapshot(bs)
		case fieldDeltaSnapshot:
			msg, err = decodeDeltaSnapshot(bs)
		case fieldDamage:
			msg = decodeDamageEvent(bs)
		case fieldDestroyed:
			msg = decodeTankDestroyed(bs)
		case fieldKillFeed:
			msg = decodeKillFeed(bs)
		case fieldHeartbeatResp:
			msg = decodeHeartbeatResponse(bs)
		case fieldMatchEnd:
			msg = decodeMatchEnd(bs)
		}
		if err != nil {
			return nil, err
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	if msg == nil {
		return nil, ErrUnknownMessage
	}
	return msg, nil
}

func decodeAuthResponse(bs []byte) *AuthResponse {
	m := &AuthResponse{}
	r := fieldReader{buf: bs}
	for {
		num, _, v, b, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			m.Success = v != 0
		case 2:
			m.SessionID = string(b)
		case 3:
			m.Reason = string(b)
		}
	}
	return m
}

func decodeQueueStatus(bs []byte) *QueueStatusUpdate {
	m := &QueueStatusUpdate{}
	r := fieldReader{buf: bs}
	for {
		num, _, v, b, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			m.Position = uint32(v)
		case 2:
			m.PlayersInQueue = uint32(v)
		case 3:
			m.NeededForMatch = uint32(v)
		case 4:
			m.TimeoutSecondsLeft = uint32(v)
		case 5:
			m.LobbyState = string(b)
		case 6:
			m.LobbyCountdown = uint32(v)
		case 7:
			m.ProjectedBotFill = uint32(v)
		}
	}
	return m
}

func decodeMatchStart(bs []byte) *MatchStart {
	m := &MatchStart{}
	r := fieldReader{buf: bs}
	for {
		num, _, v, b, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			m.MatchID = string(b)
		case 2:
			m.TickRate = uint32(v)
		case 3:
			m.Seed = uint32(v)
		}
	}
	return m
}

func decodeTankState(bs []byte) TankState {
	var t TankState
	r := fieldReader{buf: bs}
	for {
		num, _, v, _, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			t.EntityID = uint32(v)
		case 2:
			t.X = decodeFloat(v)
		case 3:
			t.Y = decodeFloat(v)
		case 4:
			t.HullAngle = decodeFloat(v)
		case 5:
			t.TurretAngle = decodeFloat(v)
		case 6:
			t.HP = uint32(v)
		case 7:
			t.Ammo = uint32(v)
		}
	}
	return t
}

func decodeProjectileState(bs []byte) ProjectileState {
	var p ProjectileState
	r := fieldReader{buf: bs}
	for {
		num, _, v, _, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			p.ProjectileID = uint32(v)
		case 2:
			p.X = decodeFloat(v)
		case 3:
			p.Y = decodeFloat(v)
		case 4:
			p.VX = decodeFloat(v)
		case 5:
			p.VY = decodeFloat(v)
		}
	}
	return p
}

func decodeCrateState(bs []byte) CrateState {
	var c CrateState
	r := fieldReader{buf: bs}
	for {
		num, _, v, _, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			c.CrateID = uint32(v)
		case 2:
			c.X = decodeFloat(v)
		case 3:
			c.Y = decodeFloat(v)
		case 4:
			c.Kind = uint32(v)
		}
	}
	return c
}

func decodeAmmoBoxState(bs []byte) AmmoBoxState {
	var a AmmoBoxState
	r := fieldReader{buf: bs}
	for {
		num, _, v, _, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			a.BoxID = uint32(v)
		case 2:
			a.X = decodeFloat(v)
		case 3:
			a.Y = decodeFloat(v)
		case 4:
			a.Amount = uint32(v)
		}
	}
	return a
}

func decodeStateSnapshot(bs []byte) (*StateSnapshot, error) {
	m := &StateSnapshot{}
	r := fieldReader{buf: bs}
	for {
		num, _, v, b, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			m.ServerTick = uint32(v)
		case 2:
			m.Tanks = append(m.Tanks, decodeTankState(b))
		case 3:
			m.Projectiles = append(m.Projectiles, decodeProjectileState(b))
		case 4:
			m.Crates = append(m.Crates, decodeCrateState(b))
		case 5:
			m.AmmoBoxes = append(m.AmmoBoxes, decodeAmmoBoxState(b))
		}
	}
	return m, r.err
}

func decodeDeltaSnapshot(bs []byte) (*DeltaSnapshot, error) {
	m := &DeltaSnapshot{}
	r := fieldReader{buf: bs}
	var err error
	for {
		num, typ, v, b, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			m.ServerTick = uint32(v)
		case 2:
			m.BaseTick = uint32(v)
		case 3:
			m.Tanks = append(m.Tanks, decodeTankState(b))
		case 4:
			m.Projectiles = append(m.Projectiles, decodeProjectileState(b))
		case 5, 6, 7:
			var vals []uint32
			if typ == protowire.BytesType {
				if vals, err = decodePackedUints(b, nil); err != nil {
					return nil, err
				}
			} else {
				vals = []uint32{uint32(v)}
			}
			switch num {
			case 5:
				m.RemovedTanks = append(m.RemovedTanks, vals...)
			case 6:
				m.RemovedProjectiles = append(m.RemovedProjectiles, vals...)
			case 7:
				m.RemovedCrates = append(m.RemovedCrates, vals...)
			}
		}
	}
	return m, r.err
}

func decodeDamageEvent(bs []byte) *DamageEvent {
	m := &DamageEvent{}
	r := fieldReader{buf: bs}
	for {
		num, _, v, _, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			m.VictimID = uint32(v)
		case 2:
			m.AttackerID = uint32(v)
		case 3:
			m.Amount = uint32(v)
		case 4:
			m.RemainingHP = uint32(v)
		}
	}
	return m
}

func decodeTankDestroyed(bs []byte) *TankDestroyed {
	m := &TankDestroyed{}
	r := fieldReader{buf: bs}
	for {
		num, _, v, _, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			m.VictimID = uint32(v)
		case 2:
			m.AttackerID = uint32(v)
		}
	}
	return m
}

func decodeKillFeed(bs []byte) *KillFeedUpdate {
	m := &KillFeedUpdate{}
	r := fieldReader{buf: bs}
	for {
		num, _, _, b, ok := r.next()
		if !ok {
			break
		}
		if num == 1 {
			var ev KillFeedEntry
			er := fieldReader{buf: b}
			for {
				enum, _, ev64, _, eok := er.next()
				if !eok {
					break
				}
				switch enum {
				case 1:
					ev.VictimID = uint32(ev64)
				case 2:
					ev.AttackerID = uint32(ev64)
				}
			}
			m.Events = append(m.Events, ev)
		}
	}
	return m
}

func decodeHeartbeatResponse(bs []byte) *HeartbeatResponse {
	m := &HeartbeatResponse{}
	r := fieldReader{buf: bs}
	for {
		num, _, v, b, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			m.SessionID = string(b)
		case 2:
			m.ClientTimeMs = v
		case 3:
			m.ServerTimeMs = v
		case 4:
			m.DeltaMs = v
		}
	}
	return m
}

func decodeMatchEnd(bs []byte) *MatchEnd {
	m := &MatchEnd{}
	r := fieldReader{buf: bs}
	for {
		num, _, v, b, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			m.MatchID = string(b)
		case 2:
			m.WinnerEntityID = uint32(v)
		case 3:
			m.ServerTick = uint32(v)
		}
	}
	return m
}
