package domain

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Record sizes are fixed so storage can be sized from the layout alone.
const (
	SessionRecordSize = 8 + // discriminator
		IdentitySize + // owner
		IdentitySize + // delegated_signer
		8 + // expires_at
		8 + // exposure_cap
		8 + // cumulative_spend
		1 + // is_active
		1 + // capability_mask
		8 + // total_actions
		8 // last_action_at

	MonitorRecordSize = 8 + // discriminator
		16 + // session_ref
		IdentitySize + // venue_pool_ref
		IdentitySize + // position_ref
		4 + // min_bound
		4 + // max_bound
		4 + // last_observed_value
		1 + // is_in_range
		8 + // fee_snapshot_a
		8 + // fee_snapshot_b
		8 // last_checked_at
)

var (
	sessionDiscriminator = [8]byte{'S', 'E', 'S', 'S', 'R', 'E', 'C', '1'}
	monitorDiscriminator = [8]byte{'L', 'P', 'M', 'O', 'N', 'R', 'C', '1'}
)

var le = binary.LittleEndian

// MarshalBinary encodes the record in its fixed-width layout.
func (s Session) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, SessionRecordSize)
	b = append(b, sessionDiscriminator[:]...)
	b = append(b, s.Owner[:]...)
	b = append(b, s.DelegatedSigner[:]...)
	b = le.AppendUint64(b, uint64(s.ExpiresAt))
	b = le.AppendUint64(b, s.ExposureCap)
	b = le.AppendUint64(b, s.CumulativeSpend)
	b = append(b, boolByte(s.IsActive))
	b = append(b, byte(s.CapabilityMask))
	b = le.AppendUint64(b, s.TotalActions)
	b = le.AppendUint64(b, uint64(s.LastActionAt))
	return b, nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
func (s *Session) UnmarshalBinary(data []byte) error {
	if len(data) != SessionRecordSize {
		return fmt.Errorf("%w: session record is %d bytes, want %d", ErrInvalidRecord, len(data), SessionRecordSize)
	}
	if [8]byte(data[:8]) != sessionDiscriminator {
		return fmt.Errorf("%w: bad session discriminator", ErrInvalidRecord)
	}
	r := reader{buf: data[8:]}
	var out Session
	copy(out.Owner[:], r.next(IdentitySize))
	copy(out.DelegatedSigner[:], r.next(IdentitySize))
	out.ExpiresAt = int64(r.u64())
	out.ExposureCap = r.u64()
	out.CumulativeSpend = r.u64()
	active, err := r.boolean()
	if err != nil {
		return err
	}
	out.IsActive = active
	out.CapabilityMask = CapabilitySet(r.next(1)[0])
	out.TotalActions = r.u64()
	out.LastActionAt = int64(r.u64())
	*s = out
	return nil
}

// MarshalBinary encodes the monitor in its fixed-width layout.
func (m Monitor) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, MonitorRecordSize)
	b = append(b, monitorDiscriminator[:]...)
	b = append(b, m.SessionRef[:]...)
	b = append(b, m.PoolRef[:]...)
	b = append(b, m.PositionRef[:]...)
	b = le.AppendUint32(b, uint32(m.MinBound))
	b = le.AppendUint32(b, uint32(m.MaxBound))
	b = le.AppendUint32(b, uint32(m.LastObservedValue))
	b = append(b, boolByte(m.IsInRange))
	b = le.AppendUint64(b, m.FeeSnapshotA)
	b = le.AppendUint64(b, m.FeeSnapshotB)
	b = le.AppendUint64(b, uint64(m.LastCheckedAt))
	return b, nil
}

// UnmarshalBinary decodes a monitor produced by MarshalBinary.
func (m *Monitor) UnmarshalBinary(data []byte) error {
	if len(data) != MonitorRecordSize {
		return fmt.Errorf("%w: monitor record is %d bytes, want %d", ErrInvalidRecord, len(data), MonitorRecordSize)
	}
	if [8]byte(data[:8]) != monitorDiscriminator {
		return fmt.Errorf("%w: bad monitor discriminator", ErrInvalidRecord)
	}
	r := reader{buf: data[8:]}
	var out Monitor
	ref, err := uuid.FromBytes(r.next(16))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	out.SessionRef = ref
	copy(out.PoolRef[:], r.next(IdentitySize))
	copy(out.PositionRef[:], r.next(IdentitySize))
	out.MinBound = int32(r.u32())
	out.MaxBound = int32(r.u32())
	out.LastObservedValue = int32(r.u32())
	inRange, err := r.boolean()
	if err != nil {
		return err
	}
	out.IsInRange = inRange
	out.FeeSnapshotA = r.u64()
	out.FeeSnapshotB = r.u64()
	out.LastCheckedAt = int64(r.u64())
	*m = out
	return nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// reader walks a buffer whose length has already been validated.
type reader struct {
	buf []byte
	off int
}

func (r *reader) next(n int) []byte {
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u32() uint32 { return le.Uint32(r.next(4)) }

func (r *reader) u64() uint64 { return le.Uint64(r.next(8)) }

func (r *reader) boolean() (bool, error) {
	switch v := r.next(1)[0]; v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: boolean byte %d", ErrInvalidRecord, v)
	}
}
