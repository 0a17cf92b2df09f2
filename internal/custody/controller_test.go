package custody_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/sessiongate/internal/authz"
	"github.com/xiaot623/gogo/sessiongate/internal/custody"
	"github.com/xiaot623/gogo/sessiongate/internal/domain"
	"github.com/xiaot623/gogo/sessiongate/internal/fastlayer/memory"
	"github.com/xiaot623/gogo/sessiongate/internal/repository"
	"github.com/xiaot623/gogo/sessiongate/tests/helpers"
)

type fixture struct {
	ctx    context.Context
	base   *store.SQLiteStore
	fast   *memory.Store
	clock  *helpers.Clock
	ctrl   *custody.Controller
	id     uuid.UUID
	owner  domain.Identity
	signer domain.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ctx:   context.Background(),
		base:  helpers.NewTestSQLiteStore(t),
		fast:  memory.New(),
		clock: &helpers.Clock{Unix: 1_700_000_000},
		id:    uuid.New(),
	}
	f.owner, _ = helpers.NewKey(t)
	f.signer, _ = helpers.NewKey(t)
	f.ctrl = custody.NewController(f.base, f.fast, f.clock.Now)

	session, err := domain.NewSession(f.owner, f.signer, f.clock.Unix, 3600, 1000, domain.CapabilityAll)
	require.NoError(t, err)
	require.NoError(t, f.base.CreateSession(f.ctx, f.id, session, f.clock.Now()))
	return f
}

func (f *fixture) act(t *testing.T, amount uint64) custody.Snapshot {
	t.Helper()
	snap, err := f.ctrl.Apply(f.ctx, f.id, func(s domain.Session) (domain.Session, error) {
		return authz.Authorize(s, authz.Request{Caller: f.signer, Kind: domain.ActionLPRebalance, Amounts: []uint64{amount}}, f.clock.Unix)
	})
	require.NoError(t, err)
	return snap
}

func TestDelegateTransfersExactBytes(t *testing.T) {
	f := newFixture(t)

	before, _, err := f.base.GetSessionRecord(f.ctx, f.id)
	require.NoError(t, err)

	snap, err := f.ctrl.Delegate(f.ctx, f.id, f.owner)
	require.NoError(t, err)
	assert.Equal(t, domain.CustodyDelegated, snap.Custody.State)
	assert.NotNil(t, snap.Custody.DelegatedAt)

	fastCopy, err := f.fast.Load(f.ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, before, fastCopy)
}

func TestDelegateRequiresOwnerAndResident(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.Delegate(f.ctx, f.id, f.signer)
	assert.ErrorIs(t, err, domain.ErrUnauthorizedOwner)
	assert.Equal(t, 0, f.fast.Len())

	_, err = f.ctrl.Delegate(f.ctx, f.id, f.owner)
	require.NoError(t, err)

	_, err = f.ctrl.Delegate(f.ctx, f.id, f.owner)
	assert.ErrorIs(t, err, domain.ErrProtocolStateViolation)
}

func TestCommitRequiresDelegated(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.Commit(f.ctx, f.id, f.owner)
	assert.ErrorIs(t, err, domain.ErrProtocolStateViolation)

	_, err = f.ctrl.Undelegate(f.ctx, f.id, f.owner)
	assert.ErrorIs(t, err, domain.ErrProtocolStateViolation)
	assert.Equal(t, domain.KindProtocolStateViolation, domain.KindOf(err))
	assert.False(t, domain.IsAuthorizationFailure(err))
}

func TestCommitCopiesFastStateAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.Delegate(f.ctx, f.id, f.owner)
	require.NoError(t, err)

	f.clock.Advance(5)
	f.act(t, 250)

	// Actions on the fast layer do not reach the base layer until committed.
	raw, _, err := f.base.GetSessionRecord(f.ctx, f.id)
	require.NoError(t, err)
	var committed domain.Session
	require.NoError(t, committed.UnmarshalBinary(raw))
	assert.Equal(t, uint64(0), committed.CumulativeSpend)

	first, err := f.ctrl.Commit(f.ctx, f.id, f.signer)
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.Equal(t, uint64(1), first.Custody.CommitSeq)
	assert.Equal(t, domain.CustodyDelegated, first.Custody.State)
	assert.Equal(t, uint64(250), first.Session.CumulativeSpend)

	afterFirst, _, err := f.base.GetSessionRecord(f.ctx, f.id)
	require.NoError(t, err)

	second, err := f.ctrl.Commit(f.ctx, f.id, f.owner)
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, first.Custody.CommitSeq, second.Custody.CommitSeq)

	afterSecond, _, err := f.base.GetSessionRecord(f.ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, afterFirst, afterSecond)
}

func TestCommitRejectsStranger(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.Delegate(f.ctx, f.id, f.owner)
	require.NoError(t, err)

	stranger, _ := helpers.NewKey(t)
	_, err = f.ctrl.Commit(f.ctx, f.id, stranger)
	assert.ErrorIs(t, err, domain.ErrUnauthorizedSigner)
	_, err = f.ctrl.Undelegate(f.ctx, f.id, stranger)
	assert.ErrorIs(t, err, domain.ErrUnauthorizedSigner)
}

func TestUndelegateIsOneWay(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.Delegate(f.ctx, f.id, f.owner)
	require.NoError(t, err)
	f.act(t, 100)

	res, err := f.ctrl.Undelegate(f.ctx, f.id, f.signer)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, domain.CustodyReturned, res.Custody.State)
	assert.NotNil(t, res.Custody.ReturnedAt)
	assert.False(t, res.Session.IsActive)
	assert.Equal(t, uint64(100), res.Session.CumulativeSpend)
	assert.Equal(t, 0, f.fast.Len())

	snap, err := f.ctrl.Current(f.ctx, f.id)
	require.NoError(t, err)
	assert.False(t, snap.Session.IsActive)

	_, err = f.ctrl.Apply(f.ctx, f.id, func(s domain.Session) (domain.Session, error) {
		return authz.Authorize(s, authz.Request{Caller: f.signer, Kind: domain.ActionLPRebalance}, f.clock.Unix)
	})
	assert.ErrorIs(t, err, domain.ErrSessionInactive)

	_, err = f.ctrl.Delegate(f.ctx, f.id, f.owner)
	assert.ErrorIs(t, err, domain.ErrProtocolStateViolation)
	_, err = f.ctrl.Undelegate(f.ctx, f.id, f.owner)
	assert.ErrorIs(t, err, domain.ErrProtocolStateViolation)
}

func TestApplyWritesToCustodyHolder(t *testing.T) {
	f := newFixture(t)

	// Resident: the base layer is written directly.
	f.act(t, 10)
	raw, _, err := f.base.GetSessionRecord(f.ctx, f.id)
	require.NoError(t, err)
	var s domain.Session
	require.NoError(t, s.UnmarshalBinary(raw))
	assert.Equal(t, uint64(10), s.CumulativeSpend)

	_, err = f.ctrl.Delegate(f.ctx, f.id, f.owner)
	require.NoError(t, err)
	snap := f.act(t, 20)
	assert.Equal(t, uint64(30), snap.Session.CumulativeSpend)
	assert.Equal(t, uint64(2), snap.Session.TotalActions)

	fastCopy, err := f.fast.Load(f.ctx, f.id)
	require.NoError(t, err)
	require.NoError(t, s.UnmarshalBinary(fastCopy))
	assert.Equal(t, uint64(30), s.CumulativeSpend)
}

func TestApplyFailureLeavesRecord(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.Delegate(f.ctx, f.id, f.owner)
	require.NoError(t, err)
	f.act(t, 600)

	before, err := f.fast.Load(f.ctx, f.id)
	require.NoError(t, err)

	_, err = f.ctrl.Apply(f.ctx, f.id, func(s domain.Session) (domain.Session, error) {
		return authz.Authorize(s, authz.Request{Caller: f.signer, Kind: domain.ActionLPRebalance, Amounts: []uint64{500}}, f.clock.Unix)
	})
	assert.ErrorIs(t, err, domain.ErrExposureLimitExceeded)

	after, err := f.fast.Load(f.ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

// racingFast stands in for a second gateway that records spend on the same
// session just before each of the next races swaps.
type racingFast struct {
	mem   *memory.Store
	races int
	spend uint64
}

func (r *racingFast) Load(ctx context.Context, id uuid.UUID) ([]byte, error) {
	return r.mem.Load(ctx, id)
}

func (r *racingFast) Store(ctx context.Context, id uuid.UUID, data []byte) error {
	return r.mem.Store(ctx, id, data)
}

func (r *racingFast) Remove(ctx context.Context, id uuid.UUID) error {
	return r.mem.Remove(ctx, id)
}

func (r *racingFast) CompareAndSwap(ctx context.Context, id uuid.UUID, old, data []byte) (bool, error) {
	if r.races > 0 {
		r.races--
		var s domain.Session
		if err := s.UnmarshalBinary(old); err != nil {
			return false, err
		}
		s.CumulativeSpend += r.spend
		rec, err := s.MarshalBinary()
		if err != nil {
			return false, err
		}
		if err := r.mem.Store(ctx, id, rec); err != nil {
			return false, err
		}
	}
	return r.mem.CompareAndSwap(ctx, id, old, data)
}

func (f *fixture) spend(amount uint64) func(domain.Session) (domain.Session, error) {
	return func(s domain.Session) (domain.Session, error) {
		return authz.Authorize(s, authz.Request{Caller: f.signer, Kind: domain.ActionLPRebalance, Amounts: []uint64{amount}}, f.clock.Unix)
	}
}

func TestApplyRereadsChangedFastCopy(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.Delegate(f.ctx, f.id, f.owner)
	require.NoError(t, err)

	ctrl := custody.NewController(f.base, &racingFast{mem: f.fast, races: 1, spend: 100}, f.clock.Now)
	calls := 0
	snap, err := ctrl.Apply(f.ctx, f.id, func(s domain.Session) (domain.Session, error) {
		calls++
		return f.spend(250)(s)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, uint64(350), snap.Session.CumulativeSpend)

	current, err := f.ctrl.Current(f.ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, uint64(350), current.Session.CumulativeSpend)
	assert.Equal(t, uint64(1), current.Session.TotalActions)
}

func TestApplyGivesUpOnPersistentConflict(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.Delegate(f.ctx, f.id, f.owner)
	require.NoError(t, err)

	ctrl := custody.NewController(f.base, &racingFast{mem: f.fast, races: 3, spend: 100}, f.clock.Now)
	_, err = ctrl.Apply(f.ctx, f.id, f.spend(250))
	assert.ErrorIs(t, err, domain.ErrProtocolStateViolation)

	// Only the other writer's spend landed.
	current, err := f.ctrl.Current(f.ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), current.Session.CumulativeSpend)
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.Current(f.ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestLostFastCopyIsReseededFromLastCommit(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.Delegate(f.ctx, f.id, f.owner)
	require.NoError(t, err)
	f.act(t, 250)
	_, err = f.ctrl.Commit(f.ctx, f.id, f.owner)
	require.NoError(t, err)
	f.act(t, 100)

	// A restarted process starts with an empty memory fast layer.
	fresh := memory.New()
	restarted := custody.NewController(f.base, fresh, f.clock.Now)

	snap, err := restarted.Current(f.ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, domain.CustodyDelegated, snap.Custody.State)
	assert.Equal(t, uint64(250), snap.Session.CumulativeSpend)
	assert.Equal(t, 1, fresh.Len())

	flushed, err := restarted.Flush(f.ctx, f.id)
	require.NoError(t, err)
	assert.False(t, flushed.Changed)

	res, err := restarted.Undelegate(f.ctx, f.id, f.signer)
	require.NoError(t, err)
	assert.Equal(t, domain.CustodyReturned, res.Custody.State)
	assert.False(t, res.Session.IsActive)
	assert.Equal(t, 0, fresh.Len())
}

func TestRestore(t *testing.T) {
	f := newFixture(t)

	restored, err := f.ctrl.Restore(f.ctx, f.id)
	require.NoError(t, err)
	assert.False(t, restored, "resident sessions have no fast copy to restore")

	_, err = f.ctrl.Delegate(f.ctx, f.id, f.owner)
	require.NoError(t, err)
	restored, err = f.ctrl.Restore(f.ctx, f.id)
	require.NoError(t, err)
	assert.False(t, restored)

	fresh := memory.New()
	restored, err = custody.NewController(f.base, fresh, f.clock.Now).Restore(f.ctx, f.id)
	require.NoError(t, err)
	assert.True(t, restored)

	committed, _, err := f.base.GetSessionRecord(f.ctx, f.id)
	require.NoError(t, err)
	fastCopy, err := fresh.Load(f.ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, committed, fastCopy)

	_, err = f.ctrl.Restore(f.ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
