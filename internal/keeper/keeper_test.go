package keeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lvdashuaibi/voteledger/config"
	"github.com/lvdashuaibi/voteledger/internal/ledger"
	"github.com/lvdashuaibi/voteledger/internal/lock"
	"github.com/lvdashuaibi/voteledger/internal/model"
)

const keeperAddress = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

var opened = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeCloser struct {
	writer   bool
	statuses []model.RoundStatus
	listErr  error
	closeErr map[uint64]error
	calls    []uint64
	callers  []model.Address
}

func (f *fakeCloser) IsWriter() bool { return f.writer }

func (f *fakeCloser) RoundStatuses(context.Context) ([]model.RoundStatus, error) {
	return f.statuses, f.listErr
}

func (f *fakeCloser) CloseRound(_ context.Context, caller model.Address, roundID uint64) (*model.Settlement, error) {
	f.calls = append(f.calls, roundID)
	f.callers = append(f.callers, caller)
	if err := f.closeErr[roundID]; err != nil {
		return nil, err
	}
	return &model.Settlement{RoundID: roundID}, nil
}

func newTestKeeper(t *testing.T, closer RoundCloser, l lock.Lock, now time.Time) *Keeper {
	t.Helper()
	k, err := NewKeeper(closer, l, config.KeeperConfig{
		Address:     keeperAddress,
		Interval:    time.Minute,
		LockName:    "keeper",
		LockTimeout: time.Minute,
	}, nil)
	if err != nil {
		t.Fatalf("new keeper: %v", err)
	}
	k.now = func() time.Time { return now }
	return k
}

func TestSweepClosesOnlyElapsedRounds(t *testing.T) {
	closer := &fakeCloser{
		writer: true,
		statuses: []model.RoundStatus{
			{ID: 1, OpenedAt: opened, LockDuration: 0},
			{ID: 2, OpenedAt: opened, LockDuration: 72 * time.Hour},
			{ID: 3, OpenedAt: opened, LockDuration: 0, ClosedAt: opened.Add(time.Hour)},
			{ID: 4, OpenedAt: opened, LockDuration: 24 * time.Hour},
		},
	}
	k := newTestKeeper(t, closer, lock.NewLocalLock(), opened.Add(48*time.Hour))

	closed := k.Sweep(context.Background())
	if len(closed) != 2 || closed[0] != 1 || closed[1] != 4 {
		t.Fatalf("closed = %v, want [1 4]", closed)
	}
	want := model.MustParseAddress(keeperAddress)
	for _, caller := range closer.callers {
		if caller != want {
			t.Errorf("closed as %s, want keeper address", caller)
		}
	}
}

func TestSweepSkipsOnFollower(t *testing.T) {
	closer := &fakeCloser{statuses: []model.RoundStatus{{ID: 1, OpenedAt: opened}}}
	k := newTestKeeper(t, closer, lock.NewLocalLock(), opened.Add(time.Hour))

	if closed := k.Sweep(context.Background()); len(closed) != 0 || len(closer.calls) != 0 {
		t.Fatalf("follower swept rounds: %v", closer.calls)
	}
}

func TestSweepSkipsWhenLockHeld(t *testing.T) {
	closer := &fakeCloser{writer: true, statuses: []model.RoundStatus{{ID: 1, OpenedAt: opened}}}
	l := lock.NewLocalLock()
	l.AcquireLock("keeper", time.Hour)
	k := newTestKeeper(t, closer, l, opened.Add(time.Hour))

	if closed := k.Sweep(context.Background()); len(closed) != 0 {
		t.Fatalf("swept without the keeper lock: %v", closed)
	}
}

func TestSweepReleasesLock(t *testing.T) {
	closer := &fakeCloser{writer: true, statuses: []model.RoundStatus{{ID: 1, OpenedAt: opened}}}
	l := lock.NewLocalLock()
	k := newTestKeeper(t, closer, l, opened.Add(time.Hour))

	k.Sweep(context.Background())
	if ok, _ := l.AcquireLock("keeper", time.Minute); !ok {
		t.Errorf("keeper lock not released after sweep")
	}
}

func TestSweepToleratesRacesAndFailures(t *testing.T) {
	closer := &fakeCloser{
		writer: true,
		statuses: []model.RoundStatus{
			{ID: 1, OpenedAt: opened},
			{ID: 2, OpenedAt: opened},
			{ID: 3, OpenedAt: opened},
		},
		closeErr: map[uint64]error{
			1: ledger.ErrRoundClosed,
			2: errors.New("settlement backend down"),
		},
	}
	k := newTestKeeper(t, closer, lock.NewLocalLock(), opened.Add(time.Hour))

	closed := k.Sweep(context.Background())
	if len(closed) != 1 || closed[0] != 3 {
		t.Fatalf("closed = %v, want [3]", closed)
	}
	if len(closer.calls) != 3 {
		t.Errorf("attempted %d closes, want 3", len(closer.calls))
	}
}

func TestSweepWithNoRounds(t *testing.T) {
	closer := &fakeCloser{writer: true, listErr: ledger.ErrNoRoundsYet}
	k := newTestKeeper(t, closer, lock.NewLocalLock(), opened)
	if closed := k.Sweep(context.Background()); closed != nil {
		t.Fatalf("closed = %v on empty ledger", closed)
	}
}

func TestNewKeeperRejectsBadAddress(t *testing.T) {
	_, err := NewKeeper(&fakeCloser{}, lock.NewLocalLock(), config.KeeperConfig{Address: "keeper"}, nil)
	if err == nil {
		t.Fatalf("expected error for invalid keeper address")
	}
}

func TestStartStop(t *testing.T) {
	k := newTestKeeper(t, &fakeCloser{}, lock.NewLocalLock(), opened)
	k.interval = 10 * time.Millisecond
	k.Start()
	time.Sleep(30 * time.Millisecond)
	k.Stop()
	k.Stop()
}
