package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lvdashuaibi/voteledger/internal/bank"
	"github.com/lvdashuaibi/voteledger/internal/model"
)

var (
	owner    = model.MustParseAddress("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266")
	contract = model.MustParseAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3")

	candidateAddresses = []model.Address{
		model.MustParseAddress("0xdD870fA1b7C4700F2BD7f44238821C26f7392148"),
		model.MustParseAddress("0x583031D1113aD414F02576BD6afaBfb302140225"),
		model.MustParseAddress("0x4B0897b0513fdC7C541B6d9D7E929C4e5364D2dB"),
	}
	candidateNames = []string{"David", "Alice", "Max"}

	voter1 = voter(1)
	voter2 = voter(2)
	voter3 = voter(3)
)

const testFee = DefaultFee

func voter(i int) model.Address {
	return model.Address(fmt.Sprintf("0x%040x", 0x1000+i))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	ledger *Ledger
	clock  *fakeClock
	book   *bank.Book
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithFee(t, testFee)
}

func newFixtureWithFee(t *testing.T, fee model.Amount) *fixture {
	t.Helper()
	clock := newFakeClock()
	book := bank.NewBook()
	for i := 1; i <= 10; i++ {
		book.Deposit(voter(i), 10*fee)
	}
	l, err := New(Config{Owner: owner, Address: contract, Fee: fee}, WithClock(clock), WithSettler(book))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return &fixture{ledger: l, clock: clock, book: book}
}

func (f *fixture) open(t *testing.T, selector uint8) uint64 {
	t.Helper()
	id, err := f.ledger.OpenRound(context.Background(), owner, candidateAddresses, candidateNames, selector)
	if err != nil {
		t.Fatalf("open round: %v", err)
	}
	return id
}

func (f *fixture) vote(t *testing.T, from model.Address, roundID uint64, candidateID uint32) {
	t.Helper()
	if err := f.ledger.CastVote(context.Background(), from, roundID, candidateID, f.ledger.Fee()); err != nil {
		t.Fatalf("vote from %s: %v", from, err)
	}
}

func (f *fixture) summary(t *testing.T) model.Summary {
	t.Helper()
	s, err := f.ledger.Summary(context.Background())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	return s
}

func TestNewRequiresAddresses(t *testing.T) {
	if _, err := New(Config{Address: contract}); err == nil {
		t.Errorf("expected error without owner")
	}
	if _, err := New(Config{Owner: owner}); err == nil {
		t.Errorf("expected error without contract address")
	}
	l, err := New(Config{Owner: owner, Address: contract})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if l.Fee() != DefaultFee {
		t.Errorf("fee = %d, want default %d", l.Fee(), DefaultFee)
	}
	if l.Owner() != owner {
		t.Errorf("owner = %s, want %s", l.Owner(), owner)
	}
}

func TestOpenRound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.open(t, 0)
	if id != 1 {
		t.Fatalf("round id = %d, want 1", id)
	}
	if got := f.summary(t).RoundCount; got != 1 {
		t.Errorf("round count = %d, want 1", got)
	}

	info, err := f.ledger.Round(ctx, id)
	if err != nil {
		t.Fatalf("round: %v", err)
	}
	if info.LockDuration != DefaultLongLock {
		t.Errorf("lock = %v, want %v", info.LockDuration, DefaultLongLock)
	}

	statuses, err := f.ledger.RoundStatuses(ctx)
	if err != nil {
		t.Fatalf("round statuses: %v", err)
	}
	if len(statuses) != 1 || statuses[0].ID != 1 || !statuses[0].OpenedAt.Equal(f.clock.Now()) {
		t.Errorf("unexpected statuses: %+v", statuses)
	}
	if statuses[0].Closed() {
		t.Errorf("new round should be open")
	}

	candidates, err := f.ledger.Candidates(ctx, id)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	for i, c := range candidates {
		if c.ID != uint32(i+1) || c.Address != candidateAddresses[i] || c.Name != candidateNames[i] || c.VoteCount != 0 {
			t.Errorf("candidate %d = %+v", i, c)
		}
	}

	second := f.open(t, LockImmediate)
	if second != 2 {
		t.Errorf("second round id = %d, want 2", second)
	}
	info, _ = f.ledger.Round(ctx, second)
	if info.LockDuration != 0 {
		t.Errorf("immediate round lock = %v, want 0", info.LockDuration)
	}
}

func TestOpenRoundRejections(t *testing.T) {
	tests := []struct {
		name      string
		caller    model.Address
		addresses []model.Address
		names     []string
		want      error
	}{
		{"only owner", voter1, candidateAddresses, candidateNames, ErrUnauthorized},
		{"different numbers of arguments", owner, candidateAddresses, []string{"test"}, ErrArgumentMismatch},
		{"empty roster", owner, nil, nil, ErrEmptyRoster},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.ledger.OpenRound(context.Background(), tt.caller, tt.addresses, tt.names, 0)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if got := f.summary(t).RoundCount; got != 0 {
				t.Errorf("round count = %d after rejection, want 0", got)
			}
		})
	}
}

func TestCastVote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.open(t, 0)

	f.vote(t, voter1, id, 1)

	s := f.summary(t)
	if s.Balance != testFee {
		t.Errorf("balance = %d, want %d", s.Balance, testFee)
	}
	if got := f.book.Balance(contract); got != testFee {
		t.Errorf("contract account = %d, want %d", got, testFee)
	}
	if got := f.book.Balance(voter1); got != 9*testFee {
		t.Errorf("voter account = %d, want %d", got, 9*testFee)
	}

	voted, err := f.ledger.CheckParticipation(ctx, owner, id, voter1)
	if err != nil || !voted {
		t.Errorf("participation = %v, %v; want true", voted, err)
	}
	candidates, _ := f.ledger.Candidates(ctx, id)
	if candidates[0].VoteCount != 1 {
		t.Errorf("candidate 1 votes = %d, want 1", candidates[0].VoteCount)
	}
	info, _ := f.ledger.Round(ctx, id)
	if info.TotalVotes != 1 || info.Pot != testFee {
		t.Errorf("round totals = %d votes / %d pot", info.TotalVotes, info.Pot)
	}
}

func TestCastVoteRejections(t *testing.T) {
	tests := []struct {
		name        string
		roundID     uint64
		candidateID uint32
		value       model.Amount
		setup       func(t *testing.T, f *fixture)
		want        error
	}{
		{"vote again same candidate", 1, 1, testFee, func(t *testing.T, f *fixture) { f.vote(t, voter1, 1, 1) }, ErrAlreadyVoted},
		{"vote again other candidate", 1, 2, testFee, func(t *testing.T, f *fixture) { f.vote(t, voter1, 1, 1) }, ErrAlreadyVoted},
		{"incorrect sum too high", 1, 1, testFee + 23_000_000, nil, ErrWrongFee},
		{"incorrect sum too low", 1, 1, testFee - 1, nil, ErrWrongFee},
		{"zero value", 1, 1, 0, nil, ErrWrongFee},
		{"non-existent voting", 2, 1, testFee, nil, ErrNoSuchRound},
		{"round zero", 0, 1, testFee, nil, ErrNoSuchRound},
		{"non-existent candidate", 1, 4, testFee, nil, ErrNoSuchCandidate},
		{"candidate zero", 1, 0, testFee, nil, ErrNoSuchCandidate},
		{"closed beats wrong fee", 1, 1, 1, func(t *testing.T, f *fixture) { f.closeNow(t, 1) }, ErrRoundClosed},
		{"closed beats bad candidate", 1, 9, testFee, func(t *testing.T, f *fixture) { f.closeNow(t, 1) }, ErrRoundClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.open(t, LockImmediate)
			if tt.setup != nil {
				tt.setup(t, f)
			}
			before := f.ledger.Snapshot()
			voterBalance := f.book.Balance(voter1)

			err := f.ledger.CastVote(context.Background(), voter1, tt.roundID, tt.candidateID, tt.value)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}

			after := f.ledger.Snapshot()
			if after.Seq != before.Seq || after.Balance != before.Balance || after.Rounds[0].TotalVotes != before.Rounds[0].TotalVotes {
				t.Errorf("state mutated by rejected vote: before %+v after %+v", before, after)
			}
			if got := f.book.Balance(voter1); got != voterBalance {
				t.Errorf("voter balance changed from %d to %d", voterBalance, got)
			}
		})
	}
}

func (f *fixture) closeNow(t *testing.T, id uint64) *model.Settlement {
	t.Helper()
	s, err := f.ledger.CloseRound(context.Background(), voter2, id)
	if err != nil {
		t.Fatalf("close round %d: %v", id, err)
	}
	return s
}

func TestCloseRoundOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.open(t, LockImmediate)
	f.vote(t, voter1, id, 1)

	settlement := f.closeNow(t, id)

	commission := testFee / 10
	s := f.summary(t)
	if s.Balance != commission || s.CommissionOwed != commission {
		t.Errorf("summary = %+v, want balance and commission %d", s, commission)
	}

	winners, err := f.ledger.Winners(ctx, id)
	if err != nil {
		t.Fatalf("winners: %v", err)
	}
	if len(winners) != 1 {
		t.Fatalf("got %d winners, want 1", len(winners))
	}
	w := winners[0]
	if w.ID != 1 || w.Address != candidateAddresses[0] || w.Name != "David" || w.VoteCount != 1 {
		t.Errorf("winner = %+v", w)
	}
	if got := f.book.Balance(candidateAddresses[0]); got != testFee-commission {
		t.Errorf("winner account = %d, want %d", got, testFee-commission)
	}
	if settlement.Commission+settlement.Distributed()+settlement.Remainder != settlement.Pot {
		t.Errorf("settlement does not conserve the pot: %+v", settlement)
	}

	statuses, _ := f.ledger.RoundStatuses(ctx)
	if !statuses[0].Closed() {
		t.Errorf("round should be closed")
	}
}

func TestCloseRoundSomeWinners(t *testing.T) {
	f := newFixture(t)
	id := f.open(t, LockImmediate)
	f.vote(t, voter1, id, 1)
	f.vote(t, voter2, id, 2)

	f.closeNow(t, id)

	s := f.summary(t)
	want := 2 * testFee / 10
	if s.Balance != want || s.CommissionOwed != want {
		t.Errorf("summary = %+v, want %d", s, want)
	}
	winners, _ := f.ledger.Winners(context.Background(), id)
	if len(winners) != 2 {
		t.Fatalf("got %d winners, want 2", len(winners))
	}
	for i, w := range winners {
		if w.ID != uint32(i+1) || w.Name != candidateNames[i] || w.VoteCount != 1 {
			t.Errorf("winner %d = %+v", i, w)
		}
	}
}

func TestLockNotElapsedReportsConfiguredLock(t *testing.T) {
	clock := newFakeClock()
	l, err := New(Config{Owner: owner, Address: contract, LongLock: 2 * time.Hour}, WithClock(clock))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	ctx := context.Background()
	id, err := l.OpenRound(ctx, owner, candidateAddresses, candidateNames, 0)
	if err != nil {
		t.Fatalf("open round: %v", err)
	}

	clock.Advance(time.Hour)
	_, err = l.CloseRound(ctx, voter1, id)
	if !errors.Is(err, ErrLockNotElapsed) {
		t.Fatalf("got %v, want ErrLockNotElapsed", err)
	}
	if strings.Contains(err.Error(), "three days") || !strings.Contains(err.Error(), "2h0m0s") {
		t.Errorf("error = %q, want the configured lock", err)
	}

	clock.Advance(time.Hour)
	if _, err := l.CloseRound(ctx, voter1, id); err != nil {
		t.Errorf("close after the configured lock: %v", err)
	}
}

func TestThreeWayTieAfterLongLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.open(t, 0)
	f.vote(t, voter1, id, 1)
	f.vote(t, voter2, id, 2)
	f.vote(t, voter3, id, 3)

	if _, err := f.ledger.CloseRound(ctx, voter1, id); !errors.Is(err, ErrLockNotElapsed) {
		t.Fatalf("close before lock: got %v, want ErrLockNotElapsed", err)
	}
	if _, err := f.ledger.Winners(ctx, id); !errors.Is(err, ErrRoundStillOpen) {
		t.Fatalf("winners before close: got %v, want ErrRoundStillOpen", err)
	}

	f.clock.Advance(DefaultLongLock - time.Second)
	if _, err := f.ledger.CloseRound(ctx, voter1, id); !errors.Is(err, ErrLockNotElapsed) {
		t.Fatalf("close one second early: got %v, want ErrLockNotElapsed", err)
	}

	f.clock.Advance(time.Second)
	settlement, err := f.ledger.CloseRound(ctx, voter1, id)
	if err != nil {
		t.Fatalf("close after lock: %v", err)
	}

	pot := 3 * testFee
	if settlement.Pot != pot || settlement.Commission != pot/10 {
		t.Errorf("pot/commission = %d/%d", settlement.Pot, settlement.Commission)
	}
	if len(settlement.Winners) != 3 {
		t.Fatalf("got %d winners, want 3", len(settlement.Winners))
	}
	share := (pot - pot/10) / 3
	if settlement.Share != share {
		t.Errorf("share = %d, want %d", settlement.Share, share)
	}
	for _, addr := range candidateAddresses {
		if got := f.book.Balance(addr); got != share {
			t.Errorf("candidate %s received %d, want %d", addr, got, share)
		}
	}
	if got := f.summary(t).CommissionOwed; got != pot/10 {
		t.Errorf("commission owed = %d, want %d", got, pot/10)
	}
}

func TestCloseRoundTwiceFails(t *testing.T) {
	f := newFixture(t)
	id := f.open(t, LockImmediate)
	f.closeNow(t, id)

	for i := 0; i < 3; i++ {
		if _, err := f.ledger.CloseRound(context.Background(), owner, id); !errors.Is(err, ErrRoundClosed) {
			t.Fatalf("attempt %d: got %v, want ErrRoundClosed", i, err)
		}
	}
	if _, err := f.ledger.CloseRound(context.Background(), owner, 7); !errors.Is(err, ErrNoSuchRound) {
		t.Errorf("unknown round: got %v, want ErrNoSuchRound", err)
	}
}

func TestCloseRoundWithoutVotes(t *testing.T) {
	f := newFixture(t)
	id := f.open(t, LockImmediate)

	settlement := f.closeNow(t, id)
	if len(settlement.Winners) != len(candidateAddresses) {
		t.Errorf("got %d winners, want every candidate", len(settlement.Winners))
	}
	if settlement.Share != 0 || settlement.Commission != 0 {
		t.Errorf("unexpected amounts in empty settlement: %+v", settlement)
	}
	if got := len(f.book.History()); got != 0 {
		t.Errorf("empty round issued %d transfers", got)
	}
}

func TestUnevenSplitRemainderGoesToCommission(t *testing.T) {
	f := newFixtureWithFee(t, 7)
	id := f.open(t, LockImmediate)
	f.vote(t, voter1, id, 1)
	f.vote(t, voter2, id, 2)

	settlement := f.closeNow(t, id)
	// pot 14: commission 1, prize 13, two winners get 6, remainder 1
	if settlement.Commission != 1 || settlement.Share != 6 || settlement.Remainder != 1 {
		t.Fatalf("settlement = %+v", settlement)
	}
	s := f.summary(t)
	if s.CommissionOwed != 2 || s.Balance != 2 {
		t.Errorf("summary = %+v, want commission and balance 2", s)
	}
	if got := f.book.Balance(contract); got != s.Balance {
		t.Errorf("contract account %d diverges from ledger balance %d", got, s.Balance)
	}
}

func TestWithdrawCommission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.open(t, LockImmediate)
	f.vote(t, voter1, id, 1)
	f.closeNow(t, id)

	if _, err := f.ledger.WithdrawCommission(ctx, voter3); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner withdraw: got %v, want ErrUnauthorized", err)
	}

	transfer, err := f.ledger.WithdrawCommission(ctx, owner)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if transfer.Amount != testFee/10 || transfer.To != owner {
		t.Errorf("transfer = %+v", transfer)
	}
	if got := f.book.Balance(owner); got != testFee/10 {
		t.Errorf("owner account = %d, want %d", got, testFee/10)
	}
	s := f.summary(t)
	if s.Balance != 0 || s.CommissionOwed != 0 {
		t.Errorf("summary after withdraw = %+v", s)
	}

	seq := f.ledger.Seq()
	again, err := f.ledger.WithdrawCommission(ctx, owner)
	if err != nil {
		t.Fatalf("second withdraw: %v", err)
	}
	if again.Amount != 0 || f.ledger.Seq() != seq {
		t.Errorf("zero withdraw should be a no-op, got %+v", again)
	}
}

func TestOwnerOnlyParticipationCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.ledger.CheckParticipation(ctx, voter1, 1, candidateAddresses[0]); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("non-owner: got %v, want ErrUnauthorized", err)
	}
	if _, err := f.ledger.CheckParticipation(ctx, owner, 1, voter1); !errors.Is(err, ErrNoSuchRound) {
		t.Errorf("unknown round: got %v, want ErrNoSuchRound", err)
	}
	id := f.open(t, 0)
	voted, err := f.ledger.CheckParticipation(ctx, owner, id, voter1)
	if err != nil || voted {
		t.Errorf("participation before voting = %v, %v", voted, err)
	}
}

func TestQueriesOnEmptyLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.ledger.RoundStatuses(ctx); !errors.Is(err, ErrNoRoundsYet) {
		t.Errorf("round statuses: got %v, want ErrNoRoundsYet", err)
	}
	if _, err := f.ledger.Winners(ctx, 1); !errors.Is(err, ErrNoSuchRound) {
		t.Errorf("winners: got %v, want ErrNoSuchRound", err)
	}
	if _, err := f.ledger.Candidates(ctx, 1); !errors.Is(err, ErrNoSuchRound) {
		t.Errorf("candidates: got %v, want ErrNoSuchRound", err)
	}
	s := f.summary(t)
	if s != (model.Summary{}) {
		t.Errorf("summary = %+v, want zero", s)
	}
}

func TestSettlementFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.open(t, LockImmediate)
	poor := voter(99)

	err := f.ledger.CastVote(ctx, poor, id, 1, testFee)
	if !errors.Is(err, ErrSettlementFailed) || !errors.Is(err, bank.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrSettlementFailed wrapping ErrInsufficientFunds", err)
	}
	voted, _ := f.ledger.CheckParticipation(ctx, owner, id, poor)
	if voted {
		t.Errorf("failed vote recorded participation")
	}
	if s := f.summary(t); s.Balance != 0 {
		t.Errorf("balance = %d after failed vote", s.Balance)
	}
}

type reentrantSettler struct {
	ledger *Ledger
	err    error
}

func (s *reentrantSettler) Settle(ctx context.Context, _ []model.Transfer) error {
	_, s.err = s.ledger.Summary(ctx)
	return s.err
}

func TestReentrantSettlementIsRejected(t *testing.T) {
	settler := &reentrantSettler{}
	l, err := New(Config{Owner: owner, Address: contract}, WithSettler(settler))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	settler.ledger = l
	ctx := context.Background()
	id, err := l.OpenRound(ctx, owner, candidateAddresses, candidateNames, LockImmediate)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	err = l.CastVote(ctx, voter1, id, 1, l.Fee())
	if !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("got %v, want ErrReentrantCall", err)
	}
	if !errors.Is(settler.err, ErrReentrantCall) {
		t.Errorf("settler observed %v, want ErrReentrantCall", settler.err)
	}
	if s, _ := l.Summary(ctx); s.Balance != 0 {
		t.Errorf("reentrant vote committed balance %d", s.Balance)
	}
}

func TestInvariantsHoldAcrossRounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.open(t, LockImmediate)
	second := f.open(t, 0)
	third := f.open(t, LockImmediate)
	for i := 1; i <= 7; i++ {
		f.vote(t, voter(i), first, uint32(i%3+1))
	}
	for i := 1; i <= 5; i++ {
		f.vote(t, voter(i), second, 2)
	}
	f.vote(t, voter(1), third, 3)
	f.closeNow(t, first)
	if _, err := f.ledger.WithdrawCommission(ctx, owner); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	f.closeNow(t, third)

	state := f.ledger.Snapshot()
	openPots := model.Amount(0)
	for _, r := range state.Rounds {
		var votes uint64
		for _, c := range r.Candidates {
			votes += c.VoteCount
		}
		if votes != r.TotalVotes {
			t.Errorf("round %d: candidate votes %d != total %d", r.ID, votes, r.TotalVotes)
		}
		if r.Settlement == nil {
			openPots += r.Pot
			continue
		}
		s := r.Settlement
		if s.Commission+s.Remainder+s.Distributed() != s.Pot {
			t.Errorf("round %d: settlement does not conserve pot: %+v", r.ID, s)
		}
	}
	if state.Balance != openPots+state.CommissionOwed {
		t.Errorf("balance %d != open pots %d + commission %d", state.Balance, openPots, state.CommissionOwed)
	}
	if got := f.book.Balance(contract); got != state.Balance {
		t.Errorf("contract account %d diverges from ledger balance %d", got, state.Balance)
	}
}

func TestSnapshotRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.open(t, LockImmediate)
	f.open(t, 0)
	f.vote(t, voter1, first, 2)
	f.vote(t, voter2, 2, 1)
	f.closeNow(t, first)

	state := f.ledger.Snapshot()

	restored, err := New(Config{Owner: owner, Address: contract}, WithClock(f.clock))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if err := restored.Restore(state); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if restored.Seq() != f.ledger.Seq() {
		t.Errorf("seq = %d, want %d", restored.Seq(), f.ledger.Seq())
	}
	want, _ := f.ledger.Summary(ctx)
	got, _ := restored.Summary(ctx)
	if got != want {
		t.Errorf("summary = %+v, want %+v", got, want)
	}
	winners, err := restored.Winners(ctx, first)
	if err != nil || len(winners) != 1 || winners[0].ID != 2 {
		t.Errorf("winners after restore = %+v, %v", winners, err)
	}
	if err := restored.CastVote(ctx, voter2, 2, 1, restored.Fee()); !errors.Is(err, ErrAlreadyVoted) {
		t.Errorf("participants not restored: got %v", err)
	}
}

func TestRestoreRejectsCorruptState(t *testing.T) {
	f := newFixture(t)
	id := f.open(t, LockImmediate)
	f.vote(t, voter1, id, 1)
	good := f.ledger.Snapshot()

	tests := []struct {
		name   string
		mutate func(s *model.LedgerState)
	}{
		{"foreign owner", func(s *model.LedgerState) { s.Owner = voter1 }},
		{"fee mismatch", func(s *model.LedgerState) { s.Fee++ }},
		{"balance drift", func(s *model.LedgerState) { s.Balance++ }},
		{"tally mismatch", func(s *model.LedgerState) { s.Rounds[0].Candidates[1].VoteCount++ }},
		{"duplicate participant", func(s *model.LedgerState) {
			s.Rounds[0].Participants = append(s.Rounds[0].Participants, voter1)
			s.Rounds[0].Candidates[0].VoteCount++
			s.Rounds[0].TotalVotes++
			s.Rounds[0].Pot += s.Fee
			s.Balance += s.Fee
		}},
		{"gap in round ids", func(s *model.LedgerState) { s.Rounds[0].ID = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := f.ledger.Snapshot()
			tt.mutate(&state)
			target := newFixture(t)
			if err := target.ledger.Restore(state); !errors.Is(err, ErrCorruptState) {
				t.Fatalf("got %v, want ErrCorruptState", err)
			}
			if target.ledger.Seq() != 0 {
				t.Errorf("rejected restore changed seq")
			}
		})
	}

	if err := newFixture(t).ledger.Restore(good); err != nil {
		t.Errorf("unmodified snapshot rejected: %v", err)
	}
}

func TestConcurrentVotes(t *testing.T) {
	clock := newFakeClock()
	book := bank.NewBook()
	l, err := New(Config{Owner: owner, Address: contract}, WithClock(clock), WithSettler(book))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	ctx := context.Background()
	id, _ := l.OpenRound(ctx, owner, candidateAddresses, candidateNames, LockImmediate)

	const voters = 64
	for i := 0; i < voters; i++ {
		book.Deposit(voter(i), l.Fee())
	}

	var wg sync.WaitGroup
	errs := make(chan error, voters*2)
	for i := 0; i < voters; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			errs <- l.CastVote(ctx, voter(i), id, uint32(i%3+1), l.Fee())
		}(i)
		go func() {
			defer wg.Done()
			_, err := l.Candidates(ctx, id)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent operation failed: %v", err)
		}
	}

	info, _ := l.Round(ctx, id)
	if info.TotalVotes != voters || info.Pot != voters*l.Fee() {
		t.Errorf("round totals = %d votes, %d pot", info.TotalVotes, info.Pot)
	}
}
