package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lvdashuaibi/voteledger/internal/model"
)

const (
	// DefaultFee 默认投票费用 0.1 ether，单位 gwei
	DefaultFee model.Amount = 100_000_000
	// DefaultLongLock 默认锁定时长三天
	DefaultLongLock = 3 * 24 * time.Hour
	// LockImmediate 创建轮次时选择可立即关闭
	LockImmediate uint8 = 1
	// CommissionDivisor 佣金比例 1/10
	CommissionDivisor = 10
)

// Clock 时间来源
type Clock interface {
	Now() time.Time
}

// Settler 资金划转通道，一批划转要么全部成功，要么全部失败
type Settler interface {
	Settle(ctx context.Context, transfers []model.Transfer) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type nopSettler struct{}

func (nopSettler) Settle(context.Context, []model.Transfer) error { return nil }

// settlingKey 标记正在结算的上下文，用于拒绝重入调用
type settlingKey struct{}

type Config struct {
	Owner    model.Address
	Address  model.Address
	Fee      model.Amount
	LongLock time.Duration
}

type Option func(*Ledger)

// WithClock 注入时间来源
func WithClock(clock Clock) Option {
	return func(l *Ledger) { l.clock = clock }
}

// WithSettler 注入资金划转通道
func WithSettler(settler Settler) Option {
	return func(l *Ledger) { l.settler = settler }
}

// WithLogger 注入日志
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// Ledger 投票账本，所有写操作串行执行
type Ledger struct {
	mu       sync.RWMutex
	owner    model.Address
	address  model.Address
	fee      model.Amount
	longLock time.Duration
	clock    Clock
	settler  Settler
	logger   *zap.Logger

	rounds         []*round
	commissionOwed model.Amount
	balance        model.Amount
	seq            uint64
}

type round struct {
	id           uint64
	openedAt     time.Time
	lockDuration time.Duration
	candidates   []model.Candidate
	participants map[model.Address]struct{}
	voters       []model.Address
	totalVotes   uint64
	pot          model.Amount
	settlement   *model.Settlement
}

func (r *round) closed() bool {
	return r.settlement != nil
}

func (r *round) status() model.RoundStatus {
	s := model.RoundStatus{
		ID:           r.id,
		OpenedAt:     r.openedAt,
		LockDuration: r.lockDuration,
		TotalVotes:   r.totalVotes,
	}
	if r.settlement != nil {
		s.ClosedAt = r.settlement.ClosedAt
	}
	return s
}

// New 创建账本
func New(cfg Config, opts ...Option) (*Ledger, error) {
	if cfg.Owner == "" {
		return nil, fmt.Errorf("账本所有者地址不能为空")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("账本合约地址不能为空")
	}
	if cfg.Fee == 0 {
		cfg.Fee = DefaultFee
	}
	if cfg.LongLock <= 0 {
		cfg.LongLock = DefaultLongLock
	}

	l := &Ledger{
		owner:    cfg.Owner,
		address:  cfg.Address,
		fee:      cfg.Fee,
		longLock: cfg.LongLock,
		clock:    systemClock{},
		settler:  nopSettler{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Owner 账本所有者
func (l *Ledger) Owner() model.Address { return l.owner }

// Address 账本自身的资金地址
func (l *Ledger) Address() model.Address { return l.address }

// Fee 每次投票的固定费用
func (l *Ledger) Fee() model.Amount { return l.fee }

// OpenRound 创建新的投票轮次，仅所有者可调用
func (l *Ledger) OpenRound(
	ctx context.Context,
	caller model.Address,
	addresses []model.Address,
	names []string,
	lockSelector uint8,
) (uint64, error) {
	if err := l.enter(ctx); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return 0, ErrUnauthorized
	}
	if len(addresses) != len(names) {
		return 0, ErrArgumentMismatch
	}
	if len(addresses) == 0 {
		return 0, ErrEmptyRoster
	}

	candidates := make([]model.Candidate, len(addresses))
	for i := range addresses {
		candidates[i] = model.Candidate{
			ID:      uint32(i + 1),
			Address: addresses[i],
			Name:    names[i],
		}
	}
	lockDuration := l.longLock
	if lockSelector == LockImmediate {
		lockDuration = 0
	}

	r := &round{
		id:           uint64(len(l.rounds) + 1),
		openedAt:     l.clock.Now(),
		lockDuration: lockDuration,
		candidates:   candidates,
		participants: make(map[model.Address]struct{}),
	}
	l.rounds = append(l.rounds, r)
	l.seq++

	l.logger.Info("投票轮次已创建",
		zap.Uint64("round_id", r.id),
		zap.Int("candidates", len(candidates)),
		zap.Duration("lock", lockDuration),
	)
	return r.id, nil
}

// CastVote 投票，value 必须等于固定费用
func (l *Ledger) CastVote(
	ctx context.Context,
	caller model.Address,
	roundID uint64,
	candidateID uint32,
	value model.Amount,
) error {
	if err := l.enter(ctx); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	r, err := l.lookup(roundID)
	if err != nil {
		return err
	}
	if r.closed() {
		return ErrRoundClosed
	}
	if _, voted := r.participants[caller]; voted {
		return ErrAlreadyVoted
	}
	if candidateID == 0 || int(candidateID) > len(r.candidates) {
		return ErrNoSuchCandidate
	}
	if value != l.fee {
		return ErrWrongFee
	}

	if err := l.settle(ctx, []model.Transfer{{From: caller, To: l.address, Amount: value}}); err != nil {
		return err
	}

	r.candidates[candidateID-1].VoteCount++
	r.totalVotes++
	r.participants[caller] = struct{}{}
	r.voters = append(r.voters, caller)
	r.pot += value
	l.balance += value
	l.seq++

	l.logger.Debug("投票成功",
		zap.Uint64("round_id", roundID),
		zap.Uint32("candidate_id", candidateID),
		zap.String("caller", caller.String()),
	)
	return nil
}

// CloseRound 关闭轮次并分配奖金，任何人都可以调用
func (l *Ledger) CloseRound(ctx context.Context, caller model.Address, roundID uint64) (*model.Settlement, error) {
	if err := l.enter(ctx); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	r, err := l.lookup(roundID)
	if err != nil {
		return nil, err
	}
	if r.closed() {
		return nil, ErrRoundClosed
	}
	now := l.clock.Now()
	if closableAt := r.openedAt.Add(r.lockDuration); now.Before(closableAt) {
		return nil, fmt.Errorf("%w (lock %s, closable at %s)", ErrLockNotElapsed, r.lockDuration, closableAt.Format(time.RFC3339))
	}

	settlement := settleRound(r.id, r.candidates, r.pot, l.address, now)
	if err := l.settle(ctx, settlement.Transfers); err != nil {
		return nil, err
	}

	r.settlement = &settlement
	l.commissionOwed += settlement.Commission + settlement.Remainder
	l.balance -= settlement.Distributed()
	l.seq++

	if r.totalVotes == 0 {
		l.logger.Warn("轮次关闭时没有任何投票，所有候选人并列获胜",
			zap.Uint64("round_id", r.id),
			zap.Int("winners", len(settlement.Winners)),
		)
	}
	l.logger.Info("投票轮次已关闭",
		zap.Uint64("round_id", r.id),
		zap.String("closed_by", caller.String()),
		zap.Int("winners", len(settlement.Winners)),
		zap.Uint64("pot", uint64(settlement.Pot)),
		zap.Uint64("commission", uint64(settlement.Commission)),
		zap.Uint64("share", uint64(settlement.Share)),
	)
	out := copySettlement(settlement)
	return &out, nil
}

// WithdrawCommission 所有者提取全部佣金，佣金为零时不发生划转
func (l *Ledger) WithdrawCommission(ctx context.Context, caller model.Address) (model.Transfer, error) {
	if err := l.enter(ctx); err != nil {
		return model.Transfer{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return model.Transfer{}, ErrUnauthorized
	}

	transfer := model.Transfer{From: l.address, To: l.owner, Amount: l.commissionOwed}
	if transfer.Amount == 0 {
		return transfer, nil
	}
	if err := l.settle(ctx, []model.Transfer{transfer}); err != nil {
		return model.Transfer{}, err
	}

	l.commissionOwed = 0
	l.balance -= transfer.Amount
	l.seq++

	l.logger.Info("佣金已提取", zap.Uint64("amount", uint64(transfer.Amount)))
	return transfer, nil
}

// CheckParticipation 查询地址是否已在轮次中投票，仅所有者可调用
func (l *Ledger) CheckParticipation(
	ctx context.Context,
	caller model.Address,
	roundID uint64,
	address model.Address,
) (bool, error) {
	if err := l.enter(ctx); err != nil {
		return false, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	if caller != l.owner {
		return false, ErrUnauthorized
	}
	r, err := l.lookup(roundID)
	if err != nil {
		return false, err
	}
	_, voted := r.participants[address]
	return voted, nil
}

// lookup 调用方必须持有锁
func (l *Ledger) lookup(roundID uint64) (*round, error) {
	if roundID == 0 || roundID > uint64(len(l.rounds)) {
		return nil, ErrNoSuchRound
	}
	return l.rounds[roundID-1], nil
}

func (l *Ledger) enter(ctx context.Context) error {
	if active, ok := ctx.Value(settlingKey{}).(*Ledger); ok && active == l {
		return ErrReentrantCall
	}
	return nil
}

// settle 提交一批划转，零金额划转不提交
func (l *Ledger) settle(ctx context.Context, transfers []model.Transfer) error {
	batch := make([]model.Transfer, 0, len(transfers))
	for _, t := range transfers {
		if t.Amount > 0 {
			batch = append(batch, t)
		}
	}
	if len(batch) == 0 {
		return nil
	}

	ctx = context.WithValue(ctx, settlingKey{}, l)
	if err := l.settler.Settle(ctx, batch); err != nil {
		l.logger.Warn("资金划转失败，操作已回滚", zap.Int("transfers", len(batch)), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrSettlementFailed, err)
	}
	return nil
}
