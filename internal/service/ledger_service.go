package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/voteledger/internal/ledger"
	"github.com/lvdashuaibi/voteledger/internal/logging"
	"github.com/lvdashuaibi/voteledger/internal/model"
)

var (
	// ErrNotWriter 当前实例不持有写入锁，写操作需要发往写入节点
	ErrNotWriter = errors.New("当前实例不是写入节点")
	// ErrStateUnsaved 已提交的状态还没有持久化，写入暂停直到快照保存成功
	ErrStateUnsaved = errors.New("账本状态尚未持久化")
	// ErrStaleSnapshot 审计日志中有比最新快照更新的事件，不能从该快照提升为写入节点
	ErrStaleSnapshot = errors.New("账本快照落后于审计日志")
)

// SnapshotStore 账本快照存储
type SnapshotStore interface {
	Save(ctx context.Context, state model.LedgerState) error
	Load(ctx context.Context) (*model.LedgerState, bool, error)
	// LoadLatest 读取持久存储中的最新快照，不经过缓存
	LoadLatest(ctx context.Context) (*model.LedgerState, bool, error)
}

// EventPublisher 账本事件发布
type EventPublisher interface {
	SendLedgerEvent(ctx context.Context, event *model.LedgerEvent) error
}

// AuditLog 账本事件审计日志
type AuditLog interface {
	AppendEvent(ctx context.Context, event *model.LedgerEvent) error
	ListEvents(ctx context.Context, roundID uint64) ([]*model.LedgerEvent, error)
	LatestSeq(ctx context.Context) (uint64, error)
}

// LedgerService 包装账本，负责写入节点的持久化与事件发布以及从节点的状态同步
type LedgerService struct {
	ledger    *ledger.Ledger
	snapshots SnapshotStore
	publisher EventPublisher
	audit     AuditLog
	logger    *zap.Logger
	now       func() time.Time

	writer  atomic.Bool
	unsaved atomic.Bool // 最近一次提交的状态未能保存快照
	writeMu sync.Mutex  // 写操作、快照保存和事件序号保持一致
	syncMu  sync.Mutex
}

// NewLedgerService publisher 可以为 nil，此时事件直接写入审计日志
func NewLedgerService(
	l *ledger.Ledger,
	snapshots SnapshotStore,
	publisher EventPublisher,
	audit AuditLog,
	logger *zap.Logger,
) *LedgerService {
	return &LedgerService{
		ledger:    l,
		snapshots: snapshots,
		publisher: publisher,
		audit:     audit,
		logger:    logging.OrNop(logger),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Recover 从快照存储恢复账本
func (s *LedgerService) Recover(ctx context.Context) error {
	return s.recover(ctx, s.snapshots.Load)
}

func (s *LedgerService) recover(ctx context.Context, load func(context.Context) (*model.LedgerState, bool, error)) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	state, ok, err := load(ctx)
	if err != nil {
		return fmt.Errorf("加载账本快照失败: %w", err)
	}
	if !ok {
		s.logger.Info("未找到账本快照，从空账本开始")
		return nil
	}
	if state.Seq <= s.ledger.Seq() {
		return nil
	}
	if err := s.ledger.Restore(*state); err != nil {
		return fmt.Errorf("恢复账本快照失败: %w", err)
	}
	s.logger.Info("账本已从快照恢复", zap.Uint64("seq", state.Seq), zap.Int("rounds", len(state.Rounds)))
	return nil
}

// Promote 成为写入节点，先从持久存储追上最新快照，
// 审计日志里有快照之后的事件时拒绝提升
func (s *LedgerService) Promote(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.recover(ctx, s.snapshots.LoadLatest); err != nil {
		return err
	}
	latest, err := s.audit.LatestSeq(ctx)
	if err != nil {
		return fmt.Errorf("查询审计日志最新序号失败: %w", err)
	}
	if latest > s.ledger.Seq() {
		s.logger.Error("快照落后于审计日志，拒绝成为写入节点",
			zap.Uint64("snapshot_seq", s.ledger.Seq()),
			zap.Uint64("audit_seq", latest),
		)
		return fmt.Errorf("%w: 快照 %d，审计日志 %d", ErrStaleSnapshot, s.ledger.Seq(), latest)
	}
	if err := s.flushLocked(ctx); err != nil {
		s.logger.Warn("重新成为写入节点时快照仍未保存", zap.Error(err))
	}
	s.writer.Store(true)
	s.logger.Info("当前实例成为写入节点", zap.Uint64("seq", s.ledger.Seq()))
	return nil
}

// Demote 放弃写入权限
func (s *LedgerService) Demote() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.writer.Swap(false) {
		s.logger.Warn("当前实例不再是写入节点")
	}
}

// HasUnsaved 是否有已提交但未保存快照的状态
func (s *LedgerService) HasUnsaved() bool {
	return s.unsaved.Load()
}

// Flush 重试保存未持久化的状态
func (s *LedgerService) Flush(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.flushLocked(ctx)
}

func (s *LedgerService) flushLocked(ctx context.Context) error {
	if !s.unsaved.Load() {
		return nil
	}
	state := s.ledger.Snapshot()
	if err := s.snapshots.Save(ctx, state); err != nil {
		return fmt.Errorf("%w: %w", ErrStateUnsaved, err)
	}
	s.unsaved.Store(false)
	s.logger.Info("未保存的账本状态已持久化", zap.Uint64("seq", state.Seq))
	return nil
}

// IsWriter 当前实例是否为写入节点
func (s *LedgerService) IsWriter() bool {
	return s.writer.Load()
}

func (s *LedgerService) Owner() model.Address { return s.ledger.Owner() }

func (s *LedgerService) Fee() model.Amount { return s.ledger.Fee() }

// OpenRound 创建投票轮次
func (s *LedgerService) OpenRound(
	ctx context.Context,
	caller model.Address,
	addresses []model.Address,
	names []string,
	lockSelector uint8,
) (uint64, error) {
	var roundID uint64
	err := s.write(ctx, func() (*model.LedgerEvent, error) {
		id, err := s.ledger.OpenRound(ctx, caller, addresses, names, lockSelector)
		if err != nil {
			return nil, err
		}
		roundID = id
		return s.newEvent(model.EventRoundOpened, id, caller), nil
	})
	return roundID, err
}

// CastVote 投票
func (s *LedgerService) CastVote(
	ctx context.Context,
	caller model.Address,
	roundID uint64,
	candidateID uint32,
	value model.Amount,
) error {
	return s.write(ctx, func() (*model.LedgerEvent, error) {
		if err := s.ledger.CastVote(ctx, caller, roundID, candidateID, value); err != nil {
			return nil, err
		}
		event := s.newEvent(model.EventVoteCast, roundID, caller)
		event.CandidateID = candidateID
		event.Amount = value
		event.Transfers = []model.Transfer{{From: caller, To: s.ledger.Address(), Amount: value}}
		return event, nil
	})
}

// CloseRound 关闭轮次
func (s *LedgerService) CloseRound(ctx context.Context, caller model.Address, roundID uint64) (*model.Settlement, error) {
	var settlement *model.Settlement
	err := s.write(ctx, func() (*model.LedgerEvent, error) {
		result, err := s.ledger.CloseRound(ctx, caller, roundID)
		if err != nil {
			return nil, err
		}
		settlement = result
		event := s.newEvent(model.EventRoundClosed, roundID, caller)
		event.Amount = result.Pot
		event.Transfers = result.Transfers
		event.Settlement = result
		return event, nil
	})
	return settlement, err
}

// WithdrawCommission 提取佣金，佣金为零时不产生事件
func (s *LedgerService) WithdrawCommission(ctx context.Context, caller model.Address) (model.Transfer, error) {
	var transfer model.Transfer
	err := s.write(ctx, func() (*model.LedgerEvent, error) {
		result, err := s.ledger.WithdrawCommission(ctx, caller)
		if err != nil {
			return nil, err
		}
		transfer = result
		if result.Amount == 0 {
			return nil, nil
		}
		event := s.newEvent(model.EventCommissionWithdrawn, 0, caller)
		event.Amount = result.Amount
		event.Transfers = []model.Transfer{result}
		return event, nil
	})
	return transfer, err
}

func (s *LedgerService) CheckParticipation(ctx context.Context, caller model.Address, roundID uint64, address model.Address) (bool, error) {
	s.refresh(ctx)
	return s.ledger.CheckParticipation(ctx, caller, roundID, address)
}

func (s *LedgerService) Summary(ctx context.Context) (model.Summary, error) {
	s.refresh(ctx)
	return s.ledger.Summary(ctx)
}

func (s *LedgerService) RoundStatuses(ctx context.Context) ([]model.RoundStatus, error) {
	s.refresh(ctx)
	return s.ledger.RoundStatuses(ctx)
}

func (s *LedgerService) Round(ctx context.Context, roundID uint64) (model.RoundInfo, error) {
	s.refresh(ctx)
	return s.ledger.Round(ctx, roundID)
}

func (s *LedgerService) Candidates(ctx context.Context, roundID uint64) ([]model.Candidate, error) {
	s.refresh(ctx)
	return s.ledger.Candidates(ctx, roundID)
}

func (s *LedgerService) Winners(ctx context.Context, roundID uint64) ([]model.Candidate, error) {
	s.refresh(ctx)
	return s.ledger.Winners(ctx, roundID)
}

// RoundHistory 轮次的审计日志
func (s *LedgerService) RoundHistory(ctx context.Context, roundID uint64) ([]*model.LedgerEvent, error) {
	events, err := s.audit.ListEvents(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("查询轮次 %d 历史失败: %w", roundID, err)
	}
	return events, nil
}

// ProcessLedgerEvent 处理账本事件（消费者使用）
func (s *LedgerService) ProcessLedgerEvent(event *model.LedgerEvent) error {
	ctx := context.Background()
	if err := s.audit.AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("处理账本事件写入审计日志失败: %w", err)
	}
	if !s.IsWriter() && event.Seq > s.ledger.Seq() {
		s.refresh(ctx)
	}
	return nil
}

// write 在写入节点执行一次写操作，成功后保存快照并发布事件
func (s *LedgerService) write(ctx context.Context, op func() (*model.LedgerEvent, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !s.IsWriter() {
		return ErrNotWriter
	}
	if err := s.flushLocked(ctx); err != nil {
		return err
	}

	event, err := op()
	if err != nil {
		return err
	}
	if event == nil {
		return nil
	}

	// 资金已经划转，操作本身成功；快照保存失败时暂停写入，
	// 并把事件直接写入审计日志，其他实例据此拒绝从旧快照提升
	if err := s.snapshots.Save(ctx, s.ledger.Snapshot()); err != nil {
		s.unsaved.Store(true)
		s.logger.Error("保存账本快照失败，暂停写入", zap.Uint64("seq", event.Seq), zap.Error(err))
		if err := s.audit.AppendEvent(ctx, event); err != nil {
			s.logger.Error("写入审计日志失败", zap.String("event_id", event.EventID), zap.Error(err))
		}
	}
	s.publish(ctx, event)
	return nil
}

// publish Kafka 不可用时直接写入审计日志
func (s *LedgerService) publish(ctx context.Context, event *model.LedgerEvent) {
	if s.publisher != nil {
		err := s.publisher.SendLedgerEvent(ctx, event)
		if err == nil {
			return
		}
		s.logger.Warn("发送账本事件到Kafka失败，直接写入审计日志",
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}
	if err := s.audit.AppendEvent(ctx, event); err != nil {
		s.logger.Error("写入审计日志失败", zap.String("event_id", event.EventID), zap.Error(err))
	}
}

// refresh 从节点读取前追上最新快照，失败时继续使用本地状态
func (s *LedgerService) refresh(ctx context.Context) {
	if s.IsWriter() {
		return
	}
	if err := s.Recover(ctx); err != nil {
		s.logger.Warn("从节点同步快照失败，使用本地状态", zap.Error(err))
	}
}

func (s *LedgerService) newEvent(eventType model.EventType, roundID uint64, caller model.Address) *model.LedgerEvent {
	return &model.LedgerEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		Seq:        s.ledger.Seq(),
		RoundID:    roundID,
		Caller:     caller,
		OccurredAt: s.now(),
	}
}
