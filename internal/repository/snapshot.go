package repository

import (
	"context"

	"go.uber.org/zap"

	"github.com/lvdashuaibi/voteledger/internal/logging"
	"github.com/lvdashuaibi/voteledger/internal/model"
)

// SnapshotPrimary 快照的持久存储
type SnapshotPrimary interface {
	SaveSnapshot(ctx context.Context, state model.LedgerState) error
	LoadSnapshot(ctx context.Context) (*model.LedgerState, bool, error)
}

// SnapshotCache 快照缓存
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, state model.LedgerState) (bool, error)
	GetSnapshot(ctx context.Context) (*model.LedgerState, bool, error)
	DeleteSnapshot(ctx context.Context) error
}

// SnapshotStore 先写持久存储再写缓存，读取时优先缓存
type SnapshotStore struct {
	primary SnapshotPrimary
	cache   SnapshotCache
	logger  *zap.Logger
}

// NewSnapshotStore cache 可以为 nil
func NewSnapshotStore(primary SnapshotPrimary, cache SnapshotCache, logger *zap.Logger) *SnapshotStore {
	return &SnapshotStore{primary: primary, cache: cache, logger: logging.OrNop(logger)}
}

// Save 持久化失败时返回错误，缓存失败只记录日志
func (s *SnapshotStore) Save(ctx context.Context, state model.LedgerState) error {
	if err := s.primary.SaveSnapshot(ctx, state); err != nil {
		return err
	}
	s.refreshCache(ctx, state)
	return nil
}

// Load 读取最新快照，缓存未命中时回源并回写缓存
func (s *SnapshotStore) Load(ctx context.Context) (*model.LedgerState, bool, error) {
	if s.cache != nil {
		state, ok, err := s.cache.GetSnapshot(ctx)
		if err != nil {
			s.logger.Warn("读取快照缓存失败，回源MySQL", zap.Error(err))
		} else if ok {
			return state, true, nil
		}
	}

	return s.LoadLatest(ctx)
}

// LoadLatest 绕过缓存直接读取持久存储，用于写入节点提升
func (s *SnapshotStore) LoadLatest(ctx context.Context) (*model.LedgerState, bool, error) {
	state, ok, err := s.primary.LoadSnapshot(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	s.refreshCache(ctx, *state)
	return state, true, nil
}

func (s *SnapshotStore) refreshCache(ctx context.Context, state model.LedgerState) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.SetSnapshot(ctx, state); err != nil {
		// 缓存里可能留着旧快照，删掉后读取会回源
		s.logger.Warn("更新快照缓存失败，删除缓存", zap.Uint64("seq", state.Seq), zap.Error(err))
		if err := s.cache.DeleteSnapshot(ctx); err != nil {
			s.logger.Error("删除快照缓存失败", zap.Error(err))
		}
	}
}
