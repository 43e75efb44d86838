package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lvdashuaibi/voteledger/internal/lock"
	"github.com/lvdashuaibi/voteledger/internal/logging"
)

// Elector 维持写入锁，持有锁时提升服务为写入节点，丢锁时降级
type Elector struct {
	svc      *LedgerService
	lock     lock.Lock
	lockName string
	ttl      time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	held     bool
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewElector(svc *LedgerService, l lock.Lock, lockName string, ttl time.Duration, logger *zap.Logger) *Elector {
	return &Elector{
		svc:      svc,
		lock:     l,
		lockName: lockName,
		ttl:      ttl,
		logger:   logging.OrNop(logger),
		stopChan: make(chan struct{}),
	}
}

// Campaign 尝试一次获取或续约写入锁，返回当前是否为写入节点
func (e *Elector) Campaign(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.held {
		ok, err := e.lock.RefreshLock(e.lockName, e.ttl)
		if err == nil && ok {
			if e.svc.HasUnsaved() {
				if err := e.svc.Flush(ctx); err != nil {
					e.logger.Error("重试保存账本快照失败", zap.Error(err))
				}
			}
			return true
		}
		e.logger.Warn("写入锁续约失败", zap.String("lock", e.lockName), zap.Error(err))
		e.held = false
		e.svc.Demote()
		return false
	}

	acquired, err := e.lock.AcquireLock(e.lockName, e.ttl)
	if err != nil {
		e.logger.Warn("获取写入锁失败", zap.String("lock", e.lockName), zap.Error(err))
		return false
	}
	if !acquired {
		return false
	}

	if err := e.svc.Promote(ctx); err != nil {
		e.logger.Error("提升为写入节点失败，释放写入锁", zap.Error(err))
		if err := e.lock.ReleaseLock(e.lockName); err != nil {
			e.logger.Warn("释放写入锁失败", zap.Error(err))
		}
		return false
	}
	e.held = true
	return true
}

// Start 每隔 ttl/3 竞选或续约一次
func (e *Elector) Start() {
	interval := e.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				e.Campaign(ctx)
				cancel()
			case <-e.stopChan:
				return
			}
		}
	}()
}

// Stop 停止竞选并释放写入锁
func (e *Elector) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopChan)
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.held {
		e.svc.Demote()
		e.held = false
		ctx, cancel := context.WithTimeout(context.Background(), e.ttl)
		defer cancel()
		// 状态未持久化时保留写入锁，等它过期；其他实例提升时还会核对审计日志
		if err := e.svc.Flush(ctx); err != nil {
			e.logger.Error("停止时账本快照仍未保存，不释放写入锁", zap.Error(err))
			return
		}
		if err := e.lock.ReleaseLock(e.lockName); err != nil {
			e.logger.Warn("释放写入锁失败", zap.Error(err))
		}
	}
}
