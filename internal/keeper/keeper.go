// Package keeper 定期关闭锁定期已过的投票轮次
package keeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lvdashuaibi/voteledger/config"
	"github.com/lvdashuaibi/voteledger/internal/ledger"
	"github.com/lvdashuaibi/voteledger/internal/lock"
	"github.com/lvdashuaibi/voteledger/internal/logging"
	"github.com/lvdashuaibi/voteledger/internal/model"
)

// RoundCloser keeper 需要的账本操作
type RoundCloser interface {
	IsWriter() bool
	RoundStatuses(ctx context.Context) ([]model.RoundStatus, error)
	CloseRound(ctx context.Context, caller model.Address, roundID uint64) (*model.Settlement, error)
}

type Keeper struct {
	closer      RoundCloser
	lock        lock.Lock
	address     model.Address
	interval    time.Duration
	lockName    string
	lockTimeout time.Duration
	now         func() time.Time
	logger      *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewKeeper(closer RoundCloser, l lock.Lock, cfg config.KeeperConfig, logger *zap.Logger) (*Keeper, error) {
	address, err := model.ParseAddress(cfg.Address)
	if err != nil {
		return nil, err
	}
	return &Keeper{
		closer:      closer,
		lock:        l,
		address:     address,
		interval:    cfg.Interval,
		lockName:    cfg.LockName,
		lockTimeout: cfg.LockTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logging.OrNop(logger),
		stopChan:    make(chan struct{}),
	}, nil
}

// Start 启动定时扫描
func (k *Keeper) Start() {
	ticker := time.NewTicker(k.interval)

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), k.interval)
				k.Sweep(ctx)
				cancel()
			case <-k.stopChan:
				k.logger.Info("keeper已停止")
				return
			}
		}
	}()
	k.logger.Info("keeper已启动", zap.Duration("interval", k.interval), zap.String("address", k.address.String()))
}

// Stop 停止扫描并等待当前一轮结束
func (k *Keeper) Stop() {
	k.stopOnce.Do(func() { close(k.stopChan) })
	k.wg.Wait()
}

// Sweep 关闭所有到期的轮次，返回本次关闭的轮次ID
func (k *Keeper) Sweep(ctx context.Context) []uint64 {
	// 只有写入节点才执行
	if !k.closer.IsWriter() {
		return nil
	}

	acquired, err := k.lock.AcquireLock(k.lockName, k.lockTimeout)
	if err != nil {
		k.logger.Warn("获取keeper锁失败", zap.Error(err))
		return nil
	}
	if !acquired {
		k.logger.Debug("未能获取keeper锁，跳过本次扫描")
		return nil
	}
	defer func() {
		if err := k.lock.ReleaseLock(k.lockName); err != nil {
			k.logger.Warn("释放keeper锁失败", zap.Error(err))
		}
	}()

	statuses, err := k.closer.RoundStatuses(ctx)
	if err != nil {
		if !errors.Is(err, ledger.ErrNoRoundsYet) {
			k.logger.Warn("查询轮次状态失败", zap.Error(err))
		}
		return nil
	}

	now := k.now()
	var closed []uint64
	for _, status := range statuses {
		if status.Closed() || now.Before(status.ClosableAt()) {
			continue
		}

		settlement, err := k.closer.CloseRound(ctx, k.address, status.ID)
		switch {
		case err == nil:
			closed = append(closed, status.ID)
			k.logger.Info("keeper关闭到期轮次",
				zap.Uint64("round_id", status.ID),
				zap.Int("winners", len(settlement.Winners)),
			)
		case errors.Is(err, ledger.ErrRoundClosed), errors.Is(err, ledger.ErrLockNotElapsed):
			// 其他调用方抢先关闭，或时钟差异
		default:
			k.logger.Error("keeper关闭轮次失败", zap.Uint64("round_id", status.ID), zap.Error(err))
		}
	}
	return closed
}
