package lock

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lvdashuaibi/voteledger/config"
)

// Lock 分布式锁接口
type Lock interface {
	// AcquireLock 获取分布式锁
	// 返回值：bool表示是否成功获取锁，error表示获取过程中的错误
	AcquireLock(lockName string, timeout time.Duration) (bool, error)

	// RefreshLock 刷新锁的过期时间
	// 返回值：bool表示是否成功刷新锁，error表示刷新过程中的错误
	RefreshLock(lockName string, timeout time.Duration) (bool, error)

	// ReleaseLock 释放分布式锁
	ReleaseLock(lockName string) error

	// ReleaseAllLocks 释放所有持有的锁
	ReleaseAllLocks()

	// Close 关闭分布式锁客户端
	Close() error
}

// New 按 lock.backend 创建锁
func New(cfg *config.Config, logger *zap.Logger) (Lock, error) {
	switch cfg.Lock.Backend {
	case "etcd":
		l, err := NewETCDLock(cfg.ETCD, logger)
		if err != nil {
			return nil, err
		}
		return l, nil
	case "redis":
		l, err := NewRedLock(cfg.Redis, cfg.Lock)
		if err != nil {
			return nil, err
		}
		return l, nil
	case "local":
		return NewLocalLock(), nil
	default:
		return nil, fmt.Errorf("不支持的锁类型: %s", cfg.Lock.Backend)
	}
}

// quorum 多数派节点数
func quorum(n int) int {
	return n/2 + 1
}
