package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/voteledger/config"
)

const (
	defaultTTL = 10 * time.Second // 默认租约时长
)

// EtcdLock 基于租约和事务的分布式锁
type EtcdLock struct {
	client *clientv3.Client
	ttl    time.Duration
	mu     sync.Mutex            // 保护locks的互斥锁
	locks  map[string]*lockEntry // 当前持有的锁
}

type lockEntry struct {
	leaseID clientv3.LeaseID
	key     string
	cancel  context.CancelFunc // 用于停止自动续约
}

func NewETCDLock(cfg config.ETCDConfig, logger *zap.Logger) (*EtcdLock, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("创建etcd客户端失败: %w", err)
	}

	ttl := cfg.SessionTTL
	if ttl < time.Second {
		ttl = defaultTTL
	}
	return &EtcdLock{
		client: cli,
		ttl:    ttl,
		locks:  make(map[string]*lockEntry),
	}, nil
}

func (el *EtcdLock) AcquireLock(lockName string, timeout time.Duration) (bool, error) {
	el.mu.Lock()
	defer el.mu.Unlock()

	// 检查是否已持有锁
	if _, ok := el.locks[lockName]; ok {
		return false, fmt.Errorf("锁 %s 已被当前实例持有", lockName)
	}

	key := fmt.Sprintf("/voteledger/locks/%s", lockName)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	lease := clientv3.NewLease(el.client)
	grantResp, err := lease.Grant(ctx, int64(el.ttl/time.Second))
	if err != nil {
		return false, fmt.Errorf("创建租约失败: %w", err)
	}

	txnResp, err := el.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, "", clientv3.WithLease(grantResp.ID))).
		Commit()
	if err != nil {
		el.revoke(grantResp.ID)
		return false, fmt.Errorf("事务执行失败: %w", err)
	}
	if !txnResp.Succeeded {
		el.revoke(grantResp.ID)
		return false, nil
	}

	// 启动自动续约
	keepAliveCtx, keepAliveCancel := context.WithCancel(context.Background())
	go el.keepAlive(keepAliveCtx, lockName, grantResp.ID)

	el.locks[lockName] = &lockEntry{
		leaseID: grantResp.ID,
		key:     key,
		cancel:  keepAliveCancel,
	}
	zap.S().Infof("获取etcd锁 %s 成功，租约: %x", lockName, grantResp.ID)
	return true, nil
}

func (el *EtcdLock) RefreshLock(lockName string, timeout time.Duration) (bool, error) {
	el.mu.Lock()
	defer el.mu.Unlock()

	entry, ok := el.locks[lockName]
	if !ok {
		return false, fmt.Errorf("未持有锁 %s", lockName)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if _, err := clientv3.NewLease(el.client).KeepAliveOnce(ctx, entry.leaseID); err != nil {
		if errors.Is(err, rpctypes.ErrLeaseNotFound) {
			entry.cancel()
			delete(el.locks, lockName)
			return false, nil
		}
		return false, fmt.Errorf("续约失败: %w", err)
	}
	return true, nil
}

func (el *EtcdLock) ReleaseLock(lockName string) error {
	el.mu.Lock()
	defer el.mu.Unlock()

	return el.releaseLock(lockName)
}

func (el *EtcdLock) ReleaseAllLocks() {
	el.mu.Lock()
	defer el.mu.Unlock()

	for lockName := range el.locks {
		if err := el.releaseLock(lockName); err != nil {
			zap.S().Warnf("释放etcd锁 %s 失败: %v", lockName, err)
		}
	}
}

func (el *EtcdLock) Close() error {
	el.ReleaseAllLocks()
	return el.client.Close()
}

// keepAlive 后台续约，租约丢失时放弃锁
func (el *EtcdLock) keepAlive(ctx context.Context, lockName string, leaseID clientv3.LeaseID) {
	lease := clientv3.NewLease(el.client)
	ticker := time.NewTicker(el.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := lease.KeepAliveOnce(ctx, leaseID); err != nil {
				if ctx.Err() == nil {
					zap.S().Warnf("etcd锁 %s 续约失败: %v", lockName, err)
				}
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (el *EtcdLock) revoke(leaseID clientv3.LeaseID) {
	ctx, cancel := context.WithTimeout(context.Background(), el.ttl)
	defer cancel()
	if _, err := clientv3.NewLease(el.client).Revoke(ctx, leaseID); err != nil {
		zap.S().Warnf("撤销租约 %x 失败: %v", leaseID, err)
	}
}

// releaseLock 调用方必须持有 el.mu
func (el *EtcdLock) releaseLock(lockName string) error {
	entry, ok := el.locks[lockName]
	if !ok {
		return nil
	}

	entry.cancel()
	delete(el.locks, lockName)

	ctx, cancel := context.WithTimeout(context.Background(), el.ttl)
	defer cancel()

	if _, err := el.client.Delete(ctx, entry.key); err != nil {
		return fmt.Errorf("删除键失败: %w", err)
	}
	if _, err := clientv3.NewLease(el.client).Revoke(ctx, entry.leaseID); err != nil {
		return fmt.Errorf("释放租约失败: %w", err)
	}
	return nil
}
