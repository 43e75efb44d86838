package lock

import (
	"fmt"
	"sync"
	"time"
)

// LocalLock 进程内锁，单实例部署和测试使用
type LocalLock struct {
	mu    sync.Mutex
	now   func() time.Time
	locks map[string]time.Time // 锁名到过期时间
}

func NewLocalLock() *LocalLock {
	return &LocalLock{now: time.Now, locks: make(map[string]time.Time)}
}

func (l *LocalLock) AcquireLock(lockName string, timeout time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, ok := l.locks[lockName]; ok && l.now().Before(expiry) {
		return false, nil
	}
	l.locks[lockName] = l.now().Add(timeout)
	return true, nil
}

func (l *LocalLock) RefreshLock(lockName string, timeout time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	expiry, ok := l.locks[lockName]
	if !ok {
		return false, fmt.Errorf("未持有锁 %s", lockName)
	}
	if !l.now().Before(expiry) {
		delete(l.locks, lockName)
		return false, nil
	}
	l.locks[lockName] = l.now().Add(timeout)
	return true, nil
}

func (l *LocalLock) ReleaseLock(lockName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, lockName)
	return nil
}

func (l *LocalLock) ReleaseAllLocks() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locks = make(map[string]time.Time)
}

func (l *LocalLock) Close() error {
	l.ReleaseAllLocks()
	return nil
}
