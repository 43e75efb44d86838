package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lvdashuaibi/voteledger/config"
	"github.com/lvdashuaibi/voteledger/internal/model"
)

const (
	// Redis键
	SnapshotKey = "voteledger:snapshot"

	// Lua脚本：只接受序号更大的快照
	SetSnapshotScript = `
		local current = tonumber(redis.call('HGET', KEYS[1], 'seq'))
		local incoming = tonumber(ARGV[1])
		if current and current >= incoming then
			return 0
		end

		redis.call('HSET', KEYS[1], 'seq', ARGV[1], 'payload', ARGV[2])
		local ttl = tonumber(ARGV[3])
		if ttl > 0 then
			redis.call('PEXPIRE', KEYS[1], ttl)
		end
		return 1
	`

	setSnapshotScriptName = "setSnapshot"
)

type RedisRepository struct {
	client       *redis.Client
	ttl          time.Duration
	mu           sync.Mutex
	scriptHashes map[string]string // 存储脚本SHA1哈希值
}

func NewRedisRepository(cfg config.RedisConfig) (*RedisRepository, error) {
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.DataAddress,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis数据节点连接测试失败: %w", err)
	}

	repo := &RedisRepository{
		client:       client,
		ttl:          cfg.SnapshotTTL,
		scriptHashes: make(map[string]string),
	}

	// 预加载Lua脚本
	if err := repo.preloadScripts(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("预加载Lua脚本失败: %w", err)
	}

	return repo, nil
}

// preloadScripts 预加载所有Lua脚本
func (r *RedisRepository) preloadScripts(ctx context.Context) error {
	sha1, err := r.client.ScriptLoad(ctx, SetSnapshotScript).Result()
	if err != nil {
		return fmt.Errorf("加载快照脚本失败: %w", err)
	}
	r.mu.Lock()
	r.scriptHashes[setSnapshotScriptName] = sha1
	r.mu.Unlock()
	return nil
}

// SetSnapshot 缓存快照，返回 false 表示缓存中已有不更旧的快照
func (r *RedisRepository) SetSnapshot(ctx context.Context, state model.LedgerState) (bool, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return false, fmt.Errorf("序列化账本快照失败: %w", err)
	}

	keys := []string{SnapshotKey}
	args := []interface{}{state.Seq, payload, int64(r.ttl / time.Millisecond)}

	r.mu.Lock()
	sha1, ok := r.scriptHashes[setSnapshotScriptName]
	r.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("脚本未预加载")
	}

	result, err := r.client.EvalSha(ctx, sha1, keys, args...).Result()
	if err != nil {
		if !isNoScript(err) {
			return false, fmt.Errorf("执行快照脚本失败: %w", err)
		}
		// 脚本缓存被清空，重新加载后再执行一次
		if err := r.preloadScripts(ctx); err != nil {
			return false, fmt.Errorf("重新加载快照脚本失败: %w", err)
		}
		r.mu.Lock()
		sha1 = r.scriptHashes[setSnapshotScriptName]
		r.mu.Unlock()
		result, err = r.client.EvalSha(ctx, sha1, keys, args...).Result()
		if err != nil {
			return false, fmt.Errorf("执行快照脚本失败: %w", err)
		}
	}

	return parseScriptFlag(result)
}

// GetSnapshot 读取缓存的快照，第二个返回值表示是否命中
func (r *RedisRepository) GetSnapshot(ctx context.Context) (*model.LedgerState, bool, error) {
	payload, err := r.client.HGet(ctx, SnapshotKey, "payload").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("获取快照缓存失败: %w", err)
	}

	state, err := decodeState([]byte(payload))
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}

// DeleteSnapshot 删除缓存的快照
func (r *RedisRepository) DeleteSnapshot(ctx context.Context) error {
	if err := r.client.Del(ctx, SnapshotKey).Err(); err != nil {
		return fmt.Errorf("删除快照缓存失败: %w", err)
	}
	return nil
}

// Close 关闭Redis连接
func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func isNoScript(err error) bool {
	return strings.HasPrefix(err.Error(), "NOSCRIPT")
}

func parseScriptFlag(result interface{}) (bool, error) {
	flag, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("LUA脚本返回类型错误: %T", result)
	}
	return flag == 1, nil
}
