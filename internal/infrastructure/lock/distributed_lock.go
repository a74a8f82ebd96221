package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 两个管理员可能同时审核同一笔申请，用户也可能在管理员审核充值时提交提现。
// 申请按单号加锁，提现提交按账户加锁。锁只用来减少冲突，
// 真正的互斥依赖数据库事务里的 SELECT ... FOR UPDATE 和状态 CAS。
//
// 加锁：SET key value NX EX timeout
// 释放：Lua 脚本比对 value 后删除，避免误删别人的锁
//
// ============================================================================

var (
	ErrLockFailed  = errors.New("获取分布式锁失败")
	ErrLockExpired = errors.New("锁已过期")
)

// Locker 按 key 互斥
type Locker interface {
	// Acquire 阻塞直到拿到锁，返回的 release 可重复调用
	Acquire(ctx context.Context, key string) (release func(), err error)
}

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// DistributedLock Redis 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁持有者标识
	expiration time.Duration // 锁的过期时间
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 非阻塞获取锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 带重试的阻塞获取
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁，锁已过期或被他人持有时返回 ErrLockExpired
func (l *DistributedLock) Unlock(ctx context.Context) error {
	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockExpired
	}
	return nil
}

// RedisLocker 基于 Redis 的 Locker
type RedisLocker struct {
	client        *redis.Client
	prefix        string
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, maxRetries int) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 30
	}
	return &RedisLocker{
		client:        client,
		prefix:        "custody:lock:",
		ttl:           ttl,
		retryInterval: 100 * time.Millisecond,
		maxRetries:    maxRetries,
	}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	// value 使用随机 token，释放时校验持有者
	l := NewDistributedLock(r.client, r.prefix+key, uuid.NewString(), r.ttl)
	if err := l.Lock(ctx, r.retryInterval, r.maxRetries); err != nil {
		return nil, fmt.Errorf("%w: %s", err, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// 不使用调用方 ctx，调用方已取消时仍要释放
			releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = l.Unlock(releaseCtx)
		})
	}, nil
}

// LocalLocker 进程内按 key 互斥，单实例部署和测试使用
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localEntry)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.drop(key, e)
		})
	}, nil
}

func (l *LocalLocker) drop(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// 锁 key
func DepositKey(depositNo string) string {
	return "deposit:" + depositNo
}

func WithdrawalKey(withdrawalNo string) string {
	return "withdrawal:" + withdrawalNo
}

func AccountKey(accountID int64) string {
	return fmt.Sprintf("account:%d", accountID)
}
