package state

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// LockInfo is the content of a held job lock.
type LockInfo struct {
	ClusterID uuid.UUID
	UserID    uuid.UUID
	Progress  float64
}

// Locker guards one active phase per cluster and carries its coarse progress.
type Locker interface {
	Acquire(ctx context.Context, clusterID, userID uuid.UUID, ttl time.Duration) (bool, error)
	Release(ctx context.Context, clusterID uuid.UUID) error
	Get(ctx context.Context, clusterID uuid.UUID) (*LockInfo, error)
	SetProgress(ctx context.Context, clusterID uuid.UUID, progress float64) error
}

func LockKey(clusterID uuid.UUID) string {
	return "generating_cluster_" + clusterID.String()
}

// acquireScript creates the lock hash and its expiry in one step, so a lock
// never exists without its owner or TTL.
var acquireScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'cluster_id', ARGV[1], 'user_id', ARGV[2], 'progress', '0')
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

var progressScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'progress', ARGV[1])
return 1
`)

type RedisLocker struct {
	rdb *goredis.Client
}

func NewRedisLocker(rdb *goredis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

func (l *RedisLocker) Acquire(ctx context.Context, clusterID, userID uuid.UUID, ttl time.Duration) (bool, error) {
	n, err := acquireScript.Run(ctx, l.rdb, []string{LockKey(clusterID)}, clusterID.String(), userID.String(), ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	return n == 1, nil
}

func (l *RedisLocker) Release(ctx context.Context, clusterID uuid.UUID) error {
	return l.rdb.Del(ctx, LockKey(clusterID)).Err()
}

func (l *RedisLocker) Get(ctx context.Context, clusterID uuid.UUID) (*LockInfo, error) {
	vals, err := l.rdb.HGetAll(ctx, LockKey(clusterID)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	info := &LockInfo{ClusterID: clusterID}
	info.UserID, _ = uuid.Parse(vals["user_id"])
	info.Progress, _ = strconv.ParseFloat(vals["progress"], 64)
	return info, nil
}

// SetProgress only touches an existing lock; it never recreates a released one.
func (l *RedisLocker) SetProgress(ctx context.Context, clusterID uuid.UUID, progress float64) error {
	return progressScript.Run(ctx, l.rdb, []string{LockKey(clusterID)}, strconv.FormatFloat(progress, 'f', 2, 64)).Err()
}

// MemoryLocker is an in-process Locker for tests and single-node development.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*memLock
}

type memLock struct {
	info    LockInfo
	expires time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: map[uuid.UUID]*memLock{}}
}

func (l *MemoryLocker) Acquire(ctx context.Context, clusterID, userID uuid.UUID, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur := l.live(clusterID); cur != nil {
		return false, nil
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	l.locks[clusterID] = &memLock{info: LockInfo{ClusterID: clusterID, UserID: userID}, expires: exp}
	return true, nil
}

func (l *MemoryLocker) Release(ctx context.Context, clusterID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, clusterID)
	return nil
}

func (l *MemoryLocker) Get(ctx context.Context, clusterID uuid.UUID) (*LockInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := l.live(clusterID)
	if cur == nil {
		return nil, nil
	}
	info := cur.info
	return &info, nil
}

func (l *MemoryLocker) SetProgress(ctx context.Context, clusterID uuid.UUID, progress float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur := l.live(clusterID); cur != nil {
		cur.info.Progress = progress
	}
	return nil
}

func (l *MemoryLocker) live(clusterID uuid.UUID) *memLock {
	cur, ok := l.locks[clusterID]
	if !ok {
		return nil
	}
	if !cur.expires.IsZero() && time.Now().After(cur.expires) {
		delete(l.locks, clusterID)
		return nil
	}
	return cur
}
