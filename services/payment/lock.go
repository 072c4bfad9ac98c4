package payment

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// BookingLock serializes every state-mutating operation on a booking.
// Acquire blocks up to wait; ok=false means the caller must not touch the
// ledger and should leave the work to the next sweep or redelivery.
type BookingLock interface {
	Acquire(ctx context.Context, bookingID string, wait time.Duration) (release func(), ok bool, err error)
}

const lockKeyPrefix = "booking-lock:"

// releaseScript deletes the lock only if it still holds our token, so an
// expired-and-reacquired lock is never released by the previous holder.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// RedisBookingLock backs the booking lock with Redis SET NX, giving mutual
// exclusion across all processes. The TTL bounds how long a crashed holder
// can stall a booking.
type RedisBookingLock struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisBookingLock(client *redis.Client, ttl time.Duration) *RedisBookingLock {
	return &RedisBookingLock{Client: client, TTL: ttl}
}

func (l *RedisBookingLock) Acquire(ctx context.Context, bookingID string, wait time.Duration) (func(), bool, error) {
	key := lockKeyPrefix + bookingID
	token := uuid.New().String()
	deadline := time.Now().Add(wait)

	for {
		acquired, err := l.Client.SetNX(ctx, key, token, l.TTL).Result()
		if err != nil {
			return nil, false, err
		}
		if acquired {
			release := func() {
				relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				l.Client.Eval(relCtx, releaseScript, []string{key}, token)
			}
			return release, true, nil
		}
		if time.Now().After(deadline) {
			return nil, false, nil
		}
		select {
		case <-ctx.Done():
			return nil, false, nil
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// MemoryBookingLock is the single-node implementation used by tests and
// deployments without Redis.
type MemoryBookingLock struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewMemoryBookingLock() *MemoryBookingLock {
	return &MemoryBookingLock{slots: make(map[string]chan struct{})}
}

func (l *MemoryBookingLock) slot(bookingID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[bookingID]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[bookingID] = s
	}
	return s
}

func (l *MemoryBookingLock) Acquire(ctx context.Context, bookingID string, wait time.Duration) (func(), bool, error) {
	s := l.slot(bookingID)
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case s <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-s }) }, true, nil
	case <-timer.C:
		return nil, false, nil
	case <-ctx.Done():
		return nil, false, nil
	}
}
