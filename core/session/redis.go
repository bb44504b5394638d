package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL   = 30 * time.Second
	lockRetryBackoff = 20 * time.Millisecond
)

// releaseLock deletes the lock only if it still holds our token.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// extendLock refreshes the lock expiry only if it still holds our token.
var extendLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// Redis stores sessions as JSON values and locks customers with SET NX, so
// several bot instances can share one deployment. Idle expiry uses key TTLs.
type Redis struct {
	rdb     redis.UniversalClient
	prefix  string
	ttl     time.Duration
	lockTTL time.Duration
	now     func() time.Time
}

// RedisOptions tunes the redis store.
type RedisOptions struct {
	Prefix string
	// IdleTTL expires untouched sessions; 0 keeps them forever.
	IdleTTL time.Duration
	LockTTL time.Duration
}

// NewRedis builds a redis-backed store on an existing client.
func NewRedis(rdb redis.UniversalClient, opts RedisOptions) *Redis {
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	return &Redis{
		rdb:     rdb,
		prefix:  opts.Prefix,
		ttl:     opts.IdleTTL,
		lockTTL: opts.LockTTL,
		now:     time.Now,
	}
}

func (r *Redis) sessionKey(id string) string { return r.prefix + "session:" + id }
func (r *Redis) paymentKey(id string) string { return r.prefix + "payorder:" + id }
func (r *Redis) lockKey(id string) string { return r.prefix + "lock:" + id }

// Get loads the session of customerID.
func (r *Redis) Get(ctx context.Context, customerID string) (*Session, error) {
	data, err := r.rdb.Get(ctx, r.sessionKey(customerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: redis get: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return &s, nil
}

// GetOrCreate returns the stored session or saves a fresh one.
func (r *Redis) GetOrCreate(ctx context.Context, customerID string) (*Session, error) {
	s, err := r.Get(ctx, customerID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	s = New(customerID, r.now())
	if err := r.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes the snapshot and the payment order index in one transaction.
func (r *Redis) Save(ctx context.Context, s *Session) error {
	now := r.now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.sessionKey(s.CustomerID), data, r.ttl)
		if s.PaymentOrderID != "" {
			pipe.Set(ctx, r.paymentKey(s.PaymentOrderID), s.CustomerID, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: redis save %s: %w", s.CustomerID, err)
	}
	return nil
}

// Delete drops the session and its payment order index.
func (r *Redis) Delete(ctx context.Context, customerID string) error {
	keys := []string{r.sessionKey(customerID)}
	if s, err := r.Get(ctx, customerID); err == nil && s.PaymentOrderID != "" {
		keys = append(keys, r.paymentKey(s.PaymentOrderID))
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("session: redis delete %s: %w", customerID, err)
	}
	return nil
}

// Lock polls SET NX until the customer lock is ours or ctx is done.
// The lock expires after lockTTL in case the holder dies; while held it is
// refreshed every lockTTL/3 until unlock.
func (r *Redis) Lock(ctx context.Context, customerID string) (func(), error) {
	key := r.lockKey(customerID)
	token := uuid.NewString()
	for {
		ok, err := r.rdb.SetNX(ctx, key, token, r.lockTTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrLockTimeout, ctx.Err())
			}
			return nil, fmt.Errorf("session: redis lock %s: %w", customerID, err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(lockRetryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ErrLockTimeout, ctx.Err())
		case <-timer.C:
		}
	}
	// Detached from the caller so a cancelled request still releases.
	bg := context.WithoutCancel(ctx)
	stop := make(chan struct{})
	go r.keepLock(bg, key, token, stop)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			releaseCtx, cancel := context.WithTimeout(bg, 2*time.Second)
			defer cancel()
			_ = releaseLock.Run(releaseCtx, r.rdb, []string{key}, token).Err()
		})
	}, nil
}

func (r *Redis) keepLock(ctx context.Context, key, token string, stop <-chan struct{}) {
	interval := r.lockTTL / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		extendCtx, cancel := context.WithTimeout(ctx, interval)
		held, err := extendLock.Run(extendCtx, r.rdb, []string{key}, token, r.lockTTL.Milliseconds()).Int()
		cancel()
		if err == nil && held == 0 {
			return
		}
	}
}

// FindByPaymentOrderID resolves the customer through the payment order index.
func (r *Redis) FindByPaymentOrderID(ctx context.Context, paymentOrderID string) (*Session, error) {
	if paymentOrderID == "" {
		return nil, ErrNotFound
	}
	customerID, err := r.rdb.Get(ctx, r.paymentKey(paymentOrderID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: redis lookup %s: %w", paymentOrderID, err)
	}
	s, err := r.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if s.PaymentOrderID != paymentOrderID {
		return nil, ErrNotFound
	}
	return s, nil
}

// Reap is a no-op; redis expires idle sessions through key TTLs.
func (r *Redis) Reap(context.Context, time.Time) (int, error) {
	return 0, nil
}
