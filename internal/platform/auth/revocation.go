package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist records revoked token ids until the token would have expired on
// its own. Expiry remains the primary termination mechanism; the denylist only
// shortens a session the user explicitly ended.
type Denylist interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// MemoryDenylist keeps revoked JTIs in process memory. Suitable for a single
// instance; entries are swept once their token has expired.
type MemoryDenylist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewMemoryDenylist starts a sweeper that runs every interval.
func NewMemoryDenylist(interval time.Duration) *MemoryDenylist {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	d := &MemoryDenylist{
		entries: make(map[string]time.Time),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go d.sweepLoop(interval)
	return d
}

func (d *MemoryDenylist) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return fmt.Errorf("revoke: jti is required")
	}
	if !expiresAt.After(d.now()) {
		return nil
	}
	d.mu.Lock()
	d.entries[jti] = expiresAt
	d.mu.Unlock()
	return nil
}

func (d *MemoryDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	d.mu.RLock()
	exp, ok := d.entries[jti]
	d.mu.RUnlock()
	return ok && d.now().Before(exp), nil
}

// Len returns the number of tracked revocations.
func (d *MemoryDenylist) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Close stops the sweeper. Safe to call more than once.
func (d *MemoryDenylist) Close() {
	d.once.Do(func() { close(d.done) })
}

func (d *MemoryDenylist) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			d.sweep()
		}
	}
}

func (d *MemoryDenylist) sweep() {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	for jti, exp := range d.entries {
		if !now.Before(exp) {
			delete(d.entries, jti)
		}
	}
}

// RedisDenylist shares revocations across instances. Each JTI is stored
// under its own key with a TTL equal to the token's remaining lifetime.
type RedisDenylist struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisDenylist(client *redis.Client) *RedisDenylist {
	return &RedisDenylist{client: client, prefix: "revoked:", now: time.Now}
}

// NewRedisDenylistFromURL parses a redis:// URL and verifies connectivity.
func NewRedisDenylistFromURL(ctx context.Context, url string) (*RedisDenylist, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisDenylist(client), nil
}

func (d *RedisDenylist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return fmt.Errorf("revoke: jti is required")
	}
	ttl := expiresAt.Sub(d.now())
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, d.prefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke %s: %w", jti, err)
	}
	return nil
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation %s: %w", jti, err)
	}
	return n > 0, nil
}

func (d *RedisDenylist) Close() error {
	return d.client.Close()
}
