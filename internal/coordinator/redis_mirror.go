package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror is the optional write-through mirror of claimed-card state
// described in SPEC_FULL.md's domain stack: a read-side projection for
// horizontal scaling of ListOpen/Get across follower processes, never
// consulted by Store itself for lease or promotion decisions.
type RedisMirror struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisMirror wraps client for mirroring. ttl bounds how long a mirrored
// card entry survives a crashed server without a corresponding update.
func NewRedisMirror(client *redis.Client, ttl time.Duration) *RedisMirror {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisMirror{client: client, prefix: "orket:card:", ttl: ttl}
}

// MirrorCard writes c as a JSON blob under its mirror key.
func (m *RedisMirror) MirrorCard(ctx context.Context, c Card) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, m.prefix+c.ID, data, m.ttl).Err()
}

// ReadMirrored returns a previously mirrored card by id, for read replicas
// that do not hold the authoritative in-memory Store.
func (m *RedisMirror) ReadMirrored(ctx context.Context, id string) (Card, bool, error) {
	data, err := m.client.Get(ctx, m.prefix+id).Bytes()
	if err == redis.Nil {
		return Card{}, false, nil
	}
	if err != nil {
		return Card{}, false, err
	}
	var c Card
	if err := json.Unmarshal(data, &c); err != nil {
		return Card{}, false, err
	}
	return c, true, nil
}
