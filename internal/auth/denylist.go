package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist records logged-out tokens in Redis until their natural expiry,
// so logout actually invalidates the credential instead of waiting it out.
type Denylist struct {
	client *redis.Client
}

// NewDenylist builds a denylist over a redis client.
func NewDenylist(client *redis.Client) *Denylist {
	return &Denylist{client: client}
}

func (d *Denylist) key(token string) string {
	return "kidcheck:denied:" + token
}

// Revoke marks a token invalid until expiresAt.
func (d *Denylist) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, d.key(token), "1", ttl).Err()
}

// Revoked reports whether a token has been revoked. A redis failure counts
// as not revoked: the token signature and expiry still gate access.
func (d *Denylist) Revoked(ctx context.Context, token string) bool {
	if d == nil || d.client == nil {
		return false
	}
	n, err := d.client.Exists(ctx, d.key(token)).Result()
	return err == nil && n > 0
}
