package objecturl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vbonduro/album/internal/domain"
)

const keyPrefix = "album:objecturl:"

// Redis stores each photo as a hash that expires after ttl, so tokens for
// images that are never loaded do not pile up.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Create(ctx context.Context, photo domain.Photo) (string, error) {
	token := uuid.NewString()
	key := keyPrefix + token

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			"name": photo.Name,
			"mime": photo.MimeType,
			"data": photo.Data,
		})
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to store object url: %w", err)
	}
	return token, nil
}

func (r *Redis) Resolve(ctx context.Context, token string) (domain.Photo, error) {
	fields, err := r.client.HGetAll(ctx, keyPrefix+token).Result()
	if err != nil {
		return domain.Photo{}, fmt.Errorf("failed to resolve object url: %w", err)
	}
	if len(fields) == 0 {
		return domain.Photo{}, ErrNotFound
	}
	return domain.Photo{
		Name:     fields["name"],
		MimeType: fields["mime"],
		Data:     []byte(fields["data"]),
	}, nil
}

func (r *Redis) Revoke(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Del(ctx, keyPrefix+token).Result()
	if err != nil {
		return false, fmt.Errorf("failed to revoke object url: %w", err)
	}
	return n == 1, nil
}
