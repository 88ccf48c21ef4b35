package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"contracts-rag/internal/pkg/vectorcodec"
)

type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingCache memoizes single-text embeddings (questions) in Redis. Batch calls go
// straight to the wrapped embedder. Redis failures degrade to a cache miss.
type EmbeddingCache struct {
	next   embedder
	client *redisv9.Client
	model  string
	ttl    time.Duration
	codec  vectorcodec.Codec
}

func NewEmbeddingCache(next embedder, client *redisv9.Client, model string, ttl time.Duration) *EmbeddingCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &EmbeddingCache{
		next:   next,
		client: client,
		model:  model,
		ttl:    ttl,
	}
}

func (c *EmbeddingCache) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	raw, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if vec, decErr := c.codec.Decode(raw); decErr == nil {
			return vec, nil
		}
		log.Printf("drop unreadable cached embedding %s", key)
	case err != redisv9.Nil:
		log.Printf("redis get embedding failed: %v", err)
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	encoded, err := c.codec.Encode(vec)
	if err != nil {
		return vec, nil
	}
	if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		log.Printf("redis set embedding failed: %v", err)
	}
	return vec, nil
}

func (c *EmbeddingCache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.next.EmbedBatch(ctx, texts)
}

func (c *EmbeddingCache) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return fmt.Sprintf("contracts:embedding:%s", hex.EncodeToString(sum[:]))
}
