package translation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/collaborator"
)

const DefaultCacheTTL = 24 * time.Hour

// Cached stores successful translations in Redis. Redis errors never fail a
// translation; the call just goes to the next gateway.
type Cached struct {
	rdb    redis.UniversalClient
	next   collaborator.TranslationGateway
	ttl    time.Duration
	logger zerolog.Logger
}

var _ collaborator.TranslationGateway = (*Cached)(nil)

func NewCached(rdb redis.UniversalClient, next collaborator.TranslationGateway, ttl time.Duration, logger zerolog.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{
		rdb:    rdb,
		next:   next,
		ttl:    ttl,
		logger: logger.With().Str("component", "translation_cache").Logger(),
	}
}

// CacheKey is stable for identical text, language pair and market context.
func CacheKey(req collaborator.TranslationRequest) string {
	sum := sha256.Sum256([]byte(req.Text + "\x00" + req.SourceLang + "\x00" + req.TargetLang + "\x00" + req.Market.String()))
	return "translation:" + hex.EncodeToString(sum[:])
}

func (c *Cached) Translate(ctx context.Context, req collaborator.TranslationRequest) (*collaborator.Translation, error) {
	key := CacheKey(req)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var hit collaborator.Translation
		if jsonErr := json.Unmarshal(raw, &hit); jsonErr == nil {
			return &hit, nil
		}
		c.logger.Warn().Str("key", key).Msg("Discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Msg("Translation cache read failed")
	}

	out, err := c.next.Translate(ctx, req)
	if err != nil {
		return nil, err
	}
	if data, jsonErr := json.Marshal(out); jsonErr == nil {
		if setErr := c.rdb.Set(ctx, key, data, c.ttl).Err(); setErr != nil {
			c.logger.Warn().Err(setErr).Msg("Translation cache write failed")
		}
	}
	return out, nil
}

// NewRedis builds a client from a redis:// URL and pings it.
func NewRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
