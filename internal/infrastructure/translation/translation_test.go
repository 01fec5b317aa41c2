package translation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/collaborator"
)

func TestGlossary_Translate(t *testing.T) {
	g := NewGlossary()
	ctx := context.Background()

	tests := []struct {
		name     string
		req      collaborator.TranslationRequest
		wantText string
		wantConf float64
		wantErr  error
	}{
		{
			name:     "same language passes through",
			req:      collaborator.TranslationRequest{Text: "best rate today", SourceLang: "en", TargetLang: "en"},
			wantText: "best rate today",
			wantConf: 1.0,
		},
		{
			name:     "market terms are swapped",
			req:      collaborator.TranslationRequest{Text: "quality, rate", SourceLang: "en", TargetLang: "hi"},
			wantText: "गुणवत्ता, दर",
			wantConf: termConfidence,
		},
		{
			name:     "unknown words lower confidence",
			req:      collaborator.TranslationRequest{Text: "good quality", SourceLang: "en", TargetLang: "ta"},
			wantText: "good தரம்",
			wantConf: (termConfidence + unknownConfidence) / 2,
		},
		{
			name:    "unsupported target",
			req:     collaborator.TranslationRequest{Text: "rate", SourceLang: "en", TargetLang: "fr"},
			wantErr: collaborator.ErrUnsupportedLanguage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := g.Translate(ctx, tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, out.Text)
			assert.InDelta(t, tt.wantConf, out.Confidence, 1e-9)
			assert.Equal(t, engineGlossary, out.Engine)
		})
	}
}

func TestClient_Translate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/translate", r.URL.Path)
		var req collaborator.TranslationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch req.TargetLang {
		case "xx":
			w.WriteHeader(http.StatusUnprocessableEntity)
		case "ta":
			w.WriteHeader(http.StatusBadGateway)
		default:
			_ = json.NewEncoder(w).Encode(collaborator.Translation{Text: "[" + req.TargetLang + "] " + req.Text, Confidence: 0.9})
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	ctx := context.Background()

	out, err := c.Translate(ctx, collaborator.TranslationRequest{Text: "hello", SourceLang: "en", TargetLang: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "[hi] hello", out.Text)
	assert.Equal(t, "remote", out.Engine)

	_, err = c.Translate(ctx, collaborator.TranslationRequest{Text: "hello", SourceLang: "en", TargetLang: "xx"})
	assert.ErrorIs(t, err, collaborator.ErrUnsupportedLanguage)

	_, err = c.Translate(ctx, collaborator.TranslationRequest{Text: "hello", SourceLang: "en", TargetLang: "ta"})
	assert.ErrorIs(t, err, collaborator.ErrTranslationUnavailable)
}

type failingGateway struct{ calls int }

func (f *failingGateway) Translate(context.Context, collaborator.TranslationRequest) (*collaborator.Translation, error) {
	f.calls++
	return nil, errors.New("engine down")
}

func TestChain_FallsBack(t *testing.T) {
	first := &failingGateway{}
	chain := Chain{first, NewGlossary()}

	out, err := chain.Translate(context.Background(), collaborator.TranslationRequest{Text: "rate", SourceLang: "en", TargetLang: "mr"})
	require.NoError(t, err)
	assert.Equal(t, "दर", out.Text)
	assert.Equal(t, 1, first.calls)

	_, err = Chain{first}.Translate(context.Background(), collaborator.TranslationRequest{Text: "rate", SourceLang: "en", TargetLang: "mr"})
	assert.ErrorIs(t, err, collaborator.ErrTranslationUnavailable)
}

func TestCacheKey(t *testing.T) {
	a := collaborator.TranslationRequest{Text: "rate", SourceLang: "en", TargetLang: "hi", Market: collaborator.MarketContext{ProductID: "onion"}}
	b := a
	b.Market.ProductID = "tomato"

	assert.Equal(t, CacheKey(a), CacheKey(a))
	assert.NotEqual(t, CacheKey(a), CacheKey(b))
}

func TestCached_RedisDownStillTranslates(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	defer rdb.Close()

	c := NewCached(rdb, NewGlossary(), 0, zerolog.Nop())
	out, err := c.Translate(context.Background(), collaborator.TranslationRequest{Text: "quintal", SourceLang: "en", TargetLang: "pa"})
	require.NoError(t, err)
	assert.Equal(t, "ਕੁਇੰਟਲ", out.Text)
	assert.Equal(t, DefaultCacheTTL, c.ttl)
}
