package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/collaborator"
)

// Client calls a remote translation service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ collaborator.TranslationGateway = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Translate(ctx context.Context, req collaborator.TranslationRequest) (*collaborator.Translation, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal translation request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build translation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", collaborator.ErrTranslationUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: %s->%s", collaborator.ErrUnsupportedLanguage, req.SourceLang, req.TargetLang)
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", collaborator.ErrTranslationUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out collaborator.Translation
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: bad response: %w", collaborator.ErrTranslationUnavailable, err)
	}
	if out.Engine == "" {
		out.Engine = "remote"
	}
	return &out, nil
}

// Chain tries each gateway in order and returns the first success.
type Chain []collaborator.TranslationGateway

func (c Chain) Translate(ctx context.Context, req collaborator.TranslationRequest) (*collaborator.Translation, error) {
	errs := make([]error, 0, len(c))
	for _, g := range c {
		out, err := g.Translate(ctx, req)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, collaborator.ErrTranslationUnavailable
	}
	return nil, fmt.Errorf("%w: %w", collaborator.ErrTranslationUnavailable, errors.Join(errs...))
}
