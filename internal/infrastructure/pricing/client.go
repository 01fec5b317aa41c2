package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/collaborator"
)

// Client fetches price bands from a market-data service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ collaborator.PriceBandOracle = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) GetBand(ctx context.Context, q collaborator.BandQuery) (*collaborator.Band, error) {
	v := url.Values{}
	v.Set("product", q.ProductID)
	v.Set("location", q.Location)
	if q.QualityGrade != "" {
		v.Set("grade", q.QualityGrade)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/bands?"+v.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build band request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", collaborator.ErrNoDataAvailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", collaborator.ErrNoDataAvailable, resp.StatusCode)
	}
	var band collaborator.Band
	if err := json.NewDecoder(resp.Body).Decode(&band); err != nil {
		return nil, fmt.Errorf("%w: bad response: %w", collaborator.ErrNoDataAvailable, err)
	}
	if err := checkBand(&band); err != nil {
		return nil, err
	}
	return &band, nil
}

func checkBand(b *collaborator.Band) error {
	if !b.Low.IsPositive() || b.High.LessThan(b.Low) {
		return fmt.Errorf("%w: malformed band %s-%s", collaborator.ErrNoDataAvailable, b.Low, b.High)
	}
	return nil
}
