package pricing

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/collaborator"
)

const staticConfidence = 0.6

// Static serves bands from a fixed per-product table. Products without an
// entry report ErrNoDataAvailable, which is also what an empty table does.
type Static struct {
	bands map[string]collaborator.Band
}

var _ collaborator.PriceBandOracle = (*Static)(nil)

// NewStatic parses entries of the form product -> "low-high".
func NewStatic(entries map[string]string) (*Static, error) {
	bands := make(map[string]collaborator.Band, len(entries))
	for product, raw := range entries {
		lowRaw, highRaw, ok := strings.Cut(raw, "-")
		if !ok {
			return nil, fmt.Errorf("price band for %s: want low-high, got %q", product, raw)
		}
		low, err := decimal.NewFromString(strings.TrimSpace(lowRaw))
		if err != nil {
			return nil, fmt.Errorf("price band for %s: %w", product, err)
		}
		high, err := decimal.NewFromString(strings.TrimSpace(highRaw))
		if err != nil {
			return nil, fmt.Errorf("price band for %s: %w", product, err)
		}
		b := collaborator.Band{Low: low, High: high, Confidence: staticConfidence}
		if err := checkBand(&b); err != nil {
			return nil, fmt.Errorf("price band for %s: %w", product, err)
		}
		bands[strings.ToLower(strings.TrimSpace(product))] = b
	}
	return &Static{bands: bands}, nil
}

func (s *Static) GetBand(ctx context.Context, q collaborator.BandQuery) (*collaborator.Band, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, ok := s.bands[strings.ToLower(q.ProductID)]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", collaborator.ErrNoDataAvailable, q.ProductID)
	}
	return &b, nil
}
