package extractor

import (
	"context"
	"regexp"
	"strings"

	"transcript-insights-go/internal/types"
)

var (
	urlMarker      = regexp.MustCompile(`(?i)(https?://|www\.|\b[a-z0-9-]+\.(com|io|co|net|org)/)`)
	discountMarker = regexp.MustCompile(`(?i)\d+\s*%\s*off\b`)
	sponsorMarkers = []string{"promo code", "use code", "coupon", "sponsored by", "discount code", "free trial", "link in the description"}
)

// IsPromotional reports whether a claim carries a sponsor or ad marker.
func IsPromotional(claim string) bool {
	if urlMarker.MatchString(claim) || discountMarker.MatchString(claim) {
		return true
	}
	lower := strings.ToLower(claim)
	for _, m := range sponsorMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// MarkerFilter is the rule-based ClaimFilter. It never calls out.
type MarkerFilter struct{}

// Keep returns the non-promotional, non-empty claims in order.
func (MarkerFilter) Keep(claims []string) []string {
	var out []string
	for _, c := range claims {
		c = strings.TrimSpace(c)
		if c == "" || IsPromotional(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (f MarkerFilter) Filter(_ context.Context, claims []string) ([]string, types.CostMetrics, error) {
	return f.Keep(claims), nil, nil
}

// ApplyClaimPolicy turns candidate claims into section claims per persona.
// Filter errors yield no claims rather than unfiltered ones.
func ApplyClaimPolicy(ctx context.Context, p Persona, f ClaimFilter, candidates []string) ([]string, types.CostMetrics, error) {
	if len(candidates) == 0 {
		return nil, nil, nil
	}
	if p.ClaimPolicy() == ClaimsFirstVerbatim {
		return []string{candidates[0]}, nil, nil
	}
	if f == nil {
		f = MarkerFilter{}
	}
	kept, costs, err := f.Filter(ctx, candidates)
	if err != nil {
		return nil, costs, err
	}
	return kept, costs, nil
}
