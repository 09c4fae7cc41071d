package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"transcript-insights-go/internal/logger"
	"transcript-insights-go/internal/retry"
	"transcript-insights-go/internal/types"
)

// SearchEnricher explains entities through the search API.
type SearchEnricher struct {
	url    string
	client *http.Client
	policy retry.Policy
	log    *logger.Logger
}

func NewSearchEnricher(searchAPIURL string, timeout time.Duration, policy retry.Policy) (*SearchEnricher, error) {
	if searchAPIURL == "" {
		return nil, fmt.Errorf("SEARCH_API_URL not configured")
	}
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &SearchEnricher{
		url:    searchAPIURL,
		client: &http.Client{Timeout: timeout},
		policy: policy,
		log:    logger.Component("search-client"),
	}, nil
}

type searchResult struct {
	Name        string `json:"name"`
	Explanation string `json:"explanation"`
	Snippet     string `json:"snippet"`
}

// Enrich posts all names in one request; the API answers with one result
// per name it recognized.
func (e *SearchEnricher) Enrich(ctx context.Context, names []string, sectionText string) (map[string]string, types.CostMetrics, error) {
	costs := types.CostMetrics{}
	if len(names) == 0 {
		return map[string]string{}, costs, nil
	}
	payload, err := json.Marshal(map[string]any{
		"entities": names,
		"context":  truncate(sectionText, 2000),
	})
	if err != nil {
		return nil, costs, err
	}

	var parsed struct {
		Results []searchResult `json:"results"`
	}
	err = e.policy.Do(ctx, "enrich_entities", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := e.client.Do(req)
		if err != nil {
			e.log.WithError(err).Warn("search API request failed")
			return err
		}
		defer resp.Body.Close()
		costs.Add("search_requests", 1)

		body, _ := io.ReadAll(resp.Body)
		e.log.Debug("search API raw response:\n" + string(body))
		if resp.StatusCode >= 500 {
			return fmt.Errorf("search server error: status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return retry.Permanent(fmt.Errorf("search client error: status %d", resp.StatusCode))
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return retry.Permanent(fmt.Errorf("failed to parse search API JSON: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, costs, err
	}

	out := make(map[string]string, len(parsed.Results))
	for _, r := range parsed.Results {
		expl := strings.TrimSpace(r.Explanation)
		if expl == "" {
			expl = strings.TrimSpace(r.Snippet)
		}
		if r.Name != "" && expl != "" {
			out[r.Name] = expl
		}
	}
	costs.Add("entities_enriched", float64(len(out)))
	return out, costs, nil
}
