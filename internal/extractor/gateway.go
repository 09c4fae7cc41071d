package extractor

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

	"transcript-insights-go/internal/logger"
	"transcript-insights-go/internal/retry"
	"transcript-insights-go/internal/types"
)

// GatewayConfig points at an OpenAI-compatible chat completions gateway.
type GatewayConfig struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Gateway sends prompts to the LLM gateway and decodes JSON replies.
type Gateway struct {
	cfg    GatewayConfig
	client *http.Client
	policy retry.Policy
	log    *logger.Logger
}

func NewGateway(cfg GatewayConfig, policy retry.Policy) (*Gateway, error) {
	if cfg.URL == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("llm gateway not configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	return &Gateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		policy: policy,
		log:    logger.Component("llm-gateway"),
	}, nil
}

type chatUsage struct {
	PromptTokens     float64 `json:"prompt_tokens"`
	CompletionTokens float64 `json:"completion_tokens"`
}

// CompleteJSON sends prompt and decodes the first JSON object of the reply
// into out. Client errors are not retried.
func (g *Gateway) CompleteJSON(ctx context.Context, op, prompt string, out any) (types.CostMetrics, error) {
	reqBody := map[string]any{
		"model": g.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.0,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	log := g.log.WithField("op", op)
	log.WithField("payload_len", len(data)).Debug("llm request")

	costs := types.CostMetrics{}
	err = g.policy.Do(ctx, op, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(data))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := g.client.Do(req)
		if err != nil {
			log.WithError(err).Warn("llm request failed")
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		costs.Add("llm_calls", 1)
		log.WithField("http_status", resp.StatusCode).Debug("llm raw:\n" + string(body))

		if resp.StatusCode >= 500 {
			return fmt.Errorf("llm server error: status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return retry.Permanent(fmt.Errorf("llm client error: status %d: %s", resp.StatusCode, truncate(string(body), 200)))
		}

		var envelope struct {
			Usage chatUsage `json:"usage"`
		}
		if json.Unmarshal(body, &envelope) == nil {
			costs.Add("llm_prompt_tokens", envelope.Usage.PromptTokens)
			costs.Add("llm_completion_tokens", envelope.Usage.CompletionTokens)
		}

		// Try choices[0].message.content (OpenAI-like)
		if inner := extractContentFromChoices(body); inner != "" {
			if err := json.Unmarshal([]byte(inner), out); err == nil {
				return nil
			}
		}
		// Fallback: find first balanced JSON in response body
		if fallback := extractJSON(string(body)); fallback != "" {
			if err := json.Unmarshal([]byte(fallback), out); err == nil {
				return nil
			}
		}
		return errors.New("no JSON found in LLM output")
	})
	return costs, err
}

// extractContentFromChoices reads choices[0].message.content and returns
// the JSON object it contains.
func extractContentFromChoices(body []byte) string {
	var obj struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &obj); err != nil || len(obj.Choices) == 0 {
		return ""
	}
	return extractJSON(obj.Choices[0].Message.Content)
}

// extractJSON finds the first balanced JSON object in a string.
// It strips common markdown fences first.
func extractJSON(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, r := range []string{"```json", "```yaml", "```text", "```"} {
		s = strings.ReplaceAll(s, r, "")
	}

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1])
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
