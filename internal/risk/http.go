package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPOracle queries a JSON risk API. The expected response shape is
//
//	{"level": "safe" | "warning" | "danger", "reasons": ["..."]}
//
// Every request carries a deadline so a slow oracle can never stall a turn.
type HTTPOracle struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// HTTPOracleConfig configures the HTTP oracle client.
type HTTPOracleConfig struct {
	// URL is the base endpoint, e.g. "https://risk.example.com/v1/assess".
	URL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds each assessment request. Default: 5s
	Timeout time.Duration
}

// NewHTTPOracle creates an HTTP-backed risk oracle.
func NewHTTPOracle(config HTTPOracleConfig) (*HTTPOracle, error) {
	if strings.TrimSpace(config.URL) == "" {
		return nil, errors.New("risk: oracle URL is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &HTTPOracle{
		baseURL: config.URL,
		apiKey:  config.APIKey,
		client:  &http.Client{Timeout: config.Timeout},
	}, nil
}

type assessmentPayload struct {
	Level   string   `json:"level"`
	Reasons []string `json:"reasons"`
}

func (o *HTTPOracle) Assess(ctx context.Context, token, chain string) (*Assessment, error) {
	endpoint := fmt.Sprintf("%s?token=%s&chain=%s",
		o.baseURL, url.QueryEscape(token), url.QueryEscape(chain))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("risk: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("risk: oracle unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("risk: oracle returned status %d", resp.StatusCode)
	}

	var payload assessmentPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("risk: failed to decode response: %w", err)
	}

	level := Level(strings.ToLower(payload.Level))
	switch level {
	case LevelSafe, LevelWarning, LevelDanger:
	default:
		return nil, fmt.Errorf("risk: unknown level %q", payload.Level)
	}

	return &Assessment{
		Token:   token,
		Chain:   chain,
		Level:   level,
		Reasons: payload.Reasons,
	}, nil
}
