// apiclient/sdn_client.go
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// ErrSDNUnavailable wraps every failure to get a usable answer from the
// screening API: transport errors, timeouts, non-200 responses and
// undecodable bodies.
var ErrSDNUnavailable = errors.New("unable to connect to the SDN API")

// SDNClient searches the consolidated screening list API.
type SDNClient struct {
	APIURL string
	APIKey string
	Lists  string

	httpClient *http.Client
}

func NewSDNClient(apiURL, apiKey, lists string, timeout time.Duration) *SDNClient {
	return &SDNClient{
		APIURL:     apiURL,
		APIKey:     apiKey,
		Lists:      lists,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithLists returns a copy of the client that searches lists instead.
func (c *SDNClient) WithLists(lists string) *SDNClient {
	cp := *c
	cp.Lists = lists
	return &cp
}

// Search looks up an individual by name, city and ISO alpha-2 country and
// returns the decoded API response. The hit count is its "total" field,
// see HitCount.
func (c *SDNClient) Search(ctx context.Context, lmsUserID int64, name, city, country string) (map[string]any, error) {
	params := url.Values{}
	params.Set("sources", c.Lists)
	params.Set("type", "individual")
	params.Set("name", name)
	// The API documents city as the address parameter for individuals.
	params.Set("city", city)
	params.Set("countries", country)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build SDN API request: %w", err)
	}
	req.Header.Set("subscription-key", c.APIKey)

	zap.S().Infof("Sanctions SDNCheck: starting the request to the US Treasury SDN API for %d.", lmsUserID)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		var te interface{ Timeout() bool }
		if errors.As(err, &te) && te.Timeout() {
			zap.S().Warnf("Sanctions SDNCheck: Connection to the US Treasury SDN API timed out for [%s].", name)
		}
		return nil, fmt.Errorf("%w: %v", ErrSDNUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		zap.S().Warnf("Sanctions SDNCheck: Unable to connect to the US Treasury SDN API for [%s]. Status code [%d] with message: [%s]",
			name, resp.StatusCode, body)
		return nil, fmt.Errorf("%w: status code %d", ErrSDNUnavailable, resp.StatusCode)
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrSDNUnavailable, err)
	}
	if _, ok := out["total"]; !ok {
		return nil, fmt.Errorf("%w: response has no total field", ErrSDNUnavailable)
	}
	return out, nil
}

// HitCount reads the "total" field of a search response.
func HitCount(resp map[string]any) int {
	switch v := resp["total"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}
