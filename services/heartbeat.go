// services/heartbeat.go
package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/opsgenie/opsgenie-go-sdk-v2/client"
	"github.com/opsgenie/opsgenie-go-sdk-v2/heartbeat"
	"go.uber.org/zap"

	"github.com/gewnthar/sanctions/config"
)

// Heartbeat pings an OpsGenie heartbeat after each healthy import run, so a
// missing ping alerts on-call that the fallback data has gone stale.
type Heartbeat struct {
	cfg config.HeartbeatConfig

	// HTTPClient replaces the SDK's default transport when set.
	HTTPClient *http.Client
}

func NewHeartbeat(cfg config.HeartbeatConfig) *Heartbeat {
	return &Heartbeat{cfg: cfg}
}

// Enabled reports whether an API key is configured.
func (h *Heartbeat) Enabled() bool {
	return h != nil && h.cfg.APIKey != ""
}

// Ping sends one heartbeat. Without an API key it logs and does nothing.
func (h *Heartbeat) Ping(ctx context.Context) error {
	if !h.Enabled() {
		zap.S().Warn("Service: heartbeat API key not configured; skipping heartbeat ping")
		return nil
	}

	hc, err := heartbeat.NewClient(&client.Config{
		ApiKey:         h.cfg.APIKey,
		OpsGenieAPIURL: apiHost(h.cfg.APIURL),
		HttpClient:     h.HTTPClient,
		RequestTimeout: 10 * time.Second,
		RetryCount:     1,
	})
	if err != nil {
		return fmt.Errorf("failed to create heartbeat client: %w", err)
	}

	res, err := hc.Ping(ctx, h.cfg.Name)
	if err != nil {
		return fmt.Errorf("heartbeat %s failed: %w", h.cfg.Name, err)
	}
	zap.S().Infof("Service: heartbeat %s sent: %s", h.cfg.Name, res.Message)
	return nil
}

// apiHost reduces a configured URL such as https://api.opsgenie.com/ to the
// bare host the SDK expects.
func apiHost(apiURL string) client.ApiUrl {
	host := strings.TrimPrefix(strings.TrimPrefix(apiURL, "https://"), "http://")
	host = strings.TrimRight(host, "/")
	if host == "" {
		return client.API_URL
	}
	return client.ApiUrl(host)
}
