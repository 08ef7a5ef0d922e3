package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// OrchestratorClient implements MetricsSource over the orchestrator's HTTP
// queue_metrics endpoint (spec §6), the controller's only dependency on the
// orchestrator.
type OrchestratorClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewOrchestratorClient(baseURL string) *OrchestratorClient {
	return &OrchestratorClient{BaseURL: baseURL, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

type queueMetricsResponse struct {
	Pending int `json:"Pending"`
}

func (c *OrchestratorClient) QueueMetrics(ctx context.Context, tenantID, machineGroup string) (int, error) {
	u := c.BaseURL + "/queue/metrics?tenant_id=" + url.QueryEscape(tenantID) + "&machine_group=" + url.QueryEscape(machineGroup)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("queue_metrics returned status %d", resp.StatusCode)
	}
	var body struct {
		Data queueMetricsResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode queue metrics: %w", err)
	}
	return body.Data.Pending, nil
}
