package workerrt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Client is a thin HTTP client over the orchestrator's worker-facing
// endpoints (spec §6).
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) post(path string, body, out interface{}) (int, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	resp, err := c.HTTP.Post(c.BaseURL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("orchestrator returned status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// RegisterWorker registers workerID with the orchestrator; idempotent on a
// repeat call with the same id.
func (c *Client) RegisterWorker(workerID uuid.UUID, tenantID, machineGroup string) error {
	_, err := c.post("/workers/register", map[string]string{
		"worker_id":     workerID.String(),
		"tenant_id":     tenantID,
		"machine_group": machineGroup,
	}, nil)
	return err
}

// Heartbeat refreshes this worker's liveness timestamp.
func (c *Client) Heartbeat(workerID uuid.UUID) error {
	_, err := c.post("/workers/heartbeat", map[string]string{
		"worker_id": workerID.String(),
	}, nil)
	return err
}

// FragmentAssignment is the wire shape of a dispatched fragment (spec §6):
// the script to run, the chain's provenance environment it must run with,
// and the server-specified timeout budget. The orchestrator sends it inside
// its standard {"data": ...} response envelope.
type FragmentAssignment struct {
	ID          uuid.UUID         `json:"fragment_id"`
	Script      string            `json:"script"`
	Env         map[string]string `json:"env"`
	TimeoutSecs int               `json:"timeout_secs"`
}

// RequestWork polls for the next fragment; returns (nil, nil) if none is
// ready right now.
func (c *Client) RequestWork(workerID uuid.UUID, tenantID, machineGroup string) (*FragmentAssignment, error) {
	var body struct {
		Data FragmentAssignment `json:"data"`
	}
	status, err := c.post("/work/request", map[string]string{
		"worker_id":     workerID.String(),
		"tenant_id":     tenantID,
		"machine_group": machineGroup,
	}, &body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return &body.Data, nil
}

// ReportResult reports a fragment's execution outcome, including a
// distinguished error message and stdout/stderr tails when the worker
// captured them (spec §6's report_result `error?`, `stdout?`, `stderr?`).
func (c *Client) ReportResult(workerID, fragmentID uuid.UUID, exitCode int, errMsg, stdout, stderr string) error {
	_, err := c.post("/work/result", map[string]interface{}{
		"worker_id":   workerID.String(),
		"fragment_id": fragmentID.String(),
		"exit_code":   exitCode,
		"error":       errMsg,
		"stdout":      stdout,
		"stderr":      stderr,
	}, nil)
	return err
}
