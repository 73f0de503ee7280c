package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// 探活结果取值。
const (
	ProbeConnected = "connected"
	ProbeTimedOut  = "timeout"
	ProbeFailed    = "failed"
)

// ProbeResult 是远端健康检查的结果。超时单独区分，远端可能正在冷启动。
type ProbeResult struct {
	Status  string        `json:"status"`
	Info    any           `json:"info,omitempty"`
	Error   string        `json:"error,omitempty"`
	Latency time.Duration `json:"-"`
}

// Reachable 表示远端是否可用。
func (r ProbeResult) Reachable() bool {
	return r.Status == ProbeConnected
}

// Probe 调用 GET /health，受 ProbeTimeout 约束。
func (c *Client) Probe(ctx context.Context) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("health"), nil)
	if err != nil {
		return ProbeResult{Status: ProbeFailed, Error: err.Error()}
	}

	resp, err := c.do(req)
	latency := time.Since(start)
	if err != nil {
		if IsTimeout(err) {
			c.logger.Warn("storage gateway probe timed out", "latency", latency)
			return ProbeResult{
				Status:  ProbeTimedOut,
				Error:   "connection timed out (remote may be starting up)",
				Latency: latency,
			}
		}
		c.logger.Warn("storage gateway probe failed", "error", err)
		return ProbeResult{Status: ProbeFailed, Error: describe(err), Latency: latency}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ProbeResult{
			Status:  ProbeFailed,
			Error:   fmt.Sprintf("health check returned status %d", resp.StatusCode),
			Latency: latency,
		}
	}

	var info any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxEnvelopeBytes)).Decode(&info); err != nil {
		info = nil
	}

	c.logger.Debug("storage gateway probe ok", "latency", latency)
	return ProbeResult{Status: ProbeConnected, Info: info, Latency: latency}
}
