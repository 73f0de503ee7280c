// Package health 汇总远端存储服务与操作账本的连通性。
package health

import (
	"context"
	"log/slog"
	"time"

	"fileops/internal/gateway"
	"fileops/internal/ledger"
	"fileops/internal/logging"
)

// Prober 探测远端存储服务。
type Prober interface {
	Probe(ctx context.Context) gateway.ProbeResult
}

// LedgerStatus 报告账本连通性。
type LedgerStatus interface {
	Status(ctx context.Context) ledger.Status
}

// Report 是一次健康检查的结果。
type Report struct {
	RemoteStatus   string    `json:"remote_status"`
	RemoteInfo     any       `json:"remote_info,omitempty"`
	RemoteError    string    `json:"remote_error,omitempty"`
	RemoteLatency  string    `json:"remote_latency,omitempty"`
	LedgerStatus   string    `json:"ledger_status"`
	LedgerError    string    `json:"ledger_error,omitempty"`
	OverallHealthy bool      `json:"overall_healthy"`
	CheckedAt      time.Time `json:"checked_at"`
}

// Checker 汇总远端服务与账本的健康状态。
type Checker struct {
	remote Prober
	ledger LedgerStatus
	logger *slog.Logger
	now    func() time.Time
}

// NewChecker 创建健康检查器，logger 为 nil 时使用默认 logger。
func NewChecker(remote Prober, l LedgerStatus, logger *slog.Logger) *Checker {
	return &Checker{remote: remote, ledger: l, logger: logging.OrDefault(logger), now: time.Now}
}

// Check 依次探测远端与账本。账本未配置不算不健康。
func (c *Checker) Check(ctx context.Context) Report {
	probe := c.remote.Probe(ctx)
	ls := c.ledger.Status(ctx)

	report := Report{
		RemoteStatus: probe.Status,
		RemoteInfo:   probe.Info,
		RemoteError:  probe.Error,
		LedgerStatus: ls.State,
		LedgerError:  ls.Error,
		CheckedAt:    c.now().UTC(),
	}
	if probe.Latency > 0 {
		report.RemoteLatency = probe.Latency.Round(time.Millisecond).String()
	}
	report.OverallHealthy = probe.Reachable() &&
		(ls.State == ledger.StateConnected || ls.State == ledger.StateNotConfigured)

	if !report.OverallHealthy {
		c.logger.Warn("health check degraded",
			"remote_status", report.RemoteStatus,
			"remote_error", report.RemoteError,
			"ledger_status", report.LedgerStatus,
			"ledger_error", report.LedgerError,
		)
	}
	return report
}
