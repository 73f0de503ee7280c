package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal 按类型与结果统计文件操作
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileops_operations_total",
			Help: "File operations by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// operationDuration 记录单次文件操作耗时（含账本读写）
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fileops_operation_duration_seconds",
			Help:    "File operation duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)
)
