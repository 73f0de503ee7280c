package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// httpRequestsTotal 按路由模式与状态码统计管理 API 请求
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileops_http_requests_total",
			Help: "Admin API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	// httpRequestDuration 包含同步等待远端传输的时间，桶上限放宽到 5 分钟
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fileops_http_request_duration_seconds",
			Help:    "Admin API request duration in seconds",
			Buckets: []float64{0.005, 0.05, 0.25, 1, 5, 15, 60, 300},
		},
		[]string{"method", "route"},
	)

	// httpUploadBytes 记录上传请求体大小
	httpUploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fileops_http_upload_bytes",
		Help:    "Size of multipart upload request bodies",
		Buckets: prometheus.ExponentialBuckets(1024, 8, 7),
	})

	inflightRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fileops_http_inflight_requests",
		Help: "Admin API requests currently being served",
	})
)

// statusRecorder 记录 handler 写出的状态码
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Metrics 创建 Prometheus 指标收集中间件，路由标签使用 chi 的路由模式
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			inflightRequests.Inc()
			defer inflightRequests.Dec()

			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			if r.Method == http.MethodPost && r.ContentLength > 0 && route == "/api/uploads" {
				httpUploadBytes.Observe(float64(r.ContentLength))
			}
		})
	}
}
