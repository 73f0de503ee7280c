// Package gateway 是远端存储微服务的 HTTP 客户端，每次调用都带有固定的超时预算。
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fileops/internal/logging"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// 默认超时分级：探活、下载链接协商、数据传输。
const (
	DefaultProbeTimeout     = 30 * time.Second
	DefaultNegotiateTimeout = 60 * time.Second
	DefaultTransferTimeout  = 300 * time.Second
)

// maxEnvelopeBytes 限制 JSON 响应体大小，文件内容不受此限制。
const maxEnvelopeBytes = 4 << 20

// Config 描述远端服务地址与超时预算。
type Config struct {
	BaseURL          string
	ProbeTimeout     time.Duration
	NegotiateTimeout time.Duration
	TransferTimeout  time.Duration
	// BufferUploads 为 true 时先把 multipart 体写入内存再发送，以便携带 Content-Length。
	BufferUploads bool
	// MaxDownloadBytes 限制单次下载的文件大小，<= 0 表示不限制。
	MaxDownloadBytes int64
}

// Client 是无状态的网关客户端，可被多个 goroutine 并发使用。
type Client struct {
	baseURL *url.URL
	cfg     Config
	http    *http.Client
	fs      afero.Fs
	logger  *slog.Logger
}

// Option 调整 Client 的依赖。
type Option func(*Client)

// WithHTTPClient 替换底层 http.Client。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithFs 指定读取本地文件所用的文件系统。
func WithFs(fs afero.Fs) Option {
	return func(c *Client) {
		if fs != nil {
			c.fs = fs
		}
	}
}

// WithLogger 指定日志器。
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.OrDefault(logger)
	}
}

// New 创建网关客户端，未设置的超时使用默认分级。
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("gateway url must be absolute: %q", cfg.BaseURL)
	}

	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.NegotiateTimeout <= 0 {
		cfg.NegotiateTimeout = DefaultNegotiateTimeout
	}
	if cfg.TransferTimeout <= 0 {
		cfg.TransferTimeout = DefaultTransferTimeout
	}

	c := &Client{
		baseURL: base,
		cfg:     cfg,
		http:    NewHTTPClient(),
		fs:      afero.NewOsFs(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL 返回远端服务地址。
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// NewHTTPClient 返回网关使用的连接池配置。超时由每次调用的 context 控制，这里不设置整体 Timeout。
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport}
}

// endpoint 在 BaseURL 后追加已转义的路径片段。
func (c *Client) endpoint(escaped ...string) string {
	return c.baseURL.JoinPath(escaped...).String()
}

// escapeKey 逐段转义远端 key，key 中的 "/" 保留为路径分隔符。
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("X-Request-ID", uuid.NewString())
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	return c.http.Do(req)
}

// envelope 是远端所有 JSON 响应的公共外壳。
type envelope struct {
	Success     bool            `json:"success"`
	Error       string          `json:"error"`
	Message     string          `json:"message"`
	File        json.RawMessage `json:"file"`
	Export      json.RawMessage `json:"export"`
	DownloadURL string          `json:"downloadUrl"`
}

// readEnvelope 读取并解析响应体，body 非 JSON 时返回 nil 外壳。
func readEnvelope(resp *http.Response) (*envelope, []byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeBytes))
	if err != nil {
		return nil, nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, body, nil
	}
	return &env, body, nil
}

// failureMessage 优先使用远端返回的 error 字段。
func failureMessage(env *envelope, status int, body []byte) string {
	if env != nil {
		if env.Error != "" {
			return env.Error
		}
		if env.Message != "" {
			return env.Message
		}
		if status >= 200 && status < 300 {
			return "remote reported failure without details"
		}
	}
	if text := snippet(body); text != "" {
		return fmt.Sprintf("remote returned status %d: %s", status, text)
	}
	return fmt.Sprintf("remote returned status %d", status)
}

func succeeded(resp *http.Response, env *envelope) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300 && env != nil && env.Success
}

func snippet(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}

func describe(err error) string {
	if IsTimeout(err) {
		return "request timed out"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}
	return err.Error()
}
