package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// 数据库驱动取值。
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverNone     = "none"
)

// 下载落盘方式取值。
const (
	SinkLocal = "local"
	SinkS3    = "s3"
)

// Config 聚合服务启动需要的关键配置。
type Config struct {
	HTTPPort  string
	LogLevel  string
	LogFormat string

	// 审计账本数据库
	DBDriver       string
	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	DBSSLMode      string
	DBMaxOpenConns int
	SQLitePath     string

	// DBConnectTimeout 写入 postgres 连接串的 connect_timeout。
	DBConnectTimeout time.Duration
	// LedgerTimeout 是单次账本调用的时间预算，超时后降级为未跟踪。
	LedgerTimeout    time.Duration

	// 远端存储微服务
	GatewayURL              string
	GatewayProbeTimeout     time.Duration
	GatewayNegotiateTimeout time.Duration
	GatewayTransferTimeout  time.Duration
	GatewayBufferUploads    bool

	DownloadSink         string
	DownloadDir          string
	UploadTempDir        string
	MaxUploadBytes       int64
	MaxDownloadBytes     int64
	DefaultUserID        string
	DefaultMediaCategory string

	AuthEnabled        bool
	APIKeys            []string
	TransferRateLimit  int
	TransferRateWindow time.Duration

	// S3/MinIO 下载镜像配置
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string
	S3UseSSL    bool
	S3Prefix    string
}

// rawEnv 是环境变量的原始映射，由 go-env 负责解码与默认值。
type rawEnv struct {
	Port      string `env:"PORT,default=8080"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	DBDriver       string `env:"DB_DRIVER,default=postgres"`
	DBHost         string `env:"DB_HOST,default=127.0.0.1"`
	DBPort         int    `env:"DB_PORT,default=5432"`
	DBUser         string `env:"DB_USER,default=fileops"`
	DBPassword     string `env:"DB_PASSWORD,default=fileops"`
	DBName         string `env:"DB_NAME,default=fileops"`
	DBSSLMode      string `env:"DB_SSL_MODE,default=disable"`
	DBMaxOpenConns int    `env:"DB_MAX_OPEN_CONNS,default=5"`
	SQLitePath     string `env:"SQLITE_PATH,default=data/fileops.db"`

	DBConnectTimeout string `env:"DB_CONNECT_TIMEOUT,default=5s"`
	LedgerTimeout    string `env:"LEDGER_TIMEOUT,default=5s"`

	GatewayURL              string `env:"STORAGE_GATEWAY_URL,default=http://localhost:4000"`
	GatewayProbeTimeout     string `env:"GATEWAY_PROBE_TIMEOUT,default=30s"`
	GatewayNegotiateTimeout string `env:"GATEWAY_NEGOTIATE_TIMEOUT,default=60s"`
	GatewayTransferTimeout  string `env:"GATEWAY_TRANSFER_TIMEOUT,default=300s"`
	GatewayBufferUploads    string `env:"GATEWAY_BUFFER_UPLOADS,default=false"`

	DownloadSink         string `env:"DOWNLOAD_SINK,default=local"`
	DownloadDir          string `env:"DOWNLOAD_DIR,default=./downloads"`
	UploadTempDir        string `env:"UPLOAD_TMP_DIR,default=./uploads"`
	MaxUploadBytes       int    `env:"MAX_UPLOAD_BYTES,default=10485760"`
	MaxDownloadBytes     int    `env:"MAX_DOWNLOAD_BYTES,default=536870912"`
	DefaultUserID        string `env:"DEFAULT_USER_ID,default=default-user"`
	DefaultMediaCategory string `env:"DEFAULT_MEDIA_CATEGORY,default=uploads"`

	AuthEnabled        string `env:"AUTH_ENABLED,default=false"`
	APIKeys            string `env:"API_KEYS"`
	TransferRateLimit  int    `env:"TRANSFER_RATE_LIMIT,default=0"`
	TransferRateWindow string `env:"TRANSFER_RATE_WINDOW,default=1m"`

	S3Endpoint  string `env:"S3_ENDPOINT,default=localhost:9000"`
	S3AccessKey string `env:"S3_ACCESS_KEY,default=minioadmin"`
	S3SecretKey string `env:"S3_SECRET_KEY,default=minioadmin"`
	S3Bucket    string `env:"S3_BUCKET,default=fileops-downloads"`
	S3Region    string `env:"S3_REGION,default=us-east-1"`
	S3UseSSL    string `env:"S3_USE_SSL,default=false"`
	S3Prefix    string `env:"S3_PREFIX"`
}

// Load 先读取当前目录下的 .env（如果存在），再从环境变量加载配置。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("读取 .env 失败: %w", err)
	}
	return FromEnviron()
}

// FromEnviron 只从进程环境变量解析配置，不读取 .env。
func FromEnviron() (*Config, error) {
	var raw rawEnv
	if _, err := env.UnmarshalFromEnviron(&raw); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}

	probe, err := parseDuration("GATEWAY_PROBE_TIMEOUT", raw.GatewayProbeTimeout)
	if err != nil {
		return nil, err
	}
	negotiate, err := parseDuration("GATEWAY_NEGOTIATE_TIMEOUT", raw.GatewayNegotiateTimeout)
	if err != nil {
		return nil, err
	}
	transfer, err := parseDuration("GATEWAY_TRANSFER_TIMEOUT", raw.GatewayTransferTimeout)
	if err != nil {
		return nil, err
	}

	rateWindow, err := parseDuration("TRANSFER_RATE_WINDOW", raw.TransferRateWindow)
	if err != nil {
		return nil, err
	}
	connectTimeout, err := parseDuration("DB_CONNECT_TIMEOUT", raw.DBConnectTimeout)
	if err != nil {
		return nil, err
	}
	ledgerTimeout, err := parseDuration("LEDGER_TIMEOUT", raw.LedgerTimeout)
	if err != nil {
		return nil, err
	}

	driver := strings.ToLower(strings.TrimSpace(raw.DBDriver))
	switch driver {
	case DriverPostgres, DriverSQLite, DriverNone:
	default:
		return nil, fmt.Errorf("DB_DRIVER 取值无效: %q (postgres, sqlite, none)", raw.DBDriver)
	}

	sink := strings.ToLower(strings.TrimSpace(raw.DownloadSink))
	switch sink {
	case SinkLocal, SinkS3:
	default:
		return nil, fmt.Errorf("DOWNLOAD_SINK 取值无效: %q (local, s3)", raw.DownloadSink)
	}

	gatewayURL := strings.TrimRight(strings.TrimSpace(raw.GatewayURL), "/")
	if _, err := url.ParseRequestURI(gatewayURL); err != nil {
		return nil, fmt.Errorf("解析 STORAGE_GATEWAY_URL 失败: %w", err)
	}

	maxConns := raw.DBMaxOpenConns
	if maxConns <= 0 {
		maxConns = 5
	}
	maxUpload := int64(raw.MaxUploadBytes)
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}

	apiKeys := parseList(raw.APIKeys)
	authEnabled := parseBool(raw.AuthEnabled)
	if authEnabled && len(apiKeys) == 0 {
		return nil, fmt.Errorf("AUTH_ENABLED 已开启但 API_KEYS 为空")
	}

	return &Config{
		HTTPPort:                raw.Port,
		LogLevel:                strings.ToLower(raw.LogLevel),
		LogFormat:               strings.ToLower(raw.LogFormat),
		DBDriver:                driver,
		DBHost:                  raw.DBHost,
		DBPort:                  raw.DBPort,
		DBUser:                  raw.DBUser,
		DBPassword:              raw.DBPassword,
		DBName:                  raw.DBName,
		DBSSLMode:               raw.DBSSLMode,
		DBMaxOpenConns:          maxConns,
		SQLitePath:              raw.SQLitePath,
		DBConnectTimeout:        connectTimeout,
		LedgerTimeout:           ledgerTimeout,
		GatewayURL:              gatewayURL,
		GatewayProbeTimeout:     probe,
		GatewayNegotiateTimeout: negotiate,
		GatewayTransferTimeout:  transfer,
		GatewayBufferUploads:    parseBool(raw.GatewayBufferUploads),
		DownloadSink:            sink,
		DownloadDir:             raw.DownloadDir,
		UploadTempDir:           raw.UploadTempDir,
		MaxUploadBytes:          maxUpload,
		MaxDownloadBytes:        int64(raw.MaxDownloadBytes),
		DefaultUserID:           raw.DefaultUserID,
		DefaultMediaCategory:    raw.DefaultMediaCategory,
		AuthEnabled:             authEnabled,
		APIKeys:                 apiKeys,
		TransferRateLimit:       raw.TransferRateLimit,
		TransferRateWindow:      rateWindow,
		S3Endpoint:              raw.S3Endpoint,
		S3AccessKey:             raw.S3AccessKey,
		S3SecretKey:             raw.S3SecretKey,
		S3Bucket:                raw.S3Bucket,
		S3Region:                raw.S3Region,
		S3UseSSL:                parseBool(raw.S3UseSSL),
		S3Prefix:                strings.Trim(raw.S3Prefix, "/"),
	}, nil
}

// EnsureDir 确保目录存在，路径被普通文件占用时报错。
func EnsureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("路径 %s 已存在但不是目录", path)
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(path, 0o755)
	}

	return err
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}

	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

// parseDuration 接受纯数字（按秒）或 Go duration 字符串，如 "90s"、"5m"。
func parseDuration(key, raw string) (time.Duration, error) {
	value := strings.TrimSpace(raw)
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("%s 必须为正数", key)
		}
		return time.Duration(secs) * time.Second, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s 必须为正数", key)
	}
	return d, nil
}

func parseBool(raw string) bool {
	lower := strings.ToLower(strings.TrimSpace(raw))
	return lower == "true" || lower == "1" || lower == "yes"
}

// PostgresDSN 生成标准 postgres:// 连接串，供数据访问层直接使用。
func (c *Config) PostgresDSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   c.DBName,
	}

	q := url.Values{}
	if c.DBSSLMode != "" {
		q.Set("sslmode", c.DBSSLMode)
	}
	if c.DBConnectTimeout > 0 {
		secs := int(math.Ceil(c.DBConnectTimeout.Seconds()))
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// LedgerEnabled 表示是否配置了审计账本存储。
func (c *Config) LedgerEnabled() bool {
	return c.DBDriver != DriverNone
}
