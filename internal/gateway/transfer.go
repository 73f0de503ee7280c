package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
)

// ExportFormats 是远端支持的导出格式。
var ExportFormats = []string{"json", "csv", "xml", "txt"}

// SupportedFormat 判断导出格式是否受支持，大小写不敏感。
func SupportedFormat(format string) bool {
	f := strings.ToLower(strings.TrimSpace(format))
	for _, s := range ExportFormats {
		if f == s {
			return true
		}
	}
	return false
}

// Download 是下载得到的文件内容与协商阶段的远端响应。
type Download struct {
	Data        []byte
	ContentType string
	Info        map[string]any
}

// PutFile 以 multipart 方式把本地文件上传到 /api/upload/{owner}/{name}，受 TransferTimeout 约束。
func (c *Client) PutFile(ctx context.Context, localPath, ownerID, targetName, contentType string) (*RemoteFile, error) {
	const op = "upload"
	if err := requireFields(map[string]string{"owner_id": ownerID, "file_name": targetName}); err != nil {
		return nil, err
	}

	f, size, err := c.openLocal(localPath)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.TransferTimeout)
	defer cancel()

	body, formType, length, err := c.multipartBody(f, targetName, contentType)
	if err != nil {
		return nil, unreachable(op, err, "read local file: %v", err)
	}

	target := c.endpoint("api", "upload", url.PathEscape(ownerID), url.PathEscape(targetName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		if closer, ok := body.(io.Closer); ok {
			closer.Close()
		}
		return nil, unreachable(op, err, "build upload request: %v", err)
	}
	req.Header.Set("Content-Type", formType)
	if length >= 0 {
		req.ContentLength = length
	}

	start := time.Now()
	resp, err := c.do(req)
	if err != nil {
		return nil, unreachable(op, err, "upload request failed: %s", describe(err))
	}
	defer resp.Body.Close()

	env, raw, err := readEnvelope(resp)
	if err != nil {
		return nil, unreachable(op, err, "read upload response: %s", describe(err))
	}
	if !succeeded(resp, env) {
		return nil, remote(op, resp.StatusCode, "%s", failureMessage(env, resp.StatusCode, raw))
	}

	file, err := decodeRemoteFile(env.File)
	if err != nil {
		return nil, remote(op, resp.StatusCode, "invalid upload response: %v", err)
	}

	c.logger.Info("file uploaded to storage gateway",
		"file_name", targetName,
		"stored_name", file.StoredName,
		"size", humanize.IBytes(uint64(size)),
		"elapsed", time.Since(start),
	)
	return file, nil
}

// FetchFile 先向 /api/download/{key}/{name} 协商签名下载链接（NegotiateTimeout），
// 再从该链接取回文件内容（TransferTimeout）。
func (c *Client) FetchFile(ctx context.Context, remoteKey, fileName string) (*Download, error) {
	const op = "download"
	if err := requireFields(map[string]string{"remote_key": remoteKey, "file_name": fileName}); err != nil {
		return nil, err
	}

	downloadURL, info, err := c.negotiateDownload(ctx, remoteKey, fileName)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.TransferTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, remote(op, 0, "invalid download URL: %v", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, unreachable(op, err, "file transfer failed: %s", describe(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, remote(op, resp.StatusCode, "file transfer failed: remote returned status %d", resp.StatusCode)
	}

	limit := c.cfg.MaxDownloadBytes
	if limit > 0 && resp.ContentLength > limit {
		return nil, tooLarge(op, resp.StatusCode, limit)
	}

	body := io.Reader(resp.Body)
	if limit > 0 {
		body = io.LimitReader(resp.Body, limit+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, unreachable(op, err, "file transfer failed: %s", describe(err))
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, tooLarge(op, resp.StatusCode, limit)
	}

	c.logger.Info("file downloaded from storage gateway",
		"remote_key", remoteKey,
		"size", humanize.IBytes(uint64(len(data))),
		"elapsed", time.Since(start),
	)
	return &Download{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		Info:        info,
	}, nil
}

func (c *Client) negotiateDownload(ctx context.Context, remoteKey, fileName string) (string, map[string]any, error) {
	const op = "download"
	const prefix = "Failed to get download URL: "

	ctx, cancel := context.WithTimeout(ctx, c.cfg.NegotiateTimeout)
	defer cancel()

	target := c.endpoint("api", "download", escapeKey(remoteKey), url.PathEscape(fileName))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", nil, unreachable(op, err, prefix+"%v", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return "", nil, unreachable(op, err, prefix+"%s", describe(err))
	}
	defer resp.Body.Close()

	env, raw, err := readEnvelope(resp)
	if err != nil {
		return "", nil, unreachable(op, err, prefix+"%s", describe(err))
	}
	if !succeeded(resp, env) {
		return "", nil, remote(op, resp.StatusCode, prefix+"%s", failureMessage(env, resp.StatusCode, raw))
	}
	if env.DownloadURL == "" {
		return "", nil, remote(op, resp.StatusCode, prefix+"response has no downloadUrl")
	}

	info := map[string]any{}
	_ = json.Unmarshal(raw, &info)
	return env.DownloadURL, info, nil
}

// ExportData 把 payload 以 {"data": payload} 的形式提交到 /api/export/{format}/{owner}/{name}。
// 不支持的格式在发出请求前就返回 ValidationError。
func (c *Client) ExportData(ctx context.Context, payload any, format, ownerID, fileName string) (*RemoteFile, error) {
	const op = "export"
	normalized := strings.ToLower(strings.TrimSpace(format))
	if !SupportedFormat(normalized) {
		return nil, &ValidationError{
			Field:   "format",
			Message: fmt.Sprintf("Unsupported format: %s. Supported: %s", format, strings.Join(ExportFormats, ", ")),
		}
	}
	if err := requireFields(map[string]string{"owner_id": ownerID, "file_name": fileName}); err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{"data": payload})
	if err != nil {
		return nil, &ValidationError{Field: "data", Message: fmt.Sprintf("payload is not JSON serializable: %v", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.TransferTimeout)
	defer cancel()

	target := c.endpoint("api", "export", normalized, url.PathEscape(ownerID), url.PathEscape(fileName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, unreachable(op, err, "build export request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return nil, unreachable(op, err, "export request failed: %s", describe(err))
	}
	defer resp.Body.Close()

	env, raw, err := readEnvelope(resp)
	if err != nil {
		return nil, unreachable(op, err, "read export response: %s", describe(err))
	}
	if !succeeded(resp, env) {
		return nil, remote(op, resp.StatusCode, "%s", failureMessage(env, resp.StatusCode, raw))
	}

	file, err := decodeRemoteFile(env.Export)
	if err != nil {
		return nil, remote(op, resp.StatusCode, "invalid export response: %v", err)
	}

	c.logger.Info("data exported via storage gateway",
		"format", normalized,
		"stored_name", file.StoredName,
		"payload", humanize.IBytes(uint64(len(body))),
	)
	return file, nil
}

func (c *Client) openLocal(localPath string) (afero.File, int64, error) {
	if strings.TrimSpace(localPath) == "" {
		return nil, 0, &ValidationError{Field: "local_path", Message: "local file path is required"}
	}

	info, err := c.fs.Stat(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, &ValidationError{Field: "local_path", Message: "File not found: " + localPath}
		}
		return nil, 0, &ValidationError{Field: "local_path", Message: fmt.Sprintf("cannot stat %s: %v", localPath, err)}
	}
	if info.IsDir() {
		return nil, 0, &ValidationError{Field: "local_path", Message: localPath + " is a directory"}
	}

	f, err := c.fs.Open(localPath)
	if err != nil {
		return nil, 0, &ValidationError{Field: "local_path", Message: fmt.Sprintf("cannot open %s: %v", localPath, err)}
	}
	return f, info.Size(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// multipartBody 构造只含一个 "file" 字段的表单并接管 f 的关闭。
// 流式模式下 length 为 -1，由 goroutine 通过 io.Pipe 边读边写。
func (c *Client) multipartBody(f afero.File, fileName, contentType string) (io.Reader, string, int64, error) {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(fileName)))
	header.Set("Content-Type", contentType)

	if c.cfg.BufferUploads {
		defer f.Close()
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreatePart(header)
		if err != nil {
			return nil, "", 0, err
		}
		if _, err := io.Copy(part, f); err != nil {
			return nil, "", 0, err
		}
		if err := mw.Close(); err != nil {
			return nil, "", 0, err
		}
		return &buf, mw.FormDataContentType(), int64(buf.Len()), nil
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	formType := mw.FormDataContentType()

	go func() {
		defer f.Close()
		part, err := mw.CreatePart(header)
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	return pr, formType, -1, nil
}

func requireFields(fields map[string]string) error {
	for _, name := range []string{"owner_id", "remote_key", "file_name"} {
		value, ok := fields[name]
		if ok && strings.TrimSpace(value) == "" {
			return &ValidationError{Field: name, Message: name + " is required"}
		}
	}
	return nil
}

func tooLarge(op string, status int, limit int64) *TransferError {
	return remote(op, status, "file transfer failed: file exceeds the %s download limit", humanize.IBytes(uint64(limit)))
}
